// Operator registry for marble scenarios
// 操作符注册表：把YAML步骤构造成rxstream操作符
package scenario

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xinjiayu/rxstream"
)

// buildContext 构造操作符时可用的环境
type buildContext struct {
	scheduler rxstream.Scheduler
	frame     time.Duration
	name      string
	source    func(name string) *rxstream.Observable
}

func (c *buildContext) frames(n int) time.Duration {
	return time.Duration(n) * c.frame
}

// registeredOperator 一个已注册的操作符
type registeredOperator struct {
	// needsSource 步骤必须引用另一个源
	needsSource bool
	build       func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error)
}

// registry 所有可以在场景中使用的操作符
var registry = map[string]registeredOperator{
	"map": {build: func(step Step, _ *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.Map(func(v interface{}) (interface{}, error) {
			if mapped, ok := step.Mapping[fmt.Sprint(v)]; ok {
				return mapped, nil
			}
			return v, nil
		}), nil
	}},
	"filter": {build: func(step Step, _ *buildContext) (rxstream.OperatorFunc, error) {
		keep := make(map[string]bool, len(step.Values))
		for _, v := range step.Values {
			keep[v] = true
		}
		return rxstream.Filter(func(v interface{}) bool {
			return keep[fmt.Sprint(v)]
		}), nil
	}},
	"take": {build: func(step Step, _ *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.Take(step.Count), nil
	}},
	"skip": {build: func(step Step, _ *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.Skip(step.Count), nil
	}},
	"startWith": {build: func(step Step, _ *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.StartWith(stringValues(step.Values)...), nil
	}},
	"defaultIfEmpty": {build: func(step Step, _ *buildContext) (rxstream.OperatorFunc, error) {
		if len(step.Values) != 1 {
			return nil, errors.New("exactly one value required")
		}
		return rxstream.DefaultIfEmpty(step.Values[0]), nil
	}},
	"ignoreElements": {build: func(Step, *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.IgnoreElements(), nil
	}},
	"delay": {build: func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.Delay(ctx.frames(step.Frames), rxstream.WithScheduler(ctx.scheduler)), nil
	}},
	"debounceTime": {build: func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.DebounceTime(ctx.frames(step.Frames), rxstream.WithScheduler(ctx.scheduler)), nil
	}},
	"throttleTime": {build: func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.ThrottleTime(ctx.frames(step.Frames), rxstream.WithScheduler(ctx.scheduler)), nil
	}},
	"timeout": {build: func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		if step.Frames <= 0 {
			return nil, errors.New("frames must be positive")
		}
		return rxstream.Timeout(ctx.frames(step.Frames), rxstream.WithScheduler(ctx.scheduler)), nil
	}},
	"mergeMap": {needsSource: true, build: func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		project, err := projection(step, ctx)
		if err != nil {
			return nil, err
		}
		concurrency := step.Concurrency
		if concurrency <= 0 {
			concurrency = rxstream.Unbounded
		}
		return rxstream.MergeMap(project, rxstream.WithConcurrency(concurrency)), nil
	}},
	"concatMap": {needsSource: true, build: func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		project, err := projection(step, ctx)
		if err != nil {
			return nil, err
		}
		return rxstream.ConcatMap(project), nil
	}},
	"switchMap": {needsSource: true, build: func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		project, err := projection(step, ctx)
		if err != nil {
			return nil, err
		}
		return rxstream.SwitchMap(project), nil
	}},
	"exhaustMap": {needsSource: true, build: func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		project, err := projection(step, ctx)
		if err != nil {
			return nil, err
		}
		return rxstream.ExhaustMap(project), nil
	}},
	"mergeWith": {needsSource: true, build: func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.MergeWith(ctx.source(step.Source)), nil
	}},
	"concatWith": {needsSource: true, build: func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.ConcatWith(ctx.source(step.Source)), nil
	}},
	"takeUntil": {needsSource: true, build: func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.TakeUntil(ctx.source(step.Source)), nil
	}},
	"catch": {needsSource: true, build: func(step Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		fallback := ctx.source(step.Source)
		return rxstream.Catch(func(error, *rxstream.Observable) *rxstream.Observable {
			return fallback
		}), nil
	}},
	"onErrorReturn": {build: func(step Step, _ *buildContext) (rxstream.OperatorFunc, error) {
		if len(step.Values) != 1 {
			return nil, errors.New("exactly one value required")
		}
		return rxstream.OnErrorReturn(step.Values[0]), nil
	}},
	"retry": {build: func(step Step, _ *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.Retry(step.Count), nil
	}},
	"share": {build: func(Step, *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.Share(), nil
	}},
	"log": {build: func(_ Step, ctx *buildContext) (rxstream.OperatorFunc, error) {
		return rxstream.Log(ctx.name), nil
	}},
}

// Operators 已注册的操作符名称
func Operators() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func validateStep(step Step, sources map[string]Source) error {
	op, ok := registry[step.Op]
	if !ok {
		return fmt.Errorf("unknown operator %q", step.Op)
	}
	if op.needsSource {
		if step.Source == "" {
			return errors.New("source is required")
		}
		if _, ok := sources[step.Source]; !ok {
			return fmt.Errorf("source %q is not defined", step.Source)
		}
	}
	switch step.Emit {
	case "", "inner", "outer", "both":
	default:
		return fmt.Errorf("invalid emit %q", step.Emit)
	}
	if step.Count < 0 || step.Frames < 0 || step.Concurrency < 0 {
		return errors.New("negative argument")
	}
	return nil
}

// projection 把外部值投影到引用的内部源，按Emit选择发射内容
func projection(step Step, ctx *buildContext) (rxstream.Projection, error) {
	inner := ctx.source(step.Source)
	switch step.Emit {
	case "", "inner":
		return func(interface{}, int) *rxstream.Observable {
			return inner
		}, nil
	case "outer", "both":
		both := step.Emit == "both"
		return func(outer interface{}, _ int) *rxstream.Observable {
			return inner.Pipe(rxstream.Map(func(v interface{}) (interface{}, error) {
				if both {
					return fmt.Sprint(outer) + fmt.Sprint(v), nil
				}
				return outer, nil
			}))
		}, nil
	default:
		return nil, fmt.Errorf("invalid emit %q", step.Emit)
	}
}

func stringValues(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
