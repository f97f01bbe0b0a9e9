// Scenario runner for rxstream
// 场景运行器：在TestScheduler上构造源和流水线并比对输出
package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/xinjiayu/rxstream"
	"github.com/xinjiayu/rxstream/rxtest"
)

// Options 运行选项
type Options struct {
	// MaxFrames 虚拟时间上限（帧数），0表示不限制
	MaxFrames int
	// Logger 运行日志，nil时使用slog.Default()
	Logger *slog.Logger
}

// Result 一次场景运行的结果
type Result struct {
	Name          string              `json:"name"`
	Passed        bool                `json:"passed"`
	Expected      string              `json:"expected"`
	Actual        string              `json:"actual"`
	Subscriptions map[string][]string `json:"subscriptions,omitempty"`
	Mismatches    []string            `json:"mismatches,omitempty"`
	// Frame 每帧的虚拟时间
	Frame time.Duration `json:"-"`
	// Messages 流水线输出的原始消息
	Messages []rxtest.Message `json:"-"`
}

// testSource 记录订阅日志的测试源
type testSource struct {
	observable    *rxstream.Observable
	subscriptions func() []rxtest.SubscriptionLog
}

// Run 运行场景。场景本身无效或运行时panic时返回错误；输出不匹配记录在Result中。
func Run(s *Scenario, opts Options) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("scenario", s.Name))

	frame, _ := s.FrameDuration()
	ts := rxtest.NewTestScheduler(frame)
	if opts.MaxFrames > 0 {
		ts.MaxFrames = ts.Frames(opts.MaxFrames)
	}

	sources, err := buildSources(s, ts)
	if err != nil {
		return nil, err
	}

	ctx := &buildContext{
		scheduler: ts,
		frame:     frame,
		name:      s.Name,
		source: func(name string) *rxstream.Observable {
			return sources[name].observable
		},
	}
	pipeline := sources[s.Pipeline.Source].observable
	for i, step := range s.Pipeline.Steps {
		op, err := registry[step.Op].build(step, ctx)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
		pipeline = pipeline.Pipe(op)
	}

	recorder, err := ts.Record(pipeline, s.Expect.Subscription)
	if err != nil {
		return nil, err
	}

	log.Debug("flushing", slog.Int("pending", ts.Pending()))
	if err := flush(ts); err != nil {
		return nil, err
	}

	expectValues := toValues(s.Expect.Values)
	expected, _ := rxtest.Parse(s.Expect.Marbles, expectValues, nil, frame)
	messages := recorder.Messages()

	result := &Result{
		Name:          s.Name,
		Expected:      rxtest.Render(expected, expectValues, frame),
		Actual:        rxtest.Render(messages, expectValues, frame),
		Subscriptions: make(map[string][]string, len(sources)),
		Frame:         frame,
		Messages:      messages,
	}
	if result.Actual != result.Expected {
		result.Mismatches = append(result.Mismatches,
			fmt.Sprintf("output: expected %q, got %q", result.Expected, result.Actual))
	}

	for _, name := range sortedKeys(sources) {
		var rendered []string
		for _, l := range sources[name].subscriptions() {
			rendered = append(rendered, rxtest.RenderSubscription(l, frame))
		}
		result.Subscriptions[name] = rendered
	}
	for _, name := range sortedKeys(s.Expect.Subscriptions) {
		var want []string
		for _, marbles := range s.Expect.Subscriptions[name] {
			l, _ := rxtest.ParseSubscription(marbles, frame)
			want = append(want, rxtest.RenderSubscription(l, frame))
		}
		if !slices.Equal(want, result.Subscriptions[name]) {
			result.Mismatches = append(result.Mismatches,
				fmt.Sprintf("subscriptions of %s: expected %q, got %q", name, want, result.Subscriptions[name]))
		}
	}

	result.Passed = len(result.Mismatches) == 0
	log.Debug("scenario finished",
		slog.Bool("passed", result.Passed),
		slog.Duration("virtual_time", ts.Frame()),
	)
	return result, nil
}

// buildSources 按名称顺序创建测试源，热源在创建时调度自己的通知
func buildSources(s *Scenario, ts *rxtest.TestScheduler) (map[string]testSource, error) {
	sources := make(map[string]testSource, len(s.Sources))
	for _, name := range sortedKeys(s.Sources) {
		src := s.Sources[name]
		values := toValues(src.Values)
		var sourceErr error
		if src.Error != "" {
			sourceErr = errors.New(src.Error)
		} else {
			sourceErr = fmt.Errorf("%s failed", name)
		}

		if src.Hot != "" {
			hot, err := ts.Hot(src.Hot, values, sourceErr)
			if err != nil {
				return nil, fmt.Errorf("source %q: %w", name, err)
			}
			sources[name] = testSource{observable: hot.Observable, subscriptions: hot.Subscriptions}
			continue
		}
		cold, err := ts.Cold(src.Cold, values, sourceErr)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", name, err)
		}
		sources[name] = testSource{observable: cold.Observable, subscriptions: cold.Subscriptions}
	}
	return sources, nil
}

// flush 执行所有虚拟时间上的动作，把panic转换为错误
func flush(ts *rxtest.TestScheduler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scenario panicked: %v", r)
		}
	}()
	ts.Flush()
	return nil
}
