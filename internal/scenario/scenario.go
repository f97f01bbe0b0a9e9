// Package scenario 从YAML加载弹珠场景并在虚拟时间上运行
//
// 一个场景定义若干冷/热测试源、作用在其中一个源上的操作符流水线，
// 以及输出必须匹配的弹珠图。
package scenario

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xinjiayu/rxstream/rxtest"
)

// Scenario 单个弹珠测试场景
type Scenario struct {
	// Name 报告和录制中使用的场景名称
	Name string `yaml:"name"`

	// Description 场景说明
	Description string `yaml:"description,omitempty"`

	// Frame 每个弹珠字符代表的虚拟时间，如"1ms"、"1s"，为空时使用rxtest.DefaultFrame
	Frame string `yaml:"frame,omitempty"`

	// Sources 流水线可以引用的命名测试源
	Sources map[string]Source `yaml:"sources"`

	// Pipeline 作用在指定源上的操作符
	Pipeline Pipeline `yaml:"pipeline"`

	// Expect 期望的输出
	Expect Expectation `yaml:"expect"`
}

// Source 冷或热弹珠源，Cold和Hot只能设置一个
type Source struct {
	Cold string `yaml:"cold,omitempty"`
	Hot  string `yaml:"hot,omitempty"`

	// Values 弹珠字符到发射值的映射
	Values map[string]string `yaml:"values,omitempty"`

	// Error '#'发射的错误文本
	Error string `yaml:"error,omitempty"`
}

// Pipeline 起始源和依次应用的步骤
type Pipeline struct {
	Source string `yaml:"source"`
	Steps  []Step `yaml:"steps,omitempty"`
}

// Step 流水线中的一个操作符，读取哪些字段取决于Op
type Step struct {
	// Op 操作符名称，见Operators
	Op string `yaml:"op"`

	// Source 操作符使用的另一个源：内部Observable、备用源或通知源
	Source string `yaml:"source,omitempty"`

	// Count take、skip、retry的数量参数
	Count int `yaml:"count,omitempty"`

	// Concurrency mergeMap的并发上限，0表示不限制
	Concurrency int `yaml:"concurrency,omitempty"`

	// Frames 时间操作符的时长，单位为帧
	Frames int `yaml:"frames,omitempty"`

	// Emit 展平操作符发射的内容："inner"（默认）、"outer"或"both"
	Emit string `yaml:"emit,omitempty"`

	// Values filter、startWith、defaultIfEmpty的值列表
	Values []string `yaml:"values,omitempty"`

	// Mapping map的值映射表
	Mapping map[string]string `yaml:"mapping,omitempty"`
}

// Expectation 场景的期望输出
type Expectation struct {
	// Marbles 期望的输出弹珠图
	Marbles string `yaml:"marbles"`

	// Values 弹珠字符到期望值的映射
	Values map[string]string `yaml:"values,omitempty"`

	// Subscription 流水线的订阅弹珠图，为空时等同"^"
	Subscription string `yaml:"subscription,omitempty"`

	// Subscriptions 每个源期望的订阅弹珠图
	Subscriptions map[string][]string `yaml:"subscriptions,omitempty"`
}

// FrameDuration 解析Frame
func (s *Scenario) FrameDuration() (time.Duration, error) {
	if s.Frame == "" {
		return rxtest.DefaultFrame, nil
	}
	d, err := time.ParseDuration(s.Frame)
	if err != nil {
		return 0, fmt.Errorf("invalid frame %q: %w", s.Frame, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid frame %q: must be positive", s.Frame)
	}
	return d, nil
}

// ============================================================================
// 加载
// ============================================================================

// Parse 解码并校验场景文档
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load 读取并校验场景文件
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Discover 把文件或目录参数展开为按名称排序的场景文件列表
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", path)
	}
	sort.Strings(files)
	return files, nil
}

// ============================================================================
// 校验
// ============================================================================

// ValidationError 场景中发现的所有问题
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid scenario: " + strings.Join(e.Problems, "; ")
}

// Validate 不运行场景的静态检查：引用的源存在，弹珠图可解析，操作符已注册
func (s *Scenario) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if s.Name == "" {
		add("name is required")
	}
	frame, err := s.FrameDuration()
	if err != nil {
		add("%v", err)
		frame = rxtest.DefaultFrame
	}

	for _, name := range sortedKeys(s.Sources) {
		src := s.Sources[name]
		switch {
		case src.Cold != "" && src.Hot != "":
			add("source %q: cold and hot are exclusive", name)
		case src.Cold == "" && src.Hot == "":
			add("source %q: cold or hot marbles required", name)
		case strings.ContainsRune(src.Cold, '^'):
			add("source %q: cold marbles cannot contain '^'", name)
		}
		if _, err := rxtest.Parse(src.Cold+src.Hot, nil, nil, frame); err != nil {
			add("source %q: %v", name, err)
		}
	}

	if _, ok := s.Sources[s.Pipeline.Source]; !ok {
		add("pipeline source %q is not defined", s.Pipeline.Source)
	}
	for i, step := range s.Pipeline.Steps {
		if err := validateStep(step, s.Sources); err != nil {
			add("step %d (%s): %v", i+1, step.Op, err)
		}
	}

	if _, err := rxtest.Parse(s.Expect.Marbles, nil, nil, frame); err != nil {
		add("expect: %v", err)
	}
	if _, err := rxtest.ParseSubscription(s.Expect.Subscription, frame); err != nil {
		add("expect subscription: %v", err)
	}
	for _, name := range sortedKeys(s.Expect.Subscriptions) {
		if _, ok := s.Sources[name]; !ok {
			add("expect subscriptions: source %q is not defined", name)
		}
		for _, marbles := range s.Expect.Subscriptions[name] {
			if _, err := rxtest.ParseSubscription(marbles, frame); err != nil {
				add("expect subscriptions %q: %v", name, err)
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// IsValidationError 判断err是否为场景校验失败
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toValues(m map[string]string) map[string]interface{} {
	if len(m) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(m))
	for k, v := range m {
		values[k] = v
	}
	return values
}
