// Package rxstream provides reactive stream primitives for Go
// 响应式流引擎：可取消订阅、可插拔调度器、多播Subject与并发受控的展平操作符
package rxstream

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// ============================================================================
// 观察者
// ============================================================================

// OnNext 处理下一个值的函数
type OnNext func(value interface{})

// OnError 处理错误的函数
type OnError func(err error)

// OnComplete 处理完成的函数
type OnComplete func()

// Predicate 谓词函数
type Predicate func(value interface{}) bool

// Transformer 转换函数，返回错误时流以该错误终止
type Transformer func(value interface{}) (interface{}, error)

// Reducer 累加函数
type Reducer func(accumulator, current interface{}) interface{}

// Observer 观察者接口，接收流中的通知
type Observer interface {
	Next(value interface{})
	Error(err error)
	Complete()
}

// ObserverFuncs 由可选回调组成的部分观察者，未设置的回调被忽略。
// 未设置OnError时错误进入全局未处理错误通道。
type ObserverFuncs struct {
	OnNext     OnNext
	OnError    OnError
	OnComplete OnComplete
}

// NewObserver 使用三个位置回调创建观察者，任意回调可以为nil
func NewObserver(onNext OnNext, onError OnError, onComplete OnComplete) Observer {
	return ObserverFuncs{OnNext: onNext, OnError: onError, OnComplete: onComplete}
}

// Next 转发值
func (f ObserverFuncs) Next(value interface{}) {
	if f.OnNext != nil {
		f.OnNext(value)
	}
}

// Error 转发错误
func (f ObserverFuncs) Error(err error) {
	if f.OnError != nil {
		f.OnError(err)
		return
	}
	reportUnhandledError(err)
}

// Complete 转发完成信号
func (f ObserverFuncs) Complete() {
	if f.OnComplete != nil {
		f.OnComplete()
	}
}

// ============================================================================
// 配置选项
// ============================================================================

// Unbounded 表示不限制并发数或缓冲区大小
const Unbounded = math.MaxInt

// Option 配置选项接口
type Option interface {
	Apply(config *Config)
}

// Config 操作符与工厂函数的配置
type Config struct {
	Scheduler   Scheduler
	Concurrency int
	WindowTime  time.Duration
	Context     context.Context
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Concurrency: Unbounded,
		Context:     context.Background(),
	}
}

func newConfig(options []Option) *Config {
	config := DefaultConfig()
	for _, opt := range options {
		if opt != nil {
			opt.Apply(config)
		}
	}
	return config
}

// scheduler 返回配置的调度器，未配置时使用fallback
func (c *Config) scheduler(fallback Scheduler) Scheduler {
	if c.Scheduler != nil {
		return c.Scheduler
	}
	return fallback
}

type optionFunc func(config *Config)

func (f optionFunc) Apply(config *Config) {
	f(config)
}

// WithConcurrency 设置同时活跃的内部订阅上限，n<=0表示不限制
func WithConcurrency(n int) Option {
	return optionFunc(func(config *Config) {
		if n <= 0 {
			n = Unbounded
		}
		config.Concurrency = n
	})
}

// WithWindow 设置ReplaySubject的时间窗口，0表示不限制
func WithWindow(window time.Duration) Option {
	return optionFunc(func(config *Config) {
		config.WindowTime = window
	})
}

// WithContext 设置阻塞操作和通道适配器使用的上下文
func WithContext(ctx context.Context) Option {
	return optionFunc(func(config *Config) {
		if ctx != nil {
			config.Context = ctx
		}
	})
}

// ============================================================================
// 全局配置
// ============================================================================

// UnhandledErrorHandler 未处理错误的宿主通道
type UnhandledErrorHandler func(err error)

var globalConfig = struct {
	mu          sync.RWMutex
	logger      *slog.Logger
	onUnhandled UnhandledErrorHandler
}{}

// SetLogger 设置引擎使用的日志记录器，nil恢复为slog.Default()
func SetLogger(logger *slog.Logger) {
	globalConfig.mu.Lock()
	defer globalConfig.mu.Unlock()
	globalConfig.logger = logger
}

// SetUnhandledErrorHandler 设置未处理错误的回调，返回恢复之前设置的函数
func SetUnhandledErrorHandler(handler UnhandledErrorHandler) (restore func()) {
	globalConfig.mu.Lock()
	previous := globalConfig.onUnhandled
	globalConfig.onUnhandled = handler
	globalConfig.mu.Unlock()

	return func() {
		globalConfig.mu.Lock()
		globalConfig.onUnhandled = previous
		globalConfig.mu.Unlock()
	}
}

func logger() *slog.Logger {
	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()
	if globalConfig.logger != nil {
		return globalConfig.logger
	}
	return slog.Default()
}

func unhandledErrorHandler() UnhandledErrorHandler {
	globalConfig.mu.RLock()
	defer globalConfig.mu.RUnlock()
	return globalConfig.onUnhandled
}
