// Scheduler implementations for rxstream
// 调度器系统：决定工作何时、在何处执行
package rxstream

import (
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// 调度器接口
// ============================================================================

// Work 调度执行的工作，action可用于以新的状态重新调度自身
type Work func(action *Action, state interface{})

// Scheduler 调度器接口，控制任务执行时机和方式
type Scheduler interface {
	// Now 调度器当前时间
	Now() time.Time
	// Schedule 在delay之后执行work，返回可取消的Action
	Schedule(work Work, delay time.Duration, state interface{}) *Action
}

// actionEngine 调度器对action的排队与撤销
type actionEngine interface {
	dispatch(action *Action, delay time.Duration)
	cancel(action *Action)
}

// ============================================================================
// Action
// ============================================================================

// Action 已调度的任务，本身是一个Subscription，取消订阅即撤销执行
type Action struct {
	*Subscription
	engine actionEngine
	work   Work

	// mu 保护state和pending，定时器回调与取消订阅可能在不同goroutine中
	mu      sync.Mutex
	state   interface{}
	pending bool

	// 定时器调度
	timer *time.Timer
	gen   uint64

	// 虚拟时间调度
	due       time.Duration
	seq       int64
	heapIndex int
}

func newAction(engine actionEngine, work Work) *Action {
	a := &Action{engine: engine, work: work, heapIndex: -1}
	a.Subscription = NewSubscription(func() {
		a.mu.Lock()
		a.pending = false
		a.mu.Unlock()
		engine.cancel(a)
	})
	return a
}

// Schedule 以新的状态重新调度当前action（递归调度）
func (a *Action) Schedule(state interface{}, delay time.Duration) *Action {
	if a.Closed() {
		return a
	}
	if delay < 0 {
		delay = 0
	}
	a.mu.Lock()
	a.state = state
	a.pending = true
	a.mu.Unlock()
	a.engine.dispatch(a, delay)
	return a
}

// execute 执行工作；未被重新调度的action执行后关闭
func (a *Action) execute() {
	if a.Closed() {
		return
	}
	a.mu.Lock()
	a.pending = false
	state := a.state
	a.mu.Unlock()

	a.work(a, state)

	a.mu.Lock()
	rescheduled := a.pending
	a.mu.Unlock()
	if !rescheduled {
		if err := a.Unsubscribe(); err != nil {
			reportUnhandledError(err)
		}
	}
}

// ============================================================================
// 平台定时器
// ============================================================================

// timerHost 用time.AfterFunc执行延迟的action，同一宿主上的执行串行化
type timerHost struct {
	mu     sync.Mutex
	execMu sync.Mutex
}

// start 启动（或重启）action的定时器。
// Closed在取消之前置位，持有h.mu检查可以避免在stop之后重新启动定时器。
func (h *timerHost) start(a *Action, delay time.Duration, run func(a *Action)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if a.Closed() {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	gen := a.gen
	a.timer = time.AfterFunc(delay, func() {
		h.mu.Lock()
		stale := a.gen != gen
		if !stale {
			a.timer = nil
		}
		h.mu.Unlock()
		if stale {
			return
		}
		defer recoverAction(a)
		run(a)
	})
}

// stop 停止action的定时器
func (h *timerHost) stop(a *Action) {
	h.mu.Lock()
	defer h.mu.Unlock()

	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// runSerialized 串行执行action，保证同一调度器的工作不会并行
func (h *timerHost) runSerialized(a *Action) {
	h.execMu.Lock()
	defer h.execMu.Unlock()
	a.execute()
}

// recoverAction 平台回调中的panic没有同步调用者，撤销action并送入未处理错误通道
func recoverAction(a *Action) {
	if r := recover(); r != nil {
		reportUnhandledError(a.Unsubscribe())
		reportUnhandledError(toError(r))
	}
}

// ============================================================================
// 立即调度器 - Immediate Scheduler
// ============================================================================

// ImmediateScheduler 零延迟的工作在调用者中同步执行
type ImmediateScheduler struct {
	timers timerHost
}

// NewImmediateScheduler 创建立即调度器
func NewImmediateScheduler() *ImmediateScheduler {
	return &ImmediateScheduler{}
}

// Now 当前时间
func (s *ImmediateScheduler) Now() time.Time {
	return time.Now()
}

// Schedule 调度工作
func (s *ImmediateScheduler) Schedule(work Work, delay time.Duration, state interface{}) *Action {
	return newAction(s, work).Schedule(state, delay)
}

func (s *ImmediateScheduler) dispatch(a *Action, delay time.Duration) {
	if delay > 0 {
		s.timers.start(a, delay, s.timers.runSerialized)
		return
	}
	a.execute()
}

func (s *ImmediateScheduler) cancel(a *Action) {
	s.timers.stop(a)
}

// ============================================================================
// 队列调度器 - Queue Scheduler (trampoline)
// ============================================================================

// QueueScheduler 蹦床调度器：刷新期间调度的零延迟工作进入队列而不是递归执行，
// 正在进行的刷新循环按FIFO顺序清空队列
type QueueScheduler struct {
	timers   timerHost
	mu       sync.Mutex
	queue    []*Action
	flushing bool
}

// NewQueueScheduler 创建队列调度器
func NewQueueScheduler() *QueueScheduler {
	return &QueueScheduler{}
}

// Now 当前时间
func (s *QueueScheduler) Now() time.Time {
	return time.Now()
}

// Schedule 调度工作
func (s *QueueScheduler) Schedule(work Work, delay time.Duration, state interface{}) *Action {
	return newAction(s, work).Schedule(state, delay)
}

func (s *QueueScheduler) dispatch(a *Action, delay time.Duration) {
	if delay > 0 {
		s.timers.start(a, delay, s.enqueue)
		return
	}
	s.enqueue(a)
}

// enqueue 加入队列；没有正在进行的刷新时由当前调用者刷新
func (s *QueueScheduler) enqueue(a *Action) {
	s.mu.Lock()
	s.queue = append(s.queue, a)
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	s.mu.Unlock()

	s.flush()
}

func (s *QueueScheduler) flush() {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			rest := s.queue
			s.queue = nil
			s.flushing = false
			s.mu.Unlock()

			for _, a := range rest {
				reportUnhandledError(a.Unsubscribe())
			}
			panic(r)
		}
	}()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.flushing = false
			s.mu.Unlock()
			return
		}
		a := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		a.execute()
	}
}

func (s *QueueScheduler) cancel(a *Action) {
	s.timers.stop(a)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, queued := range s.queue {
		if queued == a {
			s.queue = append(s.queue[:i:i], s.queue[i+1:]...)
			return
		}
	}
}

// ============================================================================
// 异步调度器 - Async Scheduler
// ============================================================================

// AsyncScheduler 基于平台定时器的调度器，同一实例上的工作串行执行
type AsyncScheduler struct {
	timers timerHost
}

// NewAsyncScheduler 创建异步调度器
func NewAsyncScheduler() *AsyncScheduler {
	return &AsyncScheduler{}
}

// Now 当前时间
func (s *AsyncScheduler) Now() time.Time {
	return time.Now()
}

// Schedule 调度工作
func (s *AsyncScheduler) Schedule(work Work, delay time.Duration, state interface{}) *Action {
	return newAction(s, work).Schedule(state, delay)
}

func (s *AsyncScheduler) dispatch(a *Action, delay time.Duration) {
	s.timers.start(a, delay, s.timers.runSerialized)
}

func (s *AsyncScheduler) cancel(a *Action) {
	s.timers.stop(a)
}

// ============================================================================
// 默认调度器
// ============================================================================

// DefaultScheduler 未通过WithScheduler指定时时间相关操作符使用的调度器
var DefaultScheduler Scheduler = NewAsyncScheduler()

// WithScheduler 创建使用指定调度器的选项
func WithScheduler(scheduler Scheduler) Option {
	return &schedulerOption{scheduler: scheduler}
}

// schedulerOption 调度器选项
type schedulerOption struct {
	scheduler Scheduler
}

// Apply 应用调度器选项
func (o *schedulerOption) Apply(config *Config) {
	config.Scheduler = o.scheduler
}

// executeSchedule 调度一次性工作并挂到parent上，parent取消时一并撤销
func executeSchedule(parent *Subscription, scheduler Scheduler, work func(), delay time.Duration) *Action {
	action := scheduler.Schedule(func(*Action, interface{}) {
		work()
	}, delay, nil)
	parent.Add(action)
	return action
}

// ============================================================================
// 调度器监控
// ============================================================================

// SchedulerMetrics 调度器指标
type SchedulerMetrics struct {
	TasksScheduled int64
	TasksCompleted int64
	TasksFailed    int64
}

// MonitoredScheduler 统计调度与执行次数的调度器包装器
type MonitoredScheduler struct {
	scheduler Scheduler
	scheduled atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewMonitoredScheduler 创建带监控的调度器
func NewMonitoredScheduler(scheduler Scheduler) *MonitoredScheduler {
	return &MonitoredScheduler{scheduler: scheduler}
}

// Now 委托给被包装的调度器
func (s *MonitoredScheduler) Now() time.Time {
	return s.scheduler.Now()
}

// Schedule 调度工作并记录指标；每次执行（包括重新调度后的执行）计入完成或失败
func (s *MonitoredScheduler) Schedule(work Work, delay time.Duration, state interface{}) *Action {
	s.scheduled.Add(1)
	return s.scheduler.Schedule(func(action *Action, state interface{}) {
		ok := false
		defer func() {
			if ok {
				s.completed.Add(1)
			} else {
				s.failed.Add(1)
			}
		}()
		work(action, state)
		ok = true
	}, delay, state)
}

// Metrics 获取调度器指标快照
func (s *MonitoredScheduler) Metrics() SchedulerMetrics {
	return SchedulerMetrics{
		TasksScheduled: s.scheduled.Load(),
		TasksCompleted: s.completed.Load(),
		TasksFailed:    s.failed.Load(),
	}
}
