// Subject implementations for rxstream
// 实现Subject系统，包括Subject、BehaviorSubject、ReplaySubject、AsyncSubject
package rxstream

import (
	"sync"
	"time"
)

// ============================================================================
// Subject 状态
// ============================================================================

// SubjectState Subject的生命周期状态
type SubjectState int

const (
	// SubjectActive 正常状态，接受所有通知
	SubjectActive SubjectState = iota
	// SubjectErrored 已出错，新订阅者同步收到错误
	SubjectErrored
	// SubjectCompleted 已完成，新订阅者同步收到完成信号
	SubjectCompleted
	// SubjectUnsubscribed 已释放，任何使用都会panic
	SubjectUnsubscribed
)

func (s SubjectState) String() string {
	switch s {
	case SubjectActive:
		return "active"
	case SubjectErrored:
		return "errored"
	case SubjectCompleted:
		return "completed"
	case SubjectUnsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// subjectBuffer 不同Subject的缓存策略，所有方法在持有Subject锁时调用
type subjectBuffer interface {
	// store 记录新值，返回是否立即转发给当前观察者
	store(value interface{}) bool
	// replay 新订阅者在注册之后、接收实时值之前收到的值
	replay(state SubjectState) []interface{}
	// flush 完成之前发送给所有观察者的值
	flush() []interface{}
}

// ============================================================================
// Subject - 多播主题
// ============================================================================

// Subject 既是Observable又是Observer，把通知多播给当前的订阅者。
// 没有订阅者时收到的值被丢弃。
type Subject struct {
	*Observable

	mu        sync.Mutex
	observers []*Subscriber
	state     SubjectState
	err       error
	buffer    subjectBuffer
}

// NewSubject 创建新的Subject
func NewSubject() *Subject {
	return newSubject(nil)
}

func newSubject(buffer subjectBuffer) *Subject {
	s := &Subject{buffer: buffer}
	s.Observable = NewObservable(s.produce)
	return s
}

// Subscribe 订阅观察者。已释放的Subject直接panic，不会转为错误通知。
func (s *Subject) Subscribe(observer Observer) *Subscription {
	if s.Closed() {
		panic(ErrObjectUnsubscribed)
	}
	return s.Observable.Subscribe(observer)
}

// SubscribeWithCallbacks 使用回调函数订阅
func (s *Subject) SubscribeWithCallbacks(onNext OnNext, onError OnError, onComplete OnComplete) *Subscription {
	return s.Subscribe(NewObserver(onNext, onError, onComplete))
}

// produce 注册订阅者并重放缓存；终止状态下同步发送终止通知
func (s *Subject) produce(sub *Subscriber) Teardown {
	s.mu.Lock()
	if s.state == SubjectUnsubscribed {
		s.mu.Unlock()
		panic(ErrObjectUnsubscribed)
	}
	var replay []interface{}
	if s.buffer != nil {
		replay = s.buffer.replay(s.state)
	}
	state, err := s.state, s.err
	if state == SubjectActive {
		s.observers = append(s.observers, sub)
	}
	s.mu.Unlock()

	for _, value := range replay {
		if sub.Closed() {
			break
		}
		sub.Next(value)
	}

	switch state {
	case SubjectErrored:
		sub.Error(err)
		return nil
	case SubjectCompleted:
		sub.Complete()
		return nil
	}
	return TeardownFunc(func() {
		s.removeObserver(sub)
	})
}

// removeObserver 移除观察者，已拍下的快照不受影响
func (s *Subject) removeObserver(sub *Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, observer := range s.observers {
		if observer == sub {
			s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
			return
		}
	}
}

// snapshot 复制当前观察者列表，调用者持有锁
func (s *Subject) snapshot() []*Subscriber {
	observers := make([]*Subscriber, len(s.observers))
	copy(observers, s.observers)
	return observers
}

// Next 向所有当前订阅者发送值，终止后忽略
func (s *Subject) Next(value interface{}) {
	s.mu.Lock()
	if s.state == SubjectUnsubscribed {
		s.mu.Unlock()
		panic(ErrObjectUnsubscribed)
	}
	if s.state != SubjectActive {
		s.mu.Unlock()
		return
	}
	forward := true
	if s.buffer != nil {
		forward = s.buffer.store(value)
	}
	observers := s.snapshot()
	s.mu.Unlock()

	if !forward {
		return
	}
	for _, observer := range observers {
		observer.Next(value)
	}
}

// Error 向所有订阅者发送错误并清空列表
func (s *Subject) Error(err error) {
	s.mu.Lock()
	if s.state == SubjectUnsubscribed {
		s.mu.Unlock()
		panic(ErrObjectUnsubscribed)
	}
	if s.state != SubjectActive {
		s.mu.Unlock()
		return
	}
	s.state = SubjectErrored
	s.err = err
	observers := s.snapshot()
	s.observers = nil
	s.mu.Unlock()

	for _, observer := range observers {
		observer.Error(err)
	}
}

// Complete 向所有订阅者发送完成信号并清空列表
func (s *Subject) Complete() {
	s.mu.Lock()
	if s.state == SubjectUnsubscribed {
		s.mu.Unlock()
		panic(ErrObjectUnsubscribed)
	}
	if s.state != SubjectActive {
		s.mu.Unlock()
		return
	}
	var final []interface{}
	if s.buffer != nil {
		final = s.buffer.flush()
	}
	s.state = SubjectCompleted
	observers := s.snapshot()
	s.observers = nil
	s.mu.Unlock()

	for _, observer := range observers {
		for _, value := range final {
			observer.Next(value)
		}
		observer.Complete()
	}
}

// Unsubscribe 释放Subject，清空观察者。之后的任何使用都会panic。
// 返回值总是nil，使Subject可以作为Teardown挂到Subscription上。
func (s *Subject) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = SubjectUnsubscribed
	s.observers = nil
	return nil
}

// State 当前状态
func (s *Subject) State() SubjectState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Closed 检查是否已释放
func (s *Subject) Closed() bool {
	return s.State() == SubjectUnsubscribed
}

// Stopped 检查是否已出错或完成
func (s *Subject) Stopped() bool {
	state := s.State()
	return state == SubjectErrored || state == SubjectCompleted
}

// HasObservers 检查是否有订阅者
func (s *Subject) HasObservers() bool {
	return s.ObserverCount() > 0
}

// ObserverCount 当前订阅者数量
func (s *Subject) ObserverCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// AsObservable 返回隐藏Observer一侧的Observable。
// 通过它订阅已释放的Subject时，误用错误以错误通知送达。
func (s *Subject) AsObservable() *Observable {
	return NewObservable(s.produce)
}

// ============================================================================
// BehaviorSubject - 行为主题
// ============================================================================

// BehaviorSubject 保存当前值，新订阅者先同步收到当前值
type BehaviorSubject struct {
	*Subject
	current *behaviorBuffer
}

type behaviorBuffer struct {
	value interface{}
}

func (b *behaviorBuffer) store(value interface{}) bool {
	b.value = value
	return true
}

func (b *behaviorBuffer) replay(state SubjectState) []interface{} {
	if state != SubjectActive {
		return nil
	}
	return []interface{}{b.value}
}

func (b *behaviorBuffer) flush() []interface{} {
	return nil
}

// NewBehaviorSubject 使用初始值创建行为主题
func NewBehaviorSubject(initial interface{}) *BehaviorSubject {
	current := &behaviorBuffer{value: initial}
	return &BehaviorSubject{
		Subject: newSubject(current),
		current: current,
	}
}

// Value 获取当前值。出错后返回该错误，释放后返回ErrObjectUnsubscribed。
func (b *BehaviorSubject) Value() (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case SubjectErrored:
		return nil, b.err
	case SubjectUnsubscribed:
		return nil, ErrObjectUnsubscribed
	}
	return b.current.value, nil
}

// ============================================================================
// ReplaySubject - 重放主题
// ============================================================================

// ReplaySubject 缓存最近的值（按数量和/或时间窗口），新订阅者先收到缓存，
// 终止后依然重放缓存再发送终止通知
type ReplaySubject struct {
	*Subject
	replayed *replayBuffer
}

type timestampedValue struct {
	value     interface{}
	timestamp time.Time
}

type replayBuffer struct {
	size      int
	window    time.Duration
	scheduler Scheduler
	values    []timestampedValue
}

func (r *replayBuffer) store(value interface{}) bool {
	r.values = append(r.values, timestampedValue{value: value, timestamp: r.scheduler.Now()})
	r.trim()
	return true
}

func (r *replayBuffer) replay(SubjectState) []interface{} {
	r.trim()
	values := make([]interface{}, len(r.values))
	for i, v := range r.values {
		values[i] = v.value
	}
	return values
}

func (r *replayBuffer) flush() []interface{} {
	return nil
}

// trim 丢弃超出容量的最旧值和超出时间窗口的值
func (r *replayBuffer) trim() {
	drop := 0
	if len(r.values) > r.size {
		drop = len(r.values) - r.size
	}
	if r.window > 0 {
		now := r.scheduler.Now()
		for drop < len(r.values) && !r.values[drop].timestamp.Add(r.window).After(now) {
			drop++
		}
	}
	if drop > 0 {
		clear(r.values[:drop])
		r.values = r.values[drop:]
	}
}

// NewReplaySubject 创建重放主题。bufferSize<=0表示不限制数量；
// WithWindow限制缓存时间，WithScheduler提供时间戳的时钟。
func NewReplaySubject(bufferSize int, opts ...Option) *ReplaySubject {
	config := newConfig(opts)
	if bufferSize <= 0 {
		bufferSize = Unbounded
	}
	replayed := &replayBuffer{
		size:      bufferSize,
		window:    config.WindowTime,
		scheduler: config.scheduler(DefaultScheduler),
	}
	return &ReplaySubject{
		Subject:  newSubject(replayed),
		replayed: replayed,
	}
}

// BufferedValues 当前缓存中的值
func (r *ReplaySubject) BufferedValues() []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replayed.replay(r.state)
}

// ============================================================================
// AsyncSubject - 异步主题
// ============================================================================

// AsyncSubject 只保存最后一个值，完成时发送它；完成后的订阅者收到该值和完成信号
type AsyncSubject struct {
	*Subject
}

type lastValueBuffer struct {
	value    interface{}
	hasValue bool
}

func (l *lastValueBuffer) store(value interface{}) bool {
	l.value = value
	l.hasValue = true
	return false
}

func (l *lastValueBuffer) replay(state SubjectState) []interface{} {
	if state == SubjectCompleted && l.hasValue {
		return []interface{}{l.value}
	}
	return nil
}

func (l *lastValueBuffer) flush() []interface{} {
	if !l.hasValue {
		return nil
	}
	return []interface{}{l.value}
}

// NewAsyncSubject 创建异步主题
func NewAsyncSubject() *AsyncSubject {
	return &AsyncSubject{Subject: newSubject(&lastValueBuffer{})}
}
