// Subscriber implementation for rxstream
// 订阅者：保证终止通知最多一次的观察者，同时拥有一个Subscription
package rxstream

import (
	"sync/atomic"
)

// ============================================================================
// Subscriber
// ============================================================================

// Subscriber 包装观察者并拥有Subscription。
// error或complete之后stopped锁定，之后的Next静默忽略。
type Subscriber struct {
	*Subscription
	destination Observer
	stopped     atomic.Bool
}

// NewSubscriber 创建订阅者，destination为nil时忽略值并将错误送入未处理错误通道
func NewSubscriber(destination Observer) *Subscriber {
	if destination == nil {
		destination = ObserverFuncs{}
	}
	s := &Subscriber{destination: destination}
	s.Subscription = NewSubscription(func() {
		s.stopped.Store(true)
	})
	return s
}

// toSubscriber 复用已有的Subscriber，否则包装观察者
func toSubscriber(observer Observer) *Subscriber {
	if s, ok := observer.(*Subscriber); ok {
		return s
	}
	return NewSubscriber(observer)
}

// Stopped 检查是否已收到终止通知或已取消订阅
func (s *Subscriber) Stopped() bool {
	return s.stopped.Load()
}

// Next 发送下一个值。处理器panic时先完成清理再把panic抛给调用者。
func (s *Subscriber) Next(value interface{}) {
	if s.stopped.Load() {
		return
	}
	defer s.recoverHandler()
	s.destination.Next(value)
}

// Error 发送错误，最多一次，之后取消订阅
func (s *Subscriber) Error(err error) {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	defer s.unsubscribeAndReport()
	s.destination.Error(err)
}

// Complete 发送完成信号，最多一次，之后取消订阅
func (s *Subscriber) Complete() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	defer s.unsubscribeAndReport()
	s.destination.Complete()
}

// recoverHandler 处理器panic后没有可用的下游，清理后继续向上传播
func (s *Subscriber) recoverHandler() {
	if r := recover(); r != nil {
		s.stopped.Store(true)
		s.unsubscribeAndReport()
		panic(r)
	}
}

// unsubscribeAndReport 终止后的清理错误没有调用者可以接收，送入未处理错误通道
func (s *Subscriber) unsubscribeAndReport() {
	if err := s.Subscription.Unsubscribe(); err != nil {
		reportUnhandledError(err)
	}
}

// ============================================================================
// 操作符订阅者
// ============================================================================

// operatorObserver 操作符内部使用的观察者，未设置的处理器直接转发给下游
type operatorObserver struct {
	destination *Subscriber
	onNext      OnNext
	onError     OnError
	onComplete  OnComplete
}

// newOperatorSubscriber 创建挂在destination下的订阅者，下游取消订阅时一并清理。
// 处理器中的panic（投影错误）转为下游错误；下游已关闭时继续传播。
func newOperatorSubscriber(destination *Subscriber, onNext OnNext, onError OnError, onComplete OnComplete) *Subscriber {
	sub := NewSubscriber(&operatorObserver{
		destination: destination,
		onNext:      onNext,
		onError:     onError,
		onComplete:  onComplete,
	})
	destination.Add(sub)
	return sub
}

func (o *operatorObserver) Next(value interface{}) {
	if o.onNext == nil {
		o.destination.Next(value)
		return
	}
	defer o.routePanic()
	o.onNext(value)
}

func (o *operatorObserver) Error(err error) {
	if o.onError == nil {
		o.destination.Error(err)
		return
	}
	defer o.routePanic()
	o.onError(err)
}

func (o *operatorObserver) Complete() {
	if o.onComplete == nil {
		o.destination.Complete()
		return
	}
	defer o.routePanic()
	o.onComplete()
}

func (o *operatorObserver) routePanic() {
	if r := recover(); r != nil {
		if o.destination.Closed() {
			panic(r)
		}
		o.destination.Error(toError(r))
	}
}
