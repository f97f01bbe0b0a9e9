// Flattening operators for rxstream
// 展平操作符：MergeMap及其特化ConcatMap、SwitchMap、ExhaustMap、Expand
package rxstream

import (
	"fmt"
	"sync"
)

// Projection 投影函数，把外部值映射为内部Observable，index从0开始递增
type Projection func(value interface{}, index int) *Observable

// ObservableSource 可以被订阅的值，例如*Observable、*Subject、*Connectable
type ObservableSource interface {
	Subscribe(observer Observer) *Subscription
}

// toObservable 把任意可订阅的值转换为*Observable，不可订阅时panic
func toObservable(value interface{}) *Observable {
	switch v := value.(type) {
	case *Observable:
		if v == nil {
			return Empty()
		}
		return v
	case ObservableSource:
		return NewObservable(func(sub *Subscriber) Teardown {
			return v.Subscribe(sub)
		})
	}
	panic(fmt.Errorf("rxstream: value of type %T is not an observable", value))
}

func identityProjection(value interface{}, _ int) *Observable {
	return toObservable(value)
}

// ============================================================================
// MergeMap
// ============================================================================

// pendingInner 已投影但尚未订阅的内部Observable
type pendingInner struct {
	value interface{}
	inner *Observable
}

// mergeState 一次订阅的展平状态。锁只保护簿记字段，调用用户代码时不持有。
type mergeState struct {
	destination *Subscriber
	project     Projection
	concurrency int
	expand      bool
	scheduler   Scheduler

	mu            sync.Mutex
	active        int
	index         int
	buffer        []pendingInner
	outerComplete bool
}

// outerNext 投影新值；未达到并发上限时立即订阅，否则按FIFO排队
func (m *mergeState) outerNext(value interface{}) {
	m.mu.Lock()
	index := m.index
	m.index++
	m.mu.Unlock()

	next := pendingInner{value: value, inner: m.project(value, index)}

	m.mu.Lock()
	if m.active >= m.concurrency {
		m.buffer = append(m.buffer, next)
		m.mu.Unlock()
		return
	}
	m.active++
	m.mu.Unlock()

	m.subscribeInner(next)
}

// subscribeInner 订阅内部Observable，active已经计入
func (m *mergeState) subscribeInner(next pendingInner) {
	if m.expand {
		m.destination.Next(next.value)
	}

	onNext := OnNext(nil)
	if m.expand {
		onNext = m.outerNext
	}
	var innerSub *Subscriber
	innerSub = newOperatorSubscriber(m.destination, onNext, nil, func() {
		// 内部订阅完全释放之后才计为结束，保证同时存活的内部订阅不超过上限。
		// 放行不在清理动作中执行，下游处理器的panic要传播给调用者。
		if err := innerSub.Unsubscribe(); err != nil {
			reportUnhandledError(err)
		}
		m.innerDone()
	})
	next.inner.Subscribe(innerSub)
}

// innerDone 内部Observable完成：按FIFO放行等待中的内部Observable，然后检查完成
func (m *mergeState) innerDone() {
	defer func() {
		if r := recover(); r != nil {
			if m.destination.Closed() {
				panic(r)
			}
			m.destination.Error(toError(r))
		}
	}()

	m.mu.Lock()
	m.active--
	var admitted []pendingInner
	for len(m.buffer) > 0 && m.active < m.concurrency {
		admitted = append(admitted, m.buffer[0])
		m.buffer[0] = pendingInner{}
		m.buffer = m.buffer[1:]
		m.active++
	}
	m.mu.Unlock()

	for _, next := range admitted {
		if m.scheduler != nil {
			executeSchedule(m.destination.Subscription, m.scheduler, func() {
				m.subscribeInner(next)
			}, 0)
			continue
		}
		m.subscribeInner(next)
	}
	m.checkComplete()
}

func (m *mergeState) outerDone() {
	m.mu.Lock()
	m.outerComplete = true
	m.mu.Unlock()
	m.checkComplete()
}

// checkComplete 外部完成、没有活跃的内部订阅且缓冲区为空时向下游发送完成
func (m *mergeState) checkComplete() {
	m.mu.Lock()
	done := m.outerComplete && m.active == 0 && len(m.buffer) == 0
	m.mu.Unlock()
	if done {
		m.destination.Complete()
	}
}

func mergeInternals(source *Observable, destination *Subscriber, project Projection, config *Config, expand bool) Teardown {
	state := &mergeState{
		destination: destination,
		project:     project,
		concurrency: config.Concurrency,
		expand:      expand,
		scheduler:   config.Scheduler,
	}
	source.Subscribe(newOperatorSubscriber(destination, state.outerNext, nil, state.outerDone))
	return nil
}

// MergeMap 把每个值投影为内部Observable并合并它们的输出。
// WithConcurrency限制同时订阅的内部Observable数量，超出的按到达顺序排队。
func MergeMap(project Projection, opts ...Option) OperatorFunc {
	config := newConfig(opts)
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		return mergeInternals(source, subscriber, project, config, false)
	})
}

// ConcatMap 依次订阅每个内部Observable，前一个完成后才订阅下一个
func ConcatMap(project Projection) OperatorFunc {
	return MergeMap(project, WithConcurrency(1))
}

// MergeAll 合并发射Observable的Observable
func MergeAll(opts ...Option) OperatorFunc {
	return MergeMap(identityProjection, opts...)
}

// ConcatAll 按顺序连接发射Observable的Observable
func ConcatAll() OperatorFunc {
	return ConcatMap(identityProjection)
}

// Expand 递归地把投影函数应用到每个发射的值上，包括内部Observable发射的值。
// 每个值先发送给下游，再订阅它的投影；并发上限对所有递归层级统一生效。
// WithScheduler时排队的内部Observable在调度器上订阅。
func Expand(project Projection, opts ...Option) OperatorFunc {
	config := newConfig(opts)
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		return mergeInternals(source, subscriber, project, config, true)
	})
}

// ============================================================================
// SwitchMap
// ============================================================================

// SwitchMap 新的外部值到达时取消当前的内部订阅，转而订阅新的投影。
// 外部完成后等待最后一个内部Observable完成。
func SwitchMap(project Projection) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		var (
			mu            sync.Mutex
			current       *Subscriber
			index         int
			outerComplete bool
		)

		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				mu.Lock()
				previous := current
				current = nil
				i := index
				index++
				mu.Unlock()

				if previous != nil {
					if err := previous.Unsubscribe(); err != nil {
						reportUnhandledError(err)
					}
				}

				inner := project(value, i)

				var innerSub *Subscriber
				innerSub = newOperatorSubscriber(subscriber, nil, nil, func() {
					mu.Lock()
					if current == innerSub {
						current = nil
					}
					done := outerComplete && current == nil
					mu.Unlock()
					if done {
						subscriber.Complete()
					}
				})

				mu.Lock()
				current = innerSub
				mu.Unlock()

				inner.Subscribe(innerSub)
			},
			nil,
			func() {
				mu.Lock()
				outerComplete = true
				done := current == nil
				mu.Unlock()
				if done {
					subscriber.Complete()
				}
			},
		))
		return nil
	})
}

// SwitchAll 只转发最新的内部Observable
func SwitchAll() OperatorFunc {
	return SwitchMap(identityProjection)
}

// ============================================================================
// ExhaustMap
// ============================================================================

// ExhaustMap 内部Observable活跃期间到达的外部值被丢弃，不投影也不排队
func ExhaustMap(project Projection) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		var (
			mu            sync.Mutex
			active        bool
			index         int
			outerComplete bool
		)

		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				mu.Lock()
				if active {
					mu.Unlock()
					return
				}
				active = true
				i := index
				index++
				mu.Unlock()

				inner := project(value, i)
				inner.Subscribe(newOperatorSubscriber(subscriber, nil, nil, func() {
					mu.Lock()
					active = false
					done := outerComplete
					mu.Unlock()
					if done {
						subscriber.Complete()
					}
				}))
			},
			nil,
			func() {
				mu.Lock()
				outerComplete = true
				done := !active
				mu.Unlock()
				if done {
					subscriber.Complete()
				}
			},
		))
		return nil
	})
}

// ExhaustAll 忽略前一个内部Observable完成之前到达的内部Observable
func ExhaustAll() OperatorFunc {
	return ExhaustMap(identityProjection)
}
