// Time-based operators for rxstream
// 时间操作符实现，包含Delay、DebounceTime、ThrottleTime、Timeout、ObserveOn等
package rxstream

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 时间操作符实现
// ============================================================================

// Delay 每个值延迟d后发射；完成信号在所有延迟的值发射之后送达，错误立即送达
func Delay(d time.Duration, opts ...Option) OperatorFunc {
	config := newConfig(opts)
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		scheduler := config.scheduler(DefaultScheduler)
		var (
			mu      sync.Mutex
			pending int
			done    bool
		)

		emit := func(value interface{}) {
			subscriber.Next(value)
			mu.Lock()
			pending--
			complete := done && pending == 0
			mu.Unlock()
			if complete {
				subscriber.Complete()
			}
		}

		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				mu.Lock()
				pending++
				mu.Unlock()
				executeSchedule(subscriber.Subscription, scheduler, func() {
					emit(value)
				}, d)
			},
			nil,
			func() {
				mu.Lock()
				done = true
				complete := pending == 0
				mu.Unlock()
				if complete {
					subscriber.Complete()
				}
			},
		))
		return nil
	})
}

// DebounceTime 值到达后静默d才发射该值，期间的新值替换它并重新计时。
// 源完成时立即发射尚未发射的值。
func DebounceTime(d time.Duration, opts ...Option) OperatorFunc {
	config := newConfig(opts)
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		scheduler := config.scheduler(DefaultScheduler)
		var (
			mu       sync.Mutex
			last     interface{}
			hasValue bool
			action   *Action
		)

		flush := func() {
			mu.Lock()
			value, ok := last, hasValue
			last, hasValue = nil, false
			current := action
			action = nil
			mu.Unlock()

			if current != nil {
				reportUnhandledError(current.Unsubscribe())
			}
			if ok {
				subscriber.Next(value)
			}
		}

		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				mu.Lock()
				last, hasValue = value, true
				previous := action
				mu.Unlock()

				if previous != nil {
					reportUnhandledError(previous.Unsubscribe())
				}
				next := executeSchedule(subscriber.Subscription, scheduler, flush, d)

				mu.Lock()
				if !next.Closed() {
					action = next
				}
				mu.Unlock()
			},
			nil,
			func() {
				flush()
				subscriber.Complete()
			},
		))
		return nil
	})
}

// ThrottleTime 发射一个值后的d时间内忽略后续的值
func ThrottleTime(d time.Duration, opts ...Option) OperatorFunc {
	config := newConfig(opts)
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		scheduler := config.scheduler(DefaultScheduler)
		var (
			mu        sync.Mutex
			throttled bool
		)

		source.Subscribe(newOperatorSubscriber(subscriber, func(value interface{}) {
			mu.Lock()
			if throttled {
				mu.Unlock()
				return
			}
			throttled = true
			mu.Unlock()

			subscriber.Next(value)
			executeSchedule(subscriber.Subscription, scheduler, func() {
				mu.Lock()
				throttled = false
				mu.Unlock()
			}, d)
		}, nil, nil))
		return nil
	})
}

// Timeout 订阅后或每个值之后超过each仍没有新值时以*TimeoutError终止
func Timeout(each time.Duration, opts ...Option) OperatorFunc {
	return timeoutWith(each, nil, opts)
}

// TimeoutWith 超时时切换到fallback而不是发出错误
func TimeoutWith(each time.Duration, fallback *Observable, opts ...Option) OperatorFunc {
	return timeoutWith(each, fallback, opts)
}

func timeoutWith(each time.Duration, fallback *Observable, opts []Option) OperatorFunc {
	config := newConfig(opts)
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		scheduler := config.scheduler(DefaultScheduler)
		var (
			mu     sync.Mutex
			seen   int
			timer  *Action
			active *Subscriber
		)

		fire := func() {
			mu.Lock()
			count := seen
			upstream := active
			mu.Unlock()

			if upstream != nil {
				reportUnhandledError(upstream.Unsubscribe())
			}
			if fallback != nil {
				fallback.Subscribe(subscriber)
				return
			}
			err := NewTimeoutError(fmt.Sprintf("rxstream: no value within %s", each))
			err.Each = each
			err.Seen = count
			subscriber.Error(err)
		}
		start := func() {
			mu.Lock()
			previous := timer
			mu.Unlock()
			if previous != nil {
				reportUnhandledError(previous.Unsubscribe())
			}
			next := executeSchedule(subscriber.Subscription, scheduler, fire, each)
			mu.Lock()
			timer = next
			mu.Unlock()
		}

		upstream := newOperatorSubscriber(subscriber,
			func(value interface{}) {
				mu.Lock()
				seen++
				mu.Unlock()
				start()
				subscriber.Next(value)
			},
			nil,
			nil,
		)
		upstream.Add(TeardownFunc(func() {
			mu.Lock()
			current := timer
			timer = nil
			mu.Unlock()
			if current != nil {
				reportUnhandledError(current.Unsubscribe())
			}
		}))

		mu.Lock()
		active = upstream
		mu.Unlock()

		start()
		source.Subscribe(upstream)
		return nil
	})
}

// ============================================================================
// 调度切换
// ============================================================================

// ObserveOn 在调度器上重新发送每个通知
func ObserveOn(scheduler Scheduler) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				executeSchedule(subscriber.Subscription, scheduler, func() {
					subscriber.Next(value)
				}, 0)
			},
			func(err error) {
				executeSchedule(subscriber.Subscription, scheduler, func() {
					subscriber.Error(err)
				}, 0)
			},
			func() {
				executeSchedule(subscriber.Subscription, scheduler, func() {
					subscriber.Complete()
				}, 0)
			},
		))
		return nil
	})
}

// SubscribeOn 在调度器上执行对源的订阅
func SubscribeOn(scheduler Scheduler) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		return scheduler.Schedule(func(*Action, interface{}) {
			source.Subscribe(subscriber)
		}, 0, nil)
	})
}
