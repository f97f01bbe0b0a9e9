// Factory functions for rxstream
// 工厂函数，提供符合Go习惯的API设计
package rxstream

import (
	"context"
	"time"
)

// ============================================================================
// 基础工厂函数
// ============================================================================

// Create 从生产者函数创建Observable，等同于NewObservable
func Create(producer Producer) *Observable {
	return NewObservable(producer)
}

// Of 从给定的值创建Observable，同步发射后完成
func Of(values ...interface{}) *Observable {
	return FromSlice(values)
}

// Just 是Of的别名
func Just(values ...interface{}) *Observable {
	return FromSlice(values)
}

// FromSlice 从切片创建Observable。每次发射前检查是否已取消订阅。
func FromSlice(values []interface{}) *Observable {
	return NewObservable(func(sub *Subscriber) Teardown {
		for _, value := range values {
			if sub.Closed() {
				return nil
			}
			sub.Next(value)
		}
		sub.Complete()
		return nil
	})
}

// Range 创建发射[start, start+count)整数的Observable
func Range(start, count int) *Observable {
	return NewObservable(func(sub *Subscriber) Teardown {
		for i := 0; i < count; i++ {
			if sub.Closed() {
				return nil
			}
			sub.Next(start + i)
		}
		sub.Complete()
		return nil
	})
}

// Empty 创建立即完成的Observable
func Empty() *Observable {
	return NewObservable(func(sub *Subscriber) Teardown {
		sub.Complete()
		return nil
	})
}

// Never 创建永不发射任何通知的Observable
func Never() *Observable {
	return NewObservable(func(*Subscriber) Teardown {
		return nil
	})
}

// Throw 创建立即发射错误的Observable
func Throw(err error) *Observable {
	return NewObservable(func(sub *Subscriber) Teardown {
		sub.Error(err)
		return nil
	})
}

// Defer 延迟创建Observable，每次订阅时调用factory
func Defer(factory func() *Observable) *Observable {
	return NewObservable(func(sub *Subscriber) Teardown {
		source := factory()
		if source == nil {
			sub.Complete()
			return nil
		}
		return source.Subscribe(sub)
	})
}

// ============================================================================
// 时间相关工厂函数
// ============================================================================

// Timer 在delay之后发射0并完成
func Timer(delay time.Duration, opts ...Option) *Observable {
	config := newConfig(opts)
	return NewObservable(func(sub *Subscriber) Teardown {
		scheduler := config.scheduler(DefaultScheduler)
		return scheduler.Schedule(func(*Action, interface{}) {
			sub.Next(0)
			sub.Complete()
		}, delay, nil)
	})
}

// Interval 每隔period发射递增的整数，从0开始。使用递归调度，不创建goroutine。
func Interval(period time.Duration, opts ...Option) *Observable {
	config := newConfig(opts)
	if period < 0 {
		period = 0
	}
	return NewObservable(func(sub *Subscriber) Teardown {
		scheduler := config.scheduler(DefaultScheduler)
		return scheduler.Schedule(func(action *Action, state interface{}) {
			counter := state.(int)
			sub.Next(counter)
			action.Schedule(counter+1, period)
		}, period, 0)
	})
}

// Start 在调度器上执行函数并发射结果
func Start(fn func() interface{}, opts ...Option) *Observable {
	config := newConfig(opts)
	return NewObservable(func(sub *Subscriber) Teardown {
		scheduler := config.scheduler(DefaultScheduler)
		return scheduler.Schedule(func(*Action, interface{}) {
			sub.Next(fn())
			sub.Complete()
		}, 0, nil)
	})
}

// ============================================================================
// 外部数据源适配
// ============================================================================

// FromChannel 从Go channel创建Observable。channel关闭时完成；
// 取消订阅或WithContext的上下文结束时停止读取。
func FromChannel(ch <-chan interface{}, opts ...Option) *Observable {
	config := newConfig(opts)
	return NewObservable(func(sub *Subscriber) Teardown {
		ctx, cancel := context.WithCancel(config.Context)

		go func() {
			defer cancel()

			for {
				select {
				case <-ctx.Done():
					if err := config.Context.Err(); err != nil {
						sub.Error(err)
					}
					return
				case value, ok := <-ch:
					if !ok {
						sub.Complete()
						return
					}
					sub.Next(value)
				}
			}
		}()

		return TeardownFunc(cancel)
	})
}

// FromFunc 在goroutine中执行fn，发射其结果后完成，或发射其错误。
// 取消订阅时fn的上下文被取消。
func FromFunc(fn func(ctx context.Context) (interface{}, error), opts ...Option) *Observable {
	config := newConfig(opts)
	return NewObservable(func(sub *Subscriber) Teardown {
		ctx, cancel := context.WithCancel(config.Context)

		go func() {
			defer cancel()

			value, err := fn(ctx)
			if sub.Closed() {
				return
			}
			if err != nil {
				sub.Error(err)
				return
			}
			sub.Next(value)
			sub.Complete()
		}()

		return TeardownFunc(cancel)
	})
}

// FromEventPattern 通过注册/注销函数对适配事件源。
// add注册处理器并返回一个令牌，取消订阅时以同一处理器和令牌调用remove。
func FromEventPattern(add func(handler OnNext) interface{}, remove func(handler OnNext, token interface{})) *Observable {
	return NewObservable(func(sub *Subscriber) Teardown {
		handler := OnNext(sub.Next)
		token := add(handler)
		if remove == nil {
			return nil
		}
		return TeardownFunc(func() {
			remove(handler, token)
		})
	})
}

// ============================================================================
// 组合工厂函数
// ============================================================================

// Merge 并发订阅所有源，交错发射它们的值，全部完成后完成
func Merge(sources ...*Observable) *Observable {
	return observablesOf(sources).Pipe(MergeAll())
}

// Concat 依次订阅每个源，前一个完成后才订阅下一个
func Concat(sources ...*Observable) *Observable {
	return observablesOf(sources).Pipe(ConcatAll())
}

func observablesOf(sources []*Observable) *Observable {
	values := make([]interface{}, len(sources))
	for i, source := range sources {
		values[i] = source
	}
	return FromSlice(values)
}
