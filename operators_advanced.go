// Advanced operators and factory functions for rxstream
// 高级操作符和工厂函数实现，包含Generate、Using、GroupBy、Timestamp等
package rxstream

import (
	"sync"
	"time"
)

// ============================================================================
// 高级工厂函数
// ============================================================================

// Generate 以状态机方式同步生成值，每次发射前检查是否已取消订阅
func Generate(initialState interface{}, condition func(interface{}) bool, iterate func(interface{}) interface{}, resultSelector func(interface{}) interface{}) *Observable {
	return NewObservable(func(sub *Subscriber) Teardown {
		for state := initialState; condition(state); state = iterate(state) {
			if sub.Closed() {
				return nil
			}
			sub.Next(resultSelector(state))
		}
		sub.Complete()
		return nil
	})
}

// Using 为每次订阅创建资源，订阅最终释放时调用dispose
func Using(resourceFactory func() interface{}, observableFactory func(resource interface{}) *Observable, dispose func(resource interface{})) *Observable {
	return NewObservable(func(sub *Subscriber) Teardown {
		resource := resourceFactory()
		if dispose != nil {
			sub.Add(TeardownFunc(func() {
				dispose(resource)
			}))
		}
		observableFactory(resource).Subscribe(sub)
		return nil
	})
}

// ============================================================================
// 高级操作符
// ============================================================================

// GroupedObservable 按键分组的Observable
type GroupedObservable struct {
	*Observable
	Key interface{}
}

// GroupBy 按键选择器对值分组，每个新键发射一个*GroupedObservable。
// 源终止时所有分组一并终止。
func GroupBy(keySelector func(interface{}) interface{}) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		var (
			mu     sync.Mutex
			groups = make(map[interface{}]*Subject)
			order  []*Subject
		)

		snapshot := func() []*Subject {
			mu.Lock()
			defer mu.Unlock()
			all := make([]*Subject, len(order))
			copy(all, order)
			return all
		}

		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				key := keySelector(value)

				mu.Lock()
				group, ok := groups[key]
				if !ok {
					group = NewSubject()
					groups[key] = group
					order = append(order, group)
				}
				mu.Unlock()

				if !ok {
					subscriber.Next(&GroupedObservable{Observable: group.AsObservable(), Key: key})
				}
				group.Next(value)
			},
			func(err error) {
				for _, group := range snapshot() {
					group.Error(err)
				}
				subscriber.Error(err)
			},
			func() {
				for _, group := range snapshot() {
					group.Complete()
				}
				subscriber.Complete()
			},
		))
		return nil
	})
}

// Timestamped 带时间戳的值
type Timestamped struct {
	Value     interface{}
	Timestamp time.Time
}

// Timestamp 为每个值附加调度器的当前时间
func Timestamp(opts ...Option) OperatorFunc {
	config := newConfig(opts)
	return Map(func(value interface{}) (interface{}, error) {
		scheduler := config.scheduler(DefaultScheduler)
		return Timestamped{Value: value, Timestamp: scheduler.Now()}, nil
	})
}

// TimeInterval 带间隔的值
type TimeInterval struct {
	Value    interface{}
	Interval time.Duration
}

// TimeIntervalOf 计算每个值与前一个值（或订阅时刻）之间的间隔
func TimeIntervalOf(opts ...Option) OperatorFunc {
	config := newConfig(opts)
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		scheduler := config.scheduler(DefaultScheduler)
		last := scheduler.Now()
		source.Subscribe(newOperatorSubscriber(subscriber, func(value interface{}) {
			now := scheduler.Now()
			interval := now.Sub(last)
			last = now
			subscriber.Next(TimeInterval{Value: value, Interval: interval})
		}, nil, nil))
		return nil
	})
}
