// Utility operators for rxstream
// 工具操作符实现，包含Map、Filter、Scan、Take、TakeUntil等
package rxstream

// ============================================================================
// 转换与过滤
// ============================================================================

// Map 转换每个值，转换函数返回错误时以该错误终止
func Map(transformer Transformer) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		source.Subscribe(newOperatorSubscriber(subscriber, func(value interface{}) {
			result, err := transformer(value)
			if err != nil {
				subscriber.Error(err)
				return
			}
			subscriber.Next(result)
		}, nil, nil))
		return nil
	})
}

// Filter 只转发满足谓词的值
func Filter(predicate Predicate) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		source.Subscribe(newOperatorSubscriber(subscriber, func(value interface{}) {
			if predicate(value) {
				subscriber.Next(value)
			}
		}, nil, nil))
		return nil
	})
}

// Scan 发射每一步的累加结果
func Scan(reducer Reducer, seed interface{}) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		accumulator := seed
		source.Subscribe(newOperatorSubscriber(subscriber, func(value interface{}) {
			accumulator = reducer(accumulator, value)
			subscriber.Next(accumulator)
		}, nil, nil))
		return nil
	})
}

// ============================================================================
// 截取
// ============================================================================

// Take 只发射前count个值然后完成，count<=0时立即完成
func Take(count int) OperatorFunc {
	if count <= 0 {
		return func(*Observable) *Observable {
			return Empty()
		}
	}
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		seen := 0
		source.Subscribe(newOperatorSubscriber(subscriber, func(value interface{}) {
			seen++
			if seen > count {
				return
			}
			subscriber.Next(value)
			if seen == count {
				subscriber.Complete()
			}
		}, nil, nil))
		return nil
	})
}

// Skip 跳过前count个值
func Skip(count int) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		seen := 0
		source.Subscribe(newOperatorSubscriber(subscriber, func(value interface{}) {
			seen++
			if seen > count {
				subscriber.Next(value)
			}
		}, nil, nil))
		return nil
	})
}

// TakeUntil 转发值直到notifier发射第一个值，然后完成。notifier完成不影响源。
// notifier可以是*Observable或*Subject等任意ObservableSource。
func TakeUntil(notifier ObservableSource) OperatorFunc {
	stop := toObservable(notifier)
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		stop.Subscribe(newOperatorSubscriber(subscriber, func(interface{}) {
			subscriber.Complete()
		}, nil, func() {}))
		if !subscriber.Closed() {
			source.Subscribe(subscriber)
		}
		return nil
	})
}

// ============================================================================
// 空序列处理
// ============================================================================

// DefaultIfEmpty 源没有发射任何值就完成时发射defaultValue
func DefaultIfEmpty(defaultValue interface{}) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		hasValue := false
		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				hasValue = true
				subscriber.Next(value)
			},
			nil,
			func() {
				if !hasValue {
					subscriber.Next(defaultValue)
				}
				subscriber.Complete()
			},
		))
		return nil
	})
}

// IgnoreElements 忽略所有值，只转发终止通知
func IgnoreElements() OperatorFunc {
	return Filter(func(interface{}) bool { return false })
}

// StartWith 先同步发射values，再订阅源
func StartWith(values ...interface{}) OperatorFunc {
	return func(source *Observable) *Observable {
		return Concat(FromSlice(values), source)
	}
}
