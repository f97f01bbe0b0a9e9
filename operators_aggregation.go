// Aggregation operators for rxstream
// 聚合操作符实现，包含Reduce、Count、First、Last、ElementAt、All、Any等
package rxstream

import (
	"fmt"
)

// ============================================================================
// 聚合操作符实现
// ============================================================================

// Reduce 源完成时发射最终的累加结果
func Reduce(reducer Reducer, seed interface{}) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		accumulator := seed
		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				accumulator = reducer(accumulator, value)
			},
			nil,
			func() {
				subscriber.Next(accumulator)
				subscriber.Complete()
			},
		))
		return nil
	})
}

// Count 源完成时发射值的数量
func Count() OperatorFunc {
	return Reduce(func(acc, _ interface{}) interface{} {
		return acc.(int) + 1
	}, 0)
}

// ToArray 源完成时以切片发射所有值
func ToArray() OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		values := make([]interface{}, 0)
		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				values = append(values, value)
			},
			nil,
			func() {
				subscriber.Next(values)
				subscriber.Complete()
			},
		))
		return nil
	})
}

// First 发射第一个满足谓词的值后完成；predicate为nil时取第一个值。没有这样的值时以ErrEmpty终止。
func First(predicate Predicate) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				if predicate == nil || predicate(value) {
					subscriber.Next(value)
					subscriber.Complete()
				}
			},
			nil,
			func() {
				subscriber.Error(ErrEmpty)
			},
		))
		return nil
	})
}

// Last 源完成时发射最后一个满足谓词的值；没有这样的值时以ErrEmpty终止
func Last(predicate Predicate) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		var last interface{}
		found := false
		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				if predicate == nil || predicate(value) {
					last, found = value, true
				}
			},
			nil,
			func() {
				if !found {
					subscriber.Error(ErrEmpty)
					return
				}
				subscriber.Next(last)
				subscriber.Complete()
			},
		))
		return nil
	})
}

// ElementAt 发射第index个值（从0开始）；源提前完成时返回*IndexOutOfBoundsError
func ElementAt(index int) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		if index < 0 {
			subscriber.Error(NewIndexOutOfBoundsError(fmt.Sprintf("rxstream: negative index %d", index)))
			return nil
		}
		seen := 0
		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				if seen == index {
					subscriber.Next(value)
					subscriber.Complete()
					return
				}
				seen++
			},
			nil,
			func() {
				subscriber.Error(NewIndexOutOfBoundsError(fmt.Sprintf("rxstream: index %d out of range, sequence has %d elements", index, seen)))
			},
		))
		return nil
	})
}

// All 所有值都满足谓词时发射true，遇到第一个不满足的值立即发射false
func All(predicate Predicate) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				if !predicate(value) {
					subscriber.Next(false)
					subscriber.Complete()
				}
			},
			nil,
			func() {
				subscriber.Next(true)
				subscriber.Complete()
			},
		))
		return nil
	})
}

// Any 遇到第一个满足谓词的值时发射true，源完成时发射false
func Any(predicate Predicate) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				if predicate(value) {
					subscriber.Next(true)
					subscriber.Complete()
				}
			},
			nil,
			func() {
				subscriber.Next(false)
				subscriber.Complete()
			},
		))
		return nil
	})
}

// ============================================================================
// 错误类型
// ============================================================================

// IndexOutOfBoundsError 索引越界错误
type IndexOutOfBoundsError struct {
	message string
}

func (e *IndexOutOfBoundsError) Error() string {
	return e.message
}

// NewIndexOutOfBoundsError 创建索引越界错误
func NewIndexOutOfBoundsError(message string) *IndexOutOfBoundsError {
	return &IndexOutOfBoundsError{message: message}
}
