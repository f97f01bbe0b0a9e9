// Blocking operators for rxstream
// 阻塞操作符实现，包含BlockingSubscribe、BlockingFirst、BlockingLast等
package rxstream

import (
	"context"
)

// ============================================================================
// 阻塞操作符实现
// ============================================================================

// BlockingSubscribe 订阅并阻塞直到终止或上下文结束，返回流的错误或上下文的错误
func (o *Observable) BlockingSubscribe(ctx context.Context, observer Observer) error {
	done := make(chan error, 1)
	if observer == nil {
		observer = ObserverFuncs{OnError: func(error) {}}
	}

	sub := o.Subscribe(ObserverFuncs{
		OnNext: observer.Next,
		OnError: func(err error) {
			observer.Error(err)
			done <- err
		},
		OnComplete: func() {
			observer.Complete()
			done <- nil
		},
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if err := sub.Unsubscribe(); err != nil {
			reportUnhandledError(err)
		}
		return ctx.Err()
	}
}

// BlockingFirst 阻塞直到第一个值，序列为空时返回ErrEmpty
func (o *Observable) BlockingFirst(ctx context.Context) (interface{}, error) {
	for value, err := range o.Iterate(ctx) {
		return value, err
	}
	return nil, ErrEmpty
}

// BlockingLast 阻塞直到完成并返回最后一个值，序列为空时返回ErrEmpty
func (o *Observable) BlockingLast(ctx context.Context) (interface{}, error) {
	var last interface{}
	seen := false
	for value, err := range o.Iterate(ctx) {
		if err != nil {
			return nil, err
		}
		last = value
		seen = true
	}
	if !seen {
		return nil, ErrEmpty
	}
	return last, nil
}

// ToSlice 阻塞收集所有值
func (o *Observable) ToSlice(ctx context.Context) ([]interface{}, error) {
	values := make([]interface{}, 0)
	for value, err := range o.Iterate(ctx) {
		if err != nil {
			return values, err
		}
		values = append(values, value)
	}
	return values, nil
}
