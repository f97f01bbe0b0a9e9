// Side effect operators for rxstream
// 副作用操作符实现，包含Tap、DoOnNext、DoOnError、DoOnComplete、Finalize等
package rxstream

import (
	"log/slog"
)

// ============================================================================
// 副作用操作符实现
// ============================================================================

// Tap 对每个通知执行副作用，然后原样转发。副作用中的panic使流以错误终止。
func Tap(observer Observer) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		source.Subscribe(newOperatorSubscriber(subscriber,
			func(value interface{}) {
				observer.Next(value)
				subscriber.Next(value)
			},
			func(err error) {
				observer.Error(err)
				subscriber.Error(err)
			},
			func() {
				observer.Complete()
				subscriber.Complete()
			},
		))
		return nil
	})
}

// DoOnNext 在每个值发射时执行副作用操作
func DoOnNext(action OnNext) OperatorFunc {
	return Tap(ObserverFuncs{OnNext: action, OnError: func(error) {}})
}

// DoOnError 在发生错误时执行副作用操作
func DoOnError(action OnError) OperatorFunc {
	return Tap(ObserverFuncs{OnError: action})
}

// DoOnComplete 在完成时执行副作用操作
func DoOnComplete(action OnComplete) OperatorFunc {
	return Tap(ObserverFuncs{OnComplete: action, OnError: func(error) {}})
}

// DoOnSubscribe 在订阅源之前执行副作用操作
func DoOnSubscribe(action func()) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		action()
		source.Subscribe(subscriber)
		return nil
	})
}

// Finalize 订阅最终释放时执行action，无论是完成、出错还是取消订阅
func Finalize(action func()) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		source.Subscribe(subscriber)
		return TeardownFunc(action)
	})
}

// Log 日志操作符，以Debug级别记录所有通知
func Log(prefix string) OperatorFunc {
	return func(source *Observable) *Observable {
		return Defer(func() *Observable {
			log := logger().With(slog.String("stream", prefix))
			return source.Pipe(
				Tap(ObserverFuncs{
					OnNext: func(value interface{}) {
						log.Debug("next", slog.Any("value", value))
					},
					OnError: func(err error) {
						log.Debug("error", slog.Any("error", err))
					},
					OnComplete: func() {
						log.Debug("complete")
					},
				}),
				Finalize(func() {
					log.Debug("finalized")
				}),
			)
		})
	}
}
