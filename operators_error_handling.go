// Error handling operators for rxstream
// 错误处理操作符实现，包含Catch、Retry、OnErrorResumeNext等
package rxstream

// ============================================================================
// 错误处理操作符实现
// ============================================================================

// CatchSelector 错误选择器。caught是带同一Catch的源，返回它即可重新订阅。
type CatchSelector func(err error, caught *Observable) *Observable

// Catch 捕获错误并切换到选择器返回的Observable
func Catch(selector CatchSelector) OperatorFunc {
	var catch OperatorFunc
	catch = operate(func(source *Observable, subscriber *Subscriber) Teardown {
		source.Subscribe(newOperatorSubscriber(subscriber, nil, func(err error) {
			next := selector(err, source.Pipe(catch))
			if next == nil {
				subscriber.Complete()
				return
			}
			next.Subscribe(subscriber)
		}, nil))
		return nil
	})
	return catch
}

// OnErrorReturn 出错时发射value后完成
func OnErrorReturn(value interface{}) OperatorFunc {
	return Catch(func(error, *Observable) *Observable {
		return Of(value)
	})
}

// Retry 出错时重新订阅源，最多count次；count<0表示无限重试。
// 同步出错的源在循环中重新订阅，不会加深调用栈。
func Retry(count int) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		attempts := 0

		var subscribeForRetry func()
		subscribeForRetry = func() {
			for {
				syncRetry := false
				subscribing := true
				source.Subscribe(newOperatorSubscriber(subscriber, nil, func(err error) {
					attempts++
					if count >= 0 && attempts > count {
						subscriber.Error(err)
						return
					}
					if subscribing {
						syncRetry = true
						return
					}
					subscribeForRetry()
				}, nil))
				subscribing = false

				if !syncRetry || subscriber.Closed() {
					return
				}
			}
		}

		subscribeForRetry()
		return nil
	})
}

// OnErrorResumeNext 源完成或出错后依次订阅next中的Observable，错误被忽略
func OnErrorResumeNext(next ...*Observable) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		remaining := append([]*Observable{source}, next...)

		var subscribeNext func()
		subscribeNext = func() {
			if len(remaining) == 0 {
				subscriber.Complete()
				return
			}
			current := remaining[0]
			remaining = remaining[1:]
			current.Subscribe(newOperatorSubscriber(subscriber, nil,
				func(error) { subscribeNext() },
				subscribeNext,
			))
		}

		subscribeNext()
		return nil
	})
}
