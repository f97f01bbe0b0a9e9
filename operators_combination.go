// Combination operators for rxstream
// 组合操作符实现，包含MergeWith、ConcatWith、CombineLatest、Zip、Race等
package rxstream

import (
	"sync"
)

// ============================================================================
// 组合操作符实现
// ============================================================================

// MergeWith 把源与others合并
func MergeWith(others ...*Observable) OperatorFunc {
	return func(source *Observable) *Observable {
		return Merge(append([]*Observable{source}, others...)...)
	}
}

// ConcatWith 源完成后依次订阅others
func ConcatWith(others ...*Observable) OperatorFunc {
	return func(source *Observable) *Observable {
		return Concat(append([]*Observable{source}, others...)...)
	}
}

// CombineLatest 每个源都发射过值之后，任一源发射时以所有源的最新值调用combiner。
// 所有源完成后完成。
func CombineLatest(sources []*Observable, combiner func(values ...interface{}) interface{}) *Observable {
	return NewObservable(func(sub *Subscriber) Teardown {
		if len(sources) == 0 {
			sub.Complete()
			return nil
		}

		var (
			mu      sync.Mutex
			latest  = make([]interface{}, len(sources))
			has     = make([]bool, len(sources))
			waiting = len(sources)
			active  = len(sources)
		)

		for i, source := range sources {
			if sub.Closed() {
				break
			}
			index := i
			source.Subscribe(newOperatorSubscriber(sub,
				func(value interface{}) {
					mu.Lock()
					if !has[index] {
						has[index] = true
						waiting--
					}
					latest[index] = value
					ready := waiting == 0
					var values []interface{}
					if ready {
						values = make([]interface{}, len(latest))
						copy(values, latest)
					}
					mu.Unlock()

					if ready {
						sub.Next(combiner(values...))
					}
				},
				nil,
				func() {
					mu.Lock()
					active--
					done := active == 0
					mu.Unlock()
					if done {
						sub.Complete()
					}
				},
			))
		}
		return nil
	})
}

// Zip 按位置组合各个源的值：每个源都有第n个值时发射zipper的结果。
// 任一源完成且它的缓冲区为空时完成。
func Zip(sources []*Observable, zipper func(values ...interface{}) interface{}) *Observable {
	return NewObservable(func(sub *Subscriber) Teardown {
		if len(sources) == 0 {
			sub.Complete()
			return nil
		}

		var (
			mu     sync.Mutex
			queues = make([][]interface{}, len(sources))
			done   = make([]bool, len(sources))
		)

		// exhausted 调用者持有锁
		exhausted := func() bool {
			for i := range queues {
				if done[i] && len(queues[i]) == 0 {
					return true
				}
			}
			return false
		}

		for i, source := range sources {
			if sub.Closed() {
				break
			}
			index := i
			source.Subscribe(newOperatorSubscriber(sub,
				func(value interface{}) {
					mu.Lock()
					queues[index] = append(queues[index], value)
					ready := true
					for _, q := range queues {
						if len(q) == 0 {
							ready = false
							break
						}
					}
					var values []interface{}
					if ready {
						values = make([]interface{}, len(queues))
						for j := range queues {
							values[j] = queues[j][0]
							queues[j] = queues[j][1:]
						}
					}
					finished := ready && exhausted()
					mu.Unlock()

					if ready {
						sub.Next(zipper(values...))
					}
					if finished {
						sub.Complete()
					}
				},
				nil,
				func() {
					mu.Lock()
					done[index] = true
					finished := len(queues[index]) == 0
					mu.Unlock()
					if finished {
						sub.Complete()
					}
				},
			))
		}
		return nil
	})
}

// Race 镜像第一个发出任何通知的源，其余源被取消订阅
func Race(sources ...*Observable) *Observable {
	return NewObservable(func(sub *Subscriber) Teardown {
		var (
			mu     sync.Mutex
			winner = -1
			subs   = make([]*Subscriber, 0, len(sources))
		)

		// claim 尝试成为胜者，胜出时取消其他源
		claim := func(index int) bool {
			mu.Lock()
			if winner >= 0 {
				won := winner == index
				mu.Unlock()
				return won
			}
			winner = index
			losers := make([]*Subscriber, 0, len(subs))
			for i, s := range subs {
				if i != index {
					losers = append(losers, s)
				}
			}
			mu.Unlock()

			for _, loser := range losers {
				reportUnhandledError(loser.Unsubscribe())
			}
			return true
		}

		for i, source := range sources {
			mu.Lock()
			decided := winner >= 0
			mu.Unlock()
			if decided || sub.Closed() {
				break
			}

			index := i
			inner := newOperatorSubscriber(sub,
				func(value interface{}) {
					if claim(index) {
						sub.Next(value)
					}
				},
				func(err error) {
					if claim(index) {
						sub.Error(err)
					}
				},
				func() {
					if claim(index) {
						sub.Complete()
					}
				},
			)
			mu.Lock()
			subs = append(subs, inner)
			mu.Unlock()
			source.Subscribe(inner)
		}
		return nil
	})
}

// WithLatestFrom 源每发射一个值，与other的最新值组合；other尚未发射时丢弃源的值
func WithLatestFrom(other *Observable, combiner func(value, latest interface{}) interface{}) OperatorFunc {
	return operate(func(source *Observable, subscriber *Subscriber) Teardown {
		var (
			mu     sync.Mutex
			latest interface{}
			ready  bool
		)

		other.Subscribe(newOperatorSubscriber(subscriber, func(value interface{}) {
			mu.Lock()
			latest, ready = value, true
			mu.Unlock()
		}, nil, func() {}))

		if subscriber.Closed() {
			return nil
		}

		source.Subscribe(newOperatorSubscriber(subscriber, func(value interface{}) {
			mu.Lock()
			current, ok := latest, ready
			mu.Unlock()
			if ok {
				subscriber.Next(combiner(value, current))
			}
		}, nil, nil))
		return nil
	})
}
