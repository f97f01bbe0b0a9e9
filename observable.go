// Observable implementation for rxstream
// Observable核心实现：不可变的订阅函数模板，Pipe/Lift组合操作符
package rxstream

import (
	"context"
	"iter"
	"sync"
)

// ============================================================================
// Observable 核心实现
// ============================================================================

// Producer 生产者函数，在每次订阅时同步调用，返回的清理动作在最终释放时执行一次
type Producer func(subscriber *Subscriber) Teardown

// Operator 显式的操作符值，由Lift使用
type Operator interface {
	Call(subscriber *Subscriber, source *Observable) Teardown
}

// OperatorFunc 操作符函数 Observable -> Observable，由Pipe从左到右组合
type OperatorFunc func(source *Observable) *Observable

// Observable 可观察序列。无状态，每次Subscribe相互独立。
type Observable struct {
	producer Producer
	source   *Observable
	operator Operator
}

// NewObservable 创建新的Observable
func NewObservable(producer Producer) *Observable {
	return &Observable{producer: producer}
}

// Subscribe 订阅观察者。生产者在订阅期间同步推送的值在返回前按顺序送达。
func (o *Observable) Subscribe(observer Observer) *Subscription {
	sub := toSubscriber(observer)
	o.subscribeWith(sub)
	return sub.Subscription
}

// SubscribeWithCallbacks 使用回调函数订阅，任意回调可以为nil
func (o *Observable) SubscribeWithCallbacks(onNext OnNext, onError OnError, onComplete OnComplete) *Subscription {
	return o.Subscribe(NewObserver(onNext, onError, onComplete))
}

// subscribeWith 调用生产者。生产者panic转为错误通知；
// 订阅者已清理完毕时没有可用的下游，panic继续传播。
func (o *Observable) subscribeWith(sub *Subscriber) {
	defer func() {
		if r := recover(); r != nil {
			if sub.Closed() {
				panic(r)
			}
			sub.Error(toError(r))
		}
	}()

	var teardown Teardown
	switch {
	case o.operator != nil:
		teardown = o.operator.Call(sub, o.source)
	case o.producer != nil:
		teardown = o.producer(sub)
	}
	sub.Add(teardown)
}

// Lift 使用操作符值创建新的Observable
func (o *Observable) Lift(operator Operator) *Observable {
	return &Observable{source: o, operator: operator}
}

// Pipe 从左到右依次应用操作符
func (o *Observable) Pipe(operators ...OperatorFunc) *Observable {
	result := o
	for _, op := range operators {
		result = op(result)
	}
	return result
}

// Pipe 将多个操作符组合为一个
func Pipe(operators ...OperatorFunc) OperatorFunc {
	return func(source *Observable) *Observable {
		return source.Pipe(operators...)
	}
}

// operatorFunc 以函数实现Operator
type operatorFunc func(source *Observable, subscriber *Subscriber) Teardown

func (f operatorFunc) Call(subscriber *Subscriber, source *Observable) Teardown {
	return f(source, subscriber)
}

// operate 以Lift方式构造操作符
func operate(init func(source *Observable, subscriber *Subscriber) Teardown) OperatorFunc {
	return func(source *Observable) *Observable {
		return source.Lift(operatorFunc(init))
	}
}

// ============================================================================
// 拉取式迭代
// ============================================================================

// Iterate 将推送序列转换为拉取迭代器。第一次拉取时订阅一次，
// 循环结束、出错、完成或上下文取消时恰好取消订阅一次。
func (o *Observable) Iterate(ctx context.Context) iter.Seq2[interface{}, error] {
	return func(yield func(interface{}, error) bool) {
		q := newPullQueue()
		sub := o.Subscribe(ObserverFuncs{
			OnNext:     q.push,
			OnError:    q.fail,
			OnComplete: q.finish,
		})
		defer func() {
			if err := sub.Unsubscribe(); err != nil {
				reportUnhandledError(err)
			}
		}()

		for {
			value, err, ok := q.pull(ctx)
			if !ok {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(value, nil) {
				return
			}
		}
	}
}

// pullQueue 缓存推送的值，直到被拉取
type pullQueue struct {
	mu     sync.Mutex
	items  []interface{}
	err    error
	done   bool
	signal chan struct{}
}

func newPullQueue() *pullQueue {
	return &pullQueue{signal: make(chan struct{}, 1)}
}

func (q *pullQueue) push(value interface{}) {
	q.mu.Lock()
	q.items = append(q.items, value)
	q.mu.Unlock()
	q.notify()
}

func (q *pullQueue) fail(err error) {
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
	q.notify()
}

func (q *pullQueue) finish() {
	q.mu.Lock()
	q.done = true
	q.mu.Unlock()
	q.notify()
}

func (q *pullQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pull 返回下一个值；ok为false表示序列已完成
func (q *pullQueue) pull(ctx context.Context) (value interface{}, err error, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			value = q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return value, nil, true
		}
		if q.err != nil {
			err = q.err
			q.mu.Unlock()
			return nil, err, true
		}
		if q.done {
			q.mu.Unlock()
			return nil, nil, false
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err(), true
		}
	}
}
