// Connectable implementation for rxstream
// 可连接的Observable：通过Subject多播一个源订阅，支持RefCount和AutoConnect
package rxstream

import (
	"sync"
	"sync/atomic"
)

// ============================================================================
// Connectable 实现
// ============================================================================

// MulticastSubject 多播使用的Subject
type MulticastSubject interface {
	Observer
	Subscribe(observer Observer) *Subscription
	Stopped() bool
	Closed() bool
}

// Connectable 在Connect之前不订阅源；连接后源的通知经Subject多播给所有订阅者。
// 源终止后连接被重置，Subject终止后下一次使用时由工厂重新创建。
type Connectable struct {
	*Observable

	source  *Observable
	factory func() MulticastSubject

	mu            sync.Mutex
	subject       MulticastSubject
	connection    *Subscription
	refCount      int
	refConnection *Subscription
}

// Multicast 使用subject工厂创建可连接的Observable
func Multicast(source *Observable, factory func() MulticastSubject) *Connectable {
	c := &Connectable{source: source, factory: factory}
	c.Observable = NewObservable(func(sub *Subscriber) Teardown {
		return c.getSubject().Subscribe(sub)
	})
	return c
}

// getSubject 返回当前Subject，已终止或已释放时创建新的
func (c *Connectable) getSubject() MulticastSubject {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subjectLocked()
}

func (c *Connectable) subjectLocked() MulticastSubject {
	if c.subject == nil || c.subject.Stopped() || c.subject.Closed() {
		c.subject = c.factory()
	}
	return c.subject
}

// Connect 订阅源。已连接时返回现有连接；取消返回的Subscription即断开。
func (c *Connectable) Connect() *Subscription {
	c.mu.Lock()
	if c.connection != nil {
		conn := c.connection
		c.mu.Unlock()
		return conn
	}
	subject := c.subjectLocked()
	conn := NewSubscription(nil)
	c.connection = conn
	c.mu.Unlock()

	reset := func() {
		c.mu.Lock()
		if c.connection == conn {
			c.connection = nil
		}
		c.mu.Unlock()
	}
	conn.Add(TeardownFunc(reset))

	inner := c.source.Subscribe(ObserverFuncs{
		OnNext: subject.Next,
		OnError: func(err error) {
			reset()
			subject.Error(err)
		},
		OnComplete: func() {
			reset()
			subject.Complete()
		},
	})
	conn.Add(inner)
	return conn
}

// Connected 检查当前是否已连接
func (c *Connectable) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connection != nil
}

// RefCount 第一个订阅者到来时连接，最后一个订阅者离开时断开
func (c *Connectable) RefCount() *Observable {
	return NewObservable(func(sub *Subscriber) Teardown {
		c.Subscribe(sub)
		if sub.Closed() {
			return nil
		}

		c.mu.Lock()
		c.refCount++
		first := c.refCount == 1
		c.mu.Unlock()

		if first {
			conn := c.Connect()
			c.mu.Lock()
			c.refConnection = conn
			c.mu.Unlock()
		}

		return TeardownFunc(func() {
			c.mu.Lock()
			c.refCount--
			var conn *Subscription
			if c.refCount == 0 {
				conn = c.refConnection
				c.refConnection = nil
			}
			c.mu.Unlock()

			if conn != nil {
				if err := conn.Unsubscribe(); err != nil {
					reportUnhandledError(err)
				}
			}
		})
	})
}

// AutoConnect 第n个订阅者订阅后自动连接，之后不再断开。n<=0时立即连接。
func (c *Connectable) AutoConnect(n int) *Observable {
	if n <= 0 {
		c.Connect()
		return c.Observable
	}
	var subscribed atomic.Int64
	return NewObservable(func(sub *Subscriber) Teardown {
		c.Subscribe(sub)
		if subscribed.Add(1) == int64(n) {
			c.Connect()
		}
		return nil
	})
}

// ============================================================================
// 多播工厂
// ============================================================================

// Publish 使用Subject多播
func Publish(source *Observable) *Connectable {
	return Multicast(source, func() MulticastSubject {
		return NewSubject()
	})
}

// PublishBehavior 使用BehaviorSubject多播，新订阅者先收到最新值
func PublishBehavior(source *Observable, initial interface{}) *Connectable {
	return Multicast(source, func() MulticastSubject {
		return NewBehaviorSubject(initial)
	})
}

// PublishReplay 使用ReplaySubject多播
func PublishReplay(source *Observable, bufferSize int, opts ...Option) *Connectable {
	return Multicast(source, func() MulticastSubject {
		return NewReplaySubject(bufferSize, opts...)
	})
}

// PublishLast 使用AsyncSubject多播，只发射最后一个值
func PublishLast(source *Observable) *Connectable {
	return Multicast(source, func() MulticastSubject {
		return NewAsyncSubject()
	})
}

// Share 多播并按引用计数自动连接和断开
func Share() OperatorFunc {
	return func(source *Observable) *Observable {
		return Publish(source).RefCount()
	}
}
