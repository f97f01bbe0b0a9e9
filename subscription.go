// Subscription implementation for rxstream
// 可取消的资源释放原语，由清理动作组成的树
package rxstream

import (
	"reflect"
	"sync"

	"go.uber.org/multierr"
)

// ============================================================================
// Teardown
// ============================================================================

// Teardown 清理动作，Subscription本身也是Teardown
type Teardown interface {
	Unsubscribe() error
}

// TeardownFunc 将普通函数适配为Teardown
type TeardownFunc func()

// Unsubscribe 执行函数
func (f TeardownFunc) Unsubscribe() error {
	f()
	return nil
}

// ============================================================================
// Subscription
// ============================================================================

// Subscription 管理一组清理动作的生命周期。
// 关闭后保持关闭；向已关闭的Subscription添加清理动作会立即执行它。
// 子Subscription只持有从父节点移除自身的闭包，不持有父节点指针。
type Subscription struct {
	mu        sync.Mutex
	closed    bool
	initial   func()
	teardowns []Teardown
	detach    []func()
}

// NewSubscription 创建Subscription，initial在取消订阅时最先执行，可以为nil
func NewSubscription(initial func()) *Subscription {
	return &Subscription{initial: initial}
}

// closedSubscription 返回一个已关闭的Subscription
func closedSubscription() *Subscription {
	return &Subscription{closed: true}
}

// Closed 检查是否已关闭
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Add 添加清理动作；已关闭时立即执行
func (s *Subscription) Add(teardown Teardown) {
	teardown = normalizeTeardown(teardown)
	if teardown == nil {
		return
	}
	if child, ok := teardown.(*Subscription); ok {
		if child == s {
			return
		}
		if child.Closed() {
			return
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := execTeardown(teardown); err != nil {
			reportUnhandledError(err)
		}
		return
	}
	s.teardowns = append(s.teardowns, teardown)
	s.mu.Unlock()

	if child, ok := teardown.(*Subscription); ok {
		child.addDetach(func() { s.Remove(child) })
	}
}

// Remove 移除清理动作但不执行，只匹配可比较的Teardown（如*Subscription）
func (s *Subscription) Remove(teardown Teardown) {
	teardown = normalizeTeardown(teardown)
	if teardown == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.teardowns {
		if sameTeardown(existing, teardown) {
			s.teardowns = append(s.teardowns[:i:i], s.teardowns[i+1:]...)
			return
		}
	}
}

// Unsubscribe 取消订阅。幂等；先标记关闭再逐个执行清理动作，
// 单个清理动作的失败不影响其他动作，失败汇总为一个UnsubscriptionError。
func (s *Subscription) Unsubscribe() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	detach := s.detach
	initial := s.initial
	teardowns := s.teardowns
	s.detach = nil
	s.initial = nil
	s.teardowns = nil
	s.mu.Unlock()

	for _, remove := range detach {
		remove()
	}

	var errs error
	if initial != nil {
		errs = multierr.Append(errs, execTeardown(TeardownFunc(initial)))
	}
	for _, teardown := range teardowns {
		errs = multierr.Append(errs, execTeardown(teardown))
	}

	if errs != nil {
		return newUnsubscriptionError(errs)
	}
	return nil
}

// addDetach 记录从父节点移除自身的闭包
func (s *Subscription) addDetach(remove func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		remove()
		return
	}
	s.detach = append(s.detach, remove)
	s.mu.Unlock()
}

// subscriptionLike 内嵌*Subscription的类型（Subscriber、Action）
type subscriptionLike interface {
	asSubscription() *Subscription
}

func (s *Subscription) asSubscription() *Subscription {
	return s
}

// normalizeTeardown 将内嵌Subscription的值还原为*Subscription，使父子关系可追踪
func normalizeTeardown(teardown Teardown) Teardown {
	if fn, ok := teardown.(TeardownFunc); ok && fn == nil {
		return nil
	}
	if holder, ok := teardown.(subscriptionLike); ok {
		if sub := holder.asSubscription(); sub != nil {
			return sub
		}
		return nil
	}
	return teardown
}

// execTeardown 执行单个清理动作，将panic转换为错误
func execTeardown(teardown Teardown) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = toError(r)
		}
	}()
	return teardown.Unsubscribe()
}

// sameTeardown 比较两个清理动作是否为同一个，不可比较的类型永不相等
func sameTeardown(a, b Teardown) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
