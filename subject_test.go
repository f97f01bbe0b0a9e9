// Subject tests for rxstream
// Subject测试：多播、终止锁定、重放策略与释放后的误用
package rxstream

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Subject
// ============================================================================

func TestSubject(t *testing.T) {
	t.Run("多播给所有当前订阅者", func(t *testing.T) {
		subject := NewSubject()
		first, second := &collector{}, &collector{}
		subject.Subscribe(first)
		subject.Subscribe(second)

		subject.Next(1)
		subject.Next(2)
		subject.Complete()

		assert.Equal(t, []interface{}{1, 2}, first.Values())
		assert.Equal(t, []interface{}{1, 2}, second.Values())
		assert.True(t, first.Completed())
		assert.True(t, second.Completed())
	})

	t.Run("没有订阅者时值被丢弃", func(t *testing.T) {
		subject := NewSubject()
		subject.Next(1)

		c := &collector{}
		subject.Subscribe(c)
		subject.Next(2)

		assert.Equal(t, []interface{}{2}, c.Values())
	})

	t.Run("终止后忽略通知", func(t *testing.T) {
		subject := NewSubject()
		c := &collector{}
		subject.Subscribe(c)

		subject.Complete()
		subject.Next(1)
		subject.Error(errors.New("late"))

		assert.Empty(t, c.Values())
		assert.NoError(t, c.Err())
		assert.Equal(t, SubjectCompleted, subject.State())
		assert.False(t, subject.HasObservers())
	})

	t.Run("终止后的订阅者同步收到终止通知", func(t *testing.T) {
		subject := NewSubject()
		boom := errors.New("boom")
		subject.Error(boom)

		c := &collector{}
		sub := subject.Subscribe(c)
		assert.Equal(t, boom, c.Err())
		assert.True(t, sub.Closed())
		assert.True(t, subject.Stopped())
	})

	t.Run("取消订阅后不再收到值", func(t *testing.T) {
		subject := NewSubject()
		c := &collector{}
		sub := subject.Subscribe(c)
		assert.Equal(t, 1, subject.ObserverCount())

		require.NoError(t, sub.Unsubscribe())
		subject.Next(1)

		assert.Empty(t, c.Values())
		assert.Equal(t, 0, subject.ObserverCount())
	})

	t.Run("发送期间被取消的观察者不再收到值", func(t *testing.T) {
		subject := NewSubject()
		second := &collector{}
		var secondSub *Subscription

		subject.SubscribeWithCallbacks(func(interface{}) {
			if secondSub != nil {
				_ = secondSub.Unsubscribe()
			}
		}, nil, nil)
		secondSub = subject.Subscribe(second)

		subject.Next(1)
		subject.Next(2)

		assert.Empty(t, second.Values())
	})

	t.Run("释放后使用会panic", func(t *testing.T) {
		subject := NewSubject()
		c := &collector{}
		subject.Subscribe(c)
		require.NoError(t, subject.Unsubscribe())

		assert.True(t, subject.Closed())
		assert.PanicsWithValue(t, ErrObjectUnsubscribed, func() { subject.Next(1) })
		assert.PanicsWithValue(t, ErrObjectUnsubscribed, func() { subject.Error(errors.New("x")) })
		assert.PanicsWithValue(t, ErrObjectUnsubscribed, subject.Complete)
		assert.PanicsWithValue(t, ErrObjectUnsubscribed, func() { subject.Subscribe(&collector{}) })
		assert.Empty(t, c.Values())
	})

	t.Run("经AsObservable订阅已释放的Subject收到错误通知", func(t *testing.T) {
		subject := NewSubject()
		observable := subject.AsObservable()
		require.NoError(t, subject.Unsubscribe())

		c := &collector{}
		observable.Subscribe(c)
		assert.ErrorIs(t, c.Err(), ErrObjectUnsubscribed)
	})

	t.Run("Subject可以作为观察者订阅源", func(t *testing.T) {
		subject := NewSubject()
		c := &collector{}
		subject.Pipe(Map(func(v interface{}) (interface{}, error) {
			return v.(int) * 2, nil
		})).Subscribe(c)

		Of(1, 2, 3).Subscribe(subject)
		assert.Equal(t, []interface{}{2, 4, 6}, c.Values())
		assert.True(t, c.Completed())
	})
}

// ============================================================================
// BehaviorSubject
// ============================================================================

func TestBehaviorSubject(t *testing.T) {
	t.Run("新订阅者先收到当前值", func(t *testing.T) {
		subject := NewBehaviorSubject("initial")
		first := &collector{}
		subject.Subscribe(first)

		subject.Next("a")
		second := &collector{}
		subject.Subscribe(second)
		subject.Next("b")

		assert.Equal(t, []interface{}{"initial", "a", "b"}, first.Values())
		assert.Equal(t, []interface{}{"a", "b"}, second.Values())
	})

	t.Run("Value返回当前值或错误", func(t *testing.T) {
		subject := NewBehaviorSubject(1)
		subject.Next(2)
		value, err := subject.Value()
		require.NoError(t, err)
		assert.Equal(t, 2, value)

		boom := errors.New("boom")
		subject.Error(boom)
		_, err = subject.Value()
		assert.Equal(t, boom, err)
	})

	t.Run("释放后Value返回误用错误", func(t *testing.T) {
		subject := NewBehaviorSubject(1)
		require.NoError(t, subject.Unsubscribe())
		_, err := subject.Value()
		assert.ErrorIs(t, err, ErrObjectUnsubscribed)
	})

	t.Run("完成后不重放当前值", func(t *testing.T) {
		subject := NewBehaviorSubject(1)
		subject.Complete()

		c := &collector{}
		subject.Subscribe(c)
		assert.Empty(t, c.Values())
		assert.True(t, c.Completed())
	})
}

// ============================================================================
// ReplaySubject
// ============================================================================

func TestReplaySubject(t *testing.T) {
	t.Run("重放最近的k个值", func(t *testing.T) {
		subject := NewReplaySubject(2)
		subject.Next(1)
		subject.Next(2)
		subject.Next(3)

		c := &collector{}
		subject.Subscribe(c)
		subject.Next(4)

		assert.Equal(t, []interface{}{2, 3, 4}, c.Values())
		assert.Equal(t, []interface{}{3, 4}, subject.BufferedValues())
	})

	t.Run("不限数量时重放全部", func(t *testing.T) {
		subject := NewReplaySubject(0)
		for i := 0; i < 5; i++ {
			subject.Next(i)
		}

		c := &collector{}
		subject.Subscribe(c)
		assert.Equal(t, []interface{}{0, 1, 2, 3, 4}, c.Values())
	})

	t.Run("终止后先重放再发送终止通知", func(t *testing.T) {
		subject := NewReplaySubject(3)
		subject.Next("a")
		subject.Next("b")
		subject.Complete()

		c := &collector{}
		subject.Subscribe(c)
		assert.Equal(t, []interface{}{"a", "b"}, c.Values())
		assert.Equal(t, []string{"next", "next", "complete"}, c.events)
	})

	t.Run("时间窗口之外的值被丢弃", func(t *testing.T) {
		virtual := NewVirtualTimeScheduler()
		subject := NewReplaySubject(0, WithWindow(10*time.Millisecond), WithScheduler(virtual))

		subject.Next("old")
		virtual.AdvanceBy(6 * time.Millisecond)
		subject.Next("new")
		virtual.AdvanceBy(6 * time.Millisecond)

		c := &collector{}
		subject.Subscribe(c)
		assert.Equal(t, []interface{}{"new"}, c.Values())

		virtual.AdvanceBy(10 * time.Millisecond)
		assert.Empty(t, subject.BufferedValues())
	})
}

// ============================================================================
// AsyncSubject
// ============================================================================

func TestAsyncSubject(t *testing.T) {
	t.Run("完成时只发送最后一个值", func(t *testing.T) {
		subject := NewAsyncSubject()
		c := &collector{}
		subject.Subscribe(c)

		subject.Next(1)
		subject.Next(2)
		assert.Empty(t, c.Values())

		subject.Complete()
		assert.Equal(t, []interface{}{2}, c.Values())
		assert.True(t, c.Completed())
	})

	t.Run("完成后的订阅者收到最后的值", func(t *testing.T) {
		subject := NewAsyncSubject()
		subject.Next("last")
		subject.Complete()

		c := &collector{}
		subject.Subscribe(c)
		assert.Equal(t, []interface{}{"last"}, c.Values())
		assert.True(t, c.Completed())
	})

	t.Run("出错时不发送值", func(t *testing.T) {
		subject := NewAsyncSubject()
		subject.Next(1)
		subject.Error(errors.New("boom"))

		c := &collector{}
		subject.Subscribe(c)
		assert.Empty(t, c.Values())
		assert.EqualError(t, c.Err(), "boom")
	})
}
