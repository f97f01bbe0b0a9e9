// Subscription tests for rxstream
// 取消订阅原语测试：幂等、清理顺序、错误聚合、父子关系
package rxstream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscription(t *testing.T) {
	t.Run("取消订阅是幂等的", func(t *testing.T) {
		calls := 0
		sub := NewSubscription(func() { calls++ })

		require.NoError(t, sub.Unsubscribe())
		require.NoError(t, sub.Unsubscribe())

		assert.True(t, sub.Closed())
		assert.Equal(t, 1, calls)
	})

	t.Run("initial先于其他清理动作执行", func(t *testing.T) {
		var order []string
		sub := NewSubscription(func() { order = append(order, "initial") })
		sub.Add(TeardownFunc(func() { order = append(order, "first") }))
		sub.Add(TeardownFunc(func() { order = append(order, "second") }))

		require.NoError(t, sub.Unsubscribe())
		assert.Equal(t, []string{"initial", "first", "second"}, order)
	})

	t.Run("向已关闭的Subscription添加立即执行", func(t *testing.T) {
		sub := NewSubscription(nil)
		require.NoError(t, sub.Unsubscribe())

		ran := false
		sub.Add(TeardownFunc(func() { ran = true }))
		assert.True(t, ran)
	})

	t.Run("添加自身或nil被忽略", func(t *testing.T) {
		sub := NewSubscription(nil)
		sub.Add(sub)
		sub.Add(nil)
		sub.Add(TeardownFunc(nil))
		assert.NoError(t, sub.Unsubscribe())
	})

	t.Run("多个清理动作失败汇总为一个错误", func(t *testing.T) {
		ranAfter := false
		sub := NewSubscription(nil)
		sub.Add(TeardownFunc(func() { panic("first failure") }))
		sub.Add(TeardownFunc(func() { panic(errors.New("second failure")) }))
		sub.Add(TeardownFunc(func() { ranAfter = true }))

		err := sub.Unsubscribe()
		require.Error(t, err)

		var unsubErr *UnsubscriptionError
		require.ErrorAs(t, err, &unsubErr)
		assert.Len(t, unsubErr.Errors, 2)
		assert.True(t, ranAfter)
		assert.Contains(t, err.Error(), "2 errors occurred during unsubscription")

		var panicErr *PanicError
		require.ErrorAs(t, unsubErr.Errors[0], &panicErr)
		assert.Equal(t, "first failure", panicErr.Value)
		assert.EqualError(t, unsubErr.Errors[1], "second failure")
	})

	t.Run("嵌套的取消订阅错误被拍平", func(t *testing.T) {
		child := NewSubscription(nil)
		child.Add(TeardownFunc(func() { panic("child") }))
		parent := NewSubscription(nil)
		parent.Add(child)
		parent.Add(TeardownFunc(func() { panic("parent") }))

		var unsubErr *UnsubscriptionError
		require.ErrorAs(t, parent.Unsubscribe(), &unsubErr)
		assert.Len(t, unsubErr.Errors, 2)
	})

	t.Run("子节点关闭时从父节点移除", func(t *testing.T) {
		parent := NewSubscription(nil)
		childRuns := 0
		child := NewSubscription(func() { childRuns++ })
		parent.Add(child)

		require.NoError(t, child.Unsubscribe())
		parent.mu.Lock()
		remaining := len(parent.teardowns)
		parent.mu.Unlock()
		assert.Equal(t, 0, remaining)

		require.NoError(t, parent.Unsubscribe())
		assert.Equal(t, 1, childRuns)
	})

	t.Run("父节点关闭时级联到子节点", func(t *testing.T) {
		parent := NewSubscription(nil)
		child := NewSubscription(nil)
		grandchild := NewSubscription(nil)
		parent.Add(child)
		child.Add(grandchild)

		require.NoError(t, parent.Unsubscribe())
		assert.True(t, child.Closed())
		assert.True(t, grandchild.Closed())
	})

	t.Run("Remove移除但不执行", func(t *testing.T) {
		parent := NewSubscription(nil)
		child := NewSubscription(nil)
		parent.Add(child)
		parent.Remove(child)

		require.NoError(t, parent.Unsubscribe())
		assert.False(t, child.Closed())
	})

	t.Run("已关闭的子节点不会被加入", func(t *testing.T) {
		parent := NewSubscription(nil)
		child := NewSubscription(nil)
		require.NoError(t, child.Unsubscribe())
		parent.Add(child)

		parent.mu.Lock()
		defer parent.mu.Unlock()
		assert.Empty(t, parent.teardowns)
	})

	t.Run("添加到已关闭节点的清理失败进入未处理错误通道", func(t *testing.T) {
		unhandled := captureUnhandled(t)
		sub := NewSubscription(nil)
		require.NoError(t, sub.Unsubscribe())

		sub.Add(TeardownFunc(func() { panic("late") }))
		require.Len(t, unhandled(), 1)
	})
}
