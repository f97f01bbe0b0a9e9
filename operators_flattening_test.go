// Flattening operator tests for rxstream
// 展平操作符测试：并发上限、FIFO排队、切换、耗尽与递归展开
package rxstream

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// delayedValue 在scheduler上延迟after后发射value并完成，同时统计活跃的订阅
func delayedValue(s Scheduler, value interface{}, after time.Duration, active, peak *int) *Observable {
	return Timer(after, WithScheduler(s)).Pipe(
		Map(func(interface{}) (interface{}, error) { return value, nil }),
		DoOnSubscribe(func() {
			*active++
			if *active > *peak {
				*peak = *active
			}
		}),
		Finalize(func() { *active-- }),
	)
}

func TestMergeMap(t *testing.T) {
	t.Run("并发上限与FIFO排队", func(t *testing.T) {
		s := NewVirtualTimeScheduler()
		active, peak, projected := 0, 0, 0
		c := &collector{}

		Of(1, 2, 3, 4, 5).Pipe(MergeMap(func(value interface{}, _ int) *Observable {
			projected++
			return delayedValue(s, value, 10*time.Second, &active, &peak)
		}, WithConcurrency(2))).Subscribe(c)

		assert.Equal(t, 5, projected)
		assert.Equal(t, 2, active)

		s.AdvanceTo(10 * time.Second)
		assert.Equal(t, []interface{}{1, 2}, c.Values())

		s.Flush()
		assert.Equal(t, []interface{}{1, 2, 3, 4, 5}, c.Values())
		assert.Equal(t, 2, peak)
		assert.Equal(t, 0, active)
		assert.True(t, c.Completed())
		assert.Equal(t, 30*time.Second, s.Frame())
	})

	t.Run("不限并发时同时订阅", func(t *testing.T) {
		s := NewVirtualTimeScheduler()
		active, peak := 0, 0
		c := &collector{}

		Of("a", "b", "c").Pipe(MergeMap(func(value interface{}, _ int) *Observable {
			return delayedValue(s, value, time.Second, &active, &peak)
		})).Subscribe(c)

		s.Flush()
		assert.Equal(t, 3, peak)
		assert.Equal(t, []interface{}{"a", "b", "c"}, c.Values())
		assert.Equal(t, time.Second, s.Frame())
	})

	t.Run("投影收到递增的索引", func(t *testing.T) {
		var indexes []int
		Of("x", "y", "z").Pipe(MergeMap(func(_ interface{}, index int) *Observable {
			indexes = append(indexes, index)
			return Empty()
		})).Subscribe(&collector{})

		assert.Equal(t, []int{0, 1, 2}, indexes)
	})

	t.Run("外部完成后等待内部完成", func(t *testing.T) {
		s := NewVirtualTimeScheduler()
		c := &collector{}
		Of(1).Pipe(MergeMap(func(value interface{}, _ int) *Observable {
			return Timer(time.Second, WithScheduler(s))
		})).Subscribe(c)

		assert.False(t, c.Completed())
		s.Flush()
		assert.True(t, c.Completed())
	})

	t.Run("内部错误立即终止并释放其他内部订阅", func(t *testing.T) {
		s := NewVirtualTimeScheduler()
		active, peak := 0, 0
		boom := errors.New("boom")
		c := &collector{}

		Of(1, 2).Pipe(MergeMap(func(value interface{}, _ int) *Observable {
			if value == 2 {
				return Throw(boom)
			}
			return delayedValue(s, value, time.Second, &active, &peak)
		})).Subscribe(c)

		assert.Equal(t, boom, c.Err())
		assert.Equal(t, 0, active)
		assert.Equal(t, 0, s.Pending())
	})

	t.Run("投影panic转为错误", func(t *testing.T) {
		c := &collector{}
		Of(1).Pipe(MergeMap(func(interface{}, int) *Observable {
			panic(errors.New("projection failed"))
		})).Subscribe(c)

		assert.EqualError(t, c.Err(), "projection failed")
	})

	t.Run("取消订阅释放排队和活跃的内部订阅", func(t *testing.T) {
		s := NewVirtualTimeScheduler()
		active, peak := 0, 0
		c := &collector{}

		sub := Of(1, 2, 3).Pipe(MergeMap(func(value interface{}, _ int) *Observable {
			return delayedValue(s, value, time.Second, &active, &peak)
		}, WithConcurrency(1))).Subscribe(c)
		require.NoError(t, sub.Unsubscribe())

		s.Flush()
		assert.Empty(t, c.Values())
		assert.Equal(t, 0, active)
		assert.Equal(t, 1, peak)
	})
}

func TestConcatMap(t *testing.T) {
	t.Run("依次订阅内部Observable", func(t *testing.T) {
		s := NewVirtualTimeScheduler()
		active, peak := 0, 0
		c := &collector{}

		Of("a", "b", "c").Pipe(ConcatMap(func(value interface{}, _ int) *Observable {
			return delayedValue(s, value, 2*time.Millisecond, &active, &peak)
		})).Subscribe(c)

		s.AdvanceTo(4 * time.Millisecond)
		assert.Equal(t, []interface{}{"a", "b"}, c.Values())

		s.Flush()
		assert.Equal(t, []interface{}{"a", "b", "c"}, c.Values())
		assert.Equal(t, 1, peak)
		assert.Equal(t, 6*time.Millisecond, s.Frame())
	})

	t.Run("ConcatAll和MergeAll接受Subject", func(t *testing.T) {
		subject := NewSubject()
		c := &collector{}
		Of(Of(1), subject).Pipe(MergeAll()).Subscribe(c)

		subject.Next(2)
		subject.Complete()

		assert.Equal(t, []interface{}{1, 2}, c.Values())
		assert.True(t, c.Completed())

		ordered := &collector{}
		Of(Of(1, 2), Of(3)).Pipe(ConcatAll()).Subscribe(ordered)
		assert.Equal(t, []interface{}{1, 2, 3}, ordered.Values())
	})

	t.Run("放行排队的内部Observable时处理器panic传播给调用者", func(t *testing.T) {
		unhandled := captureUnhandled(t)
		s := NewVirtualTimeScheduler()
		var got []interface{}

		Of("a", "b").Pipe(ConcatMap(func(value interface{}, _ int) *Observable {
			if value == "a" {
				return Timer(2*time.Millisecond, WithScheduler(s))
			}
			return Of("b-inner")
		})).SubscribeWithCallbacks(func(v interface{}) {
			got = append(got, v)
			if v == "b-inner" {
				panic("handler boom")
			}
		}, nil, nil)

		assert.PanicsWithValue(t, "handler boom", s.Flush)
		assert.Equal(t, []interface{}{0, "b-inner"}, got)
		assert.Empty(t, unhandled())
		assert.Equal(t, 0, s.Pending())
	})

	t.Run("非Observable值转为错误", func(t *testing.T) {
		c := &collector{}
		Of(1).Pipe(MergeAll()).Subscribe(c)
		require.Error(t, c.Err())
		assert.Contains(t, c.Err().Error(), "is not an observable")
	})
}

func TestSwitchMap(t *testing.T) {
	t.Run("新值取消当前内部订阅", func(t *testing.T) {
		s := NewVirtualTimeScheduler()
		outer := NewSubject()
		active, peak := 0, 0
		c := &collector{}

		outer.Pipe(SwitchMap(func(value interface{}, _ int) *Observable {
			return delayedValue(s, value, 10*time.Second, &active, &peak)
		})).Subscribe(c)

		outer.Next("a")
		s.AdvanceTo(5 * time.Second)
		outer.Next("b")
		s.AdvanceTo(6 * time.Second)
		outer.Complete()
		assert.False(t, c.Completed())

		s.Flush()
		assert.Equal(t, []interface{}{"b"}, c.Values())
		assert.Equal(t, 1, peak)
		assert.True(t, c.Completed())
		assert.Equal(t, 15*time.Second, s.Frame())
	})

	t.Run("没有活跃内部订阅时随外部完成", func(t *testing.T) {
		c := &collector{}
		Of(1, 2).Pipe(SwitchMap(func(value interface{}, _ int) *Observable {
			return Of(value)
		})).Subscribe(c)

		assert.Equal(t, []interface{}{1, 2}, c.Values())
		assert.True(t, c.Completed())
	})

	t.Run("SwitchAll", func(t *testing.T) {
		first, second := NewSubject(), NewSubject()
		outer := NewSubject()
		c := &collector{}
		outer.Pipe(SwitchAll()).Subscribe(c)

		outer.Next(first)
		first.Next(1)
		outer.Next(second)
		first.Next(2)
		second.Next(3)

		assert.Equal(t, []interface{}{1, 3}, c.Values())
		assert.False(t, first.HasObservers())
	})
}

func TestExhaustMap(t *testing.T) {
	s := NewVirtualTimeScheduler()
	outer := NewSubject()
	projected := []interface{}{}
	c := &collector{}

	outer.Pipe(ExhaustMap(func(value interface{}, _ int) *Observable {
		projected = append(projected, value)
		return Timer(10*time.Second, WithScheduler(s)).Pipe(Map(func(interface{}) (interface{}, error) {
			return value, nil
		}))
	})).Subscribe(c)

	outer.Next("a")
	s.AdvanceTo(5 * time.Second)
	outer.Next("b")
	s.AdvanceTo(12 * time.Second)
	outer.Next("c")
	outer.Complete()
	s.Flush()

	assert.Equal(t, []interface{}{"a", "c"}, projected)
	assert.Equal(t, []interface{}{"a", "c"}, c.Values())
	assert.True(t, c.Completed())

	all := &collector{}
	Of(Of(1), Of(2)).Pipe(ExhaustAll()).Subscribe(all)
	assert.Equal(t, []interface{}{1, 2}, all.Values())
}

func TestExpand(t *testing.T) {
	t.Run("递归展开直到空序列", func(t *testing.T) {
		c := &collector{}
		Of(1).Pipe(Expand(func(value interface{}, _ int) *Observable {
			if n := value.(int); n < 8 {
				return Of(n * 2)
			}
			return Empty()
		})).Subscribe(c)

		assert.Equal(t, []interface{}{1, 2, 4, 8}, c.Values())
		assert.True(t, c.Completed())
	})

	t.Run("并发上限对所有层级生效", func(t *testing.T) {
		c := &collector{}
		Of(1, 2).Pipe(Expand(func(value interface{}, _ int) *Observable {
			if n := value.(int); n < 100 {
				return Of(n * 10)
			}
			return Empty()
		}, WithConcurrency(1))).Subscribe(c)

		assert.Equal(t, []interface{}{1, 10, 100, 2, 20, 200}, c.Values())
		assert.True(t, c.Completed())
	})

	t.Run("排队的内部订阅在调度器上执行", func(t *testing.T) {
		s := NewVirtualTimeScheduler()
		c := &collector{}
		Of(1, 2).Pipe(Expand(func(value interface{}, _ int) *Observable {
			return Timer(time.Second, WithScheduler(s)).Pipe(IgnoreElements())
		}, WithConcurrency(1), WithScheduler(s))).Subscribe(c)

		assert.Equal(t, []interface{}{1}, c.Values())
		s.AdvanceTo(time.Second)
		assert.Equal(t, []interface{}{1, 2}, c.Values())
		assert.False(t, c.Completed())

		s.Flush()
		assert.True(t, c.Completed())
		assert.Equal(t, 2*time.Second, s.Frame())
	})
}
