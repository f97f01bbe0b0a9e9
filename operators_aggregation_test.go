// Aggregation, advanced and blocking operator tests for rxstream
// 聚合、高级与阻塞操作符测试
package rxstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isEven(v interface{}) bool {
	return v.(int)%2 == 0
}

func TestAggregationOperators(t *testing.T) {
	t.Run("Reduce和Count", func(t *testing.T) {
		sum, count := &collector{}, &collector{}
		Range(1, 4).Pipe(Reduce(func(acc, cur interface{}) interface{} {
			return acc.(int) + cur.(int)
		}, 0)).Subscribe(sum)
		Range(1, 4).Pipe(Count()).Subscribe(count)

		assert.Equal(t, []interface{}{10}, sum.Values())
		assert.Equal(t, []interface{}{4}, count.Values())
	})

	t.Run("ToArray", func(t *testing.T) {
		c := &collector{}
		Of("a", "b").Pipe(ToArray()).Subscribe(c)
		assert.Equal(t, []interface{}{[]interface{}{"a", "b"}}, c.Values())
	})

	t.Run("First和Last", func(t *testing.T) {
		first, firstEven, last := &collector{}, &collector{}, &collector{}
		Range(1, 5).Pipe(First(nil)).Subscribe(first)
		Range(1, 5).Pipe(First(isEven)).Subscribe(firstEven)
		Range(1, 5).Pipe(Last(isEven)).Subscribe(last)

		assert.Equal(t, []interface{}{1}, first.Values())
		assert.Equal(t, []interface{}{2}, firstEven.Values())
		assert.Equal(t, []interface{}{4}, last.Values())
	})

	t.Run("空序列的First和Last返回ErrEmpty", func(t *testing.T) {
		first, last := &collector{}, &collector{}
		Empty().Pipe(First(nil)).Subscribe(first)
		Empty().Pipe(Last(nil)).Subscribe(last)

		assert.ErrorIs(t, first.Err(), ErrEmpty)
		assert.ErrorIs(t, last.Err(), ErrEmpty)
	})

	t.Run("ElementAt", func(t *testing.T) {
		found, missing := &collector{}, &collector{}
		Of("a", "b", "c").Pipe(ElementAt(1)).Subscribe(found)
		Of("a").Pipe(ElementAt(3)).Subscribe(missing)

		assert.Equal(t, []interface{}{"b"}, found.Values())
		var outOfBounds *IndexOutOfBoundsError
		assert.ErrorAs(t, missing.Err(), &outOfBounds)
	})

	t.Run("All和Any", func(t *testing.T) {
		all, notAll, anyEven, noneEven := &collector{}, &collector{}, &collector{}, &collector{}
		Of(2, 4).Pipe(All(isEven)).Subscribe(all)
		Of(2, 3).Pipe(All(isEven)).Subscribe(notAll)
		Of(1, 2).Pipe(Any(isEven)).Subscribe(anyEven)
		Of(1, 3).Pipe(Any(isEven)).Subscribe(noneEven)

		assert.Equal(t, []interface{}{true}, all.Values())
		assert.Equal(t, []interface{}{false}, notAll.Values())
		assert.Equal(t, []interface{}{true}, anyEven.Values())
		assert.Equal(t, []interface{}{false}, noneEven.Values())
	})
}

func TestAdvancedOperators(t *testing.T) {
	t.Run("Generate", func(t *testing.T) {
		c := &collector{}
		Generate(1,
			func(s interface{}) bool { return s.(int) <= 100 },
			func(s interface{}) interface{} { return s.(int) * 3 },
			func(s interface{}) interface{} { return s.(int) + 1 },
		).Subscribe(c)

		assert.Equal(t, []interface{}{2, 4, 10, 28, 82}, c.Values())
		assert.True(t, c.Completed())
	})

	t.Run("Using在释放时销毁资源", func(t *testing.T) {
		disposed := []interface{}{}
		c := &collector{}
		Using(
			func() interface{} { return "resource" },
			func(resource interface{}) *Observable { return Of(resource) },
			func(resource interface{}) { disposed = append(disposed, resource) },
		).Subscribe(c)

		assert.Equal(t, []interface{}{"resource"}, c.Values())
		assert.Equal(t, []interface{}{"resource"}, disposed)
	})

	t.Run("GroupBy按键分组", func(t *testing.T) {
		groups := map[interface{}]*collector{}
		var keys []interface{}

		Range(1, 6).Pipe(GroupBy(func(v interface{}) interface{} {
			if isEven(v) {
				return "even"
			}
			return "odd"
		})).Subscribe(ObserverFuncs{OnNext: func(v interface{}) {
			group := v.(*GroupedObservable)
			keys = append(keys, group.Key)
			c := &collector{}
			groups[group.Key] = c
			group.Subscribe(c)
		}})

		assert.Equal(t, []interface{}{"odd", "even"}, keys)
		assert.Equal(t, []interface{}{1, 3, 5}, groups["odd"].Values())
		assert.Equal(t, []interface{}{2, 4, 6}, groups["even"].Values())
		assert.True(t, groups["odd"].Completed())
	})
}

func TestBlockingOperators(t *testing.T) {
	ctx := context.Background()

	t.Run("BlockingFirst和BlockingLast", func(t *testing.T) {
		first, err := Of(1, 2, 3).BlockingFirst(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, first)

		last, err := Of(1, 2, 3).BlockingLast(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, last)

		_, err = Empty().BlockingFirst(ctx)
		assert.ErrorIs(t, err, ErrEmpty)
		_, err = Empty().BlockingLast(ctx)
		assert.ErrorIs(t, err, ErrEmpty)
	})

	t.Run("ToSlice收集异步的值", func(t *testing.T) {
		values, err := Interval(time.Millisecond, WithScheduler(NewAsyncScheduler())).Pipe(Take(3)).ToSlice(ctx)
		require.NoError(t, err)
		assert.Equal(t, []interface{}{0, 1, 2}, values)
	})

	t.Run("BlockingSubscribe返回流的错误", func(t *testing.T) {
		boom := errors.New("boom")
		c := &collector{}
		err := Of(1).Pipe(ConcatWith(Throw(boom))).BlockingSubscribe(ctx, c)

		assert.Equal(t, boom, err)
		assert.Equal(t, []interface{}{1}, c.Values())
	})

	t.Run("BlockingSubscribe在上下文结束时取消订阅", func(t *testing.T) {
		released := make(chan struct{})
		timeout, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()

		err := Never().Pipe(Finalize(func() { close(released) })).BlockingSubscribe(timeout, nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		select {
		case <-released:
		case <-time.After(time.Second):
			t.Fatal("订阅未释放")
		}
	})
}
