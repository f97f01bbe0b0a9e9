// Virtual time scheduler for rxstream
// 虚拟时间调度器：确定性的时钟，用于测试
package rxstream

import (
	"container/heap"
	"log/slog"
	"math"
	"sync"
	"time"
)

// virtualEpoch 虚拟时钟的零点
var virtualEpoch = time.Unix(0, 0).UTC()

// MaxVirtualTime 不限制Flush的时间上限
const MaxVirtualTime = time.Duration(math.MaxInt64)

// DefaultMaxActions 单次Flush/AdvanceTo默认最多执行的action数量
const DefaultMaxActions = 1 << 20

// VirtualTimeScheduler 按(虚拟时间, 插入顺序)排序执行action的调度器。
// 相同时间的action按调度顺序执行。
type VirtualTimeScheduler struct {
	// MaxFrames Flush只执行到期时间不超过该值的action，防止无限自调度
	MaxFrames time.Duration
	// MaxActions 单次Flush/AdvanceTo最多执行的action数量，超出后停止执行，
	// 剩余action保留在队列中。零延迟的自调度不会推进时钟，只能由它截断。
	// 0表示DefaultMaxActions，负数表示不限制。
	MaxActions int

	mu    sync.Mutex
	frame time.Duration
	index int64
	queue virtualQueue
}

// NewVirtualTimeScheduler 创建虚拟时间调度器
func NewVirtualTimeScheduler() *VirtualTimeScheduler {
	return &VirtualTimeScheduler{MaxFrames: MaxVirtualTime}
}

// Now 虚拟当前时间
func (s *VirtualTimeScheduler) Now() time.Time {
	return virtualEpoch.Add(s.Frame())
}

// Frame 虚拟时钟自零点起经过的时间
func (s *VirtualTimeScheduler) Frame() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame
}

// Pending 队列中等待执行的action数量
func (s *VirtualTimeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Schedule 在虚拟时间frame+delay调度工作
func (s *VirtualTimeScheduler) Schedule(work Work, delay time.Duration, state interface{}) *Action {
	return newAction(s, work).Schedule(state, delay)
}

func (s *VirtualTimeScheduler) dispatch(a *Action, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.Closed() {
		return
	}
	due := s.frame + delay
	if due < s.frame {
		due = MaxVirtualTime
	}
	a.due = due
	a.seq = s.index
	s.index++

	if a.heapIndex >= 0 {
		heap.Fix(&s.queue, a.heapIndex)
		return
	}
	heap.Push(&s.queue, a)
}

func (s *VirtualTimeScheduler) cancel(a *Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.heapIndex >= 0 {
		heap.Remove(&s.queue, a.heapIndex)
	}
}

// Flush 依次执行到期时间不超过MaxFrames的action，推进时钟到每个action的时间。
// 执行数量超过MaxActions时提前返回。
// action中的panic会撤销所有排队的action并从Flush传播出去。
func (s *VirtualTimeScheduler) Flush() {
	s.run(s.MaxFrames, false)
}

// AdvanceTo 执行到期时间不超过frame的action，然后把时钟推进到frame
func (s *VirtualTimeScheduler) AdvanceTo(frame time.Duration) {
	s.run(frame, true)
}

// AdvanceBy 将时钟推进delta
func (s *VirtualTimeScheduler) AdvanceBy(delta time.Duration) {
	s.AdvanceTo(s.Frame() + delta)
}

func (s *VirtualTimeScheduler) run(limit time.Duration, moveClock bool) {
	defer func() {
		if r := recover(); r != nil {
			s.cancelAll()
			panic(r)
		}
	}()

	budget := s.MaxActions
	if budget == 0 {
		budget = DefaultMaxActions
	}
	for executed := 0; ; executed++ {
		s.mu.Lock()
		if budget > 0 && executed >= budget && len(s.queue) > 0 && s.queue[0].due <= limit {
			pending, frame := len(s.queue), s.frame
			s.mu.Unlock()
			logger().Warn("virtual time action budget exhausted",
				slog.Int("max_actions", budget),
				slog.Int("pending", pending),
				slog.Duration("frame", frame),
			)
			return
		}
		if len(s.queue) == 0 || s.queue[0].due > limit {
			if moveClock && s.frame < limit {
				s.frame = limit
			}
			s.mu.Unlock()
			return
		}
		a := heap.Pop(&s.queue).(*Action)
		s.frame = a.due
		s.mu.Unlock()

		a.execute()
	}
}

// cancelAll 撤销所有排队的action
func (s *VirtualTimeScheduler) cancelAll() {
	s.mu.Lock()
	pending := make([]*Action, len(s.queue))
	copy(pending, s.queue)
	s.mu.Unlock()

	for _, a := range pending {
		reportUnhandledError(a.Unsubscribe())
	}
}

// ============================================================================
// 优先队列
// ============================================================================

// virtualQueue 按(due, seq)排序的最小堆
type virtualQueue []*Action

func (q virtualQueue) Len() int { return len(q) }

func (q virtualQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}

func (q virtualQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].heapIndex = i
	q[j].heapIndex = j
}

func (q *virtualQueue) Push(x interface{}) {
	a := x.(*Action)
	a.heapIndex = len(*q)
	*q = append(*q, a)
}

func (q *virtualQueue) Pop() interface{} {
	old := *q
	n := len(old)
	a := old[n-1]
	old[n-1] = nil
	a.heapIndex = -1
	*q = old[:n-1]
	return a
}
