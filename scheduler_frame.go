// Animation frame scheduler for rxstream
// 帧调度器：同一帧内的零延迟工作合并为一次平台回调
package rxstream

import (
	"sync"
	"time"
)

// FrameSource 平台帧回调的抽象
type FrameSource interface {
	// RequestFrame 请求在下一帧调用callback，返回撤销请求的函数
	RequestFrame(callback func()) (cancel func())
}

// intervalFrames 以固定间隔模拟帧
type intervalFrames struct {
	interval time.Duration
}

// NewIntervalFrames 创建以固定间隔触发的帧源
func NewIntervalFrames(interval time.Duration) FrameSource {
	if interval <= 0 {
		interval = time.Second / 60
	}
	return &intervalFrames{interval: interval}
}

// RequestFrame 请求下一帧
func (f *intervalFrames) RequestFrame(callback func()) func() {
	timer := time.AfterFunc(f.interval, callback)
	return func() {
		timer.Stop()
	}
}

// AnimationFrameScheduler 帧调度器。零延迟的action加入当前批次，
// 整个批次在一次帧回调中执行；批次清空时撤销帧请求。
// 带延迟的action先等待定时器，然后直接执行。
type AnimationFrameScheduler struct {
	frames FrameSource
	timers timerHost

	mu          sync.Mutex
	batch       []*Action
	requested   bool
	frameID     uint64
	cancelFrame func()
}

// NewAnimationFrameScheduler 创建帧调度器，frames为nil时使用约60Hz的间隔帧源
func NewAnimationFrameScheduler(frames FrameSource) *AnimationFrameScheduler {
	if frames == nil {
		frames = NewIntervalFrames(0)
	}
	return &AnimationFrameScheduler{frames: frames}
}

// Now 当前时间
func (s *AnimationFrameScheduler) Now() time.Time {
	return time.Now()
}

// Schedule 调度工作
func (s *AnimationFrameScheduler) Schedule(work Work, delay time.Duration, state interface{}) *Action {
	return newAction(s, work).Schedule(state, delay)
}

func (s *AnimationFrameScheduler) dispatch(a *Action, delay time.Duration) {
	if delay > 0 {
		s.timers.start(a, delay, s.timers.runSerialized)
		return
	}

	s.mu.Lock()
	if a.Closed() {
		s.mu.Unlock()
		return
	}
	s.batch = append(s.batch, a)
	request := !s.requested
	if request {
		s.requested = true
		s.frameID++
	}
	id := s.frameID
	s.mu.Unlock()

	if !request {
		return
	}

	cancel := s.frames.RequestFrame(func() {
		s.flushFrame(id)
	})

	s.mu.Lock()
	if s.requested && s.frameID == id {
		s.cancelFrame = cancel
		cancel = nil
	}
	s.mu.Unlock()

	if cancel != nil {
		// 请求已被撤销或已同步执行
		cancel()
	}
}

// flushFrame 执行帧开始时的整个批次，执行期间新调度的action进入下一帧
func (s *AnimationFrameScheduler) flushFrame(id uint64) {
	s.mu.Lock()
	if !s.requested || s.frameID != id {
		s.mu.Unlock()
		return
	}
	batch := s.batch
	s.batch = nil
	s.requested = false
	s.cancelFrame = nil
	s.mu.Unlock()

	s.timers.execMu.Lock()
	defer s.timers.execMu.Unlock()

	for i, a := range batch {
		if !s.executeInFrame(a) {
			for _, rest := range batch[i+1:] {
				reportUnhandledError(rest.Unsubscribe())
			}
			return
		}
	}
}

// executeInFrame 执行单个action，panic时返回false
func (s *AnimationFrameScheduler) executeInFrame(a *Action) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			reportUnhandledError(a.Unsubscribe())
			reportUnhandledError(toError(r))
			ok = false
		}
	}()
	a.execute()
	return true
}

func (s *AnimationFrameScheduler) cancel(a *Action) {
	s.timers.stop(a)

	s.mu.Lock()
	for i, queued := range s.batch {
		if queued == a {
			s.batch = append(s.batch[:i:i], s.batch[i+1:]...)
			break
		}
	}
	var cancelFrame func()
	if len(s.batch) == 0 && s.requested {
		cancelFrame = s.cancelFrame
		s.cancelFrame = nil
		s.requested = false
		s.frameID++
	}
	s.mu.Unlock()

	if cancelFrame != nil {
		cancelFrame()
	}
}
