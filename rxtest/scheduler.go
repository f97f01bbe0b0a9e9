// Virtual time test scheduler for rxstream
// 测试调度器：在虚拟时间上构造冷/热Observable并记录输出
package rxtest

import (
	"sync"
	"time"

	"github.com/xinjiayu/rxstream"
)

// TestScheduler 基于VirtualTimeScheduler的弹珠测试调度器
type TestScheduler struct {
	*rxstream.VirtualTimeScheduler

	// FrameDuration 弹珠图中每个字符代表的虚拟时间
	FrameDuration time.Duration
}

// NewTestScheduler 创建测试调度器，frame<=0时使用DefaultFrame
func NewTestScheduler(frame time.Duration) *TestScheduler {
	if frame <= 0 {
		frame = DefaultFrame
	}
	return &TestScheduler{
		VirtualTimeScheduler: rxstream.NewVirtualTimeScheduler(),
		FrameDuration:        frame,
	}
}

// Frames 把帧数换算为虚拟时间
func (s *TestScheduler) Frames(n int) time.Duration {
	return time.Duration(n) * s.FrameDuration
}

// ============================================================================
// 订阅日志
// ============================================================================

// subscriptionLogger 记录测试Observable上的订阅与取消订阅时间
type subscriptionLogger struct {
	mu   sync.Mutex
	logs []SubscriptionLog
}

func (l *subscriptionLogger) subscribed(frame time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, SubscriptionLog{Subscribed: frame, Unsubscribed: Infinite})
	return len(l.logs) - 1
}

func (l *subscriptionLogger) unsubscribed(index int, frame time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs[index].Unsubscribed = frame
}

// Subscriptions 所有订阅的日志
func (l *subscriptionLogger) Subscriptions() []SubscriptionLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	logs := make([]SubscriptionLog, len(l.logs))
	copy(logs, l.logs)
	return logs
}

// deliver 把物化的通知发送给观察者
func deliver(observer rxstream.Observer, n Notification) {
	switch n.Kind {
	case KindNext:
		observer.Next(n.Value)
	case KindError:
		observer.Error(n.Err)
	case KindComplete:
		observer.Complete()
	}
}

// ============================================================================
// 冷Observable
// ============================================================================

// ColdObservable 每个订阅者从自己的订阅时刻开始收到完整的时间线
type ColdObservable struct {
	*rxstream.Observable
	subscriptionLogger
	Messages []Message
}

// Cold 用弹珠图创建冷Observable，不允许'^'
func (s *TestScheduler) Cold(marbles string, values map[string]interface{}, err error) (*ColdObservable, error) {
	for i, c := range marbles {
		if c == '^' {
			return nil, &SyntaxError{Marbles: marbles, Pos: i, Reason: "cold observable cannot have '^'"}
		}
	}
	messages, parseErr := Parse(marbles, values, err, s.FrameDuration)
	if parseErr != nil {
		return nil, parseErr
	}
	return s.ColdFromMessages(messages), nil
}

// ColdFromMessages 用消息列表创建冷Observable
func (s *TestScheduler) ColdFromMessages(messages []Message) *ColdObservable {
	cold := &ColdObservable{Messages: messages}
	cold.Observable = rxstream.NewObservable(func(sub *rxstream.Subscriber) rxstream.Teardown {
		index := cold.subscribed(s.Frame())
		for _, m := range cold.Messages {
			n := m.Notification
			sub.Add(s.Schedule(func(*rxstream.Action, interface{}) {
				deliver(sub, n)
			}, m.Frame, nil))
		}
		return rxstream.TeardownFunc(func() {
			cold.unsubscribed(index, s.Frame())
		})
	})
	return cold
}

// ============================================================================
// 热Observable
// ============================================================================

// HotObservable 通知按绝对时间发生，订阅者只收到订阅之后的通知
type HotObservable struct {
	*rxstream.Observable
	subscriptionLogger
	Messages []Message
	subject  *rxstream.Subject
}

// Hot 用弹珠图创建热Observable，'^'标记零点，之前的通知被忽略
func (s *TestScheduler) Hot(marbles string, values map[string]interface{}, err error) (*HotObservable, error) {
	messages, parseErr := Parse(marbles, values, err, s.FrameDuration)
	if parseErr != nil {
		return nil, parseErr
	}
	return s.HotFromMessages(messages), nil
}

// HotFromMessages 用消息列表创建热Observable，消息时间相对于当前虚拟时间
func (s *TestScheduler) HotFromMessages(messages []Message) *HotObservable {
	hot := &HotObservable{Messages: messages, subject: rxstream.NewSubject()}
	hot.Observable = rxstream.NewObservable(func(sub *rxstream.Subscriber) rxstream.Teardown {
		index := hot.subscribed(s.Frame())
		hot.subject.Subscribe(sub)
		return rxstream.TeardownFunc(func() {
			hot.unsubscribed(index, s.Frame())
		})
	})

	for _, m := range messages {
		if m.Frame < 0 {
			continue
		}
		n := m.Notification
		s.Schedule(func(*rxstream.Action, interface{}) {
			deliver(hot.subject, n)
		}, m.Frame, nil)
	}
	return hot
}

// ============================================================================
// 记录输出
// ============================================================================

// Recorder 记录一次订阅收到的通知
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Messages 已记录的消息
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	messages := make([]Message, len(r.messages))
	copy(messages, r.messages)
	return messages
}

func (r *Recorder) record(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

// Record 按订阅弹珠图在虚拟时间上订阅source并记录它的输出，在Flush之后读取
func (s *TestScheduler) Record(source *rxstream.Observable, subscriptionMarbles string) (*Recorder, error) {
	log, err := ParseSubscription(subscriptionMarbles, s.FrameDuration)
	if err != nil {
		return nil, err
	}

	recorder := &Recorder{}
	var (
		mu           sync.Mutex
		subscription *rxstream.Subscription
	)

	s.Schedule(func(*rxstream.Action, interface{}) {
		sub := source.Subscribe(rxstream.ObserverFuncs{
			OnNext: func(value interface{}) {
				recorder.record(Next(s.Frame(), value))
			},
			OnError: func(err error) {
				recorder.record(Error(s.Frame(), err))
			},
			OnComplete: func() {
				recorder.record(Complete(s.Frame()))
			},
		})
		mu.Lock()
		subscription = sub
		mu.Unlock()
	}, log.Subscribed, nil)

	if log.Unsubscribed != Infinite {
		s.Schedule(func(*rxstream.Action, interface{}) {
			mu.Lock()
			sub := subscription
			mu.Unlock()
			if sub != nil {
				_ = sub.Unsubscribe()
			}
		}, log.Unsubscribed, nil)
	}
	return recorder, nil
}
