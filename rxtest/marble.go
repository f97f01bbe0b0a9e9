// Marble diagram parsing for rxstream tests
// 弹珠图解析与渲染：用ASCII时间线描述通知的时间
package rxtest

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
)

// DefaultFrame 弹珠图中每个字符代表的虚拟时间
const DefaultFrame = time.Millisecond

// Infinite 表示从未取消订阅
const Infinite = time.Duration(math.MaxInt64)

// Kind 通知类型
type Kind int

const (
	// KindNext 值
	KindNext Kind = iota
	// KindError 错误
	KindError
	// KindComplete 完成
	KindComplete
)

func (k Kind) String() string {
	switch k {
	case KindNext:
		return "next"
	case KindError:
		return "error"
	case KindComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Notification 物化的通知
type Notification struct {
	Kind  Kind
	Value interface{}
	Err   error
}

// Message 带虚拟时间的通知
type Message struct {
	Frame time.Duration
	Notification
}

// Next 创建值消息
func Next(frame time.Duration, value interface{}) Message {
	return Message{Frame: frame, Notification: Notification{Kind: KindNext, Value: value}}
}

// Error 创建错误消息
func Error(frame time.Duration, err error) Message {
	return Message{Frame: frame, Notification: Notification{Kind: KindError, Err: err}}
}

// Complete 创建完成消息
func Complete(frame time.Duration) Message {
	return Message{Frame: frame, Notification: Notification{Kind: KindComplete}}
}

func (m Message) String() string {
	switch m.Kind {
	case KindNext:
		return fmt.Sprintf("%s@%v", fmt.Sprint(m.Value), m.Frame)
	case KindError:
		return fmt.Sprintf("#(%v)@%v", m.Err, m.Frame)
	default:
		return fmt.Sprintf("|@%v", m.Frame)
	}
}

// SubscriptionLog 一次订阅的开始和结束时间
type SubscriptionLog struct {
	Subscribed   time.Duration
	Unsubscribed time.Duration
}

// ============================================================================
// 解析
// ============================================================================

// SyntaxError 弹珠图语法错误
type SyntaxError struct {
	Marbles string
	Pos     int
	Reason  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("rxtest: invalid marbles %q at %d: %s", e.Marbles, e.Pos, e.Reason)
}

// Parse 解析弹珠图。'-'推进一帧，' '被忽略，'|'完成，'#'错误，
// '^'标记零点（热Observable），'('…')'内的通知发生在同一帧，其他字符是值：
// 在values中查找，找不到时使用字符本身。每个非空白字符占用一帧。
func Parse(marbles string, values map[string]interface{}, err error, frame time.Duration) ([]Message, error) {
	if frame <= 0 {
		frame = DefaultFrame
	}

	offset := 0
	if zero := strings.IndexRune(marbles, '^'); zero >= 0 {
		if strings.Count(marbles, "^") > 1 {
			return nil, &SyntaxError{Marbles: marbles, Pos: zero, Reason: "multiple '^'"}
		}
		offset = framesBefore(marbles, zero)
	}

	var messages []Message
	position := 0
	groupStart := -1
	for i, c := range marbles {
		at := position
		if groupStart >= 0 {
			at = groupStart
		}
		when := time.Duration(at-offset) * frame

		switch c {
		case ' ':
			continue
		case '-', '^':
		case '(':
			if groupStart >= 0 {
				return nil, &SyntaxError{Marbles: marbles, Pos: i, Reason: "nested group"}
			}
			groupStart = position
		case ')':
			if groupStart < 0 {
				return nil, &SyntaxError{Marbles: marbles, Pos: i, Reason: "unopened group"}
			}
			groupStart = -1
		case '|':
			messages = append(messages, Complete(when))
		case '#':
			messages = append(messages, Error(when, err))
		case '!':
			return nil, &SyntaxError{Marbles: marbles, Pos: i, Reason: "unsubscription marker in notification marbles"}
		default:
			key := string(c)
			value, ok := values[key]
			if !ok {
				value = key
			}
			messages = append(messages, Next(when, value))
		}
		position++
	}
	if groupStart >= 0 {
		return nil, &SyntaxError{Marbles: marbles, Pos: len(marbles), Reason: "unclosed group"}
	}
	return messages, nil
}

// framesBefore 统计index之前占用的帧数
func framesBefore(marbles string, index int) int {
	frames := 0
	for _, c := range marbles[:index] {
		if c != ' ' {
			frames++
		}
	}
	return frames
}

// ParseSubscription 解析订阅弹珠图：'^'订阅，'!'取消订阅。
// 没有'^'时从0开始订阅，没有'!'时从不取消。
func ParseSubscription(marbles string, frame time.Duration) (SubscriptionLog, error) {
	if frame <= 0 {
		frame = DefaultFrame
	}

	log := SubscriptionLog{Subscribed: 0, Unsubscribed: Infinite}
	subscribed, unsubscribed := false, false
	position := 0
	groupStart := -1
	for i, c := range marbles {
		at := position
		if groupStart >= 0 {
			at = groupStart
		}
		when := time.Duration(at) * frame

		switch c {
		case ' ':
			continue
		case '-':
		case '(':
			groupStart = position
		case ')':
			groupStart = -1
		case '^':
			if subscribed {
				return log, &SyntaxError{Marbles: marbles, Pos: i, Reason: "multiple '^'"}
			}
			subscribed = true
			log.Subscribed = when
		case '!':
			if unsubscribed {
				return log, &SyntaxError{Marbles: marbles, Pos: i, Reason: "multiple '!'"}
			}
			unsubscribed = true
			log.Unsubscribed = when
		default:
			return log, &SyntaxError{Marbles: marbles, Pos: i, Reason: fmt.Sprintf("unexpected %q", c)}
		}
		position++
	}
	if log.Unsubscribed < log.Subscribed {
		return log, &SyntaxError{Marbles: marbles, Pos: 0, Reason: "'!' before '^'"}
	}
	return log, nil
}

// ============================================================================
// 渲染
// ============================================================================

// Render 把消息渲染为弹珠图，与Parse互逆。同一帧的多个通知渲染为分组；
// 值通过values反查字符，找不到时使用fmt.Sprint的结果。
func Render(messages []Message, values map[string]interface{}, frame time.Duration) string {
	if frame <= 0 {
		frame = DefaultFrame
	}

	sorted := make([]Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Frame < sorted[j].Frame
	})

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	cursor := 0
	for i := 0; i < len(sorted); {
		at := int(sorted[i].Frame / frame)
		j := i
		for j < len(sorted) && int(sorted[j].Frame/frame) == at {
			j++
		}

		if at > cursor {
			b.WriteString(strings.Repeat("-", at-cursor))
			cursor = at
		}

		var tokens []string
		for _, m := range sorted[i:j] {
			tokens = append(tokens, token(m, keys, values))
		}
		group := strings.Join(tokens, "")
		if len(tokens) > 1 {
			group = "(" + group + ")"
		}
		b.WriteString(group)
		cursor += len([]rune(group))
		i = j
	}
	return b.String()
}

// RenderSubscription 把订阅日志渲染为订阅弹珠图，与ParseSubscription互逆
func RenderSubscription(log SubscriptionLog, frame time.Duration) string {
	if frame <= 0 {
		frame = DefaultFrame
	}
	subscribed := int(log.Subscribed / frame)
	prefix := strings.Repeat("-", subscribed)
	if log.Unsubscribed == Infinite {
		return prefix + "^"
	}
	unsubscribed := int(log.Unsubscribed / frame)
	if unsubscribed == subscribed {
		return prefix + "(^!)"
	}
	return prefix + "^" + strings.Repeat("-", unsubscribed-subscribed-1) + "!"
}

func token(m Message, keys []string, values map[string]interface{}) string {
	switch m.Kind {
	case KindComplete:
		return "|"
	case KindError:
		return "#"
	}
	for _, key := range keys {
		if reflect.DeepEqual(values[key], m.Value) {
			return key
		}
	}
	return fmt.Sprint(m.Value)
}
