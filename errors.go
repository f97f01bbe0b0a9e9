// Error types for rxstream
// 错误分类：生产者panic、取消订阅错误聚合、已释放对象误用、超时
package rxstream

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// ErrEmpty 序列未发射任何值就完成
var ErrEmpty = errors.New("rxstream: no elements in sequence")

// ============================================================================
// PanicError
// ============================================================================

// PanicError 包装从生产者、投影函数或清理动作中恢复的非error类型panic值
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("rxstream: panic: %v", e.Value)
}

// toError 将recover得到的值转换为error
func toError(recovered interface{}) error {
	if err, ok := recovered.(error); ok {
		return err
	}
	return &PanicError{Value: recovered}
}

// ============================================================================
// UnsubscriptionError
// ============================================================================

// UnsubscriptionError 取消订阅时一个或多个清理动作失败
type UnsubscriptionError struct {
	Errors []error
}

func (e *UnsubscriptionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors occurred during unsubscription:", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n%d) %s", i+1, err.Error())
	}
	return b.String()
}

// Unwrap 支持errors.Is/errors.As
func (e *UnsubscriptionError) Unwrap() []error {
	return e.Errors
}

// newUnsubscriptionError 展开multierr组合的错误，嵌套的UnsubscriptionError被拍平
func newUnsubscriptionError(combined error) *UnsubscriptionError {
	var flat []error
	for _, err := range multierr.Errors(combined) {
		if nested, ok := err.(*UnsubscriptionError); ok {
			flat = append(flat, nested.Errors...)
			continue
		}
		flat = append(flat, err)
	}
	return &UnsubscriptionError{Errors: flat}
}

// ============================================================================
// ObjectUnsubscribedError
// ============================================================================

// ObjectUnsubscribedError 对已释放的Subject继续使用
type ObjectUnsubscribedError struct{}

func (e *ObjectUnsubscribedError) Error() string {
	return "rxstream: object unsubscribed"
}

// ErrObjectUnsubscribed 已释放Subject被误用时panic的值
var ErrObjectUnsubscribed = &ObjectUnsubscribedError{}

// ============================================================================
// TimeoutError
// ============================================================================

// TimeoutError 超时错误
type TimeoutError struct {
	message string
	// Each 触发超时的等待窗口
	Each time.Duration
	// Seen 超时前收到的值数量
	Seen int
}

func (e *TimeoutError) Error() string {
	return e.message
}

// NewTimeoutError 创建超时错误
func NewTimeoutError(message string) *TimeoutError {
	return &TimeoutError{message: message}
}

// ============================================================================
// 未处理错误
// ============================================================================

// reportUnhandledError 将没有错误处理器的流错误送入宿主通道，不会静默丢弃
func reportUnhandledError(err error) {
	if err == nil {
		return
	}
	if handler := unhandledErrorHandler(); handler != nil {
		handler(err)
		return
	}
	logger().Error("unhandled stream error", slog.Any("error", err))
}
