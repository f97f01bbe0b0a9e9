// Test helpers for rxstream
// 测试辅助：收集通知的观察者
package rxstream

import (
	"sync"
	"testing"
)

// collector 记录收到的所有通知
type collector struct {
	mu        sync.Mutex
	values    []interface{}
	err       error
	completed bool
	events    []string
}

func (c *collector) Next(value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, value)
	c.events = append(c.events, "next")
}

func (c *collector) Error(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	c.events = append(c.events, "error")
}

func (c *collector) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = true
	c.events = append(c.events, "complete")
}

func (c *collector) Values() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	values := make([]interface{}, len(c.values))
	copy(values, c.values)
	return values
}

func (c *collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *collector) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

// captureUnhandled 在测试期间收集未处理的错误
func captureUnhandled(t *testing.T) func() []error {
	t.Helper()
	var (
		mu   sync.Mutex
		errs []error
	)
	restore := SetUnhandledErrorHandler(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	t.Cleanup(restore)
	return func() []error {
		mu.Lock()
		defer mu.Unlock()
		out := make([]error, len(errs))
		copy(out, errs)
		return out
	}
}
