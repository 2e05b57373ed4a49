// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	testutil.AssertEventKinds(t, rec.Events(), "status", "message", "status")
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
//
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/imagenhancer/events"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 事件断言
// =============================================================================

// EventKinds 把事件序列压缩为 "status" / "status:done" / "message"
func EventKinds(evs []events.Event) []string {
	out := make([]string, len(evs))
	for i, ev := range evs {
		kind := string(ev.Type)
		if ev.IsTerminal() {
			kind += ":done"
		}
		out[i] = kind
	}
	return out
}

// AssertEventKinds 断言事件序列的类型与 done 标记
func AssertEventKinds(t *testing.T, evs []events.Event, expected ...string) {
	t.Helper()

	actual := EventKinds(evs)
	if len(actual) != len(expected) {
		t.Errorf("event count mismatch: expected %d %v, got %d %v", len(expected), expected, len(actual), actual)
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("event[%d] mismatch: expected %q, got %q", i, expected[i], actual[i])
		}
	}
}

// AssertSingleTerminal 断言恰好有一个 done=true 状态，且位于末尾
func AssertSingleTerminal(t *testing.T, evs []events.Event) {
	t.Helper()

	count := 0
	for _, ev := range evs {
		if ev.IsTerminal() {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one terminal status, got %d", count)
		return
	}
	if !evs[len(evs)-1].IsTerminal() {
		t.Error("terminal status is not the last event")
	}
}

// =============================================================================
// ⏱️ 异步辅助
// =============================================================================

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Errorf("condition did not become true within %v", timeout)
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// MustParseJSON 解析 JSON 字符串，失败时 panic
func MustParseJSON[T any](s string) T {
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		panic(err)
	}
	return v
}
