// MockGenerator 的生成后端测试模拟实现。
//
// 支持结果编排、错误注入与请求记录。
package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/BaSui01/imagenhancer/events"
	"github.com/BaSui01/imagenhancer/generation"
)

// --- MockGenerator ---

// MockGenerator 是 generation.Generator 的模拟实现
type MockGenerator struct {
	mu sync.Mutex

	name    string
	results []generation.Image
	err     error
	fn      func(ctx context.Context, req *generation.Request) ([]generation.Image, error)

	// 调用记录
	requests []generation.Request
}

// NewMockGenerator 创建新的 MockGenerator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{name: "mock"}
}

// WithResults 设置固定返回结果
func (m *MockGenerator) WithResults(results ...generation.Image) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
	return m
}

// WithError 设置固定错误
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFunc 自定义生成逻辑，优先于 WithResults / WithError
func (m *MockGenerator) WithFunc(fn func(ctx context.Context, req *generation.Request) ([]generation.Image, error)) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Name 实现 generation.Generator
func (m *MockGenerator) Name() string { return m.name }

// Generate 实现 generation.Generator
func (m *MockGenerator) Generate(ctx context.Context, req *generation.Request) ([]generation.Image, error) {
	m.mu.Lock()
	m.requests = append(m.requests, *req)
	fn, results, err := m.fn, m.results, m.err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	out := make([]generation.Image, len(results))
	copy(out, results)
	return out, nil
}

// Calls 返回调用次数
func (m *MockGenerator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest 返回最后一次请求
func (m *MockGenerator) LastRequest() (generation.Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return generation.Request{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// --- FailingEmitter ---

// ErrEmitterClosed FailingEmitter 返回的错误
var ErrEmitterClosed = errors.New("emitter closed")

// FailingEmitter 前 N 个事件正常记录，之后返回 ErrEmitterClosed
type FailingEmitter struct {
	*events.Recorder
	mu    sync.Mutex
	after int
	seen  int
}

// NewFailingEmitter 创建在第 after+1 个事件时失败的 emitter
func NewFailingEmitter(after int) *FailingEmitter {
	return &FailingEmitter{Recorder: events.NewRecorder(), after: after}
}

// Emit 实现 events.Emitter
func (f *FailingEmitter) Emit(ctx context.Context, ev events.Event) error {
	f.mu.Lock()
	f.seen++
	fail := f.seen > f.after
	f.mu.Unlock()
	if fail {
		return ErrEmitterClosed
	}
	return f.Recorder.Emit(ctx, ev)
}
