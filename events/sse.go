package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// SSEWriter 把事件写成 Server-Sent Events，每个事件后立即 flush。
//
// event 字段取事件类型（status / message），data 为完整的事件 JSON。
type SSEWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	closed  bool
}

// ErrStreamClosed 流已关闭后继续写入
var ErrStreamClosed = errors.New("sse stream closed")

// NewSSEWriter 包装 ResponseWriter，ResponseWriter 必须支持 http.Flusher。
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &SSEWriter{w: w, flusher: flusher}, nil
}

func (s *SSEWriter) writeHeaders() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
	s.w.WriteHeader(http.StatusOK)
}

// Emit 实现 Emitter
func (s *SSEWriter) Emit(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.WriteEvent(string(event.Type), raw)
}

// WriteEvent 写入任意命名事件（result / error 等终止帧）。
func (s *SSEWriter) WriteEvent(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	s.writeHeaders()
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return fmt.Errorf("write sse event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// WriteJSON 序列化 v 并以 name 写出。
func (s *SSEWriter) WriteJSON(name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.WriteEvent(name, raw)
}

// Close 标记流结束。handler 返回后 ResponseWriter 不可再用，迟到的事件返回 ErrStreamClosed。
func (s *SSEWriter) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
