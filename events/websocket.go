package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// WebSocketEmitter 将事件写到 WebSocket 连接。
// 写操作通过 mutex 保护，因为 WebSocket 不支持并发写。
type WebSocketEmitter struct {
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewWebSocketEmitter 从已建立的连接创建 emitter。
func NewWebSocketEmitter(conn *websocket.Conn, logger *zap.Logger) *WebSocketEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketEmitter{
		conn:   conn,
		logger: logger.With(zap.String("component", "ws_emitter")),
	}
}

// Emit 实现 Emitter
func (w *WebSocketEmitter) Emit(ctx context.Context, event Event) error {
	return w.WriteJSON(ctx, event)
}

// WriteJSON 写任意 JSON 帧。
func (w *WebSocketEmitter) WriteJSON(ctx context.Context, v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("connection closed")
	}
	if err := wsjson.Write(ctx, w.conn, v); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close 以正常状态关闭连接。
func (w *WebSocketEmitter) Close(reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.conn.Close(websocket.StatusNormalClosure, reason); err != nil {
		w.logger.Debug("websocket close", zap.Error(err))
		return err
	}
	return nil
}
