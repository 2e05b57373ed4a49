package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// EventType 事件类型
type EventType string

const (
	// TypeStatus 进度状态事件，data 为 {"description", "done"}
	TypeStatus EventType = "status"
	// TypeMessage 聊天消息事件，data 为 {"content"}（markdown）
	TypeMessage EventType = "message"
)

// Event 是发往聊天 UI 的单条事件。
type Event struct {
	Type        EventType
	Description string
	Done        bool
	Content     string
}

// Status 构造状态事件。
func Status(description string, done bool) Event {
	return Event{Type: TypeStatus, Description: description, Done: done}
}

// Message 构造消息事件。
func Message(content string) Event {
	return Event{Type: TypeMessage, Content: content}
}

// IsTerminal reports whether the event closes an invocation.
func (e Event) IsTerminal() bool {
	return e.Type == TypeStatus && e.Done
}

type statusData struct {
	Description string `json:"description"`
	Done        bool   `json:"done"`
}

type messageData struct {
	Content string `json:"content"`
}

type wireEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON 输出宿主约定的 {"type", "data"} 结构。
func (e Event) MarshalJSON() ([]byte, error) {
	var data any
	switch e.Type {
	case TypeStatus:
		data = statusData{Description: e.Description, Done: e.Done}
	case TypeMessage:
		data = messageData{Content: e.Content}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{Type: e.Type, Data: raw})
}

// UnmarshalJSON 解析 {"type", "data"} 结构。
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Type {
	case TypeStatus:
		var d statusData
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return fmt.Errorf("decode status data: %w", err)
		}
		*e = Status(d.Description, d.Done)
	case TypeMessage:
		var d messageData
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return fmt.Errorf("decode message data: %w", err)
		}
		*e = Message(d.Content)
	default:
		return fmt.Errorf("unknown event type %q", w.Type)
	}
	return nil
}

// Emitter 把事件推送给前端。
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// EmitterFunc 函数适配器
type EmitterFunc func(ctx context.Context, event Event) error

// Emit 实现 Emitter
func (f EmitterFunc) Emit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Multi 将事件依次扇出到多个 Emitter，遇到第一个错误即返回。
func Multi(emitters ...Emitter) Emitter {
	targets := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			targets = append(targets, e)
		}
	}
	return EmitterFunc(func(ctx context.Context, event Event) error {
		for _, t := range targets {
			if err := t.Emit(ctx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recorder 在内存中记录全部事件，并发安全。
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder 创建 Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit 实现 Emitter
func (r *Recorder) Emit(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events 返回已记录事件的副本。
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType 返回指定类型的事件。
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset 清空记录
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
