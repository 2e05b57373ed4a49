package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONLines 把每个事件写成一行 JSON，供 CLI 与管道使用。
type JSONLines struct {
	mu  sync.Mutex
	w   io.Writer
	tag map[string]string
}

// NewJSONLines 创建 JSONLines emitter。tag 中的键值会附加在每一行上（可为 nil）。
func NewJSONLines(w io.Writer, tag map[string]string) *JSONLines {
	return &JSONLines{w: w, tag: tag}
}

// Emit 实现 Emitter
func (j *JSONLines) Emit(_ context.Context, event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if len(j.tag) > 0 {
		var line map[string]any
		if err := json.Unmarshal(raw, &line); err != nil {
			return err
		}
		for k, v := range j.tag {
			line[k] = v
		}
		if raw, err = json.Marshal(line); err != nil {
			return err
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := fmt.Fprintf(j.w, "%s\n", raw); err != nil {
		return fmt.Errorf("write event line: %w", err)
	}
	return nil
}
