package api

import (
	"encoding/json"

	"github.com/BaSui01/imagenhancer/events"
	"github.com/BaSui01/imagenhancer/tools"
	"github.com/BaSui01/imagenhancer/types"
)

// =============================================================================
// 工具调用类型
// =============================================================================

// EnhanceImageRequest 是 enhance_image 流式接口的请求体。
// @Description 图像增强请求
type EnhanceImageRequest struct {
	// 源图 URL，必须以 http:// 或 https:// 开头
	ImageURL string `json:"image_url" example:"https://example.com/cat.png" binding:"required"`
	// 用户 ID；启用 JWT 时以令牌中的用户为准
	UserID string `json:"user_id,omitempty" example:"user-1"`
	// 结果选择档位: v1, v2, v3
	Profile string `json:"profile,omitempty" example:"v3"`
	// 聊天会话 ID，设置后事件同时发布到 Redis 频道
	SessionID string `json:"session_id,omitempty" example:"chat-42"`
}

// Arguments 转换为工具参数
func (r EnhanceImageRequest) Arguments() (json.RawMessage, error) {
	return json.Marshal(tools.EnhanceImageArgs{ImageURL: r.ImageURL, Profile: r.Profile})
}

// ResultFrame 是流式接口的终止帧（SSE 的 result 事件与 WebSocket 的最后一帧）。
type ResultFrame struct {
	Type   string `json:"type"` // "result" 或 "error"
	Result string `json:"result,omitempty"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewResultFrame 从工具结果构造终止帧
func NewResultFrame(res types.ToolResult) ResultFrame {
	if res.IsError() {
		return ResultFrame{Type: "error", Code: string(res.ErrorCode), Error: res.Error}
	}
	var out tools.EnhanceImageResult
	if err := json.Unmarshal(res.Result, &out); err != nil {
		return ResultFrame{Type: "result", Result: string(res.Result)}
	}
	return ResultFrame{Type: "result", Result: out.Result}
}

// ExecuteRequest 通用工具调用请求
// @Description 通用工具调用
type ExecuteRequest struct {
	ID        string          `json:"id,omitempty" example:"call-1"`
	Name      string          `json:"name" example:"enhance_image" binding:"required"`
	Arguments json.RawMessage `json:"arguments"`
	UserID    string          `json:"user_id,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

// ExecuteResponse 通用工具调用响应，附带调用期间记录的事件
type ExecuteResponse struct {
	Result types.ToolResult `json:"result"`
	Events []events.Event   `json:"events"`
}

// ToolInfo 工具列表项
type ToolInfo struct {
	Schema      types.ToolSchema `json:"schema"`
	Manifest    *tools.Manifest  `json:"manifest,omitempty"`
	Timeout     string           `json:"timeout"`
	RateLimited bool             `json:"rate_limited"`
}

// SessionEvents 会话事件回放
type SessionEvents struct {
	SessionID string         `json:"session_id"`
	Events    []events.Event `json:"events"`
}
