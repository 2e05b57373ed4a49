package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/imagenhancer/api"
	"github.com/BaSui01/imagenhancer/events"
	"github.com/BaSui01/imagenhancer/internal/pubsub"
	"github.com/BaSui01/imagenhancer/tools"
	"github.com/BaSui01/imagenhancer/types"
)

// =============================================================================
// 🔧 工具接口 Handler
// =============================================================================

// ToolCatalog 提供工具清单
type ToolCatalog interface {
	Manifests() []tools.ToolMetadata
}

// ToolHandler 工具调用处理器
type ToolHandler struct {
	catalog        ToolCatalog
	executor       tools.ToolExecutor
	bus            *pubsub.Bus
	originPatterns []string
	trustBodyUser  bool
	logger         *zap.Logger
}

// 首帧读取超时
const wsRequestTimeout = 30 * time.Second

// 透传给生成后端的请求头
var forwardHeaders = []string{"X-Request-ID", "X-Forwarded-For", "X-Forwarded-Proto", "Accept-Language"}

// NewToolHandler 创建工具处理器。bus 为 nil 时不发布会话事件。
func NewToolHandler(catalog ToolCatalog, executor tools.ToolExecutor, bus *pubsub.Bus, logger *zap.Logger) *ToolHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ToolHandler{
		catalog:       catalog,
		executor:      executor,
		bus:           bus,
		trustBodyUser: true,
		logger:        logger.With(zap.String("handler", "tools")),
	}
}

// WithTrustBodyUser 设置是否接受请求体中的 user_id。
// 关闭后，未经认证中间件注入用户的请求若携带 user_id 返回 403。
func (h *ToolHandler) WithTrustBodyUser(trust bool) *ToolHandler {
	h.trustBodyUser = trust
	return h
}

// WithOriginPatterns 设置 WebSocket 允许的跨域来源
func (h *ToolHandler) WithOriginPatterns(patterns []string) *ToolHandler {
	h.originPatterns = patterns
	return h
}

// HandleList 处理 GET /api/v1/tools
// @Summary 工具列表
// @Tags 工具
// @Produce json
// @Success 200 {object} Response "工具清单"
// @Security ApiKeyAuth
// @Router /api/v1/tools [get]
func (h *ToolHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	metas := h.catalog.Manifests()
	out := make([]api.ToolInfo, 0, len(metas))
	for _, m := range metas {
		out = append(out, api.ToolInfo{
			Schema:      m.Schema,
			Manifest:    m.Manifest,
			Timeout:     m.Timeout.String(),
			RateLimited: m.RateLimit != nil && m.RateLimit.MaxCalls > 0,
		})
	}
	WriteSuccess(w, out)
}

// HandleEnhanceImage 处理 POST /api/v1/tools/enhance_image，以 SSE 推送事件
// @Summary 图像增强（SSE）
// @Tags 工具
// @Accept json
// @Produce text/event-stream
// @Param request body api.EnhanceImageRequest true "增强请求"
// @Success 200 {string} string "SSE 流，以 result 或 error 事件结束"
// @Failure 400 {object} Response "无效请求"
// @Security ApiKeyAuth
// @Router /api/v1/tools/enhance_image [post]
func (h *ToolHandler) HandleEnhanceImage(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.EnhanceImageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if apiErr := validateEnhanceRequest(&req); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}
	if apiErr := h.checkBodyUser(r.Context(), req.UserID); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}

	sse, err := events.NewSSEWriter(w)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming not supported"), h.logger)
		return
	}

	defer sse.Close()

	res := h.runEnhance(r.Context(), r, req, sse)
	frame := api.NewResultFrame(res)
	if err := sse.WriteJSON(frame.Type, frame); err != nil {
		h.logger.Warn("failed to write terminal frame", zap.Error(err))
	}
}

// HandleEnhanceImageWS 处理 GET /api/v1/tools/enhance_image/ws。
// 客户端首帧为 api.EnhanceImageRequest，服务端依次推送事件帧与一个 ResultFrame。
func (h *ToolHandler) HandleEnhanceImageWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	emitter := events.NewWebSocketEmitter(conn, h.logger)
	defer emitter.Close("done")

	readCtx, cancel := context.WithTimeout(r.Context(), wsRequestTimeout)
	var req api.EnhanceImageRequest
	err = wsjson.Read(readCtx, conn, &req)
	cancel()
	if err != nil {
		h.logger.Warn("failed to read websocket request", zap.Error(err))
		_ = emitter.WriteJSON(r.Context(), api.ResultFrame{
			Type: "error", Code: string(types.ErrInvalidRequest), Error: "invalid request frame",
		})
		return
	}
	apiErr := validateEnhanceRequest(&req)
	if apiErr == nil {
		apiErr = h.checkBodyUser(r.Context(), req.UserID)
	}
	if apiErr != nil {
		_ = emitter.WriteJSON(r.Context(), api.ResultFrame{
			Type: "error", Code: string(apiErr.Code), Error: apiErr.Message,
		})
		return
	}

	// 之后不再读取客户端数据；对端关闭时 ctx 被取消
	ctx := conn.CloseRead(r.Context())

	res := h.runEnhance(ctx, r, req, emitter)
	if err := emitter.WriteJSON(ctx, api.NewResultFrame(res)); err != nil {
		h.logger.Warn("failed to write terminal frame", zap.Error(err))
	}
}

// HandleExecute 处理 POST /api/v1/tools/execute，返回结果与调用期间的事件
// @Summary 通用工具调用
// @Tags 工具
// @Accept json
// @Produce json
// @Param request body api.ExecuteRequest true "工具调用"
// @Success 200 {object} Response "工具结果与事件"
// @Failure 404 {object} Response "工具不存在"
// @Security ApiKeyAuth
// @Router /api/v1/tools/execute [post]
func (h *ToolHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ExecuteRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Name == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "name is required"), h.logger)
		return
	}
	if apiErr := h.checkBodyUser(r.Context(), req.UserID); apiErr != nil {
		WriteError(w, apiErr, h.logger)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	recorder := events.NewRecorder()
	ctx := h.invocationContext(r.Context(), r, req.UserID, req.SessionID, recorder)

	res := h.executor.ExecuteOne(ctx, types.ToolCall{ID: req.ID, Name: req.Name, Arguments: req.Arguments})
	if res.ErrorCode == types.ErrToolNotFound {
		WriteError(w, types.NewError(types.ErrToolNotFound, res.Error), h.logger)
		return
	}

	WriteSuccess(w, api.ExecuteResponse{Result: res, Events: recorder.Events()})
}

// HandleSessionEvents 处理 GET /api/v1/sessions/{id}/events：
// 先回放已保存的事件，再通过 Redis 订阅继续推送，直到终止状态。
// ?replay=false 跳过回放。
func (h *ToolHandler) HandleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		WriteError(w, types.NewError(types.ErrServiceUnavailable, "event bus is disabled"), h.logger)
		return
	}
	session := r.PathValue("id")
	if session == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "session id is required"), h.logger)
		return
	}

	ctx := r.Context()

	// 先订阅再回放，避免两者之间的事件丢失（可能重复，不会丢）
	sub, err := h.bus.Subscribe(ctx, session)
	if err != nil {
		WriteError(w, types.WrapError(err, types.ErrServiceUnavailable, "subscribe failed"), h.logger)
		return
	}
	defer sub.Close()

	sse, err := events.NewSSEWriter(w)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInternalError, "streaming not supported"), h.logger)
		return
	}

	if r.URL.Query().Get("replay") != "false" {
		history, err := h.bus.Replay(ctx, session)
		if err != nil {
			h.logger.Warn("replay failed", zap.String("session", session), zap.Error(err))
		}
		for _, ev := range history {
			if err := sse.Emit(ctx, ev); err != nil {
				return
			}
			if ev.IsTerminal() {
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := sse.Emit(ctx, ev); err != nil {
				return
			}
		}
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func validateEnhanceRequest(req *api.EnhanceImageRequest) *types.Error {
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	if req.ImageURL == "" {
		return types.NewError(types.ErrInvalidRequest, "image_url is required").WithHTTPStatus(http.StatusBadRequest)
	}
	return nil
}

// checkBodyUser 在不信任请求体身份时拒绝未经认证的 user_id
func (h *ToolHandler) checkBodyUser(ctx context.Context, userID string) *types.Error {
	if h.trustBodyUser || userID == "" {
		return nil
	}
	if _, ok := types.UserID(ctx); ok {
		return nil
	}
	return types.NewError(types.ErrForbidden, "user_id requires an authenticated caller").
		WithHTTPStatus(http.StatusForbidden)
}

// runEnhance 通过执行器调用 enhance_image，事件写入 emitter
func (h *ToolHandler) runEnhance(ctx context.Context, r *http.Request, req api.EnhanceImageRequest, emitter events.Emitter) types.ToolResult {
	args, err := req.Arguments()
	if err != nil {
		return types.ToolResult{Name: tools.EnhanceImageToolName, Error: err.Error(), ErrorCode: types.ErrInvalidRequest}
	}

	ctx = h.invocationContext(ctx, r, req.UserID, req.SessionID, emitter)
	return h.executor.ExecuteOne(ctx, types.ToolCall{
		ID:        uuid.NewString(),
		Name:      tools.EnhanceImageToolName,
		Arguments: args,
	})
}

// invocationContext 把用户、会话、事件回调与透传头放入 ctx。
// 认证中间件注入的用户优先于请求体中的 user_id。
func (h *ToolHandler) invocationContext(ctx context.Context, r *http.Request, userID, session string, emitter events.Emitter) context.Context {
	if _, ok := types.UserID(ctx); !ok && userID != "" {
		ctx = types.WithUserID(ctx, userID)
	}

	if session != "" {
		ctx = types.WithSessionID(ctx, session)
		if h.bus != nil {
			emitter = events.Multi(emitter, h.sessionEmitter(session))
		}
	}
	ctx = tools.WithEmitter(ctx, emitter)

	forward := make(map[string]string)
	for _, name := range forwardHeaders {
		if v := r.Header.Get(name); v != "" {
			forward[name] = v
		}
	}
	if len(forward) > 0 {
		ctx = tools.WithForward(ctx, forward)
	}
	return ctx
}

// sessionEmitter 发布到 Redis，失败只记录日志，不中断增强流程
func (h *ToolHandler) sessionEmitter(session string) events.Emitter {
	inner := h.bus.Emitter(session)
	return events.EmitterFunc(func(ctx context.Context, event events.Event) error {
		if err := inner.Emit(ctx, event); err != nil {
			h.logger.Warn("session publish failed", zap.String("session", session), zap.Error(err))
		}
		return nil
	})
}
