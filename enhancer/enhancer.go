package enhancer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/imagenhancer/events"
	"github.com/BaSui01/imagenhancer/generation"
	"github.com/BaSui01/imagenhancer/imaging"
	"github.com/BaSui01/imagenhancer/types"
	"github.com/BaSui01/imagenhancer/users"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// =============================================================================
// 📝 用户可见文本
// =============================================================================

const (
	MsgStart         = "Processing the image URL for enhancement..."
	MsgInvalidURL    = "Error: Invalid URL provided."
	MsgProcessed     = "Image processed successfully. Enhancing the image..."
	MsgSummary       = "Here are your enhanced photos! This concludes the enhancement process."
	MsgCompleted     = "Enhancement process completed."
	errorPrefix      = "An error occurred: "
	originalTemplate = "![Original Image](%s)"
	enhancedTemplate = "![Enhanced Image](%s)"
)

// 调用结果标签
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// terminalEmitTimeout 失败时发送终止状态的超时
const terminalEmitTimeout = 5 * time.Second

var acceptedSchemes = []string{"http://", "https://"}

// ValidURL 检查 URL 是否以可接受的协议前缀开头
func ValidURL(u string) bool {
	for _, prefix := range acceptedSchemes {
		if strings.HasPrefix(u, prefix) {
			return true
		}
	}
	return false
}

// OriginalMessage 原图消息
func OriginalMessage(url string) string { return fmt.Sprintf(originalTemplate, url) }

// EnhancedMessage 结果图消息
func EnhancedMessage(url string) string { return fmt.Sprintf(enhancedTemplate, url) }

// ErrorText 失败时的状态与返回文本
func ErrorText(err error) string { return errorPrefix + err.Error() }

// =============================================================================
// 🔌 依赖接口
// =============================================================================

type emitFunc func(ctx context.Context, ev events.Event) error

// Fetcher 源图下载
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// MetricsRecorder 增强流程指标
type MetricsRecorder interface {
	RecordEnhance(profile, outcome string, duration time.Duration)
	RecordFetch(bytes int)
	RecordGeneration(backend, status string, duration time.Duration, results int)
}

// Request 一次增强调用
type Request struct {
	ImageURL string `json:"image_url"`
	// UserID 宿主用户 ID，为空时以后端默认凭证调用
	UserID string `json:"user_id,omitempty"`
	// Profile 为空时使用配置的默认档位
	Profile Profile `json:"profile,omitempty"`
	// Forward 透传给生成后端的请求上下文，仅 v3 使用
	Forward map[string]string `json:"-"`
}

// =============================================================================
// 🖼️ Enhancer
// =============================================================================

// Enhancer 图像增强适配器：下载、转码、编码后交给宿主生成，并推送进度事件。
type Enhancer struct {
	cfg       Config
	profile   Profile
	fetcher   Fetcher
	generator generation.Generator
	users     users.Store
	metrics   MetricsRecorder
	tracer    trace.Tracer
	logger    *zap.Logger
}

// Option 可选配置
type Option func(*Enhancer)

// WithFetcher 替换默认的 HTTP 下载器
func WithFetcher(f Fetcher) Option {
	return func(e *Enhancer) { e.fetcher = f }
}

// WithUserStore 设置用户存储
func WithUserStore(s users.Store) Option {
	return func(e *Enhancer) { e.users = s }
}

// WithMetrics 设置指标记录器
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Enhancer) { e.metrics = m }
}

// WithTracer 设置 Tracer，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(e *Enhancer) { e.tracer = t }
}

// New 创建 Enhancer
func New(cfg Config, generator generation.Generator, logger *zap.Logger, opts ...Option) (*Enhancer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if generator == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "generator is required")
	}
	profile, err := ParseProfile(cfg.Profile, DefaultProfile)
	if err != nil {
		return nil, err
	}

	e := &Enhancer{
		cfg:       cfg,
		profile:   profile,
		generator: generator,
		logger:    logger.With(zap.String("component", "enhancer")),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fetcher == nil {
		e.fetcher = imaging.NewFetcher(cfg.Fetch, nil, logger)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("imagenhancer/enhancer")
	}
	return e, nil
}

// DefaultProfile 返回配置的默认档位
func (e *Enhancer) DefaultProfile() Profile { return e.profile }

// Enhance 执行一次增强。
//
// 事件顺序固定：开始状态，(可选) 原图消息，处理完成状态，N 条结果消息，汇总消息，完成状态。
// 每次调用恰好产生一个 done=true 的状态事件。emitter 可以为 nil。
//
// URL 前缀不合法时直接返回 MsgInvalidURL，不发起任何网络请求。
// 其余失败按档位返回 "An error occurred: ..." 文本，或 (v3) 返回 *types.Error。
func (e *Enhancer) Enhance(ctx context.Context, req Request, emitter events.Emitter) (string, error) {
	profile := req.Profile
	if profile == "" {
		profile = e.profile
	}
	if !profile.Valid() {
		return "", types.NewError(types.ErrInvalidRequest, "unknown profile "+string(profile)).
			WithHTTPStatus(http.StatusBadRequest)
	}

	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "enhancer.enhance",
		trace.WithAttributes(
			attribute.String("enhance.profile", string(profile)),
			attribute.String("user.id", req.UserID),
		))
	defer span.End()

	logger := e.logger.With(zap.String("profile", string(profile)), zap.String("user_id", req.UserID))
	emit := emitFunc(func(ctx context.Context, ev events.Event) error {
		if emitter == nil {
			return nil
		}
		return emitter.Emit(ctx, ev)
	})

	if err := emit(ctx, events.Status(MsgStart, false)); err != nil {
		return e.fail(ctx, span, logger, profile, start, emit, wrapEmitError(err))
	}

	if !ValidURL(req.ImageURL) {
		if err := emit(ctx, events.Status(MsgInvalidURL, true)); err != nil {
			logger.Warn("failed to emit rejection status", zap.Error(err))
		}
		span.SetAttributes(attribute.String("enhance.outcome", OutcomeRejected))
		e.record(profile, OutcomeRejected, start)
		logger.Info("rejected image url", zap.String("url", req.ImageURL))
		return MsgInvalidURL, nil
	}

	delivered, err := e.run(ctx, req, profile, emit)
	if err != nil {
		return e.fail(ctx, span, logger, profile, start, emit, err)
	}

	// 完成状态已尝试发送即视为终止，送达失败不再追加错误状态
	if err := emit(ctx, events.Status(MsgCompleted, true)); err != nil {
		logger.Warn("failed to emit completion status", zap.Error(err))
	}

	span.SetAttributes(
		attribute.String("enhance.outcome", OutcomeSuccess),
		attribute.Int("enhance.delivered", delivered),
	)
	e.record(profile, OutcomeSuccess, start)
	logger.Info("enhancement completed",
		zap.Int("delivered", delivered),
		zap.Duration("duration", time.Since(start)))
	return profile.SuccessText(delivered), nil
}

// run 执行 URL 校验之后、完成状态之前的步骤，返回已发送的结果数量。
func (e *Enhancer) run(ctx context.Context, req Request, profile Profile, emit emitFunc) (int, error) {
	prompt, err := e.preparePrompt(ctx, req.ImageURL)
	if err != nil {
		return 0, err
	}

	if profile.ShowOriginal() {
		if err := emit(ctx, events.Message(OriginalMessage(req.ImageURL))); err != nil {
			return 0, wrapEmitError(err)
		}
	}
	if err := emit(ctx, events.Status(MsgProcessed, false)); err != nil {
		return 0, wrapEmitError(err)
	}

	user, err := e.resolveUser(ctx, req.UserID)
	if err != nil {
		return 0, err
	}

	genReq := &generation.Request{
		Prompt: prompt,
		N:      profile.RequestCount(),
		User:   user,
	}
	if profile.ForwardContext() {
		genReq.Forward = req.Forward
	}

	results, err := e.generate(ctx, genReq)
	if err != nil {
		return 0, err
	}

	selected, err := profile.Select(results)
	if err != nil {
		return 0, err
	}

	for _, img := range selected {
		if err := emit(ctx, events.Message(EnhancedMessage(img.URL))); err != nil {
			return 0, wrapEmitError(err)
		}
	}
	if err := emit(ctx, events.Message(MsgSummary)); err != nil {
		return 0, wrapEmitError(err)
	}
	return len(selected), nil
}

// preparePrompt 下载源图，转码为 PNG 并编码为 base64 prompt
func (e *Enhancer) preparePrompt(ctx context.Context, url string) (string, error) {
	ctx, span := e.tracer.Start(ctx, "enhancer.prepare_prompt")
	defer span.End()

	data, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return "", err
	}
	if e.metrics != nil {
		e.metrics.RecordFetch(len(data))
	}

	pngData, format, err := imaging.Transcode(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transcode failed")
		return "", err
	}

	span.SetAttributes(
		attribute.Int("image.source_bytes", len(data)),
		attribute.Int("image.png_bytes", len(pngData)),
		attribute.String("image.source_format", format),
	)
	return imaging.EncodePrompt(pngData), nil
}

func (e *Enhancer) resolveUser(ctx context.Context, userID string) (*users.User, error) {
	if userID == "" {
		if e.cfg.RequireUser {
			return nil, types.NewError(types.ErrUnauthorized, "user id is required").
				WithHTTPStatus(http.StatusUnauthorized)
		}
		return nil, nil
	}
	if e.users == nil {
		return &users.User{ID: userID}, nil
	}
	return e.users.GetUserByID(ctx, userID)
}

func (e *Enhancer) generate(ctx context.Context, req *generation.Request) ([]generation.Image, error) {
	backend := e.generator.Name()
	ctx, span := e.tracer.Start(ctx, "enhancer.generate",
		trace.WithAttributes(
			attribute.String("generation.backend", backend),
			attribute.Int("generation.n", req.N),
		))
	defer span.End()

	start := time.Now()
	results, err := e.generator.Generate(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
	}
	if e.metrics != nil {
		e.metrics.RecordGeneration(backend, status, time.Since(start), len(results))
	}
	span.SetAttributes(attribute.Int("generation.results", len(results)))
	return results, err
}

// fail 统一失败出口：发送 done 状态后按档位返回错误文本或错误。
func (e *Enhancer) fail(ctx context.Context, span trace.Span, logger *zap.Logger, profile Profile, start time.Time, emit emitFunc, err error) (string, error) {
	text := ErrorText(err)

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("enhance.outcome", OutcomeFailed))
	e.record(profile, OutcomeFailed, start)

	// ctx 可能已超时或被取消，终止状态用独立的短超时发送；失败只记录日志
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalEmitTimeout)
	defer cancel()
	if emitErr := emit(emitCtx, events.Status(text, true)); emitErr != nil {
		logger.Warn("failed to emit error status", zap.Error(emitErr))
	}

	logger.Warn("enhancement failed",
		zap.Error(err),
		zap.String("error_code", string(types.GetErrorCode(err))),
		zap.Duration("duration", time.Since(start)))

	if profile.RaiseOnFailure() {
		return "", transportError(err)
	}
	return text, nil
}

func (e *Enhancer) record(profile Profile, outcome string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordEnhance(string(profile), outcome, time.Since(start))
	}
}

// transportError 把任意失败转换为带 HTTP 状态的 *types.Error
func transportError(err error) *types.Error {
	e := types.WrapError(err, types.ErrInternalError, "image enhancement failed")
	if e.HTTPStatus != 0 {
		return e
	}
	switch e.Code {
	case types.ErrFetchFailed, types.ErrUpstreamError, types.ErrInsufficientResults:
		return e.WithHTTPStatus(http.StatusBadGateway)
	case types.ErrUpstreamTimeout, types.ErrTimeout:
		return e.WithHTTPStatus(http.StatusGatewayTimeout)
	case types.ErrUserNotFound:
		return e.WithHTTPStatus(http.StatusNotFound)
	default:
		return e.WithHTTPStatus(http.StatusInternalServerError)
	}
}

func wrapEmitError(err error) error {
	return types.NewError(types.ErrEmitFailed, "failed to emit event").WithCause(err)
}
