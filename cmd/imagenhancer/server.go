package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/imagenhancer/api/handlers"
	"github.com/BaSui01/imagenhancer/config"
	"github.com/BaSui01/imagenhancer/enhancer"
	"github.com/BaSui01/imagenhancer/generation"
	"github.com/BaSui01/imagenhancer/internal/metrics"
	"github.com/BaSui01/imagenhancer/internal/pubsub"
	"github.com/BaSui01/imagenhancer/internal/server"
	"github.com/BaSui01/imagenhancer/internal/telemetry"
	"github.com/BaSui01/imagenhancer/tools"
	"github.com/BaSui01/imagenhancer/users"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// 免认证路径
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

// Server 是 imagenhancer 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	telemetry        *telemetry.Providers
	metricsCollector *metrics.Collector

	// 领域组件
	store      users.ReadWriteStore
	closeStore func() error
	bus        *pubsub.Bus
	enhancer   *enhancer.Enhancer
	registry   *tools.DefaultRegistry
	executor   *tools.DefaultExecutor

	// Handlers
	healthHandler *handlers.HealthHandler
	toolHandler   *handlers.ToolHandler

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{cfg: cfg, logger: logger}
}

// WithTelemetry 设置 OTel providers，enhancer 的 tracer 取自这里
func (s *Server) WithTelemetry(p *telemetry.Providers) *Server {
	s.telemetry = p
	return s
}

// WithCollector 使用已创建的指标收集器。
// promauto 注册到全局 registry，同一进程只能创建一次。
func (s *Server) WithCollector(c *metrics.Collector) *Server {
	s.metricsCollector = c
	return s
}

// =============================================================================
// 🔧 初始化
// =============================================================================

// Init 按依赖顺序创建所有组件：指标、用户存储、事件总线、生成后端、enhancer、工具、handlers
func (s *Server) Init() error {
	if s.metricsCollector == nil {
		s.metricsCollector = metrics.NewCollector("imagenhancer", s.logger)
	}

	store, closeStore, err := users.Open(s.cfg.Users, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}
	s.store, s.closeStore = store, closeStore

	if s.cfg.Redis.Enabled {
		bus, err := pubsub.NewBus(s.cfg.Redis, s.logger)
		if err != nil {
			s.Close()
			return fmt.Errorf("failed to init event bus: %w", err)
		}
		s.bus = bus.WithMetrics(s.metricsCollector)
	} else {
		s.logger.Info("Redis disabled, session events are not published")
	}

	generator, err := generation.NewFromConfig(s.cfg.Generation, nil, s.logger)
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to create generator: %w", err)
	}

	s.enhancer, err = enhancer.New(s.cfg.Enhancer, generator, s.logger,
		enhancer.WithUserStore(s.store),
		enhancer.WithMetrics(s.metricsCollector),
		enhancer.WithTracer(s.telemetry.Tracer("imagenhancer/enhancer")),
	)
	if err != nil {
		s.Close()
		return fmt.Errorf("failed to create enhancer: %w", err)
	}

	s.registry = tools.NewDefaultRegistry(s.logger)
	if err := tools.RegisterEnhanceImageTool(s.registry, s.enhancer, s.cfg.Server.ToolTimeout, s.toolRateLimit(), s.logger); err != nil {
		s.Close()
		return fmt.Errorf("failed to register enhance_image: %w", err)
	}
	s.executor = tools.NewDefaultExecutor(s.registry, s.logger).WithMetrics(s.metricsCollector)

	s.initHandlers()

	s.logger.Info("Components initialized",
		zap.String("backend", s.cfg.Generation.Backend),
		zap.String("profile", string(s.enhancer.DefaultProfile())),
		zap.String("users_driver", s.cfg.Users.Driver),
		zap.Bool("event_bus", s.bus != nil),
	)
	return nil
}

func (s *Server) toolRateLimit() *tools.RateLimitConfig {
	if s.cfg.Server.ToolRateLimit <= 0 {
		return nil
	}
	return &tools.RateLimitConfig{
		MaxCalls: s.cfg.Server.ToolRateLimit,
		Window:   s.cfg.Server.ToolRateWindow,
	}
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger).WithVersion(Version)

	if pinger, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("users", pinger.Ping))
	}
	if s.bus != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.bus.Ping))
	}

	s.toolHandler = handlers.NewToolHandler(s.registry, s.executor, s.bus, s.logger).
		WithOriginPatterns(originHosts(s.cfg.Server.CORSAllowedOrigins)).
		WithTrustBodyUser(s.cfg.Server.TrustBodyUserID)

	if s.cfg.Server.TrustBodyUserID && !s.cfg.JWT.Enabled && s.cfg.Users.Driver != "" && s.cfg.Users.Driver != "memory" {
		s.logger.Warn("request body user_id is trusted without JWT; any API key holder can act as a stored user",
			zap.String("users_driver", s.cfg.Users.Driver))
	}
}

// originHosts 把 CORS 来源（https://host:port）转换为 WebSocket 的 host 匹配模式
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, strings.TrimSuffix(o, "/"))
	}
	return out
}

// =============================================================================
// 🌐 路由与中间件
// =============================================================================

// routes 注册所有路由
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 工具 API
	mux.HandleFunc("GET /api/v1/tools", s.toolHandler.HandleList)
	mux.HandleFunc("POST /api/v1/tools/enhance_image", s.toolHandler.HandleEnhanceImage)
	mux.HandleFunc("GET /api/v1/tools/enhance_image/ws", s.toolHandler.HandleEnhanceImageWS)
	mux.HandleFunc("POST /api/v1/tools/execute", s.toolHandler.HandleExecute)
	mux.HandleFunc("GET /api/v1/sessions/{id}/events", s.toolHandler.HandleSessionEvents)

	return mux
}

// Handler 返回带完整中间件链的 API handler。
// ctx 结束时限流器的清理 goroutine 退出。
func (s *Server) Handler(ctx context.Context) http.Handler {
	return Chain(s.routes(),
		Recovery(s.logger),
		RequestID(),
		OTelTracing(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger),
		JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger),
		// 在认证之后，已认证请求按用户限流
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)
}

// =============================================================================
// 🚀 运行
// =============================================================================

// Run 启动 API 与 Metrics 服务器，阻塞直到 ctx 结束或任一服务器出错，然后释放资源
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	g, gctx := errgroup.WithContext(ctx)

	s.httpManager = server.NewManager(s.Handler(gctx), server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	g.Go(func() error { return s.httpManager.Run(gctx) })

	if s.cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		s.metricsManager = server.NewManager(mux, server.Config{
			Name:            "metrics",
			Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
			ReadTimeout:     s.cfg.Server.ReadTimeout,
			WriteTimeout:    s.cfg.Server.ReadTimeout,
			ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		}, s.logger)
		g.Go(func() error { return s.metricsManager.Run(gctx) })
	}

	s.logger.Info("Servers starting",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return g.Wait()
}

// =============================================================================
// 🛑 关闭
// =============================================================================

// Close 释放事件总线与用户存储，可重复调用
func (s *Server) Close() {
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			s.logger.Error("Event bus close error", zap.Error(err))
		}
		s.bus = nil
	}
	if s.closeStore != nil {
		if err := s.closeStore(); err != nil {
			s.logger.Error("User store close error", zap.Error(err))
		}
		s.closeStore = nil
	}
}
