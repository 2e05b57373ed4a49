package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger  *zap.Logger
	checks  []HealthCheck
	version string
	mu      sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// ServiceHealthResponse 健康状态响应
type ServiceHealthResponse struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger: logger.With(zap.String("handler", "health")),
		checks: make([]HealthCheck, 0),
	}
}

// WithVersion 设置健康响应中携带的版本号
func (h *HealthHandler) WithVersion(version string) *HealthHandler {
	h.version = version
	return h
}

// RegisterCheck 注册健康检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求（简单健康检查）
// @Summary 健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务正常"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
	})
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 活跃度探针）
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleReady 处理 /ready 请求，并行执行所有依赖检查
// @Summary 准备情况检查
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务已准备就绪"
// @Failure 503 {object} ServiceHealthResponse "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, check := range checks {
		g.Go(func() error {
			start := time.Now()
			err := check.Check(ctx)
			latency := time.Since(start)

			results[i] = CheckResult{Status: "pass", Latency: latency.String()}
			if err != nil {
				results[i].Status = "fail"
				results[i].Message = err.Error()
				h.logger.Warn("health check failed",
					zap.String("check", check.Name()),
					zap.Error(err),
					zap.Duration("latency", latency),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	status := ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for i, check := range checks {
		status.Checks[check.Name()] = results[i]
		if results[i].Status == "fail" {
			status.Status = "unhealthy"
		}
	}

	if status.Status != "healthy" {
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// PingCheck 以 ping 函数实现的健康检查（用户库、Redis 等）
type PingCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingCheck 创建健康检查
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

func (c *PingCheck) Name() string { return c.name }

func (c *PingCheck) Check(ctx context.Context) error { return c.ping(ctx) }
