package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/imagenhancer/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema      types.ToolSchema // Tool JSON Schema
	Manifest    *Manifest        // 插件清单（可选）
	RateLimit   *RateLimitConfig // Rate limit config (optional)
	Timeout     time.Duration    // Execution timeout (default 30s)
	Description string           // Detailed description
}

// RateLimitConfig defines rate limit configuration.
type RateLimitConfig struct {
	MaxCalls int           // Maximum calls
	Window   time.Duration // Time window
}

// ToolRegistry defines tool registry interface.
type ToolRegistry interface {
	Register(name string, fn ToolFunc, metadata ToolMetadata) error
	Unregister(name string) error
	Get(name string) (ToolFunc, ToolMetadata, error)
	List() []types.ToolSchema
	Has(name string) bool
}

// ====== 实现：DefaultRegistry ======

type DefaultRegistry struct {
	mu         sync.RWMutex
	tools      map[string]ToolFunc
	metadata   map[string]ToolMetadata
	rateLimits map[string]*rate.Limiter // 工具级别的速率限制器
	logger     *zap.Logger
}

// NewDefaultRegistry 创建默认的工具注册中心。
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:      make(map[string]ToolFunc),
		metadata:   make(map[string]ToolMetadata),
		rateLimits: make(map[string]*rate.Limiter),
		logger:     logger.With(zap.String("component", "tool_registry")),
	}
}

func (r *DefaultRegistry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	// 校验 Schema
	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}
	if len(metadata.Schema.Parameters) > 0 && !json.Valid(metadata.Schema.Parameters) {
		return fmt.Errorf("tool %s has invalid parameter schema", name)
	}

	// 设置默认超时
	if metadata.Timeout == 0 {
		metadata.Timeout = 30 * time.Second
	}

	r.tools[name] = fn
	r.metadata[name] = metadata

	// 初始化速率限制器
	if rl := metadata.RateLimit; rl != nil && rl.MaxCalls > 0 && rl.Window > 0 {
		r.rateLimits[name] = rate.NewLimiter(rate.Every(rl.Window/time.Duration(rl.MaxCalls)), rl.MaxCalls)
	}

	r.logger.Info("tool registered", zap.String("name", name), zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *DefaultRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return types.NewError(types.ErrToolNotFound, fmt.Sprintf("tool %s not found", name))
	}

	delete(r.tools, name)
	delete(r.metadata, name)
	delete(r.rateLimits, name)

	r.logger.Info("tool unregistered", zap.String("name", name))
	return nil
}

func (r *DefaultRegistry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, types.NewError(types.ErrToolNotFound, fmt.Sprintf("tool %s not found", name))
	}
	return fn, r.metadata[name], nil
}

// List 按名称排序返回所有工具的 Schema
func (r *DefaultRegistry) List() []types.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]types.ToolSchema, 0, len(r.metadata))
	for _, meta := range r.metadata {
		schemas = append(schemas, meta.Schema)
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Manifests 返回带清单的工具元数据
func (r *DefaultRegistry) Manifests() []ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolMetadata, 0, len(r.metadata))
	for _, meta := range r.metadata {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Schema.Name < out[j].Schema.Name })
	return out
}

func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// checkRateLimit 检查是否触发速率限制
func (r *DefaultRegistry) checkRateLimit(name string) error {
	r.mu.RLock()
	limiter, ok := r.rateLimits[name]
	r.mu.RUnlock()
	if !ok {
		return nil // 没有速率限制
	}
	if !limiter.Allow() {
		return types.NewError(types.ErrRateLimited, "rate limit exceeded: no tokens available").WithRetryable(true)
	}
	return nil
}
