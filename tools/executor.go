package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/imagenhancer/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ToolExecutor defines tool executor interface.
type ToolExecutor interface {
	Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult
	ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult
}

// CallRecorder 工具调用指标
type CallRecorder interface {
	RecordToolCall(tool, status string)
}

// ====== 实现：DefaultExecutor ======

type DefaultExecutor struct {
	registry       ToolRegistry
	metrics        CallRecorder
	maxConcurrency int
	cancelGrace    time.Duration
	logger         *zap.Logger
}

// DefaultCancelGrace 超时后等待工具收尾的时间
const DefaultCancelGrace = 2 * time.Second

// NewDefaultExecutor 创建默认的工具执行器。
func NewDefaultExecutor(registry ToolRegistry, logger *zap.Logger) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultExecutor{
		registry:       registry,
		maxConcurrency: 8,
		cancelGrace:    DefaultCancelGrace,
		logger:         logger.With(zap.String("component", "tool_executor")),
	}
}

// WithMetrics 设置调用指标
func (e *DefaultExecutor) WithMetrics(m CallRecorder) *DefaultExecutor {
	e.metrics = m
	return e
}

// WithMaxConcurrency 限制 Execute 的并发数，<=0 表示不限制
func (e *DefaultExecutor) WithMaxConcurrency(n int) *DefaultExecutor {
	e.maxConcurrency = n
	return e
}

// WithCancelGrace 设置超时后等待工具收尾的时间
func (e *DefaultExecutor) WithCancelGrace(d time.Duration) *DefaultExecutor {
	e.cancelGrace = d
	return e
}

// Execute 并发执行多个调用，结果顺序与 calls 一致
func (e *DefaultExecutor) Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))

	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
	}
	fail := func(err error, status string) types.ToolResult {
		result.Error = err.Error()
		result.ErrorCode = types.GetErrorCode(err)
		result.Duration = time.Since(start)
		e.record(call.Name, status)
		return result
	}

	// 1. 获取工具函数和元数据
	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		e.logger.Error("tool not found", zap.String("name", call.Name), zap.Error(err))
		return fail(err, "not_found")
	}

	// 2. 检查速率限制（如果注册表支持）
	if reg, ok := e.registry.(*DefaultRegistry); ok {
		if err := reg.checkRateLimit(call.Name); err != nil {
			e.logger.Warn("rate limit exceeded", zap.String("name", call.Name))
			return fail(err, "rate_limited")
		}
	}

	// 3. 参数校验：合法 JSON 对象，且包含 Schema 要求的字段
	if err := validateArguments(meta.Schema, call.Arguments); err != nil {
		e.logger.Error("invalid tool arguments", zap.String("name", call.Name), zap.Error(err))
		return fail(err, "invalid_arguments")
	}

	// 4. 执行工具（带超时控制）
	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	// 带缓冲，超时后工具 goroutine 仍可退出
	doneChan := make(chan outcome, 1)

	go func() {
		res, err := fn(execCtx, call.Arguments)
		doneChan <- outcome{res, err}
	}()

	select {
	case done := <-doneChan:
		if done.err != nil {
			e.logger.Error("tool execution failed",
				zap.String("name", call.Name),
				zap.Error(done.err),
				zap.Duration("duration", time.Since(start)))
			return fail(done.err, "error")
		}
		result.Result = done.res
		result.Duration = time.Since(start)
		e.record(call.Name, "success")
		e.logger.Info("tool executed successfully",
			zap.String("name", call.Name),
			zap.Duration("duration", result.Duration))

	case <-execCtx.Done():
		// 给工具留出发送终止事件的时间，之后调用方才写出错误帧
		select {
		case <-doneChan:
		case <-time.After(e.cancelGrace):
		}
		e.logger.Error("tool execution timeout",
			zap.String("name", call.Name),
			zap.Duration("timeout", meta.Timeout))
		return fail(types.NewError(types.ErrTimeout, fmt.Sprintf("execution timeout after %s", meta.Timeout)), "timeout")
	}

	return result
}

func (e *DefaultExecutor) record(name, status string) {
	if e.metrics != nil {
		e.metrics.RecordToolCall(name, status)
	}
}

// validateArguments 检查参数为 JSON 对象并包含 required 字段
func validateArguments(schema types.ToolSchema, args json.RawMessage) error {
	var obj map[string]json.RawMessage
	if len(args) > 0 {
		if err := json.Unmarshal(args, &obj); err != nil {
			return types.NewError(types.ErrToolValidation, "invalid arguments").WithCause(err)
		}
	}

	if len(schema.Parameters) == 0 {
		return nil
	}
	var params struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schema.Parameters, &params); err != nil {
		return nil
	}
	for _, field := range params.Required {
		v, ok := obj[field]
		if !ok || string(v) == "null" {
			return types.NewError(types.ErrToolValidation, fmt.Sprintf("missing required argument %q", field))
		}
	}
	return nil
}
