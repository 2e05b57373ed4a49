// Copyright (c) imagenhancer Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 imagenhancer HTTP API 的请求处理器实现。

# 概述

handlers 包实现工具清单、图像增强（SSE / WebSocket）、通用工具调用、
Redis 会话事件回放以及健康检查等端点。所有 Handler 均遵循标准
net/http 接口。

# 核心类型

  - ToolHandler      — 工具接口：清单、enhance_image 流式调用、通用执行、会话事件
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /version）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码，透传 Flush
  - HealthCheck      — 可插拔健康检查接口，PingCheck 覆盖用户库与 Redis

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 流式增强：SSE 以 result 或 error 事件结束，WebSocket 以 ResultFrame 结束
  - 会话多路复用：携带 session_id 时事件同时发布到 Redis 频道
*/
package handlers
