// Copyright (c) imagenhancer Authors.
// Licensed under the MIT License.

/*
Package main 提供 imagenhancer 服务端与命令行入口。

# 概述

cmd/imagenhancer 启动图像增强工具服务，也可以在命令行直接执行一次增强。
配置来自 YAML 文件与 IMAGENHANCER_ 前缀的环境变量，日志使用 zap，
指标通过独立端口以 Prometheus 格式暴露。

# 子命令

  - serve    启动 HTTP 服务（SSE、WebSocket、通用工具调用、会话事件订阅）
  - enhance  对一个或多个 URL 并发执行增强，事件以 JSON 行写到 stdout
  - users    users add 写入宿主用户（sqlite / postgres）
  - version、health

# 中间件链

Recovery、RequestID、OTelTracing、SecurityHeaders、RequestLogger、
MetricsMiddleware、CORS、APIKeyAuth、JWTAuth（可选）、RateLimiter。
限流位于认证之后，已认证请求按用户计数，其余按客户端 IP。
*/
package main
