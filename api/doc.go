// Package api 定义 imagenhancer HTTP 接口的请求与响应类型。
//
// # 接口概览
//
//   - GET  /api/v1/tools                       工具清单与调用 Schema
//   - POST /api/v1/tools/enhance_image         SSE 流式增强
//   - GET  /api/v1/tools/enhance_image/ws      WebSocket 流式增强
//   - POST /api/v1/tools/execute               通用工具调用
//   - GET  /api/v1/sessions/{id}/events        会话事件回放与订阅（需启用 Redis）
//
// # 认证
//
// 配置了 API Key 时需通过 X-API-Key 请求头传递；启用 JWT 时
// 令牌中的 user_id 会作为增强请求的用户身份。
package api
