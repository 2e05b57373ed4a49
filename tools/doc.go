// Copyright (c) imagenhancer Authors.
// Licensed under the MIT License.

/*
Package tools 提供工具注册、执行与 enhance_image 工具本身。

DefaultRegistry 保存工具函数、Schema 与可选的插件清单，按工具维护
golang.org/x/time/rate 令牌桶。DefaultExecutor 负责参数校验（JSON 对象
且包含 required 字段）、限流与超时控制，Execute 通过 errgroup 并发执行。

工具函数签名统一为 ToolFunc(ctx, json.RawMessage)。调用方身份与事件回调
通过 ctx 传递：types.WithUserID 与 WithEmitter。
*/
package tools
