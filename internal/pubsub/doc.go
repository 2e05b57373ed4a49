// 版权所有 2024 imagenhancer Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 pubsub 提供基于 Redis 的进度事件总线。

增强请求的事件按会话发布到 <prefix>:<session> 频道，订阅方（例如另一个
进程中的 WebSocket 连接）可以实时转发；启用 ReplayTTL 后事件同时追加到
<prefix>:<session>:log 列表，供迟到的订阅方回放。

Bus 的连接、健康检查与关闭语义与 Redis 客户端的常规用法一致：创建时
Ping，后台按间隔检查，Close 幂等。
*/
package pubsub
