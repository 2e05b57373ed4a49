// Copyright (c) imagenhancer Authors.
// Licensed under the MIT License.

/*
Package events 定义增强流程推送给聊天 UI 的事件模型与多种 Emitter 实现。

# 事件模型

宿主约定两类事件：

  - status：{"type":"status","data":{"description":"...","done":false}}
  - message：{"type":"message","data":{"content":"![Enhanced Image](url)"}}

# Emitter 实现

  - EmitterFunc / Multi：函数适配与扇出
  - Recorder：内存记录，供测试与 /tools/execute 使用
  - JSONLines：CLI 逐行输出
  - SSEWriter：HTTP Server-Sent Events
  - WebSocketEmitter：基于 github.com/coder/websocket
*/
package events
