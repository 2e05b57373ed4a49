// 版权所有 2024 imagenhancer Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理，支持非阻塞启动与
优雅关闭。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误
传播流程。imagenhancer 的 API 端口与 metrics 端口各持有一个
Manager，由 Config.Name 区分日志。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 阻塞运行：Run 在 ctx 结束或服务异常时触发优雅关闭。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空。
  - 错误传播：Errors() 返回异步错误通道。
  - 地址查询：Addr 在启动后返回真实监听地址，便于随机端口测试。
*/
package server
