// 版权所有 2024 imagenhancer Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
增强流程、生成后端、工具调用与事件总线。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 增强指标：按 profile/outcome 计数的调用次数与耗时，源图大小分布。
  - 生成指标：按 backend 分组的调用耗时与返回图像数量。
  - 工具与事件：工具调用结果计数，事件按 sink/type 的投递计数。
*/
package metrics
