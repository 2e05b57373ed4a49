// Copyright (c) imagenhancer Authors.
// Licensed under the MIT License.

/*
Package enhancer 实现图像增强适配器：把一张图片的 URL 变成宿主生成入口的
base64 prompt，并把生成结果以聊天消息推送回去。

# 流程

	开始状态 → URL 前缀校验 → 下载 → 解码 → PNG → base64
	→ (原图消息) → 处理完成状态 → 解析用户 → 生成 → 按档位挑选
	→ N 条结果消息 → 汇总消息 → 完成状态

URL 前缀校验是唯一被区分的前置条件，其余任何失败都走同一个出口：
发送 "An error occurred: ..." 的 done 状态，然后按档位返回错误文本
或带 HTTP 状态的 *types.Error。没有重试，也没有部分结果。

# 档位

  - v1: 取最后三个结果，返回空串
  - v2: 先展示原图，按 1,0,2 取三个结果
  - v3: 先展示原图，请求 4 个并透传请求上下文，取下标 1,2,3，失败时返回错误
*/
package enhancer
