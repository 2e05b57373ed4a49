// Package generation 封装宿主的图像生成入口。
//
// # 后端
//
//   - host: Open WebUI 兼容的 /api/v1/images/generations，按用户令牌鉴权
//   - openai: OpenAI 兼容的 /v1/images/generations
//   - comfyui: 把 base64 图像注入工作流模板，提交 /prompt 后轮询 /history
//
// 所有后端按宿主返回顺序给出 []Image，结果的挑选交给 enhancer 的档位。
// 传输错误统一映射为 types.Error（UPSTREAM_ERROR / UPSTREAM_TIMEOUT）。
package generation
