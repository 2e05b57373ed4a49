package generation

import (
	"context"

	"github.com/BaSui01/imagenhancer/users"
)

// Generator 宿主图像生成入口的抽象。
type Generator interface {
	// Name 后端名称，用于日志与指标标签
	Name() string
	// Generate 以 prompt 发起生成，按宿主返回顺序给出结果
	Generate(ctx context.Context, req *Request) ([]Image, error)
}

// Request 一次生成请求。
type Request struct {
	// Prompt 自由文本提示，这里承载 base64 编码的 PNG
	Prompt string `json:"prompt"`
	// N 期望数量，0 表示由后端决定
	N int `json:"n,omitempty"`
	// User 调用方身份，可为空
	User *users.User `json:"-"`
	// Forward 需要透传给宿主的请求上下文（如 X-Request-ID）
	Forward map[string]string `json:"-"`
}

// Image 宿主返回的图像描述，至少包含可访问的 URL。
type Image struct {
	URL string `json:"url"`
}

// token 选择调用凭证：用户令牌优先，其次是后端配置的密钥。
func (r *Request) token(fallback string) string {
	if r.User != nil && r.User.Token != "" {
		return r.User.Token
	}
	return fallback
}
