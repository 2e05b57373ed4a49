package generation

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// NewFromConfig 按 Backend 创建生成后端
func NewFromConfig(cfg Config, client *http.Client, logger *zap.Logger) (Generator, error) {
	switch cfg.Backend {
	case "", BackendHost:
		return NewHostGenerator(cfg.Host, client, logger), nil
	case BackendOpenAI:
		return NewOpenAIGenerator(cfg.OpenAI, client, logger), nil
	case BackendComfyUI:
		return NewComfyUIGenerator(cfg.ComfyUI, client, logger)
	default:
		return nil, fmt.Errorf("unsupported generation backend: %s (supported: host, openai, comfyui)", cfg.Backend)
	}
}
