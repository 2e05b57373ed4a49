package generation

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// OpenAIGenerator 调用 OpenAI 兼容的 /v1/images/generations。
type OpenAIGenerator struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIGenerator 创建 OpenAI 生成后端
func NewOpenAIGenerator(cfg OpenAIConfig, client *http.Client, logger *zap.Logger) *OpenAIGenerator {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIGenerator{
		cfg:    cfg,
		client: newClient(client, cfg.Timeout),
		logger: logger.With(zap.String("component", "generator_openai")),
	}
}

func (g *OpenAIGenerator) Name() string { return BackendOpenAI }

type openaiImageRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	N      int    `json:"n,omitempty"`
	Size   string `json:"size,omitempty"`
	User   string `json:"user,omitempty"`
}

type openaiImageResponse struct {
	Created int64 `json:"created"`
	Data    []struct {
		URL     string `json:"url,omitempty"`
		B64JSON string `json:"b64_json,omitempty"`
	} `json:"data"`
}

// Generate 实现 Generator。b64_json 结果转换为 data URL。
func (g *OpenAIGenerator) Generate(ctx context.Context, req *Request) ([]Image, error) {
	body := openaiImageRequest{
		Model:  g.cfg.Model,
		Prompt: req.Prompt,
		N:      req.N,
		Size:   g.cfg.Size,
	}
	if req.User != nil {
		body.User = req.User.ID
	}

	headers := map[string]string{"Authorization": "Bearer " + g.cfg.APIKey}
	for k, v := range req.Forward {
		headers[k] = v
	}

	var resp openaiImageResponse
	endpoint := strings.TrimRight(g.cfg.BaseURL, "/") + "/v1/images/generations"
	if err := doJSON(ctx, g.client, g.Name(), http.MethodPost, endpoint, headers, body, &resp); err != nil {
		return nil, err
	}

	images := make([]Image, 0, len(resp.Data))
	for _, d := range resp.Data {
		switch {
		case d.URL != "":
			images = append(images, Image{URL: d.URL})
		case d.B64JSON != "":
			images = append(images, Image{URL: "data:image/png;base64," + d.B64JSON})
		}
	}

	g.logger.Debug("openai generation finished", zap.Int("results", len(images)))
	return images, nil
}
