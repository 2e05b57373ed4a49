package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/BaSui01/imagenhancer/types"
	"go.uber.org/zap"
)

// HostGenerator 调用 Open WebUI 兼容的 /api/v1/images/generations。
type HostGenerator struct {
	cfg    HostConfig
	client *http.Client
	logger *zap.Logger
}

// NewHostGenerator 创建宿主生成后端
func NewHostGenerator(cfg HostConfig, client *http.Client, logger *zap.Logger) *HostGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostGenerator{
		cfg:    cfg,
		client: newClient(client, cfg.Timeout),
		logger: logger.With(zap.String("component", "generator_host")),
	}
}

func (g *HostGenerator) Name() string { return BackendHost }

type hostRequest struct {
	Model  string `json:"model,omitempty"`
	Prompt string `json:"prompt"`
	N      int    `json:"n,omitempty"`
}

// Generate 实现 Generator。响应可以是 [{url}] 数组，也可以是 {"data":[{url}]}。
func (g *HostGenerator) Generate(ctx context.Context, req *Request) ([]Image, error) {
	headers := map[string]string{}
	for k, v := range req.Forward {
		headers[k] = v
	}
	if token := req.token(g.cfg.APIKey); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	var raw json.RawMessage
	endpoint := strings.TrimRight(g.cfg.BaseURL, "/") + "/api/v1/images/generations"
	if err := doJSON(ctx, g.client, g.Name(), http.MethodPost, endpoint, headers,
		hostRequest{Model: g.cfg.Model, Prompt: req.Prompt, N: req.N}, &raw); err != nil {
		return nil, err
	}

	images, err := decodeImageList(raw)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "unexpected host response").
			WithCause(err).WithProvider(g.Name()).WithHTTPStatus(http.StatusBadGateway)
	}

	g.logger.Debug("host generation finished", zap.Int("results", len(images)))
	return images, nil
}

func decodeImageList(raw json.RawMessage) ([]Image, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var list []Image
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	var wrapped struct {
		Data []Image `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Data, nil
}
