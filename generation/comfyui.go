package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/imagenhancer/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ComfyUIGenerator 把 base64 图像注入工作流模板并提交给 ComfyUI。
type ComfyUIGenerator struct {
	cfg      ComfyUIConfig
	template []byte
	client   *http.Client
	logger   *zap.Logger
}

// NewComfyUIGenerator 从文件加载工作流模板
func NewComfyUIGenerator(cfg ComfyUIConfig, client *http.Client, logger *zap.Logger) (*ComfyUIGenerator, error) {
	if cfg.WorkflowPath == "" {
		return nil, fmt.Errorf("comfyui workflow_path is required")
	}
	template, err := os.ReadFile(cfg.WorkflowPath)
	if err != nil {
		return nil, fmt.Errorf("read comfyui workflow: %w", err)
	}
	return NewComfyUIGeneratorFromTemplate(cfg, template, client, logger)
}

// NewComfyUIGeneratorFromTemplate 使用内存中的工作流模板
func NewComfyUIGeneratorFromTemplate(cfg ComfyUIConfig, template []byte, client *http.Client, logger *zap.Logger) (*ComfyUIGenerator, error) {
	if cfg.PromptNode == "" {
		return nil, fmt.Errorf("comfyui prompt_node is required")
	}
	if cfg.PromptInput == "" {
		cfg.PromptInput = "image"
	}
	if cfg.BatchInput == "" {
		cfg.BatchInput = "batch_size"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 120
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &ComfyUIGenerator{
		cfg:      cfg,
		template: template,
		client:   newClient(client, cfg.Timeout),
		logger:   logger.With(zap.String("component", "generator_comfyui")),
	}
	// 提前校验模板结构
	if _, err := g.buildWorkflow("", 0); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *ComfyUIGenerator) Name() string { return BackendComfyUI }

type comfyPromptRequest struct {
	Prompt   map[string]any `json:"prompt"`
	ClientID string         `json:"client_id"`
}

type comfyPromptResponse struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
}

type comfyHistoryEntry struct {
	Outputs map[string]struct {
		Images []comfyImageRef `json:"images"`
	} `json:"outputs"`
	Status struct {
		StatusStr string `json:"status_str"`
		Completed bool   `json:"completed"`
	} `json:"status"`
}

type comfyImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// buildWorkflow 复制模板并注入提示与批量大小
func (g *ComfyUIGenerator) buildWorkflow(prompt string, n int) (map[string]any, error) {
	var workflow map[string]any
	if err := json.Unmarshal(g.template, &workflow); err != nil {
		return nil, fmt.Errorf("invalid comfyui workflow: %w", err)
	}

	if err := setNodeInput(workflow, g.cfg.PromptNode, g.cfg.PromptInput, prompt); err != nil {
		return nil, err
	}
	if g.cfg.BatchNode != "" && n > 0 {
		if err := setNodeInput(workflow, g.cfg.BatchNode, g.cfg.BatchInput, n); err != nil {
			return nil, err
		}
	}
	return workflow, nil
}

func setNodeInput(workflow map[string]any, nodeID, input string, value any) error {
	node, ok := workflow[nodeID].(map[string]any)
	if !ok {
		return fmt.Errorf("comfyui workflow has no node %q", nodeID)
	}
	inputs, ok := node["inputs"].(map[string]any)
	if !ok {
		inputs = map[string]any{}
		node["inputs"] = inputs
	}
	inputs[input] = value
	return nil
}

// Generate 实现 Generator：提交工作流，轮询历史记录直到产出图像。
func (g *ComfyUIGenerator) Generate(ctx context.Context, req *Request) ([]Image, error) {
	workflow, err := g.buildWorkflow(req.Prompt, req.N)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to build workflow").WithCause(err).WithProvider(g.Name())
	}

	base := strings.TrimRight(g.cfg.BaseURL, "/")
	var queued comfyPromptResponse
	if err := doJSON(ctx, g.client, g.Name(), http.MethodPost, base+"/prompt", req.Forward,
		comfyPromptRequest{Prompt: workflow, ClientID: uuid.NewString()}, &queued); err != nil {
		return nil, err
	}
	if queued.PromptID == "" {
		return nil, types.NewError(types.ErrUpstreamError, "comfyui did not return a prompt_id").
			WithProvider(g.Name()).WithHTTPStatus(http.StatusBadGateway)
	}
	if len(queued.NodeErrors) > 0 {
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("comfyui rejected workflow: %v", queued.NodeErrors)).
			WithProvider(g.Name()).WithHTTPStatus(http.StatusBadGateway)
	}

	g.logger.Debug("workflow queued", zap.String("prompt_id", queued.PromptID))

	entry, err := g.pollHistory(ctx, base, queued.PromptID)
	if err != nil {
		return nil, err
	}
	return g.collectImages(base, entry), nil
}

func (g *ComfyUIGenerator) pollHistory(ctx context.Context, base, promptID string) (*comfyHistoryEntry, error) {
	endpoint := base + "/history/" + url.PathEscape(promptID)

	for i := 0; i < g.cfg.MaxPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, types.NewError(types.ErrUpstreamTimeout, "comfyui polling cancelled").
				WithCause(ctx.Err()).WithProvider(g.Name()).WithHTTPStatus(http.StatusGatewayTimeout)
		case <-time.After(g.cfg.PollInterval):
		}

		var history map[string]comfyHistoryEntry
		if err := doJSON(ctx, g.client, g.Name(), http.MethodGet, endpoint, nil, nil, &history); err != nil {
			if types.IsRetryable(err) {
				continue
			}
			return nil, err
		}

		entry, ok := history[promptID]
		if !ok {
			continue
		}
		if entry.Status.StatusStr == "error" {
			return nil, types.NewError(types.ErrUpstreamError, "comfyui workflow failed").
				WithProvider(g.Name()).WithHTTPStatus(http.StatusBadGateway)
		}
		if len(entry.Outputs) > 0 || entry.Status.Completed {
			return &entry, nil
		}
	}

	return nil, types.NewError(types.ErrUpstreamTimeout,
		fmt.Sprintf("comfyui generation not finished after %d polls", g.cfg.MaxPolls)).
		WithProvider(g.Name()).WithHTTPStatus(http.StatusGatewayTimeout)
}

// collectImages 按节点 ID 的数值顺序输出，非数字 ID 排在数字之后按字符串排序
func (g *ComfyUIGenerator) collectImages(base string, entry *comfyHistoryEntry) []Image {
	nodeIDs := make([]string, 0, len(entry.Outputs))
	for id := range entry.Outputs {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeLess(nodeIDs[i], nodeIDs[j]) })

	var images []Image
	for _, id := range nodeIDs {
		for _, ref := range entry.Outputs[id].Images {
			q := url.Values{}
			q.Set("filename", ref.Filename)
			q.Set("subfolder", ref.Subfolder)
			q.Set("type", ref.Type)
			images = append(images, Image{URL: base + "/view?" + q.Encode()})
		}
	}
	return images
}

func nodeLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
