package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BaSui01/imagenhancer/enhancer"
	"github.com/BaSui01/imagenhancer/types"
	"go.uber.org/zap"
)

// EnhanceImageToolName 工具名称
const EnhanceImageToolName = "enhance_image"

// EnhanceImageArgs 工具参数
type EnhanceImageArgs struct {
	ImageURL string `json:"image_url"`
	Profile  string `json:"profile,omitempty"`
}

// EnhanceImageResult 工具返回值
type EnhanceImageResult struct {
	Result string `json:"result"`
}

var enhanceImageParameters = json.RawMessage(`{
	"type": "object",
	"properties": {
		"image_url": {
			"type": "string",
			"description": "A valid image URL starting with http:// or https://."
		},
		"profile": {
			"type": "string",
			"enum": ["v1", "v2", "v3"],
			"description": "Result selection profile. Defaults to the server setting."
		}
	},
	"required": ["image_url"]
}`)

// EnhanceImageSchema enhance_image 的调用 Schema
func EnhanceImageSchema() types.ToolSchema {
	return types.ToolSchema{
		Name:        EnhanceImageToolName,
		Description: "Enhance an image from a URL by processing it and generating an enhanced version.",
		Parameters:  enhanceImageParameters,
		Version:     EnhanceImageManifest.Version,
	}
}

// NewEnhanceImageTool 创建 enhance_image 工具。
//
// 用户 ID 取自 types.UserID(ctx)，事件回调取自 EmitterFromContext(ctx)。
func NewEnhanceImageTool(enh *enhancer.Enhancer, timeout time.Duration, logger *zap.Logger) (ToolFunc, ToolMetadata) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("tool", EnhanceImageToolName))
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in EnhanceImageArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, types.NewError(types.ErrToolValidation, "invalid enhance_image arguments").WithCause(err)
		}
		profile, err := enhancer.ParseProfile(in.Profile, enh.DefaultProfile())
		if err != nil {
			return nil, err
		}

		userID, _ := types.UserID(ctx)
		out, err := enh.Enhance(ctx, enhancer.Request{
			ImageURL: in.ImageURL,
			UserID:   userID,
			Profile:  profile,
			Forward:  ForwardFromContext(ctx),
		}, EmitterFromContext(ctx))
		if err != nil {
			return nil, err
		}

		logger.Debug("enhance_image finished", zap.String("user_id", userID), zap.String("profile", string(profile)))
		return json.Marshal(EnhanceImageResult{Result: out})
	}

	manifest := EnhanceImageManifest
	return fn, ToolMetadata{
		Schema:      EnhanceImageSchema(),
		Manifest:    &manifest,
		Timeout:     timeout,
		Description: manifest.Description,
	}
}

// RegisterEnhanceImageTool 注册 enhance_image 工具
func RegisterEnhanceImageTool(registry ToolRegistry, enh *enhancer.Enhancer, timeout time.Duration, rateLimit *RateLimitConfig, logger *zap.Logger) error {
	fn, meta := NewEnhanceImageTool(enh, timeout, logger)
	meta.RateLimit = rateLimit
	return registry.Register(EnhanceImageToolName, fn, meta)
}
