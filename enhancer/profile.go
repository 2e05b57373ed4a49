package enhancer

import (
	"fmt"
	"strings"

	"github.com/BaSui01/imagenhancer/generation"
	"github.com/BaSui01/imagenhancer/types"
)

// Profile 增强档位，对应插件的三个历史版本。
type Profile string

const (
	// ProfileV1 取最后三个结果，不足三个时全部发送
	ProfileV1 Profile = "v1"
	// ProfileV2 按 1,0,2 的顺序取三个结果，并先展示原图
	ProfileV2 Profile = "v2"
	// ProfileV3 取下标 1,2,3，请求数量为 4，失败时返回传输层错误
	ProfileV3 Profile = "v3"
)

// DefaultProfile 默认档位
const DefaultProfile = ProfileV3

// Profiles 所有已知档位
func Profiles() []Profile {
	return []Profile{ProfileV1, ProfileV2, ProfileV3}
}

// ParseProfile 解析档位名称，空串返回 fallback。
func ParseProfile(s string, fallback Profile) (Profile, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return fallback, nil
	}
	p := Profile(s)
	if !p.Valid() {
		return "", types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unknown profile %q (supported: v1, v2, v3)", s))
	}
	return p, nil
}

// Valid 是否为已知档位
func (p Profile) Valid() bool {
	switch p {
	case ProfileV1, ProfileV2, ProfileV3:
		return true
	}
	return false
}

// ShowOriginal 是否在处理前先发送原图消息
func (p Profile) ShowOriginal() bool { return p != ProfileV1 }

// RequestCount 向后端请求的数量，0 表示不指定
func (p Profile) RequestCount() int {
	if p == ProfileV3 {
		return 4
	}
	return 0
}

// ForwardContext 是否把请求上下文透传给生成后端
func (p Profile) ForwardContext() bool { return p == ProfileV3 }

// RaiseOnFailure 失败时是否返回传输层错误而不是错误文本
func (p Profile) RaiseOnFailure() bool { return p == ProfileV3 }

// SuccessText 成功时的返回文本
func (p Profile) SuccessText(delivered int) string {
	if p == ProfileV1 {
		return ""
	}
	return fmt.Sprintf("Enhanced image ready: %d result(s) delivered.", delivered)
}

// Select 按档位挑选要展示的结果。结果数量不足时返回 INSUFFICIENT_RESULTS。
func (p Profile) Select(results []generation.Image) ([]generation.Image, error) {
	var idx []int
	switch p {
	case ProfileV1:
		start := len(results) - 3
		if start < 0 {
			start = 0
		}
		out := make([]generation.Image, len(results)-start)
		copy(out, results[start:])
		return out, nil
	case ProfileV2:
		idx = []int{1, 0, 2}
	case ProfileV3:
		idx = []int{1, 2, 3}
	default:
		return nil, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown profile %q", p))
	}

	out := make([]generation.Image, 0, len(idx))
	for _, i := range idx {
		if i >= len(results) {
			return nil, types.NewError(types.ErrInsufficientResults,
				fmt.Sprintf("list index out of range: profile %s needs result %d, got %d result(s)", p, i, len(results))).
				WithHTTPStatus(502)
		}
		out = append(out, results[i])
	}
	return out, nil
}
