package imaging

import "time"

// FetchConfig 配置图片下载。
type FetchConfig struct {
	Timeout   time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
	MaxBytes  int64         `json:"max_bytes,omitempty" yaml:"max_bytes,omitempty" env:"MAX_BYTES"` // 0 表示不限制
	UserAgent string        `json:"user_agent,omitempty" yaml:"user_agent,omitempty" env:"USER_AGENT"`
}

// DefaultFetchConfig 返回默认下载配置。
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		Timeout:   30 * time.Second,
		MaxBytes:  20 << 20,
		UserAgent: "imagenhancer/1.0",
	}
}
