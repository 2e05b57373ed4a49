package enhancer

import "github.com/BaSui01/imagenhancer/imaging"

// Config 增强流程配置
type Config struct {
	// 默认档位: v1, v2, v3
	Profile string `yaml:"profile" env:"PROFILE"`
	// 是否要求调用方提供用户 ID
	RequireUser bool `yaml:"require_user" env:"REQUIRE_USER"`
	// 源图下载
	Fetch imaging.FetchConfig `yaml:"fetch" env:"FETCH"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Profile: string(DefaultProfile),
		Fetch:   imaging.DefaultFetchConfig(),
	}
}
