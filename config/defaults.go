// =============================================================================
// 📦 imagenhancer 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/imagenhancer/enhancer"
	"github.com/BaSui01/imagenhancer/generation"
	"github.com/BaSui01/imagenhancer/internal/pubsub"
	"github.com/BaSui01/imagenhancer/users"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		JWT:        JWTConfig{},
		Enhancer:   enhancer.DefaultConfig(),
		Generation: generation.DefaultConfig(),
		Users:      DefaultUsersConfig(),
		Redis:      pubsub.DefaultConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		ToolTimeout:     5 * time.Minute,
		ToolRateWindow:  time.Minute,
		TrustBodyUserID: true,
	}
}

// DefaultUsersConfig 返回默认用户存储配置
func DefaultUsersConfig() users.Config {
	return users.Config{
		Driver:          "memory",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "imagenhancer",
		SampleRate:   0.1,
	}
}
