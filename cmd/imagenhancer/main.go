// =============================================================================
// imagenhancer 主入口
// =============================================================================
// 图像增强工具服务：HTTP/SSE/WebSocket 工具接口、一次性 CLI 增强、用户管理
//
// 使用方法:
//
//	imagenhancer serve                              # 启动服务
//	imagenhancer serve --config config.yaml         # 指定配置文件
//	imagenhancer enhance --url U --user ID          # 一次性增强，事件以 JSON 行输出
//	imagenhancer users add --id ID --token T        # 添加/更新宿主用户
//	imagenhancer version                            # 显示版本信息
//	imagenhancer health                             # 健康检查
// =============================================================================

// @title imagenhancer API
// @version 1.3.0
// @description Image Enhancer tool service: fetches an image, re-encodes it as base64 PNG and submits it to the host image generation backend.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/imagenhancer/config"
	"github.com/BaSui01/imagenhancer/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "enhance":
		os.Exit(runEnhance(os.Args[2:]))
	case "users":
		os.Exit(runUsers(os.Args[2:]))
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置，失败时退出
func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if Version == "dev" {
		Version = telemetry.BuildVersion()
	}
	logger.Info("Starting imagenhancer",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	srv := NewServer(cfg, logger).WithTelemetry(otelProviders)
	if err := srv.Init(); err != nil {
		logger.Fatal("Failed to initialize server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return
	}

	logger.Info("imagenhancer stopped")
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("imagenhancer %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`imagenhancer - Image Enhancer tool service

Usage:
  imagenhancer <command> [options]

Commands:
  serve     Start the HTTP tool server
  enhance   Enhance one or more images and print events as JSON lines
  users     Manage host users (users add)
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'enhance':
  --url <url>       Image URL (repeatable)
  --user <id>       Host user ID
  --profile <p>     v1, v2 or v3 (default from config)
  --config <path>   Path to configuration file (YAML)

Options for 'users add':
  --id, --name, --email, --role, --token, --config

Examples:
  imagenhancer serve --config /etc/imagenhancer/config.yaml
  imagenhancer enhance --url https://example.com/a.jpg --url https://example.com/b.png --user u-1
  imagenhancer users add --id u-1 --name alice --token sk-xxx --config config.yaml
  imagenhancer health --addr http://localhost:8080
  imagenhancer version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	var opts []zap.Option
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
