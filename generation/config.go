package generation

import "time"

// 后端名称
const (
	BackendHost    = "host"
	BackendOpenAI  = "openai"
	BackendComfyUI = "comfyui"
)

// Config 生成后端配置
type Config struct {
	// 后端: host, openai, comfyui
	Backend string        `yaml:"backend" env:"BACKEND"`
	Host    HostConfig    `yaml:"host" env:"HOST"`
	OpenAI  OpenAIConfig  `yaml:"openai" env:"OPENAI"`
	ComfyUI ComfyUIConfig `yaml:"comfyui" env:"COMFYUI"`
}

// HostConfig Open WebUI 兼容的宿主生成接口
type HostConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Model   string        `yaml:"model" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// OpenAIConfig OpenAI 兼容的图像接口
type OpenAIConfig struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	Model   string        `yaml:"model" env:"MODEL"`
	Size    string        `yaml:"size" env:"SIZE"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ComfyUIConfig ComfyUI 工作流后端
type ComfyUIConfig struct {
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 工作流模板文件（API 格式导出的 JSON）
	WorkflowPath string `yaml:"workflow_path" env:"WORKFLOW_PATH"`
	// 接收 base64 图像的节点 ID 与输入名
	PromptNode  string `yaml:"prompt_node" env:"PROMPT_NODE"`
	PromptInput string `yaml:"prompt_input" env:"PROMPT_INPUT"`
	// 可选：批量大小所在节点与输入名
	BatchNode    string        `yaml:"batch_node" env:"BATCH_NODE"`
	BatchInput   string        `yaml:"batch_input" env:"BATCH_INPUT"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	MaxPolls     int           `yaml:"max_polls" env:"MAX_POLLS"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DefaultConfig 返回默认生成配置
func DefaultConfig() Config {
	return Config{
		Backend: BackendHost,
		Host: HostConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 120 * time.Second,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com",
			Model:   "dall-e-2",
			Size:    "1024x1024",
			Timeout: 120 * time.Second,
		},
		ComfyUI: ComfyUIConfig{
			BaseURL:      "http://localhost:8188",
			PromptInput:  "image",
			BatchInput:   "batch_size",
			PollInterval: 2 * time.Second,
			MaxPolls:     120,
			Timeout:      30 * time.Second,
		},
	}
}
