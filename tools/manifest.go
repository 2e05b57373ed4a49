package tools

// Manifest 插件清单，供宿主的插件加载器读取。
type Manifest struct {
	ID                  string   `json:"id" yaml:"id"`
	Title               string   `json:"title" yaml:"title"`
	Description         string   `json:"description" yaml:"description"`
	Author              string   `json:"author,omitempty" yaml:"author,omitempty"`
	AuthorURL           string   `json:"author_url,omitempty" yaml:"author_url,omitempty"`
	GitURL              string   `json:"git_url,omitempty" yaml:"git_url,omitempty"`
	Version             string   `json:"version" yaml:"version"`
	License             string   `json:"license,omitempty" yaml:"license,omitempty"`
	RequiredHostVersion string   `json:"required_host_version,omitempty" yaml:"required_host_version,omitempty"`
	Tags                []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// EnhanceImageManifest enhance_image 工具的清单
var EnhanceImageManifest = Manifest{
	ID:    EnhanceImageToolName,
	Title: "Enhance Image",
	Description: "A tool that enhances an image by converting it to a base64 string and using it as a prompt " +
		"in a ComfyUI Workflow. Requires a workflow that loads the image through a base64-to-image node " +
		"and the host image generation prompt input pointed at that node.",
	Author:              "Patrick Williams",
	AuthorURL:           "https://reticulated.net",
	GitURL:              "https://github.com/pwillia7/open-webui-comfyui-imageprompt.git",
	Version:             "1.3",
	License:             "MIT",
	RequiredHostVersion: "0.4.3",
	Tags:                []string{"image", "comfyui", "generation"},
}
