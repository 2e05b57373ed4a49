package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/BaSui01/imagenhancer/types"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Transcode 解码任意已注册格式的图片并重新编码为 PNG。
// 返回 PNG 字节与源格式名（png、jpeg、gif、webp、bmp、tiff）。
func Transcode(data []byte) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", types.NewError(types.ErrDecodeFailed, "empty image payload")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", types.NewError(types.ErrDecodeFailed, "cannot identify image file").WithCause(err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, format, types.NewError(types.ErrEncodeFailed, "png encode failed").WithCause(err)
	}
	return buf.Bytes(), format, nil
}

// EncodePrompt 把 PNG 字节编码为标准 base64（带填充）文本。
func EncodePrompt(pngData []byte) string {
	return base64.StdEncoding.EncodeToString(pngData)
}

// DecodeConfig 只读取图片头部，返回宽高与格式。
func DecodeConfig(data []byte) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, "", types.NewError(types.ErrDecodeFailed, "cannot read image header").WithCause(err)
	}
	return cfg, format, nil
}
