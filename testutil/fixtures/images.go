// Package fixtures 提供测试图像、图像源服务器与生成结果样例。
package fixtures

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/BaSui01/imagenhancer/generation"
	"github.com/BaSui01/imagenhancer/users"
)

// --- 测试图像 ---

// gradient 生成一张带渐变的 RGBA 图像，避免全零像素掩盖编码问题
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / max(w, 1)), G: uint8(y * 255 / max(h, 1)), B: 128, A: 255})
		}
	}
	return img
}

// PNG 返回 w×h 的 PNG 字节
func PNG(w, h int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG 返回 w×h 的 JPEG 字节
func JPEG(w, h int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// GIF 返回 w×h 的 GIF 字节
func GIF(w, h int) []byte {
	var buf bytes.Buffer
	if err := gif.Encode(&buf, gradient(w, h), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// --- 图像源服务器 ---

// ImageServer 图像源 httptest 服务器，记录请求次数
type ImageServer struct {
	*httptest.Server
	hits atomic.Int32
}

// Hits 返回收到的请求数
func (s *ImageServer) Hits() int { return int(s.hits.Load()) }

// NewImageServer 对任意路径返回同一份图像，测试结束时关闭
func NewImageServer(t testing.TB, data []byte, contentType string) *ImageServer {
	t.Helper()
	s := &ImageServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}))
	t.Cleanup(s.Close)
	return s
}

// --- 生成结果与用户 ---

// ResultURL 第 i 个样例结果的 URL
func ResultURL(i int) string {
	return fmt.Sprintf("https://cdn.example.com/generated/%d.png", i)
}

// Results 返回 n 个按序编号的生成结果
func Results(n int) []generation.Image {
	out := make([]generation.Image, n)
	for i := range out {
		out[i] = generation.Image{URL: ResultURL(i)}
	}
	return out
}

// Alice 带令牌的样例用户
func Alice() users.User {
	return users.User{ID: "u-alice", Name: "alice", Email: "alice@example.com", Role: "user", Token: "tok-alice"}
}
