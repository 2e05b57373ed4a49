package imaging

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/BaSui01/imagenhancer/internal/tlsutil"
	"github.com/BaSui01/imagenhancer/types"
	"go.uber.org/zap"
)

// Fetcher 通过 HTTP 下载图片原始字节。
type Fetcher struct {
	cfg    FetchConfig
	client *http.Client
	logger *zap.Logger
}

// NewFetcher 创建 Fetcher。client 为 nil 时按 cfg.Timeout 新建。
func NewFetcher(cfg FetchConfig, client *http.Client, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		client = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	return &Fetcher{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("component", "fetcher")),
	}
}

// Fetch 下载 url 指向的内容。非 2xx、超限或网络错误都返回 *types.Error。
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidURL, "failed to create request").WithCause(err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrTimeout, "image fetch cancelled").WithCause(err)
		}
		return nil, types.NewError(types.ErrFetchFailed, "image fetch failed").WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, types.NewError(types.ErrFetchFailed, fmt.Sprintf("image fetch returned HTTP %d", resp.StatusCode)).
			WithRetryable(resp.StatusCode >= 500)
	}

	var body io.Reader = resp.Body
	if f.cfg.MaxBytes > 0 {
		// 多读 1 字节用于判断是否超限
		body = io.LimitReader(resp.Body, f.cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, types.NewError(types.ErrFetchFailed, "failed to read image body").WithCause(err)
	}
	if f.cfg.MaxBytes > 0 && int64(len(data)) > f.cfg.MaxBytes {
		return nil, types.NewError(types.ErrPayloadTooLarge,
			fmt.Sprintf("image exceeds %d bytes", f.cfg.MaxBytes))
	}

	f.logger.Debug("image fetched",
		zap.String("url", url),
		zap.Int("bytes", len(data)),
		zap.String("content_type", resp.Header.Get("Content-Type")))

	return data, nil
}
