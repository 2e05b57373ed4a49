package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BaSui01/imagenhancer/internal/tlsutil"
	"github.com/BaSui01/imagenhancer/types"
)

const maxErrorBody = 4 << 10

// doJSON 发送 JSON 请求并解码响应，把传输与状态错误映射为 types.Error。
func doJSON(ctx context.Context, client *http.Client, provider, method, url string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return types.NewError(types.ErrInternalError, "failed to marshal request").WithCause(err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return types.NewError(types.ErrInvalidRequest, "failed to create request").WithCause(err).WithProvider(provider)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil || errors.Is(err, context.DeadlineExceeded) {
			return types.NewError(types.ErrUpstreamTimeout, provider+" request timed out").
				WithCause(err).WithProvider(provider).WithHTTPStatus(http.StatusGatewayTimeout)
		}
		return types.NewError(types.ErrUpstreamError, provider+" request failed").
			WithCause(err).WithProvider(provider).WithRetryable(true).WithHTTPStatus(http.StatusBadGateway)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("%s error: status=%d body=%s", provider, resp.StatusCode, bytes.TrimSpace(errBody))).
			WithProvider(provider).
			WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewError(types.ErrUpstreamError, "failed to decode "+provider+" response").
			WithCause(err).WithProvider(provider).WithHTTPStatus(http.StatusBadGateway)
	}
	return nil
}

func newClient(client *http.Client, timeout time.Duration) *http.Client {
	if client != nil {
		return client
	}
	return tlsutil.SecureHTTPClient(timeout)
}
