package tlsutil

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// DefaultMaxRedirects 出站请求默认最多跟随的重定向次数
const DefaultMaxRedirects = 5

// ErrRedirectScheme 重定向到非 http(s) 地址
var ErrRedirectScheme = errors.New("redirect to unsupported scheme")

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// SecureTransport returns an http.Transport with TLS hardening.
// 生成后端与图像源通常是少数几个固定主机，按主机保留更多空闲连接。
func SecureTransport() *http.Transport {
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// SecureHTTPClient returns an http.Client with TLS hardening
// that follows at most DefaultMaxRedirects http(s) redirects.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return SecureHTTPClientWithRedirects(timeout, DefaultMaxRedirects)
}

// SecureHTTPClientWithRedirects 同 SecureHTTPClient，可指定重定向上限；0 表示不跟随。
func SecureHTTPClientWithRedirects(timeout time.Duration, maxRedirects int) *http.Client {
	return &http.Client{
		Timeout:       timeout,
		Transport:     SecureTransport(),
		CheckRedirect: checkRedirect(maxRedirects),
	}
}

func checkRedirect(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if maxRedirects <= 0 {
			return http.ErrUseLastResponse
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
			return fmt.Errorf("%w: %s", ErrRedirectScheme, req.URL.Scheme)
		}
		return nil
	}
}
