package tlsutil

import (
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %d, want %d", cfg.MinVersion, tls.VersionTLS12)
	}
	if len(cfg.CipherSuites) == 0 {
		t.Error("CipherSuites should not be empty")
	}
	for _, cs := range cfg.CipherSuites {
		switch cs {
		case tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:
		default:
			t.Errorf("unexpected non-AEAD cipher suite: %d", cs)
		}
	}
}

func TestSecureTransport(t *testing.T) {
	tr := SecureTransport()
	if tr.TLSClientConfig == nil {
		t.Fatal("TLSClientConfig should not be nil")
	}
	if tr.MaxIdleConnsPerHost != 16 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 16", tr.MaxIdleConnsPerHost)
	}
	if !tr.ForceAttemptHTTP2 {
		t.Error("ForceAttemptHTTP2 should be true")
	}
}

func TestSecureHTTPClient(t *testing.T) {
	timeout := 15 * time.Second
	client := SecureHTTPClient(timeout)
	if client.Timeout != timeout {
		t.Errorf("Timeout = %v, want %v", client.Timeout, timeout)
	}
	if client.Transport == nil || client.CheckRedirect == nil {
		t.Fatal("Transport and CheckRedirect should be set")
	}
}

// redirectChain 每次请求都重定向到 /next
func redirectChain(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/final" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, srv.URL+"/next", http.StatusFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRedirectLimit(t *testing.T) {
	srv := redirectChain(t)

	_, err := SecureHTTPClientWithRedirects(5*time.Second, 2).Get(srv.URL + "/start")
	if err == nil {
		t.Fatal("expected redirect limit error")
	}

	resp, err := SecureHTTPClientWithRedirects(5*time.Second, 0).Get(srv.URL + "/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
}

func TestRedirectRejectsScheme(t *testing.T) {
	check := checkRedirect(5)
	req := &http.Request{URL: &url.URL{Scheme: "file", Path: "/etc/passwd"}}
	err := check(req, []*http.Request{{}})
	if !errors.Is(err, ErrRedirectScheme) {
		t.Errorf("err = %v, want ErrRedirectScheme", err)
	}
}
