package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/imagenhancer/api/handlers"
	"github.com/BaSui01/imagenhancer/config"
	"github.com/BaSui01/imagenhancer/types"
)

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := SecurityHeaders()(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	handler := Chain(inner, SecurityHeaders(), RequestID())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestChain_SkipsNilMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	// APIKeyAuth 无 key 时返回 nil
	handler := Chain(inner, APIKeyAuth(nil, nil, false, zap.NewNop()), nil)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestRequestID_PreservesClientValue(t *testing.T) {
	var seen, forwarded string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
		forwarded = r.Header.Get("X-Request-ID")
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "client-7")
	w := httptest.NewRecorder()
	RequestID()(inner).ServeHTTP(w, r)

	assert.Equal(t, "client-7", seen)
	assert.Equal(t, "client-7", forwarded)
	assert.Equal(t, "client-7", w.Header().Get("X-Request-ID"))
}

func TestRequestID_GeneratesAndForwards(t *testing.T) {
	var forwarded string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded = r.Header.Get("X-Request-ID")
	})

	w := httptest.NewRecorder()
	RequestID()(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Header().Get("X-Request-ID")
	assert.Regexp(t, `^req-[0-9a-f]{32}$`, id)
	assert.Equal(t, id, forwarded)
}

func TestRecovery(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	Recovery(zap.NewNop())(inner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(types.ErrInternalError))
}

func TestAPIKeyAuth(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		allowQuery bool
		path       string
		header     string
		wantStatus int
	}{
		{name: "valid header", path: "/api/v1/tools", header: "k1", wantStatus: http.StatusOK},
		{name: "invalid header", path: "/api/v1/tools", header: "nope", wantStatus: http.StatusUnauthorized},
		{name: "missing key", path: "/api/v1/tools", wantStatus: http.StatusUnauthorized},
		{name: "skip path", path: "/health", wantStatus: http.StatusOK},
		{name: "query key allowed", allowQuery: true, path: "/api/v1/tools?api_key=k2", wantStatus: http.StatusOK},
		{name: "query key ignored", path: "/api/v1/tools?api_key=k2", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := APIKeyAuth([]string{"k1", "k2"}, []string{"/health"}, tt.allowQuery, zap.NewNop())
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("X-API-Key", tt.header)
			}
			w := httptest.NewRecorder()
			mw(inner).ServeHTTP(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(inner)

	send := func(remote, user string) int {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
		r.RemoteAddr = remote
		if user != "" {
			r = r.WithContext(types.WithUserID(r.Context(), user))
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234", ""))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234", ""))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5678", ""))

	// 另一个 IP 与已认证用户各自独立计数
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1234", ""))
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1234", "u-1"))
}

func TestRateLimiter_DisabledWhenZero(t *testing.T) {
	assert.Nil(t, RateLimiter(context.Background(), 0, 10, zap.NewNop()))
}

func TestCORS(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORS([]string{"https://chat.example.com"})(inner)

	r := httptest.NewRequest(http.MethodOptions, "/api/v1/tools/enhance_image", nil)
	r.Header.Set("Origin", "https://chat.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://chat.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_NoOriginsRejectsPreflight(t *testing.T) {
	handler := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodOptions, "/", nil)
	r.Header.Set("Origin", "https://chat.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTAuth(t *testing.T) {
	cfg := config.JWTConfig{Enabled: true, Secret: "s3cret", Issuer: "chat-host"}

	var gotUser string
	var gotRoles []string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = types.UserID(r.Context())
		gotRoles, _ = types.Roles(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := JWTAuth(cfg, []string{"/health"}, zap.NewNop())(inner)

	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name       string
		auth       string
		path       string
		wantStatus int
		wantUser   string
	}{
		{
			name:       "user_id claim",
			auth:       "Bearer " + signHS256(t, "s3cret", jwt.MapClaims{"user_id": "u-1", "iss": "chat-host", "exp": exp, "roles": []string{"admin"}}),
			path:       "/api/v1/tools",
			wantStatus: http.StatusOK,
			wantUser:   "u-1",
		},
		{
			name:       "sub fallback",
			auth:       "Bearer " + signHS256(t, "s3cret", jwt.MapClaims{"sub": "u-2", "iss": "chat-host", "exp": exp}),
			path:       "/api/v1/tools",
			wantStatus: http.StatusOK,
			wantUser:   "u-2",
		},
		{
			name:       "wrong secret",
			auth:       "Bearer " + signHS256(t, "other", jwt.MapClaims{"sub": "u-2", "iss": "chat-host", "exp": exp}),
			path:       "/api/v1/tools",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong issuer",
			auth:       "Bearer " + signHS256(t, "s3cret", jwt.MapClaims{"sub": "u-2", "iss": "other", "exp": exp}),
			path:       "/api/v1/tools",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired",
			auth:       "Bearer " + signHS256(t, "s3cret", jwt.MapClaims{"sub": "u-2", "iss": "chat-host", "exp": time.Now().Add(-time.Hour).Unix()}),
			path:       "/api/v1/tools",
			wantStatus: http.StatusUnauthorized,
		},
		{name: "missing header", path: "/api/v1/tools", wantStatus: http.StatusUnauthorized},
		{name: "skip path", path: "/health", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser, gotRoles = "", nil
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			if tt.name == "user_id claim" {
				assert.Equal(t, []string{"admin"}, gotRoles)
			}
		})
	}
}

func TestJWTAuth_DisabledReturnsNil(t *testing.T) {
	assert.Nil(t, JWTAuth(config.JWTConfig{}, nil, zap.NewNop()))
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/health", "/health"},
		{"/api/v1/tools/enhance_image", "/api/v1/tools/enhance_image"},
		{"/api/v1/tools/enhance_image/ws", "/api/v1/tools/enhance_image/ws"},
		{"/api/v1/sessions/chat-42/events", "/api/v1/sessions/:id/events"},
		{"/api/v1/sessions/abc", "/api/v1/sessions/:id"},
		{"/api/v1/things/12345", "/api/v1/things/:id"},
		{"/api/v1/things/550e8400-e29b-41d4-a716-446655440000", "/api/v1/things/:id"},
		{"/api/v1/things/named", "/api/v1/things/named"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in), tt.in)
	}
}

func TestRequestLogger_KeepsFlusher(t *testing.T) {
	var flushable bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushable = w.(http.Flusher)
		w.(http.Flusher).Flush()
	})

	w := httptest.NewRecorder()
	Chain(inner, RequestLogger(zap.NewNop()), OTelTracing()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, flushable)
	assert.True(t, w.Flushed)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &metricsResponseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	w.WriteHeader(http.StatusAccepted)
	w.WriteHeader(http.StatusInternalServerError)
	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	w.Flush()

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusAccepted, w.statusCode)
	assert.EqualValues(t, 5, w.bytesWritten)
	assert.True(t, rec.Flushed)
	assert.Same(t, rec, w.Unwrap())
}

func TestWriteAuthError(t *testing.T) {
	w := httptest.NewRecorder()
	writeAuthError(w, "nope")

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp handlers.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrAuthentication), resp.Error.Code)
	assert.Equal(t, "nope", resp.Error.Message)
}
