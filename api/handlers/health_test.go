package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/imagenhancer/internal/pubsub"
	"github.com/BaSui01/imagenhancer/users"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) ServiceHealthResponse {
	t.Helper()
	var status ServiceHealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return status
}

// sqliteUsersCheck 内存 sqlite 用户库的 ping 检查
func sqliteUsersCheck(t *testing.T) HealthCheck {
	t.Helper()
	store, closeStore, err := users.Open(users.Config{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeStore() })

	pinger, ok := store.(interface{ Ping(context.Context) error })
	require.True(t, ok, "gorm store must expose Ping")
	return NewPingCheck("users", pinger.Ping)
}

// redisBus 返回事件总线与停止 Redis 的函数，用于模拟故障
func redisBus(t *testing.T) (*pubsub.Bus, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	bus, err := pubsub.NewBus(pubsub.Config{Addr: mr.Addr(), Prefix: "health:events", ReplayTTL: time.Minute}, zap.NewNop())
	require.NoError(t, err)

	var once sync.Once
	stop := func() { once.Do(mr.Close) }
	t.Cleanup(func() {
		_ = bus.Close()
		stop()
	})
	return bus, stop
}

// =============================================================================
// 🧪 存活探针
// =============================================================================

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler(zap.NewNop()).WithVersion("1.3.0")

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	status := decodeHealth(t, w)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "1.3.0", status.Version)
	assert.False(t, status.Timestamp.IsZero())

	// 存活探针不执行依赖检查
	h.RegisterCheck(NewPingCheck("redis", func(context.Context) error { return errors.New("connection refused") }))
	w = httptest.NewRecorder()
	h.HandleHealthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeHealth(t, w).Checks)
}

// =============================================================================
// 🧪 就绪探针：用户库与 Redis
// =============================================================================

func TestHealthHandler_Ready_UsersAndRedis(t *testing.T) {
	bus, _ := redisBus(t)

	h := NewHealthHandler(zap.NewNop()).WithVersion("1.3.0")
	h.RegisterCheck(sqliteUsersCheck(t))
	h.RegisterCheck(NewPingCheck("redis", bus.Ping))

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	status := decodeHealth(t, w)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "1.3.0", status.Version)
	require.Len(t, status.Checks, 2)
	assert.Equal(t, "pass", status.Checks["users"].Status)
	assert.Equal(t, "pass", status.Checks["redis"].Status)
	assert.NotEmpty(t, status.Checks["redis"].Latency)
}

func TestHealthHandler_Ready_RedisDown(t *testing.T) {
	bus, stopRedis := redisBus(t)

	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(sqliteUsersCheck(t))
	h.RegisterCheck(NewPingCheck("redis", bus.Ping))
	stopRedis()

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	status := decodeHealth(t, w)
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "pass", status.Checks["users"].Status)
	assert.Equal(t, "fail", status.Checks["redis"].Status)
	assert.NotEmpty(t, status.Checks["redis"].Message)
}

func TestHealthHandler_Ready_NoChecks(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(nil).HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeHealth(t, w).Status)
}

func TestHealthHandler_Ready_ChecksRunInParallel(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(100 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for _, name := range []string{"users", "redis", "generation"} {
		h.RegisterCheck(NewPingCheck(name, slow))
	}

	start := time.Now()
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Len(t, decodeHealth(t, w).Checks, 3)
}

func TestHealthHandler_Ready_ConcurrentRequests(t *testing.T) {
	bus, _ := redisBus(t)
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewPingCheck("redis", bus.Ping))

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			codes[i] = w.Code
		}()
	}
	wg.Wait()

	for _, code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}
}

// =============================================================================
// 🧪 版本信息
// =============================================================================

func TestHealthHandler_HandleVersion(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(nil).HandleVersion("1.3.0", "2026-01-01T00:00:00Z", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.3.0", data["version"])
	assert.Equal(t, "2026-01-01T00:00:00Z", data["build_time"])
	assert.Equal(t, "abc123", data["git_commit"])
}

func TestPingCheck(t *testing.T) {
	check := sqliteUsersCheck(t)
	assert.Equal(t, "users", check.Name())
	assert.NoError(t, check.Check(context.Background()))
}
