package enhancer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/imagenhancer/events"
	"github.com/BaSui01/imagenhancer/generation"
	"github.com/BaSui01/imagenhancer/imaging"
	"github.com/BaSui01/imagenhancer/types"
	"github.com/BaSui01/imagenhancer/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试替身
// =============================================================================

type fakeGenerator struct {
	mu      sync.Mutex
	results []generation.Image
	err     error
	calls   []*generation.Request
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(_ context.Context, req *generation.Request) ([]generation.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	return g.results, g.err
}

type fakeFetcher struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

type fakeMetrics struct {
	mu          sync.Mutex
	outcomes    []string
	fetches     int
	generations []string
}

func (m *fakeMetrics) RecordEnhance(profile, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, profile+":"+outcome)
}

func (m *fakeMetrics) RecordFetch(int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
}

func (m *fakeMetrics) RecordGeneration(backend, status string, _ time.Duration, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations = append(m.generations, backend+":"+status)
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestEnhancer(t *testing.T, gen generation.Generator, opts ...Option) *Enhancer {
	t.Helper()
	e, err := New(DefaultConfig(), gen, zap.NewNop(), opts...)
	require.NoError(t, err)
	return e
}

func doneStatuses(evs []events.Event) []events.Event {
	var out []events.Event
	for _, ev := range evs {
		if ev.IsTerminal() {
			out = append(out, ev)
		}
	}
	return out
}

// =============================================================================
// 🧪 Enhance 测试
// =============================================================================

func TestEnhance_InvalidURL(t *testing.T) {
	for _, profile := range Profiles() {
		t.Run(string(profile), func(t *testing.T) {
			gen := &fakeGenerator{}
			fetcher := &fakeFetcher{}
			metrics := &fakeMetrics{}
			e := newTestEnhancer(t, gen, WithFetcher(fetcher), WithMetrics(metrics))
			rec := events.NewRecorder()

			out, err := e.Enhance(context.Background(), Request{ImageURL: "ftp://example.com/a.png", Profile: profile}, rec)
			require.NoError(t, err)
			assert.Equal(t, MsgInvalidURL, out)
			assert.Equal(t, 0, fetcher.calls)
			assert.Empty(t, gen.calls)
			assert.Equal(t, []events.Event{
				events.Status(MsgStart, false),
				events.Status(MsgInvalidURL, true),
			}, rec.Events())
			assert.Equal(t, []string{string(profile) + ":" + OutcomeRejected}, metrics.outcomes)
		})
	}
}

func TestEnhance_Success(t *testing.T) {
	results := []generation.Image{{URL: "/r0"}, {URL: "/r1"}, {URL: "/r2"}, {URL: "/r3"}, {URL: "/r4"}}
	const src = "https://example.com/cat.jpg"

	tests := []struct {
		profile  Profile
		wantURLs []string
		wantOut  string
		wantN    int
	}{
		{profile: ProfileV1, wantURLs: []string{"/r2", "/r3", "/r4"}, wantOut: "", wantN: 0},
		{profile: ProfileV2, wantURLs: []string{"/r1", "/r0", "/r2"}, wantOut: "Enhanced image ready: 3 result(s) delivered.", wantN: 0},
		{profile: ProfileV3, wantURLs: []string{"/r1", "/r2", "/r3"}, wantOut: "Enhanced image ready: 3 result(s) delivered.", wantN: 4},
	}

	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			gen := &fakeGenerator{results: results}
			metrics := &fakeMetrics{}
			e := newTestEnhancer(t, gen, WithFetcher(&fakeFetcher{data: testPNG(t)}), WithMetrics(metrics))
			rec := events.NewRecorder()

			out, err := e.Enhance(context.Background(), Request{
				ImageURL: src,
				Profile:  tt.profile,
				Forward:  map[string]string{"X-Request-ID": "req-1"},
			}, rec)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out)

			want := []events.Event{events.Status(MsgStart, false)}
			if tt.profile.ShowOriginal() {
				want = append(want, events.Message(OriginalMessage(src)))
			}
			want = append(want, events.Status(MsgProcessed, false))
			for _, u := range tt.wantURLs {
				want = append(want, events.Message(EnhancedMessage(u)))
			}
			want = append(want, events.Message(MsgSummary), events.Status(MsgCompleted, true))
			assert.Equal(t, want, rec.Events())

			require.Len(t, gen.calls, 1)
			call := gen.calls[0]
			assert.Equal(t, tt.wantN, call.N)
			assert.Equal(t, imaging.EncodePrompt(testPNG(t)), call.Prompt)
			if tt.profile == ProfileV3 {
				assert.Equal(t, "req-1", call.Forward["X-Request-ID"])
			} else {
				assert.Nil(t, call.Forward)
			}

			assert.Equal(t, []string{string(tt.profile) + ":" + OutcomeSuccess}, metrics.outcomes)
			assert.Equal(t, 1, metrics.fetches)
			assert.Equal(t, []string{"fake:success"}, metrics.generations)
		})
	}
}

func TestEnhance_ExactlyOneMidStatus(t *testing.T) {
	gen := &fakeGenerator{results: []generation.Image{{URL: "a"}, {URL: "b"}, {URL: "c"}, {URL: "d"}}}
	e := newTestEnhancer(t, gen, WithFetcher(&fakeFetcher{data: testPNG(t)}))
	rec := events.NewRecorder()

	_, err := e.Enhance(context.Background(), Request{ImageURL: "http://x/y.png"}, rec)
	require.NoError(t, err)

	var mid int
	for _, ev := range rec.OfType(events.TypeStatus) {
		if ev.Description == MsgProcessed {
			mid++
		}
	}
	assert.Equal(t, 1, mid)
	assert.Len(t, doneStatuses(rec.Events()), 1)
}

func TestEnhance_InsufficientResults(t *testing.T) {
	two := []generation.Image{{URL: "/a"}, {URL: "/b"}}

	t.Run("v1 delivers what it has", func(t *testing.T) {
		e := newTestEnhancer(t, &fakeGenerator{results: two}, WithFetcher(&fakeFetcher{data: testPNG(t)}))
		rec := events.NewRecorder()
		out, err := e.Enhance(context.Background(), Request{ImageURL: "https://x/a.png", Profile: ProfileV1}, rec)
		require.NoError(t, err)
		assert.Equal(t, "", out)
		assert.Len(t, rec.OfType(events.TypeMessage), 3)
	})

	t.Run("v2 returns error text", func(t *testing.T) {
		e := newTestEnhancer(t, &fakeGenerator{results: two}, WithFetcher(&fakeFetcher{data: testPNG(t)}))
		rec := events.NewRecorder()
		out, err := e.Enhance(context.Background(), Request{ImageURL: "https://x/a.png", Profile: ProfileV2}, rec)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, "An error occurred: "))

		done := doneStatuses(rec.Events())
		require.Len(t, done, 1)
		assert.Equal(t, out, done[0].Description)
		assert.Equal(t, events.TypeStatus, rec.Events()[len(rec.Events())-1].Type)
		// 失败时不发送任何结果消息
		for _, ev := range rec.OfType(events.TypeMessage) {
			assert.False(t, strings.HasPrefix(ev.Content, "![Enhanced Image]"))
		}
	})

	t.Run("v3 raises transport error", func(t *testing.T) {
		e := newTestEnhancer(t, &fakeGenerator{results: two}, WithFetcher(&fakeFetcher{data: testPNG(t)}))
		rec := events.NewRecorder()
		out, err := e.Enhance(context.Background(), Request{ImageURL: "https://x/a.png", Profile: ProfileV3}, rec)
		require.Error(t, err)
		assert.Empty(t, out)

		te, ok := types.AsError(err)
		require.True(t, ok)
		assert.Equal(t, types.ErrInsufficientResults, te.Code)
		assert.Equal(t, http.StatusBadGateway, te.HTTPStatus)

		done := doneStatuses(rec.Events())
		require.Len(t, done, 1)
		assert.Equal(t, ErrorText(err), done[0].Description)
	})
}

func TestEnhance_UnreachableURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	gen := &fakeGenerator{}
	cfg := DefaultConfig()
	cfg.Profile = string(ProfileV1)
	cfg.Fetch.Timeout = 2 * time.Second
	e, err := New(cfg, gen, zap.NewNop())
	require.NoError(t, err)
	rec := events.NewRecorder()

	out, err := e.Enhance(context.Background(), Request{ImageURL: addr + "/missing.png"}, rec)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "An error occurred: "))
	assert.Greater(t, len(out), len("An error occurred: "))
	assert.Empty(t, gen.calls)

	evs := rec.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, events.Status(out, true), evs[1])
}

func TestEnhance_RealFetchAndDecodeFailure(t *testing.T) {
	pngData := testPNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(pngData)
		default:
			_, _ = w.Write([]byte("<html>not an image</html>"))
		}
	}))
	defer srv.Close()

	gen := &fakeGenerator{results: []generation.Image{{URL: "a"}, {URL: "b"}, {URL: "c"}, {URL: "d"}}}
	e := newTestEnhancer(t, gen)

	out, err := e.Enhance(context.Background(), Request{ImageURL: srv.URL + "/ok.png", Profile: ProfileV2}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Enhanced image ready: 3 result(s) delivered.", out)

	out, err = e.Enhance(context.Background(), Request{ImageURL: srv.URL + "/page.html", Profile: ProfileV2}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "An error occurred: ")
	assert.Contains(t, out, string(types.ErrDecodeFailed))
}

func TestEnhance_GeneratorFailure(t *testing.T) {
	upstream := types.NewError(types.ErrUpstreamError, "host error: status=500").WithRetryable(true)
	gen := &fakeGenerator{err: upstream}
	metrics := &fakeMetrics{}
	e := newTestEnhancer(t, gen, WithFetcher(&fakeFetcher{data: testPNG(t)}), WithMetrics(metrics))

	_, err := e.Enhance(context.Background(), Request{ImageURL: "https://x/a.png", Profile: ProfileV3}, nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
	te, _ := types.AsError(err)
	assert.Equal(t, http.StatusBadGateway, te.HTTPStatus)
	assert.Equal(t, []string{"fake:error"}, metrics.generations)
	assert.Equal(t, []string{"v3:" + OutcomeFailed}, metrics.outcomes)
}

func TestEnhance_UserResolution(t *testing.T) {
	store := users.NewMemoryStore(users.User{ID: "u1", Name: "Alice", Token: "tok-1"})
	gen := &fakeGenerator{results: []generation.Image{{URL: "a"}, {URL: "b"}, {URL: "c"}, {URL: "d"}}}
	e := newTestEnhancer(t, gen, WithFetcher(&fakeFetcher{data: testPNG(t)}), WithUserStore(store))

	_, err := e.Enhance(context.Background(), Request{ImageURL: "https://x/a.png", UserID: "u1"}, nil)
	require.NoError(t, err)
	require.Len(t, gen.calls, 1)
	require.NotNil(t, gen.calls[0].User)
	assert.Equal(t, "tok-1", gen.calls[0].User.Token)

	_, err = e.Enhance(context.Background(), Request{ImageURL: "https://x/a.png", UserID: "ghost"}, nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrUserNotFound))
	te, _ := types.AsError(err)
	assert.Equal(t, http.StatusNotFound, te.HTTPStatus)
	assert.Len(t, gen.calls, 1)
}

func TestEnhance_RequireUser(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequireUser = true
	cfg.Profile = "v2"
	e, err := New(cfg, &fakeGenerator{}, nil, WithFetcher(&fakeFetcher{data: testPNG(t)}))
	require.NoError(t, err)

	out, err := e.Enhance(context.Background(), Request{ImageURL: "https://x/a.png"}, nil)
	require.NoError(t, err)
	assert.Contains(t, out, string(types.ErrUnauthorized))
}

func TestEnhance_EmitterFailureAborts(t *testing.T) {
	gen := &fakeGenerator{results: []generation.Image{{URL: "a"}, {URL: "b"}, {URL: "c"}, {URL: "d"}}}
	e := newTestEnhancer(t, gen, WithFetcher(&fakeFetcher{data: testPNG(t)}))

	var seen []events.Event
	emitter := events.EmitterFunc(func(_ context.Context, ev events.Event) error {
		seen = append(seen, ev)
		if ev.Type == events.TypeMessage && strings.HasPrefix(ev.Content, "![Enhanced Image]") {
			return errors.New("socket closed")
		}
		return nil
	})

	out, err := e.Enhance(context.Background(), Request{ImageURL: "https://x/a.png", Profile: ProfileV2}, emitter)
	require.NoError(t, err)
	assert.Contains(t, out, string(types.ErrEmitFailed))
	assert.Contains(t, out, "socket closed")
	assert.Equal(t, events.Status(out, true), seen[len(seen)-1])
	assert.Len(t, doneStatuses(seen), 1)
}

func TestEnhance_CompletionEmitFailureKeepsSingleTerminal(t *testing.T) {
	gen := &fakeGenerator{results: []generation.Image{{URL: "a"}, {URL: "b"}, {URL: "c"}, {URL: "d"}}}
	e := newTestEnhancer(t, gen, WithFetcher(&fakeFetcher{data: testPNG(t)}))

	var seen []events.Event
	emitter := events.EmitterFunc(func(_ context.Context, ev events.Event) error {
		seen = append(seen, ev)
		if ev.Type == events.TypeStatus && ev.Description == MsgCompleted {
			return errors.New("connection reset")
		}
		return nil
	})

	out, err := e.Enhance(context.Background(), Request{ImageURL: "https://x/a.png", Profile: ProfileV1}, emitter)
	require.NoError(t, err)
	assert.Empty(t, out)

	done := doneStatuses(seen)
	require.Len(t, done, 1)
	assert.Equal(t, MsgCompleted, done[0].Description)
	assert.Len(t, seen, 7) // start, mid, 3 images, summary, done
}

// ctxAwareEmitter 与 SSE 写入一样，ctx 结束后拒绝写入
type ctxAwareEmitter struct {
	mu   sync.Mutex
	seen []events.Event
}

func (c *ctxAwareEmitter) Emit(ctx context.Context, ev events.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, ev)
	return nil
}

func TestEnhance_TerminalStatusAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := generatorFunc(func(ctx context.Context, _ *generation.Request) ([]generation.Image, error) {
		cancel()
		return nil, types.NewError(types.ErrUpstreamTimeout, "generation cancelled").WithCause(ctx.Err())
	})
	e := newTestEnhancer(t, gen, WithFetcher(&fakeFetcher{data: testPNG(t)}))

	em := &ctxAwareEmitter{}
	_, err := e.Enhance(ctx, Request{ImageURL: "https://x/a.png", Profile: ProfileV3}, em)
	require.Error(t, err)

	done := doneStatuses(em.seen)
	require.Len(t, done, 1)
	assert.True(t, strings.HasPrefix(done[0].Description, "An error occurred: "))
	assert.Equal(t, done[0], em.seen[len(em.seen)-1])
}

type generatorFunc func(ctx context.Context, req *generation.Request) ([]generation.Image, error)

func (f generatorFunc) Name() string { return "func" }

func (f generatorFunc) Generate(ctx context.Context, req *generation.Request) ([]generation.Image, error) {
	return f(ctx, req)
}

func TestEnhance_UnknownProfile(t *testing.T) {
	e := newTestEnhancer(t, &fakeGenerator{})
	_, err := e.Enhance(context.Background(), Request{ImageURL: "https://x", Profile: "v9"}, nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(DefaultConfig(), nil, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Profile = "nope"
	_, err = New(cfg, &fakeGenerator{}, nil)
	assert.Error(t, err)

	cfg.Profile = ""
	e, err := New(cfg, &fakeGenerator{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, e.DefaultProfile())
}

func TestValidURL(t *testing.T) {
	assert.True(t, ValidURL("http://a"))
	assert.True(t, ValidURL("https://a"))
	assert.False(t, ValidURL("HTTP://a"))
	assert.False(t, ValidURL("file:///etc/passwd"))
	assert.False(t, ValidURL(""))
}
