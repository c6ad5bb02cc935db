// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/streamrelay/internal/bus"
	"github.com/ManuGH/streamrelay/internal/config"
	"github.com/ManuGH/streamrelay/internal/health"
	"github.com/ManuGH/streamrelay/internal/journal"
	"github.com/ManuGH/streamrelay/internal/relay"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRelay struct {
	mu       sync.Mutex
	starts   []relay.SessionConfig
	stops    int
	chunks   [][]byte
	startErr error
	state    relay.State
}

func (f *fakeRelay) Start(_ context.Context, cfg relay.SessionConfig) (relay.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, cfg)
	if f.startErr != nil {
		return relay.SessionInfo{}, f.startErr
	}
	f.state = relay.StateStarting
	return relay.SessionInfo{SessionID: "sess-1", State: relay.StateStarting, FrameRate: cfg.FrameRate}, nil
}

func (f *fakeRelay) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.state != "" && f.state != relay.StateIdle {
		f.state = relay.StateStopping
	}
	return nil
}

func (f *fakeRelay) PushChunk(chunk []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, append([]byte(nil), chunk...))
}

func (f *fakeRelay) Status() relay.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == "" {
		return relay.Status{State: relay.StateIdle}
	}
	return relay.Status{State: f.state}
}

func (f *fakeRelay) snapshot() (starts []relay.SessionConfig, stops int, chunks [][]byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]relay.SessionConfig(nil), f.starts...), f.stops, append([][]byte(nil), f.chunks...)
}

type testEnv struct {
	srv     *Server
	relay   *fakeRelay
	bus     *bus.MemoryBus
	journal *journal.MemoryStore
}

func newTestEnv(t *testing.T, mutate ...func(*config.APIConfig)) *testEnv {
	t.Helper()
	cfg := config.APIConfig{ListenAddr: "127.0.0.1:0", MaxChunkBytes: 1024}
	for _, m := range mutate {
		m(&cfg)
	}
	logger := zerolog.Nop()
	env := &testEnv{
		relay:   &fakeRelay{},
		bus:     bus.NewMemoryBus(),
		journal: journal.NewMemoryStore(10),
	}
	env.srv = New(cfg, Deps{Relay: env.relay, Bus: env.bus, Journal: env.journal, Logger: &logger})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = env.srv.Shutdown(ctx)
	})
	return env
}

func (e *testEnv) do(method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

const startBody = `{"destinationBaseUrl":"rtmp://live.example/app","streamKey":"k1","frameRate":30,"resolution":"1280x720"}`

func TestStart_Accepted(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/stream/start", strings.NewReader(startBody))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var info relay.SessionInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "sess-1", info.SessionID)

	starts, _, _ := env.relay.snapshot()
	require.Len(t, starts, 1)
	assert.Equal(t, "k1", starts[0].StreamKey)
	assert.Equal(t, 30, starts[0].FrameRate)
}

func TestStart_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"config", &relay.ConfigError{Problems: []string{"streamKey is required"}}, http.StatusBadRequest},
		{"spawn", fmt.Errorf("start session: %w: exec: not found", relay.ErrSpawn), http.StatusBadGateway},
		{"other", fmt.Errorf("unexpected"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.relay.startErr = tt.err

			rec := env.do(http.MethodPost, "/api/v1/stream/start", strings.NewReader(startBody))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body errorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
			assert.NotEmpty(t, body.RequestID)
			if tt.name == "config" {
				assert.Equal(t, []string{"streamKey is required"}, body.Problems)
			}
		})
	}
}

func TestStart_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/stream/start", strings.NewReader(`{"frameRate":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	starts, _, _ := env.relay.snapshot()
	assert.Empty(t, starts)
}

func TestControlRoutesAreRateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *config.APIConfig) { c.RateLimitRPM = 2 })

	for i := 0; i < 2; i++ {
		rec := env.do(http.MethodPost, "/api/v1/stream/stop", nil)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := env.do(http.MethodPost, "/api/v1/stream/stop", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// chunks are not part of the control limit
	for i := 0; i < 5; i++ {
		rec := env.do(http.MethodPost, "/api/v1/stream/chunks", strings.NewReader("x"))
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
}

func TestChunk_Pushed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/stream/chunks", strings.NewReader("webm-bytes"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	_, _, chunks := env.relay.snapshot()
	require.Len(t, chunks, 1)
	assert.Equal(t, "webm-bytes", string(chunks[0]))
}

func TestChunk_TooLarge(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/stream/chunks", strings.NewReader(strings.Repeat("x", 2048)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	_, _, chunks := env.relay.snapshot()
	assert.Empty(t, chunks)
}

func TestStopAndStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/v1/stream/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"idle"}`, rec.Body.String())

	env.do(http.MethodPost, "/api/v1/stream/start", strings.NewReader(startBody))
	rec = env.do(http.MethodPost, "/api/v1/stream/stop", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"state":"stopping"}`, rec.Body.String())

	_, stops, _ := env.relay.snapshot()
	assert.Equal(t, 1, stops)
}

func TestSessions_ListsJournal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, env.journal.Record(ctx, journal.Entry{
			SessionID: fmt.Sprintf("s%d", i),
			Outcome:   journal.OutcomeStopped,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			EndedAt:   base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		}))
	}

	rec := env.do(http.MethodGet, "/api/v1/sessions?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions []journal.Entry `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Sessions, 2)
	assert.Equal(t, "s2", body.Sessions[0].SessionID)
	assert.Equal(t, "s1", body.Sessions[1].SessionID)

	rec = env.do(http.MethodGet, "/api/v1/sessions?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/healthz?verbose=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var live health.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &live))
	assert.Equal(t, health.StatusHealthy, live.Status)
	assert.Equal(t, "idle", live.Checks["relay"].Message)

	rec = env.do(http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "streamrelay_http_request_duration_seconds")
}
