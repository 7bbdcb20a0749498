package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/grpcbridge/internal/bridge"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/grpcbridge/internal/logging"
	"github.com/GriffinCanCode/grpcbridge/internal/testutil"
)

func newServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	grpcSrv := testutil.NewServer(t, nil)

	cfg := config.Default()
	cfg.Server.Port = "0"
	cfg.Channel.Host = testutil.Target
	cfg.Channel.Insecure = true
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := NewServer(cfg,
		WithLogger(logging.NewNop()),
		WithBridgeOptions(bridge.WithDialOptions(grpcSrv.DialOption())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close(context.Background()) })
	return srv
}

func TestRoutesMounted(t *testing.T) {
	srv := newServer(t, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "grpcbridge_http_requests_total")

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/logging/level", strings.NewReader(`{"level":"warn"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"level":"warn"`)
}

func TestInitOnStart(t *testing.T) {
	srv := newServer(t, func(cfg *config.Config) { cfg.Channel.InitOnStart = true })
	assert.True(t, srv.Module().Status().Ready)
}

func TestInitOnStartFailure(t *testing.T) {
	cfg := config.Default()
	cfg.Channel.InitOnStart = true

	_, err := NewServer(cfg, WithLogger(logging.NewNop()))
	assert.ErrorContains(t, err, "failed to init channel")
}

func TestRateLimitApplied(t *testing.T) {
	srv := newServer(t, func(cfg *config.Config) {
		cfg.RateLimit.RequestsPerSecond = 1
		cfg.RateLimit.Burst = 1
	})

	codes := make([]int, 3)
	for i := range codes {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes[i] = w.Code
	}
	assert.Contains(t, codes, http.StatusTooManyRequests)
}

func TestCallThroughServer(t *testing.T) {
	srv := newServer(t, func(cfg *config.Config) { cfg.Channel.InitOnStart = true })
	rec := &testutil.Recorder{}
	srv.Module().Subscribe(rec.Record)

	req := httptest.NewRequest(http.MethodPost, "/calls/1/unary",
		strings.NewReader(`{"path":"/test.Echo/Unary","data":"YWJj"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	evs := rec.WaitTerminal(t, 1)
	assert.Equal(t, []byte("abc"), evs[1].Message)
}
