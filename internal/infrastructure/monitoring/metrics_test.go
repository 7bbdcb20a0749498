package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordCallStarted("unary")
		m.RecordCallTerminated("unary", "OK", time.Millisecond)
		m.RecordEventEmitted("headers")
		m.RecordEventDropped()
		m.RecordChannelRebuild("init")
		m.SetChannelState(2)
		m.IncWSConnections()
	})
	assert.Equal(t, Snapshot{}, m.GetSnapshot())
}

func TestCallLifecycleMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordCallStarted("unary")
	m.RecordCallStarted("server_streaming")
	m.RecordCallTerminated("unary", "OK", 10*time.Millisecond)

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.CallsStarted)
	assert.Equal(t, int64(1), snap.CallsActive)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `grpcbridge_calls_started_total{shape="unary"} 1`)
	assert.Contains(t, body, `grpcbridge_calls_terminated_total{code="OK",shape="unary"} 1`)
	assert.Contains(t, body, "grpcbridge_calls_active 1")
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `grpcbridge_http_requests_total{method="GET",path="/ping",status="200"} 1`))
}
