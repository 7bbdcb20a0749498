package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Call metrics
	CallsStarted    *prometheus.CounterVec
	CallsRejected   *prometheus.CounterVec
	CallsTerminated *prometheus.CounterVec
	CallDuration    *prometheus.HistogramVec
	CallsActive     prometheus.Gauge
	MessagesSent    *prometheus.CounterVec

	// Event metrics
	EventsEmitted *prometheus.CounterVec
	EventsDropped prometheus.Counter

	// Channel metrics
	ChannelRebuilds *prometheus.CounterVec
	ChannelState    prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	CallsStarted  int64   `json:"calls_started"`
	CallsActive   int64   `json:"calls_active"`
	EventsEmitted int64   `json:"events_emitted"`
	EventsDropped int64   `json:"events_dropped"`
	Rebuilds      int64   `json:"channel_rebuilds"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// NewMetrics creates a collector backed by its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grpcbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grpcbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		CallsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grpcbridge_calls_started_total",
				Help: "Total number of calls started",
			},
			[]string{"shape"},
		),
		CallsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grpcbridge_calls_rejected_total",
				Help: "Calls rejected before reaching the transport",
			},
			[]string{"shape", "reason"},
		),
		CallsTerminated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grpcbridge_calls_terminated_total",
				Help: "Total number of calls closed, by status code",
			},
			[]string{"shape", "code"},
		),
		CallDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grpcbridge_call_duration_seconds",
				Help:    "Call lifetime from start to terminal event",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"shape"},
		),
		CallsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "grpcbridge_calls_active",
				Help: "Number of calls in flight",
			},
		),
		MessagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grpcbridge_messages_sent_total",
				Help: "Total number of request messages written",
			},
			[]string{"shape"},
		),

		EventsEmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grpcbridge_events_emitted_total",
				Help: "Total number of events delivered to the subscriber",
			},
			[]string{"type"},
		),
		EventsDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "grpcbridge_events_dropped_total",
				Help: "Events dropped for lack of a subscriber",
			},
		),

		ChannelRebuilds: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grpcbridge_channel_rebuilds_total",
				Help: "Total number of channel constructions",
			},
			[]string{"reason"},
		),
		ChannelState: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "grpcbridge_channel_state",
				Help: "Last observed connectivity state (0 idle, 1 connecting, 2 ready, 3 transient failure, 4 shutdown)",
			},
		),

		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "grpcbridge_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grpcbridge_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		Uptime: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "grpcbridge_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// Handler serves this collector's registry in Prometheus format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordCallStarted records a call handed to the transport.
func (m *Metrics) RecordCallStarted(shape string) {
	if m == nil {
		return
	}
	m.CallsStarted.WithLabelValues(shape).Inc()
	m.CallsActive.Inc()

	m.mu.Lock()
	m.snapshot.CallsStarted++
	m.snapshot.CallsActive++
	m.mu.Unlock()
}

// RecordCallRejected records a call refused synchronously.
func (m *Metrics) RecordCallRejected(shape, reason string) {
	if m == nil {
		return
	}
	m.CallsRejected.WithLabelValues(shape, reason).Inc()
}

// RecordCallTerminated records the terminal status of a call.
func (m *Metrics) RecordCallTerminated(shape, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CallsTerminated.WithLabelValues(shape, code).Inc()
	m.CallDuration.WithLabelValues(shape).Observe(duration.Seconds())
	m.CallsActive.Dec()

	m.mu.Lock()
	m.snapshot.CallsActive--
	m.mu.Unlock()
}

// RecordMessageSent records one outbound request message.
func (m *Metrics) RecordMessageSent(shape string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(shape).Inc()
}

// RecordEventEmitted records an event delivered to the subscriber.
func (m *Metrics) RecordEventEmitted(eventType string) {
	if m == nil {
		return
	}
	m.EventsEmitted.WithLabelValues(eventType).Inc()

	m.mu.Lock()
	m.snapshot.EventsEmitted++
	m.mu.Unlock()
}

// RecordEventDropped records an event nobody received.
func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()

	m.mu.Lock()
	m.snapshot.EventsDropped++
	m.mu.Unlock()
}

// RecordChannelRebuild records a channel construction.
func (m *Metrics) RecordChannelRebuild(reason string) {
	if m == nil {
		return
	}
	m.ChannelRebuilds.WithLabelValues(reason).Inc()

	m.mu.Lock()
	m.snapshot.Rebuilds++
	m.mu.Unlock()
}

// SetChannelState records the last polled connectivity state.
func (m *Metrics) SetChannelState(state int) {
	if m == nil {
		return
	}
	m.ChannelState.Set(float64(state))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// GetSnapshot returns current values for JSON reporting.
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
