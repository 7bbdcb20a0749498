package bridge

import (
	"crypto/tls"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"

	"github.com/GriffinCanCode/grpcbridge/internal/diagnostics"
	"github.com/GriffinCanCode/grpcbridge/internal/events"
	"github.com/GriffinCanCode/grpcbridge/internal/grpc/calls"
	"github.com/GriffinCanCode/grpcbridge/internal/grpc/channel"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/compression"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/tracing"
)

// Status summarizes the module for health reporting.
type Status struct {
	Host        string `json:"host"`
	Insecure    bool   `json:"insecure"`
	Ready       bool   `json:"ready"`
	Generation  uint64 `json:"generation"`
	ActiveCalls int    `json:"active_calls"`
	Diagnostics bool   `json:"diagnostics"`
	Subscribed  bool   `json:"subscribed"`
	Breaker     string `json:"breaker,omitempty"`
}

// Module wires the channel, the calls and the event stream together.
type Module struct {
	channel *channel.Manager
	calls   *calls.Manager
	bus     *events.Bus
	diag    *diagnostics.Toggle
	sinks   *diagnostics.Fanout
	breaker *resilience.Breaker
	logger  *zap.Logger
}

type options struct {
	logger      *zap.Logger
	metrics     *monitoring.Metrics
	tracer      *tracing.Tracer
	dialOptions []grpc.DialOption
	tlsConfig   *tls.Config
}

// Option customizes a Module.
type Option func(*options)

// WithLogger sets the parent logger; components get named children.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records channel, call and event metrics.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer records a span per call.
func WithTracer(t *tracing.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithDialOptions adds dial options to every channel build.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOptions = append(o.dialOptions, opts...) }
}

// WithTLSConfig sets the TLS configuration for secure channels.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// New builds a module from configuration. No channel exists until
// InitChannel.
func New(cfg *config.Config, opts ...Option) *Module {
	o := &options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	compression.Register()

	sinks := diagnostics.NewFanout(diagnostics.NewLogSink(o.logger))
	diag := diagnostics.NewToggle(sinks, cfg.Diagnostics.Enabled)

	bus := events.NewBus(cfg.Events.Buffer,
		events.WithLogger(o.logger.Named("events")),
		events.WithMetrics(o.metrics),
	)

	chOpts := []channel.Option{
		channel.WithLogger(o.logger.Named("channel")),
		channel.WithDiagnostics(diag),
		channel.WithMetrics(o.metrics),
		channel.WithDialOptions(o.dialOptions...),
	}
	if o.tlsConfig != nil {
		chOpts = append(chOpts, channel.WithTLSConfig(o.tlsConfig))
	}
	if cfg.Channel.AutoResetRate > 0 {
		chOpts = append(chOpts, channel.WithAutoResetLimit(rate.Limit(cfg.Channel.AutoResetRate), cfg.Channel.AutoResetBurst))
	}
	ch := channel.NewManager(ChannelConfig(cfg.Channel), chOpts...)

	m := &Module{
		channel: ch,
		bus:     bus,
		diag:    diag,
		sinks:   sinks,
		logger:  o.logger.Named("bridge"),
	}

	callOpts := []calls.Option{
		calls.WithLogger(o.logger.Named("calls")),
		calls.WithMetrics(o.metrics),
	}
	if o.tracer != nil {
		callOpts = append(callOpts, calls.WithTracer(o.tracer))
	}
	if cfg.Breaker.Enabled {
		m.breaker = newBreaker(cfg.Breaker, m.logger)
		callOpts = append(callOpts, calls.WithBreaker(m.breaker))
	}
	m.calls = calls.NewManager(ch, bus, callOpts...)

	return m
}

// ChannelConfig converts the configuration section into channel settings.
func ChannelConfig(c config.ChannelConfig) channel.Config {
	return channel.Config{
		Host:     c.Host,
		Insecure: c.Insecure,
		Compression: channel.Compression{
			Enabled:    c.Compression,
			Compressor: c.Compressor,
		},
		ResponseSizeLimit: c.ResponseSizeLimit,
		KeepAlive: channel.KeepAlive{
			Enabled: c.KeepAlive,
			Time:    time.Duration(c.KeepAliveTime) * time.Second,
			Timeout: time.Duration(c.KeepAliveTimeout) * time.Second,
		},
		ResetOnTransientFailure: c.ResetOnTransientFailure,
	}
}

func newBreaker(c config.BreakerConfig, logger *zap.Logger) *resilience.Breaker {
	maxFailures := uint32(c.MaxFailures)
	if maxFailures == 0 {
		maxFailures = 5
	}
	return resilience.New("grpc-calls", resilience.Settings{
		Timeout: time.Duration(c.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// SetHost sets the target for the next channel build.
func (m *Module) SetHost(host string) {
	m.channel.Update(func(c *channel.Config) { c.Host = host })
}

// GetHost returns the configured target.
func (m *Module) GetHost() string {
	return m.channel.Config().Host
}

// SetIsInsecure selects plaintext (true) or TLS (false).
func (m *Module) SetIsInsecure(insecure bool) {
	m.channel.Update(func(c *channel.Config) { c.Insecure = insecure })
}

// GetIsInsecure reports whether the channel is built without TLS.
func (m *Module) GetIsInsecure() bool {
	return m.channel.Config().Insecure
}

// SetCompression configures per-call compression. An empty name means gzip.
func (m *Module) SetCompression(enabled bool, name string) {
	m.channel.Update(func(c *channel.Config) {
		c.Compression = channel.Compression{Enabled: enabled, Compressor: name}
	})
}

// SetResponseSizeLimit caps received message size in bytes; zero keeps the
// transport default.
func (m *Module) SetResponseSizeLimit(limit int) {
	m.channel.Update(func(c *channel.Config) { c.ResponseSizeLimit = limit })
}

// SetKeepAlive configures keep-alive pings, in seconds.
func (m *Module) SetKeepAlive(enabled bool, timeSec, timeoutSec int) {
	m.channel.Update(func(c *channel.Config) {
		c.KeepAlive = channel.KeepAlive{
			Enabled: enabled,
			Time:    time.Duration(timeSec) * time.Second,
			Timeout: time.Duration(timeoutSec) * time.Second,
		}
	})
}

// ChannelSettings returns the channel configuration.
func (m *Module) ChannelSettings() channel.Config {
	return m.channel.Config()
}

// SetDiagnosticsEnabled turns status notifications on or off.
func (m *Module) SetDiagnosticsEnabled(enabled bool) {
	m.diag.SetEnabled(enabled)
}

// DiagnosticsEnabled reports whether status notifications are delivered.
func (m *Module) DiagnosticsEnabled() bool {
	return m.diag.Enabled()
}

// AddDiagnosticSink registers another receiver of status notifications.
func (m *Module) AddDiagnosticSink(sink diagnostics.Sink) (remove func()) {
	return m.sinks.Add(sink)
}

// InitChannel builds a new channel, draining the previous one.
func (m *Module) InitChannel() error {
	if err := m.channel.Init(); err != nil {
		m.logger.Error("channel init failed", zap.Error(err))
		return err
	}
	m.diag.Notify("initChannel " + m.GetHost())
	return nil
}

// ResetConnection rebuilds the channel if one exists.
func (m *Module) ResetConnection(reason string) error {
	return m.channel.Reset(reason)
}

// ConnectionState polls the channel state name.
func (m *Module) ConnectionState(requestConnect bool) string {
	return m.channel.State(requestConnect).String()
}

// EnterIdle moves the channel to idle.
func (m *Module) EnterIdle() error {
	return m.channel.EnterIdle()
}

// SendUnary starts a unary call.
func (m *Module) SendUnary(handle int64, path string, payload []byte, headers map[string]any) error {
	return m.calls.Unary(handle, path, payload, headers)
}

// SendServerStreaming starts a server-streaming call.
func (m *Module) SendServerStreaming(handle int64, path string, payload []byte, headers map[string]any) error {
	return m.calls.ServerStreaming(handle, path, payload, headers)
}

// SendClientStreamingChunk sends one chunk, starting the call on first use.
func (m *Module) SendClientStreamingChunk(handle int64, path string, payload []byte, headers map[string]any) error {
	return m.calls.ClientStreaming(handle, path, payload, headers)
}

// FinishClientStreaming half-closes a client-streaming call. It reports
// whether the handle was in flight.
func (m *Module) FinishClientStreaming(handle int64) bool {
	return m.calls.Finish(handle)
}

// Cancel aborts a call. It reports whether the handle was in flight.
func (m *Module) Cancel(handle int64) bool {
	return m.calls.Cancel(handle)
}

// Subscribe attaches fn as the event sink, replacing any previous one.
func (m *Module) Subscribe(fn events.Subscriber) (unsubscribe func()) {
	return m.bus.Attach(fn)
}

// Status reports the current module state.
func (m *Module) Status() Status {
	cfg := m.channel.Config()
	st := Status{
		Host:        cfg.Host,
		Insecure:    cfg.Insecure,
		Ready:       m.channel.Ready(),
		Generation:  m.channel.Generation(),
		ActiveCalls: m.calls.Registry().Len(),
		Diagnostics: m.diag.Enabled(),
		Subscribed:  m.bus.Attached(),
	}
	if m.breaker != nil {
		st.Breaker = m.breaker.State().String()
	}
	return st
}

// Close cancels every call, waits up to timeout for their terminal events,
// then releases the channel and the event bus.
func (m *Module) Close(timeout time.Duration) {
	cancelled := m.calls.CancelAll()
	if len(cancelled) > 0 {
		m.logger.Info("cancelled in-flight calls", zap.Int("count", len(cancelled)))
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
drain:
	for _, c := range cancelled {
		select {
		case <-c.Done():
		case <-timer.C:
			m.logger.Warn("calls still draining at close", zap.Int("remaining", m.calls.Registry().Len()))
			break drain
		}
	}

	m.channel.Close()
	m.bus.Close()
}
