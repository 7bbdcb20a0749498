package channel

import (
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/GriffinCanCode/grpcbridge/internal/diagnostics"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/compression"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/monitoring"
)

var (
	// ErrChannelNotReady is returned when no channel has been built.
	ErrChannelNotReady = errors.New("channel not created")
	// ErrMissingHost is returned by Init when no target is configured.
	ErrMissingHost = errors.New("channel host is not set")
)

// KeepAlive configures client keep-alive pings.
type KeepAlive struct {
	Enabled bool
	Time    time.Duration
	Timeout time.Duration
}

// Compression configures per-call message compression.
type Compression struct {
	Enabled    bool
	Compressor string
}

// Config describes the channel to build.
type Config struct {
	Host              string
	Insecure          bool
	Compression       Compression
	ResponseSizeLimit int
	KeepAlive         KeepAlive
	// ResetOnTransientFailure also rebuilds when a poll observes
	// TRANSIENT_FAILURE. SHUTDOWN always triggers a rebuild.
	ResetOnTransientFailure bool
}

// Manager owns the single live connection and serializes its rebuilds.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	live       *conn
	generation uint64

	dialOpts  []grpc.DialOption
	tlsConfig *tls.Config
	limiter   *rate.Limiter
	logger    *zap.Logger
	diag      diagnostics.Sink
	metrics   *monitoring.Metrics

	// notes queues diagnostics raised under mu; they are delivered by
	// unlockAndNotify once mu is released.
	notes []string
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithDiagnostics sets the sink for status notifications.
func WithDiagnostics(sink diagnostics.Sink) Option {
	return func(m *Manager) { m.diag = sink }
}

// WithMetrics records rebuilds and polled states.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithDialOptions appends dial options to every build.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(m *Manager) { m.dialOpts = append(m.dialOpts, opts...) }
}

// WithTLSConfig sets the TLS configuration used when Insecure is false.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(m *Manager) { m.tlsConfig = cfg }
}

// WithAutoResetLimit throttles rebuilds triggered by state polling.
func WithAutoResetLimit(limit rate.Limit, burst int) Option {
	return func(m *Manager) { m.limiter = rate.NewLimiter(limit, burst) }
}

// NewManager creates a manager with no live connection.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: zap.NewNop(),
		diag:   diagnostics.Nop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the current configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Update edits the configuration in place. The live connection is
// untouched until the next Init or Reset.
func (m *Manager) Update(fn func(*Config)) {
	m.mu.Lock()
	fn(&m.cfg)
	m.mu.Unlock()
}

// Init retires the current connection, letting its calls drain, and builds
// a new one from the current configuration. On failure no connection is
// live.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rebuild("init")
}

// Reset clears the connect backoff and rebuilds. It does nothing when no
// connection exists.
func (m *Manager) Reset(reason string) error {
	m.mu.Lock()
	defer m.unlockAndNotify()
	return m.reset(reason)
}

// State polls the connectivity state, asking an idle connection to connect
// when requestConnect is set. A connection found shut down (or in transient
// failure, if configured) is rebuilt.
func (m *Manager) State(requestConnect bool) State {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if m.live == nil {
		return StateUnknown
	}

	raw := m.live.cc.GetState()
	if requestConnect && raw == connectivity.Idle {
		m.live.cc.Connect()
	}
	state := fromConnectivity(raw)

	m.metrics.SetChannelState(int(raw))
	m.note("onConnectionState " + state.String())

	if m.needsReset(state) {
		if m.limiter != nil && !m.limiter.Allow() {
			m.logger.Warn("auto reset throttled", zap.String("state", state.String()))
			return state
		}
		if err := m.reset("onConnectionStateChange"); err != nil {
			m.logger.Error("auto reset failed", zap.Error(err))
		}
	}
	return state
}

// EnterIdle drops the live connection to idle. The current connection is
// retired (its calls drain) and replaced by a fresh one that stays idle
// until the next call or a State(true) poll.
func (m *Manager) EnterIdle() error {
	m.mu.Lock()
	defer m.unlockAndNotify()

	if m.live == nil {
		return nil
	}
	m.note("enterIdle")
	return m.rebuild("idle")
}

// Acquire leases the live connection for one call.
func (m *Manager) Acquire() (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live == nil {
		return nil, ErrChannelNotReady
	}
	m.live.acquire()
	return &Lease{conn: m.live}, nil
}

// Ready reports whether a connection is live.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live != nil
}

// Generation counts successful builds.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// Close retires the live connection.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live != nil {
		m.live.retire()
		m.live = nil
	}
}

func (m *Manager) needsReset(state State) bool {
	return state == StateShutdown || (m.cfg.ResetOnTransientFailure && state == StateTransientFailure)
}

func (m *Manager) reset(reason string) error {
	if m.live == nil {
		return nil
	}
	m.live.cc.ResetConnectBackoff()
	err := m.rebuild("reset")
	m.note("resetConnection " + reason)
	return err
}

// note must be called with m.mu held.
func (m *Manager) note(message string) {
	m.notes = append(m.notes, message)
}

// unlockAndNotify releases m.mu, then delivers the queued notes. The sink is
// never called with m.mu held.
func (m *Manager) unlockAndNotify() {
	notes := m.notes
	m.notes = nil
	m.mu.Unlock()

	for _, message := range notes {
		m.diag.Notify(message)
	}
}

// rebuild must be called with m.mu held.
func (m *Manager) rebuild(reason string) error {
	if m.live != nil {
		m.live.retire()
		m.live = nil
	}

	cfg := m.cfg
	if cfg.Host == "" {
		return ErrMissingHost
	}

	compressor := ""
	if cfg.Compression.Enabled {
		name, err := compression.Resolve(cfg.Compression.Compressor)
		if err != nil {
			return err
		}
		compressor = name
	}

	cc, err := grpc.NewClient(cfg.Host, m.dialOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to create channel for %s: %w", cfg.Host, err)
	}

	m.generation++
	m.live = &conn{
		cc:         cc,
		generation: m.generation,
		compressor: compressor,
		logger:     m.logger,
	}
	m.metrics.RecordChannelRebuild(reason)

	m.logger.Info("channel built",
		zap.String("reason", reason),
		zap.String("target", cfg.Host),
		zap.Bool("insecure", cfg.Insecure),
		zap.String("compressor", compressor),
		zap.Uint64("generation", m.generation),
	)
	return nil
}

func (m *Manager) dialOptions(cfg Config) []grpc.DialOption {
	opts := make([]grpc.DialOption, 0, len(m.dialOpts)+3)

	if cfg.Insecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		tlsCfg := m.tlsConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(tlsCfg)))
	}

	if cfg.ResponseSizeLimit > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(cfg.ResponseSizeLimit)))
	}

	if cfg.KeepAlive.Enabled {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepAlive.Time,
			Timeout:             cfg.KeepAlive.Timeout,
			PermitWithoutStream: true,
		}))
	}

	return append(opts, m.dialOpts...)
}
