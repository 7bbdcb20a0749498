package calls

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcmd "google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/grpcbridge/internal/events"
	"github.com/GriffinCanCode/grpcbridge/internal/grpc/channel"
	"github.com/GriffinCanCode/grpcbridge/internal/grpc/metadata"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/tracing"
)

// Channel hands out leases on the live connection.
type Channel interface {
	Acquire() (*channel.Lease, error)
}

// Manager starts calls, tracks them by handle and routes follow-up
// operations (stream chunks, finish, cancel) to them.
type Manager struct {
	channel  Channel
	registry *Registry
	emitter  events.Emitter

	breaker *resilience.Breaker
	tracer  *tracing.Tracer
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithBreaker guards call starts with a circuit breaker that counts
// UNAVAILABLE terminal statuses as failures.
func WithBreaker(b *resilience.Breaker) Option {
	return func(m *Manager) { m.breaker = b }
}

// WithTracer records one span per call.
func WithTracer(t *tracing.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithMetrics records call metrics.
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a call manager publishing to emitter.
func NewManager(ch Channel, emitter events.Emitter, opts ...Option) *Manager {
	m := &Manager{
		channel:  ch,
		registry: NewRegistry(),
		emitter:  emitter,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry exposes the in-flight calls.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Unary starts a unary call: one message, one credit, half-close.
func (m *Manager) Unary(handle int64, path string, payload []byte, headers map[string]any) error {
	return m.sendOnce(Unary, handle, path, payload, headers)
}

// ServerStreaming starts a server-streaming call. Responses keep flowing one
// credit at a time until the server closes the stream.
func (m *Manager) ServerStreaming(handle int64, path string, payload []byte, headers map[string]any) error {
	return m.sendOnce(ServerStreaming, handle, path, payload, headers)
}

// ClientStreaming sends one chunk on the client-streaming call under handle,
// starting the call on first use. The call stays open until Finish.
func (m *Manager) ClientStreaming(handle int64, path string, payload []byte, headers map[string]any) error {
	c, ok := m.registry.Get(handle)
	if !ok {
		fresh, err := m.start(handle, path, ClientStreaming, headers)
		if err != nil {
			return err
		}
		// a concurrent first chunk may have registered the handle meanwhile
		if c, ok = m.registry.PutIfAbsent(handle, fresh); ok {
			m.launch(c)
		} else {
			fresh.discard()
		}
	}

	if err := c.Send(payload); err != nil {
		return &TransportError{Handle: handle, Method: c.method, Err: err}
	}
	c.Request(1)
	m.metrics.RecordMessageSent(ClientStreaming.String())
	return nil
}

// Finish half-closes the client-streaming call under handle. It returns
// false when no such call is in flight.
func (m *Manager) Finish(handle int64) bool {
	c, ok := m.registry.Get(handle)
	if !ok {
		return false
	}
	c.HalfClose()
	return true
}

// Cancel aborts the call under handle. It returns false when no such call
// is in flight; otherwise exactly one terminal event follows.
func (m *Manager) Cancel(handle int64) bool {
	c, ok := m.registry.Get(handle)
	if !ok {
		return false
	}
	c.Cancel()
	return true
}

// CancelAll aborts every in-flight call and returns them. Each one's Done
// channel closes after its terminal event.
func (m *Manager) CancelAll() []*Call {
	active := m.registry.snapshot()
	for _, c := range active {
		c.Cancel()
	}
	return active
}

func (m *Manager) sendOnce(shape Shape, handle int64, path string, payload []byte, headers map[string]any) error {
	c, err := m.start(handle, path, shape, headers)
	if err != nil {
		return err
	}

	if prev := m.registry.Put(handle, c); prev != nil {
		m.logger.Warn("handle reused while a call is in flight",
			zap.Int64("handle", handle),
			zap.String("previous", prev.method),
		)
	}
	m.launch(c)

	if err := c.Send(payload); err != nil {
		return &TransportError{Handle: handle, Method: c.method, Err: err}
	}
	c.Request(1)
	c.HalfClose()
	m.metrics.RecordMessageSent(shape.String())
	return nil
}

// start builds a call without registering or launching it. A call that is
// never launched must be discarded.
func (m *Manager) start(handle int64, path string, shape Shape, headers map[string]any) (*Call, error) {
	lease, err := m.channel.Acquire()
	if err != nil {
		m.metrics.RecordCallRejected(shape.String(), "not_ready")
		return nil, err
	}

	method, md, err := prepare(path, headers)
	if err != nil {
		lease.Release()
		m.metrics.RecordCallRejected(shape.String(), "invalid")
		return nil, &TransportError{Handle: handle, Method: path, Err: err}
	}

	var admitted resilience.Done
	if m.breaker != nil {
		admitted, err = m.breaker.Allow()
		if err != nil {
			lease.Release()
			m.metrics.RecordCallRejected(shape.String(), "breaker")
			return nil, &TransportError{
				Handle: handle,
				Method: method,
				Err:    fmt.Errorf("service unavailable: %w", err),
			}
		}
	}

	callOpts := []grpc.CallOption{grpc.ForceCodec(rawCodec{})}
	if name := lease.Compressor(); name != "" {
		callOpts = append(callOpts, grpc.UseCompressor(name))
	}

	ctx, cancel := context.WithCancel(grpcmd.NewOutgoingContext(context.Background(), md))

	var span *tracing.Span
	if m.tracer != nil {
		span, ctx = m.tracer.StartSpan(ctx, method)
		span.SetTag("call.handle", strconv.FormatInt(handle, 10))
		span.SetTag("call.shape", shape.String())
	}

	c := &Call{
		handle:   handle,
		method:   method,
		shape:    shape,
		md:       md,
		lease:    lease,
		callOpts: callOpts,
		started:  time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		outbox:   newOutbox(),
		credits:  newCredits(),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		emitter:  m.emitter,
		logger:   m.logger,
	}
	c.onClose = func(c *Call) {
		m.registry.CompareAndRemove(c.handle, c)
	}
	c.onFinish = func(c *Call, st *status.Status) {
		m.finished(c, st, admitted, span)
	}
	c.onDiscard = func() {
		if admitted != nil {
			admitted(true)
		}
		if span != nil {
			span.Finish()
		}
	}
	return c, nil
}

// launch starts a registered call's goroutines.
func (m *Manager) launch(c *Call) {
	m.metrics.RecordCallStarted(c.shape.String())
	m.logger.Debug("call started",
		zap.Int64("handle", c.handle),
		zap.String("method", c.method),
		zap.String("shape", c.shape.String()),
		zap.Uint64("generation", c.lease.Generation()),
	)
	c.launch()
}

func (m *Manager) finished(c *Call, st *status.Status, admitted resilience.Done, span *tracing.Span) {
	code := CodeName(st.Code())

	if admitted != nil {
		admitted(st.Code() != codes.Unavailable)
	}
	if span != nil {
		span.SetStatus(code)
		if st.Code() != codes.OK {
			span.SetError(st.Err())
		}
		span.Finish()
		m.tracer.Submit(span)
	}
	m.metrics.RecordCallTerminated(c.shape.String(), code, time.Since(c.started))

	m.logger.Debug("call closed",
		zap.Int64("handle", c.handle),
		zap.String("method", c.method),
		zap.String("code", code),
		zap.Duration("duration", time.Since(c.started)),
	)
}

// prepare normalizes the method path and encodes request headers.
func prepare(path string, headers map[string]any) (string, grpcmd.MD, error) {
	method, err := normalizePath(path)
	if err != nil {
		return "", nil, err
	}
	md, err := metadata.Encode(headers)
	if err != nil {
		return "", nil, err
	}
	return method, md, nil
}

// normalizePath strips one leading "/" and checks the remainder is
// "service/method", returning the "/service/method" form gRPC expects.
func normalizePath(path string) (string, error) {
	name := strings.TrimPrefix(path, "/")
	i := strings.IndexByte(name, '/')
	if i <= 0 || i == len(name)-1 || strings.Count(name, "/") != 1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return "/" + name, nil
}
