package events

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/monitoring"
)

// Emitter publishes call events.
type Emitter interface {
	Emit(name string, ev Event)
}

// Subscriber receives events from a Bus. It runs on the dispatch goroutine
// and must not block for long.
type Subscriber func(name string, ev Event)

type envelope struct {
	name string
	ev   Event
}

type subscription struct {
	fn Subscriber
}

// Bus is a single multiplexed FIFO of events consumed by one dispatch
// goroutine and delivered to the currently attached subscriber.
type Bus struct {
	queue   chan envelope
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	mu  sync.RWMutex
	sub *subscription

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// BusOption customizes a Bus.
type BusOption func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(logger *zap.Logger) BusOption {
	return func(b *Bus) { b.logger = logger }
}

// WithMetrics records emitted and dropped events.
func WithMetrics(m *monitoring.Metrics) BusOption {
	return func(b *Bus) { b.metrics = m }
}

// NewBus starts a bus with the given queue capacity.
func NewBus(size int, opts ...BusOption) *Bus {
	if size <= 0 {
		size = 1024
	}
	b := &Bus{
		queue:   make(chan envelope, size),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.dispatch()
	return b
}

// Attach makes fn the process-wide subscriber, replacing any previous one.
// The returned detach func only clears the slot if fn still owns it.
func (b *Bus) Attach(fn Subscriber) (detach func()) {
	s := &subscription{fn: fn}

	b.mu.Lock()
	b.sub = s
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if b.sub == s {
			b.sub = nil
		}
		b.mu.Unlock()
	}
}

// Attached reports whether a subscriber is attached.
func (b *Bus) Attached() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sub != nil
}

// Emit enqueues an event. It blocks only while the queue is full and
// drops the event once the bus is closed.
func (b *Bus) Emit(name string, ev Event) {
	select {
	case b.queue <- envelope{name: name, ev: ev}:
	case <-b.done:
		b.metrics.RecordEventDropped()
	}
}

// Close stops the dispatcher after delivering queued events.
func (b *Bus) Close() {
	b.once.Do(func() {
		close(b.done)
	})
	<-b.stopped
}

func (b *Bus) dispatch() {
	defer close(b.stopped)

	for {
		select {
		case env := <-b.queue:
			b.deliver(env)
		case <-b.done:
			for {
				select {
				case env := <-b.queue:
					b.deliver(env)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(env envelope) {
	b.mu.RLock()
	sub := b.sub
	b.mu.RUnlock()

	if sub == nil {
		b.metrics.RecordEventDropped()
		b.logger.Debug("no subscriber, dropping event",
			zap.Int64("handle", env.ev.ID),
			zap.String("type", string(env.ev.Type)),
		)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked",
				zap.Int64("handle", env.ev.ID),
				zap.Any("panic", r),
			)
		}
	}()

	sub.fn(env.name, env.ev)
	b.metrics.RecordEventEmitted(string(env.ev.Type))
}
