package diagnostics

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Sink receives human-readable status strings. Purely observational.
type Sink interface {
	Notify(message string)
}

// Func adapts a function to Sink.
type Func func(message string)

// Notify implements Sink.
func (f Func) Notify(message string) { f(message) }

// Nop discards every notification.
type Nop struct{}

// Notify implements Sink.
func (Nop) Notify(string) {}

// LogSink writes notifications to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink logging at info level.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("diagnostics")}
}

// Notify implements Sink.
func (s *LogSink) Notify(message string) {
	s.logger.Info(message)
}

// Fanout forwards notifications to a changing set of sinks.
type Fanout struct {
	mu    sync.RWMutex
	next  uint64
	sinks map[uint64]Sink
}

// NewFanout creates a fanout over the given sinks.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{sinks: make(map[uint64]Sink)}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// Add registers a sink and returns a func that removes it.
func (f *Fanout) Add(s Sink) (remove func()) {
	f.mu.Lock()
	key := f.next
	f.next++
	f.sinks[key] = s
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.sinks, key)
		f.mu.Unlock()
	}
}

// Notify implements Sink.
func (f *Fanout) Notify(message string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.sinks {
		s.Notify(message)
	}
}

// Toggle gates a sink behind a runtime switch.
type Toggle struct {
	enabled atomic.Bool
	sink    Sink
}

// NewToggle wraps sink. A nil sink behaves like Nop.
func NewToggle(sink Sink, enabled bool) *Toggle {
	if sink == nil {
		sink = Nop{}
	}
	t := &Toggle{sink: sink}
	t.enabled.Store(enabled)
	return t
}

// SetEnabled switches notifications on or off.
func (t *Toggle) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Enabled reports the current switch position.
func (t *Toggle) Enabled() bool {
	return t.enabled.Load()
}

// Notify implements Sink.
func (t *Toggle) Notify(message string) {
	if t.enabled.Load() {
		t.sink.Notify(message)
	}
}
