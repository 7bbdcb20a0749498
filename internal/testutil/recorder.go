package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/grpcbridge/internal/events"
)

// Recorder collects events delivered to it.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

// Record is an events.Subscriber.
func (r *Recorder) Record(_ string, ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Emit implements events.Emitter, recording synchronously.
func (r *Recorder) Emit(name string, ev events.Event) {
	r.Record(name, ev)
}

// For returns the events recorded for one handle, in order.
func (r *Recorder) For(handle int64) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []events.Event
	for _, ev := range r.events {
		if ev.ID == handle {
			out = append(out, ev)
		}
	}
	return out
}

// All returns every recorded event.
func (r *Recorder) All() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// WaitTerminal blocks until handle has a terminal event and returns the
// handle's events.
func (r *Recorder) WaitTerminal(t testing.TB, handle int64) []events.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		evs := r.For(handle)
		return len(evs) > 0 && evs[len(evs)-1].Type.Terminal()
	}, 5*time.Second, 5*time.Millisecond, "no terminal event for handle %d", handle)
	return r.For(handle)
}

// Types lists the event types in order.
func Types(evs []events.Event) []events.Type {
	out := make([]events.Type, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

// MockSink is a testify mock of diagnostics.Sink.
type MockSink struct {
	mock.Mock
}

// Notify records the call.
func (m *MockSink) Notify(message string) {
	m.Called(message)
}

// NewMockSink returns a sink that accepts any message.
func NewMockSink() *MockSink {
	m := new(MockSink)
	m.On("Notify", mock.Anything).Maybe()
	return m
}
