package events

import (
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(_ string, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestBusPreservesOrderPerHandle(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	rec := &recorder{}
	bus.Attach(rec.record)

	var wg sync.WaitGroup
	for h := int64(1); h <= 4; h++ {
		wg.Add(1)
		go func(h int64) {
			defer wg.Done()
			bus.Emit(Name, Headers(h, nil))
			for i := 0; i < 50; i++ {
				bus.Emit(Name, Response(h, []byte{byte(i)}))
			}
			bus.Emit(Name, Trailers(h, nil))
		}(h)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 4*52
	}, time.Second, 5*time.Millisecond)

	perHandle := map[int64][]Event{}
	for _, ev := range rec.snapshot() {
		perHandle[ev.ID] = append(perHandle[ev.ID], ev)
	}
	for h, evs := range perHandle {
		assert.Equal(t, TypeHeaders, evs[0].Type, "handle %d", h)
		for i := 1; i <= 50; i++ {
			assert.Equal(t, []byte{byte(i - 1)}, evs[i].Message)
		}
		assert.Equal(t, TypeTrailers, evs[len(evs)-1].Type)
	}
}

func TestBusDropsWithoutSubscriber(t *testing.T) {
	bus := NewBus(4)
	bus.Emit(Name, Headers(1, nil))
	bus.Close()

	assert.False(t, bus.Attached())
}

func TestBusAttachReplacesSubscriber(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	first, second := &recorder{}, &recorder{}
	detachFirst := bus.Attach(first.record)
	bus.Attach(second.record)

	// a stale detach must not remove the newer subscriber
	detachFirst()
	assert.True(t, bus.Attached())

	bus.Emit(Name, Headers(7, nil))
	require.Eventually(t, func() bool {
		return len(second.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, first.snapshot())
}

func TestBusCloseDeliversQueued(t *testing.T) {
	bus := NewBus(8)
	rec := &recorder{}
	bus.Attach(rec.record)

	for i := 0; i < 5; i++ {
		bus.Emit(Name, Response(1, []byte("x")))
	}
	bus.Close()

	assert.Len(t, rec.snapshot(), 5)

	// emitting after close is a no-op
	bus.Emit(Name, Response(1, []byte("late")))
	assert.Len(t, rec.snapshot(), 5)
}

func TestBusRecoversSubscriberPanic(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	rec := &recorder{}
	bus.Attach(func(name string, ev Event) {
		if ev.ID == 1 {
			panic("boom")
		}
		rec.record(name, ev)
	})

	bus.Emit(Name, Headers(1, nil))
	bus.Emit(Name, Headers(2, nil))

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEventWire(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want map[string]any
	}{
		{
			name: "headers",
			ev:   Headers(1, map[string]string{"k": "v"}),
			want: map[string]any{"id": float64(1), "type": "headers", "payload": map[string]any{"k": "v"}},
		},
		{
			name: "response",
			ev:   Response(1, []byte("abc")),
			want: map[string]any{"id": float64(1), "type": "response", "payload": "YWJj"},
		},
		{
			name: "trailers",
			ev:   Trailers(2, nil),
			want: map[string]any{"id": float64(2), "type": "trailers", "payload": map[string]any{}},
		},
		{
			name: "error",
			ev:   Failure(3, "UNAVAILABLE: down", codes.Unavailable, map[string]string{"x": "y"}),
			want: map[string]any{
				"id":       float64(3),
				"type":     "error",
				"error":    "UNAVAILABLE: down",
				"code":     float64(14),
				"trailers": map[string]any{"x": "y"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.ev.MarshalJSON()
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, sonic.Unmarshal(data, &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTypeTerminal(t *testing.T) {
	assert.True(t, TypeTrailers.Terminal())
	assert.True(t, TypeError.Terminal())
	assert.False(t, TypeHeaders.Terminal())
	assert.False(t, TypeResponse.Terminal())
}
