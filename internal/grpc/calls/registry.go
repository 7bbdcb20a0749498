package calls

import (
	"sort"
	"sync"
)

// Registry maps call handles to in-flight calls. Presence means the call
// was started and has not reached its terminal event.
type Registry struct {
	mu    sync.RWMutex
	calls map[int64]*Call
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{calls: make(map[int64]*Call)}
}

// Put stores c under handle and returns the call it replaced, if any.
func (r *Registry) Put(handle int64, c *Call) *Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.calls[handle]
	r.calls[handle] = c
	return prev
}

// Get looks up a call.
func (r *Registry) Get(handle int64) (*Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.calls[handle]
	return c, ok
}

// Contains reports whether handle is in flight.
func (r *Registry) Contains(handle int64) bool {
	_, ok := r.Get(handle)
	return ok
}

// Remove deletes handle unconditionally.
func (r *Registry) Remove(handle int64) {
	r.mu.Lock()
	delete(r.calls, handle)
	r.mu.Unlock()
}

// CompareAndRemove deletes handle only while it still maps to c, so a
// late close never removes a newer call registered under the same handle.
func (r *Registry) CompareAndRemove(handle int64, c *Call) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.calls[handle] != c {
		return false
	}
	delete(r.calls, handle)
	return true
}

// PutIfAbsent stores c under handle unless a call is already there. It
// returns the call left under handle and whether c was the one stored.
func (r *Registry) PutIfAbsent(handle int64, c *Call) (*Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.calls[handle]; ok {
		return existing, false
	}
	r.calls[handle] = c
	return c, true
}

// Len returns the number of calls in flight.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// Handles returns the in-flight handles in ascending order.
func (r *Registry) Handles() []int64 {
	r.mu.RLock()
	out := make([]int64, 0, len(r.calls))
	for h := range r.calls {
		out = append(out, h)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) snapshot() []*Call {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	return out
}
