package calls

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcmd "google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/grpcbridge/internal/events"
	"github.com/GriffinCanCode/grpcbridge/internal/grpc/channel"
	"github.com/GriffinCanCode/grpcbridge/internal/grpc/metadata"
)

type opKind int

const (
	opSend opKind = iota
	opHalfClose
)

type op struct {
	kind    opKind
	payload []byte
}

// outbox queues caller writes until the pump goroutine can put them on the
// stream. Pushing never blocks.
type outbox struct {
	mu         sync.Mutex
	ops        []op
	halfClosed bool
	closed     bool
	signal     chan struct{}
}

func newOutbox() *outbox {
	return &outbox{signal: make(chan struct{}, 1)}
}

func (o *outbox) push(next op) error {
	o.mu.Lock()
	if o.closed || o.halfClosed {
		o.mu.Unlock()
		if next.kind == opHalfClose {
			return nil
		}
		return ErrCallClosed
	}
	if next.kind == opHalfClose {
		o.halfClosed = true
	}
	o.ops = append(o.ops, next)
	o.mu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
	return nil
}

func (o *outbox) take() []op {
	o.mu.Lock()
	defer o.mu.Unlock()

	ops := o.ops
	o.ops = nil
	return ops
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.ops = nil
	o.mu.Unlock()
}

// credits gates how many messages the listener may receive.
type credits struct {
	mu     sync.Mutex
	n      int
	signal chan struct{}
}

func newCredits() *credits {
	return &credits{signal: make(chan struct{}, 1)}
}

func (c *credits) grant(n int) {
	c.mu.Lock()
	c.n += n
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// take consumes one credit, waiting for a grant. It returns false if ctx
// ends first.
func (c *credits) take(ctx context.Context) bool {
	for {
		c.mu.Lock()
		if c.n > 0 {
			c.n--
			c.mu.Unlock()
			return true
		}
		c.mu.Unlock()

		select {
		case <-c.signal:
		case <-ctx.Done():
			return false
		}
	}
}

func (c *credits) available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Call is one in-flight remote call.
//
// The listener goroutine opens the stream and turns headers, messages and
// the final status into events; the pump goroutine writes queued messages.
// Every event of a call comes from its listener, so they are emitted in
// order, and the terminal event is emitted exactly once.
type Call struct {
	handle   int64
	method   string
	shape    Shape
	md       grpcmd.MD
	lease    *channel.Lease
	callOpts []grpc.CallOption
	started  time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool

	outbox  *outbox
	credits *credits

	ready  chan struct{}
	stream grpc.ClientStream

	closeOnce sync.Once
	done      chan struct{}
	status    *status.Status

	emitter  events.Emitter
	onClose  func(*Call)
	onFinish func(*Call, *status.Status)
	// onDiscard releases what start acquired for a call that never ran.
	onDiscard func()
	logger    *zap.Logger
}

// Handle returns the caller-chosen handle.
func (c *Call) Handle() int64 { return c.handle }

// Method returns the normalized method path.
func (c *Call) Method() string { return c.method }

// Shape returns the call shape.
func (c *Call) Shape() Shape { return c.shape }

// Done is closed after the terminal event has been emitted.
func (c *Call) Done() <-chan struct{} { return c.done }

// Status returns the terminal status, or nil while the call is in flight.
func (c *Call) Status() *status.Status {
	select {
	case <-c.done:
		return c.status
	default:
		return nil
	}
}

// Send queues one request message.
func (c *Call) Send(payload []byte) error {
	return c.outbox.push(op{kind: opSend, payload: payload})
}

// Request grants credit for n more response messages.
func (c *Call) Request(n int) {
	c.credits.grant(n)
}

// HalfClose signals that no more messages will be sent. Repeated calls are
// no-ops.
func (c *Call) HalfClose() {
	_ = c.outbox.push(op{kind: opHalfClose})
}

// Cancel aborts the call. The terminal event still arrives through the
// normal close path.
func (c *Call) Cancel() {
	c.cancelled.Store(true)
	c.cancel()
}

// discard drops a call that was built but never launched. No event is
// emitted.
func (c *Call) discard() {
	c.closeOnce.Do(func() {
		c.outbox.close()
		close(c.done)
		c.cancel()
		c.lease.Release()
		if c.onDiscard != nil {
			c.onDiscard()
		}
	})
}

func (c *Call) launch() {
	go c.listen()
	go c.pump()
}

func (c *Call) listen() {
	stream, err := c.lease.NewStream(c.ctx, c.shape.desc(), c.method, c.callOpts...)
	if err != nil {
		close(c.ready)
		c.finish(status.Convert(err), nil)
		return
	}
	c.stream = stream
	close(c.ready)

	if md, err := stream.Header(); err == nil && md != nil {
		c.emit(events.Headers(c.handle, metadata.Decode(md)))
	}

	for {
		// a cancelled context still falls through to RecvMsg, which
		// reports the terminal status
		c.credits.take(c.ctx)

		var msg []byte
		err := stream.RecvMsg(&msg)
		switch {
		case err == nil:
			c.emit(events.Response(c.handle, msg))
			if c.shape.singleResponse() {
				c.finish(status.New(codes.OK, ""), stream.Trailer())
				return
			}
			if c.shape.renewsCredit() {
				c.credits.grant(1)
			}
		case errors.Is(err, io.EOF):
			c.finish(status.New(codes.OK, ""), stream.Trailer())
			return
		default:
			c.finish(status.Convert(err), stream.Trailer())
			return
		}
	}
}

func (c *Call) pump() {
	select {
	case <-c.ready:
	case <-c.done:
		return
	}
	if c.stream == nil {
		return
	}

	for {
		for _, next := range c.outbox.take() {
			switch next.kind {
			case opSend:
				if err := c.stream.SendMsg(next.payload); err != nil {
					// the listener reports the real status
					c.logger.Debug("send failed", zap.Int64("handle", c.handle), zap.Error(err))
					c.outbox.close()
					return
				}
			case opHalfClose:
				if err := c.stream.CloseSend(); err != nil {
					c.logger.Debug("half-close failed", zap.Int64("handle", c.handle), zap.Error(err))
				}
				return
			}
		}

		select {
		case <-c.outbox.signal:
		case <-c.done:
			return
		}
	}
}

func (c *Call) emit(ev events.Event) {
	c.emitter.Emit(events.Name, ev)
}

func (c *Call) finish(st *status.Status, trailer grpcmd.MD) {
	c.closeOnce.Do(func() {
		if c.cancelled.Load() && st.Code() == codes.Canceled {
			st = status.New(codes.Canceled, CancelledDescription)
		}
		c.status = st

		c.onClose(c)

		trailers := metadata.Decode(trailer)
		if st.Code() == codes.OK {
			c.emit(events.Trailers(c.handle, trailers))
		} else {
			c.emit(events.Failure(c.handle, ErrorMessage(st), st.Code(), trailers))
		}

		c.outbox.close()
		close(c.done)
		c.cancel()
		c.lease.Release()

		c.onFinish(c, st)
	})
}
