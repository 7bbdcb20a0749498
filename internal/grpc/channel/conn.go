package channel

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// conn is one built connection. Calls hold leases on it; once retired it
// closes as soon as the last lease is released.
type conn struct {
	cc         *grpc.ClientConn
	generation uint64
	compressor string
	logger     *zap.Logger

	mu      sync.Mutex
	leases  int
	retired bool
	closed  bool
}

func (c *conn) acquire() {
	c.mu.Lock()
	c.leases++
	c.mu.Unlock()
}

func (c *conn) release() {
	c.mu.Lock()
	c.leases--
	closeNow := c.retired && c.leases == 0 && !c.closed
	if closeNow {
		c.closed = true
	}
	c.mu.Unlock()

	if closeNow {
		c.close()
	}
}

func (c *conn) retire() {
	c.mu.Lock()
	c.retired = true
	closeNow := c.leases == 0 && !c.closed
	if closeNow {
		c.closed = true
	}
	pending := c.leases
	c.mu.Unlock()

	if closeNow {
		c.close()
		return
	}
	c.logger.Debug("draining retired channel",
		zap.Uint64("generation", c.generation),
		zap.Int("leases", pending),
	)
}

func (c *conn) close() {
	if err := c.cc.Close(); err != nil {
		c.logger.Warn("failed to close channel", zap.Uint64("generation", c.generation), zap.Error(err))
		return
	}
	c.logger.Debug("channel closed", zap.Uint64("generation", c.generation))
}

// Lease pins the connection it was taken from until Release. A call keeps
// its lease for its whole lifetime, so rebuilding the channel never cuts
// an in-flight call.
type Lease struct {
	conn *conn
	once sync.Once
}

// NewStream opens a stream on the leased connection.
func (l *Lease) NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	return l.conn.cc.NewStream(ctx, desc, method, opts...)
}

// Compressor returns the compressor calls on this connection should use,
// or "" when compression is disabled.
func (l *Lease) Compressor() string {
	return l.conn.compressor
}

// Generation identifies which build of the channel this lease belongs to.
func (l *Lease) Generation() uint64 {
	return l.conn.generation
}

// Release returns the lease. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.conn.release)
}
