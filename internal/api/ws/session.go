package ws

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/grpcbridge/internal/shared/id"
)

const (
	writeWait  = 10 * time.Second
	outboxSize = 256
)

// session owns one WebSocket connection. All writes go through its writer
// goroutine.
type session struct {
	id     id.SessionID
	connID string
	conn   *websocket.Conn

	out  chan outbound
	done chan struct{}
	once sync.Once

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

type outbound struct {
	kind string
	data []byte
}

func newSession(conn *websocket.Conn, logger *zap.Logger, metrics *monitoring.Metrics) *session {
	s := &session{
		id:      id.NewSessionID(),
		connID:  uuid.NewString(),
		conn:    conn,
		out:     make(chan outbound, outboxSize),
		done:    make(chan struct{}),
		metrics: metrics,
	}
	s.logger = logger.With(
		zap.String("session", s.id.String()),
		zap.String("connection", s.connID),
	)
	return s
}

// send queues v for writing. It waits while the outbox is full and gives up
// once the session is closed.
func (s *session) send(kind string, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode frame", zap.String("kind", kind), zap.Error(err))
		return
	}

	select {
	case s.out <- outbound{kind: kind, data: data}:
	case <-s.done:
	}
}

// trySend queues a frame only if the outbox has room. Dropped frames are
// counted under the "dropped" direction.
func (s *session) trySend(kind string, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		s.logger.Error("failed to encode frame", zap.String("kind", kind), zap.Error(err))
		return
	}

	select {
	case s.out <- outbound{kind: kind, data: data}:
	default:
		s.metrics.RecordWSMessage("dropped", kind)
		s.logger.Debug("outbox full, frame dropped", zap.String("kind", kind))
	}
}

func (s *session) writeLoop() {
	for {
		select {
		case msg := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				s.logger.Debug("write failed", zap.Error(err))
				s.close()
				return
			}
			s.metrics.RecordWSMessage("out", msg.kind)
		case <-s.done:
			return
		}
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}
