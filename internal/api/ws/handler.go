package ws

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/grpcbridge/internal/bridge"
	"github.com/GriffinCanCode/grpcbridge/internal/diagnostics"
	"github.com/GriffinCanCode/grpcbridge/internal/events"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/grpcbridge/internal/shared/id"
)

var errUnknownCommand = errors.New("unknown command")

// Handler manages WebSocket connections
type Handler struct {
	module   *bridge.Module
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(module *bridge.Module, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		module:  module,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades the request and serves commands until the
// client disconnects. While connected, the session is the event sink.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := newSession(conn, h.logger, h.metrics)
	defer s.close()
	go s.writeLoop()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	unsubscribe := h.module.Subscribe(func(name string, ev events.Event) {
		s.send(FrameEvent, EventFrame{Type: FrameEvent, Name: name, Event: ev})
	})
	defer unsubscribe()

	removeSink := h.module.AddDiagnosticSink(diagnostics.Func(func(message string) {
		s.trySend(FrameDiagnostic, DiagnosticFrame{Type: FrameDiagnostic, Message: message})
	}))
	defer removeSink()

	s.logger.Info("websocket connected")
	s.send(FrameSystem, SystemFrame{
		Type:         FrameSystem,
		Message:      "connected",
		SessionID:    s.id.String(),
		ConnectionID: s.connID,
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		var cmd Command
		if err := sonic.Unmarshal(data, &cmd); err != nil {
			s.send(FrameResult, failed("", fmt.Errorf("invalid command: %w", err)))
			continue
		}
		h.metrics.RecordWSMessage("in", cmd.Type)
		if cmd.RequestID == "" {
			cmd.RequestID = id.NewRequestID().String()
		}

		if cmd.Type == "ping" {
			s.send(FramePong, map[string]string{"type": FramePong, "requestId": cmd.RequestID})
			continue
		}
		s.send(FrameResult, h.dispatch(cmd))
	}
	s.logger.Info("websocket disconnected")
}

// dispatch runs one command against the module.
func (h *Handler) dispatch(cmd Command) Result {
	m := h.module

	switch cmd.Type {
	case "sendUnary":
		return done(cmd, m.SendUnary(cmd.ID, cmd.Path, cmd.Data, cmd.Headers))
	case "sendServerStreaming":
		return done(cmd, m.SendServerStreaming(cmd.ID, cmd.Path, cmd.Data, cmd.Headers))
	case "sendClientStreamingChunk":
		return done(cmd, m.SendClientStreamingChunk(cmd.ID, cmd.Path, cmd.Data, cmd.Headers))
	case "finishClientStreaming":
		return ok(cmd.RequestID, m.FinishClientStreaming(cmd.ID))
	case "cancel":
		return ok(cmd.RequestID, m.Cancel(cmd.ID))

	case "setHost":
		m.SetHost(cmd.Host)
	case "getHost":
		return ok(cmd.RequestID, m.GetHost())
	case "setIsInsecure":
		m.SetIsInsecure(cmd.Insecure)
	case "getIsInsecure":
		return ok(cmd.RequestID, m.GetIsInsecure())
	case "setCompression":
		m.SetCompression(cmd.Enabled, cmd.Compressor)
	case "setResponseSizeLimit":
		m.SetResponseSizeLimit(cmd.Limit)
	case "setKeepAlive":
		m.SetKeepAlive(cmd.Enabled, cmd.Time, cmd.Timeout)
	case "setDiagnosticsEnabled":
		m.SetDiagnosticsEnabled(cmd.Enabled)

	case "initChannel":
		return done(cmd, m.InitChannel())
	case "resetConnection":
		return done(cmd, m.ResetConnection(cmd.Reason))
	case "connectionState":
		return ok(cmd.RequestID, m.ConnectionState(cmd.Connect))
	case "enterIdle":
		return done(cmd, m.EnterIdle())

	default:
		return failed(cmd.RequestID, fmt.Errorf("%w: %q", errUnknownCommand, cmd.Type))
	}
	return ok(cmd.RequestID, nil)
}

func done(cmd Command, err error) Result {
	if err != nil {
		return failed(cmd.RequestID, err)
	}
	return ok(cmd.RequestID, nil)
}
