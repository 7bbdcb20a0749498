package ws

import (
	"errors"

	"github.com/GriffinCanCode/grpcbridge/internal/events"
	"github.com/GriffinCanCode/grpcbridge/internal/grpc/calls"
	"github.com/GriffinCanCode/grpcbridge/internal/grpc/channel"
	"github.com/GriffinCanCode/grpcbridge/internal/grpc/metadata"
)

// Frame types sent to the client.
const (
	FrameSystem     = "system"
	FrameResult     = "result"
	FrameEvent      = "event"
	FrameDiagnostic = "diagnostic"
	FramePong       = "pong"
)

// Command is one client request. Which fields apply depends on Type.
type Command struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`

	ID      int64          `json:"id"`
	Path    string         `json:"path"`
	Data    []byte         `json:"data"`
	Headers map[string]any `json:"headers"`

	Host       string `json:"host"`
	Insecure   bool   `json:"insecure"`
	Enabled    bool   `json:"enabled"`
	Compressor string `json:"compressor"`
	Limit      int    `json:"limit"`
	Time       int    `json:"time"`
	Timeout    int    `json:"timeout"`
	Reason     string `json:"reason"`
	Connect    bool   `json:"connect"`
}

// Result answers one command.
type Result struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	OK        bool   `json:"ok"`
	Value     any    `json:"value,omitempty"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// EventFrame carries one call event.
type EventFrame struct {
	Type  string       `json:"type"`
	Name  string       `json:"name"`
	Event events.Event `json:"event"`
}

// DiagnosticFrame carries one status notification.
type DiagnosticFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// SystemFrame greets a new connection.
type SystemFrame struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	SessionID    string `json:"sessionId"`
	ConnectionID string `json:"connectionId"`
}

func ok(requestID string, value any) Result {
	return Result{Type: FrameResult, RequestID: requestID, OK: true, Value: value}
}

func failed(requestID string, err error) Result {
	return Result{
		Type:      FrameResult,
		RequestID: requestID,
		Error:     err.Error(),
		Kind:      errorKind(err),
	}
}

func errorKind(err error) string {
	var transport *calls.TransportError
	switch {
	case errors.Is(err, channel.ErrChannelNotReady):
		return "channel_not_ready"
	case errors.Is(err, metadata.ErrInvalidKey), errors.Is(err, calls.ErrInvalidPath):
		return "invalid_request"
	case errors.As(err, &transport):
		return "transport"
	default:
		return "internal"
	}
}
