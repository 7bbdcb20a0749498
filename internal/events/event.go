package events

import (
	"encoding/base64"

	"github.com/bytedance/sonic"
	"google.golang.org/grpc/codes"
)

// Name is the event name every call event is published under.
const Name = "grpc-call"

// Type identifies the stage of a call an event reports.
type Type string

const (
	TypeHeaders  Type = "headers"
	TypeResponse Type = "response"
	TypeTrailers Type = "trailers"
	TypeError    Type = "error"
)

// Terminal reports whether no further events follow this type.
func (t Type) Terminal() bool {
	return t == TypeTrailers || t == TypeError
}

// Event is a normalized call event tagged with its call handle.
type Event struct {
	ID       int64
	Type     Type
	Headers  map[string]string
	Message  []byte
	Trailers map[string]string
	Error    string
	Code     codes.Code
}

// Headers builds a headers event.
func Headers(id int64, md map[string]string) Event {
	return Event{ID: id, Type: TypeHeaders, Headers: md}
}

// Response builds a response event carrying one message.
func Response(id int64, msg []byte) Event {
	return Event{ID: id, Type: TypeResponse, Message: msg}
}

// Trailers builds the terminal event of a successful call.
func Trailers(id int64, md map[string]string) Event {
	return Event{ID: id, Type: TypeTrailers, Trailers: md}
}

// Failure builds the terminal event of a failed call.
func Failure(id int64, message string, code codes.Code, md map[string]string) Event {
	return Event{ID: id, Type: TypeError, Error: message, Code: code, Trailers: md}
}

// Wire renders the event in the host shape:
// {id, type, payload?, error?, code?, trailers?}.
func (e Event) Wire() map[string]any {
	out := map[string]any{
		"id":   e.ID,
		"type": string(e.Type),
	}
	switch e.Type {
	case TypeHeaders:
		out["payload"] = nonNil(e.Headers)
	case TypeResponse:
		out["payload"] = base64.StdEncoding.EncodeToString(e.Message)
	case TypeTrailers:
		out["payload"] = nonNil(e.Trailers)
	case TypeError:
		out["error"] = e.Error
		out["code"] = int(e.Code)
		out["trailers"] = nonNil(e.Trailers)
	}
	return out
}

// MarshalJSON implements json.Marshaler using the host shape.
func (e Event) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(e.Wire())
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
