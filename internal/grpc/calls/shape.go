package calls

import "google.golang.org/grpc"

// Shape is the message cardinality of a call.
type Shape int

const (
	Unary Shape = iota
	ServerStreaming
	ClientStreaming
)

// String returns the metric label for the shape.
func (s Shape) String() string {
	switch s {
	case Unary:
		return "unary"
	case ServerStreaming:
		return "server_streaming"
	case ClientStreaming:
		return "client_streaming"
	default:
		return "unknown"
	}
}

func (s Shape) desc() *grpc.StreamDesc {
	return &grpc.StreamDesc{
		StreamName:    s.String(),
		ServerStreams: s == ServerStreaming,
		ClientStreams: s == ClientStreaming,
	}
}

// renewsCredit reports whether each received message grants credit for
// the next one.
func (s Shape) renewsCredit() bool {
	return s == ServerStreaming
}

// singleResponse reports whether the first message ends the call.
func (s Shape) singleResponse() bool {
	return s != ServerStreaming
}
