package channel

import "google.golang.org/grpc/connectivity"

// State is the connectivity state reported to callers.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateTransientFailure
	StateShutdown
	StateUnknown
)

// String returns the upper-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateTransientFailure:
		return "TRANSIENT_FAILURE"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

func fromConnectivity(s connectivity.State) State {
	switch s {
	case connectivity.Idle:
		return StateIdle
	case connectivity.Connecting:
		return StateConnecting
	case connectivity.Ready:
		return StateReady
	case connectivity.TransientFailure:
		return StateTransientFailure
	case connectivity.Shutdown:
		return StateShutdown
	default:
		return StateUnknown
	}
}
