package calls

import (
	"errors"
	"fmt"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrInvalidPath is returned for method paths not shaped like "pkg.Service/Method".
	ErrInvalidPath = errors.New("invalid method path")
	// ErrCallClosed is returned when sending on a call that was half-closed or has ended.
	ErrCallClosed = errors.New("call is closed for sending")
)

// TransportError reports a failure to construct or start a call.
type TransportError struct {
	Handle int64
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("call %d %s: %v", e.Handle, e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CancelledDescription is the status description of calls cancelled by the host.
const CancelledDescription = "Cancelled"

var codeNames = map[codes.Code]string{
	codes.OK:                 "OK",
	codes.Canceled:           "CANCELLED",
	codes.Unknown:            "UNKNOWN",
	codes.InvalidArgument:    "INVALID_ARGUMENT",
	codes.DeadlineExceeded:   "DEADLINE_EXCEEDED",
	codes.NotFound:           "NOT_FOUND",
	codes.AlreadyExists:      "ALREADY_EXISTS",
	codes.PermissionDenied:   "PERMISSION_DENIED",
	codes.ResourceExhausted:  "RESOURCE_EXHAUSTED",
	codes.FailedPrecondition: "FAILED_PRECONDITION",
	codes.Aborted:            "ABORTED",
	codes.OutOfRange:         "OUT_OF_RANGE",
	codes.Unimplemented:      "UNIMPLEMENTED",
	codes.Internal:           "INTERNAL",
	codes.Unavailable:        "UNAVAILABLE",
	codes.DataLoss:           "DATA_LOSS",
	codes.Unauthenticated:    "UNAUTHENTICATED",
}

// CodeName returns the canonical upper-case name of a status code.
func CodeName(c codes.Code) string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "CODE(" + strconv.Itoa(int(c)) + ")"
}

// ErrorMessage renders a status as "CODE_NAME: description", or the code
// name alone when there is no description.
func ErrorMessage(st *status.Status) string {
	name := CodeName(st.Code())
	if st.Message() == "" {
		return name
	}
	return name + ": " + st.Message()
}
