package federation

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the federation package.
var (
	// ErrClosed is returned when operations are attempted on a closed component.
	ErrClosed = errors.New("federation: closed")

	// ErrRemoteTimeout is returned when a remote call exceeds its time budget.
	ErrRemoteTimeout = errors.New("remote query timeout")

	// ErrTransport is returned when the remote call fails before a body arrives.
	ErrTransport = errors.New("remote transport failure")

	// ErrRemoteQuery is returned when the remote reports a structured query failure.
	ErrRemoteQuery = errors.New("remote reported query failure")

	// ErrUndecodableBody is returned when a response body cannot be decoded.
	ErrUndecodableBody = errors.New("undecodable remote response body")

	// ErrMalformedBucket is returned when a histogram bucket boundary is neither
	// "+inf" nor numeric.
	ErrMalformedBucket = errors.New("malformed histogram bucket boundary")

	// ErrUnsupportedAggregate is returned when an aggregate sample is neither
	// average nor stddev shaped.
	ErrUnsupportedAggregate = errors.New("unsupported aggregate sample shape")

	// ErrMalformedSample is returned when a wire sample cannot be interpreted.
	ErrMalformedSample = errors.New("malformed wire sample")

	// ErrPartitionNotFound is returned when a partition name is not registered.
	ErrPartitionNotFound = errors.New("partition not found")

	// ErrTooManyInflight is returned when the coordinator's concurrency limit
	// is saturated.
	ErrTooManyInflight = errors.New("too many in-flight federated queries")
)

// ErrorKind categorizes federated execution failures.
type ErrorKind int

const (
	// ErrorKindUnknown is an unclassified failure.
	ErrorKindUnknown ErrorKind = iota
	// ErrorKindTransport indicates the call failed before any body was received.
	ErrorKindTransport
	// ErrorKindTimeout indicates the time budget expired.
	ErrorKindTimeout
	// ErrorKindRemote indicates the remote returned a structured error body.
	ErrorKindRemote
	// ErrorKindDecode indicates a response body could not be decoded.
	ErrorKindDecode
	// ErrorKindMalformed indicates the payload violated the wire contract.
	ErrorKindMalformed
)

// RemoteError describes a failed federated query execution. For remote-reported
// failures it carries the remote's own status fields verbatim.
type RemoteError struct {
	Kind       ErrorKind
	StatusCode int    // HTTP-like status from the remote, 0 when none arrived
	Status     string // remote status string, e.g. "error"
	ErrorType  string // remote error classification, e.g. "bad_data"
	Message    string
	Cause      error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if e.ErrorType != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.ErrorType)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *RemoteError) Unwrap() error {
	return e.Cause
}

// Is implements error matching for RemoteError.
func (e *RemoteError) Is(target error) bool {
	switch e.Kind {
	case ErrorKindTransport:
		return target == ErrTransport
	case ErrorKindTimeout:
		return target == ErrRemoteTimeout
	case ErrorKindRemote:
		return target == ErrRemoteQuery
	case ErrorKindDecode:
		return target == ErrUndecodableBody
	}
	return false
}

// newRemoteError creates a new RemoteError.
func newRemoteError(kind ErrorKind, message string, cause error) *RemoteError {
	return &RemoteError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// newRemoteReportedError creates a RemoteError from a decoded error body.
func newRemoteReportedError(statusCode int, status, errorType, message string) *RemoteError {
	return &RemoteError{
		Kind:       ErrorKindRemote,
		StatusCode: statusCode,
		Status:     status,
		ErrorType:  errorType,
		Message:    message,
	}
}
