package session

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors usable with [errors.Is].
var (
	// ErrInvalidState is matched by every [*StateError].
	ErrInvalidState = errors.New("session: invalid state")

	// ErrTimeout is matched by every [*TimeoutError].
	ErrTimeout = errors.New("session: finalize timeout")

	// ErrClosed is returned by Client methods after Close and rejects a
	// session that was still running when the client closed.
	ErrClosed = errors.New("session: client closed")
)

// StateError reports an operation that is not valid in the client's current
// state. Nothing is sent to the service when it is returned.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("session: %s not allowed in state %s", e.Op, e.State)
}

// Is reports whether target is [ErrInvalidState].
func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

// ConnectionError reports a transport failure. It rejects any in-flight
// session and triggers automatic reconnection.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("session: connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed or unexpected message from the service.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("session: protocol: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TimeoutError is returned alongside best-effort partial text when no final
// result arrived in time. Cause is set when the wait ended early because the
// service sent something the client could not interpret.
type TimeoutError struct {
	Partial string
	After   time.Duration
	Cause   error
}

func (e *TimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session: no final result: %v", e.Cause)
	}
	return fmt.Sprintf("session: no final result after %s", e.After)
}

// Is reports whether target is [ErrTimeout].
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.Cause }

// ServiceError carries an error message reported by the transcription
// service.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return "session: service error: " + e.Message
}
