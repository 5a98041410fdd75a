// Package errorsx holds the structured Error type shared by every
// internal package, kept separate from the root package so that
// internal/workers, internal/timing, internal/router, et al. can all
// return structured errors without importing the root package (which
// imports them). The root package re-exports these names as type
// aliases, mirroring the way constants.go re-exports internal/pcore's
// constants.
package errorsx

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forkcore/platform/internal/pcore"
)

// ErrorKind groups errors by how the platform reacts: programming
// violations and resource exhaustion are non-fatal (logged, a sentinel
// is returned, the platform continues); framework inconsistencies are
// fatal.
type ErrorKind string

const (
	KindProgrammingViolation   ErrorKind = "programming violation"
	KindResourceExhaustion     ErrorKind = "resource exhaustion"
	KindFrameworkInconsistency ErrorKind = "framework inconsistency"
	KindSignalFatal            ErrorKind = "signal-delivered fatal"
	KindOrderlyShutdown        ErrorKind = "orderly shutdown"
)

// Error is a structured platform error carrying enough context to log a
// warning line naming the offending resource and caller.
type Error struct {
	Op       string
	WorkerID uint16
	TimerID  uint16
	Kind     ErrorKind
	Msg      string
	Inner    error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.WorkerID != 0 && e.WorkerID != pcore.WorkerIDInvalid {
		parts = append(parts, fmt.Sprintf("worker=0x%04x", e.WorkerID))
	}
	if e.TimerID != 0 && e.TimerID != pcore.TimerIDInvalid {
		parts = append(parts, fmt.Sprintf("timer=0x%04x", e.TimerID))
	}
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("platform: %s (%s)", msg, strings.Join(parts, " "))
	}
	return fmt.Sprintf("platform: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Kind == te.Kind
	}
	return false
}

// NewError creates a structured error with no worker/timer context.
func NewError(op string, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg, WorkerID: pcore.WorkerIDInvalid, TimerID: pcore.TimerIDInvalid}
}

// NewWorkerError attaches a worker identifier to the error context.
func NewWorkerError(op string, workerID uint16, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, WorkerID: workerID, TimerID: pcore.TimerIDInvalid, Kind: kind, Msg: msg}
}

// NewTimerError attaches a timer identifier to the error context.
func NewTimerError(op string, timerID uint16, kind ErrorKind, msg string) *Error {
	return &Error{Op: op, TimerID: timerID, WorkerID: pcore.WorkerIDInvalid, Kind: kind, Msg: msg}
}

// WrapError wraps an existing error under a new operation name.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var pe *Error
	if errors.As(inner, &pe) {
		return &Error{Op: op, WorkerID: pe.WorkerID, TimerID: pe.TimerID, Kind: pe.Kind, Msg: pe.Msg, Inner: pe.Inner}
	}
	return &Error{Op: op, WorkerID: pcore.WorkerIDInvalid, TimerID: pcore.TimerIDInvalid, Kind: KindFrameworkInconsistency, Msg: inner.Error(), Inner: inner}
}

// IsKind reports whether err is a structured Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// FatalError marks a framework inconsistency the design requires to
// abort the process rather than recover gracefully.
type FatalError struct {
	Err *Error
}

// Fatal wraps msg as a framework-inconsistency FatalError.
func Fatal(op, msg string) *FatalError {
	return &FatalError{&Error{Op: op, Kind: KindFrameworkInconsistency, Msg: msg, WorkerID: pcore.WorkerIDInvalid, TimerID: pcore.TimerIDInvalid}}
}

// Error implements the error interface by forwarding to the wrapped Error.
func (e *FatalError) Error() string { return e.Err.Error() }

// Unwrap allows errors.As/errors.Is to see through to the wrapped Error.
func (e *FatalError) Unwrap() error { return e.Err }
