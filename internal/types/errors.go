package types

import (
	"errors"
	"fmt"
)

// StateNotFoundError is returned when no persisted state exists where one was
// required. A fresh workflow must create its state with `brownfield init`.
type StateNotFoundError struct {
	Path string
}

func (e *StateNotFoundError) Error() string {
	return fmt.Sprintf("no brownfield state found at %s (run 'brownfield init' first)", e.Path)
}

// InvalidStateError is returned when persisted or requested state fails
// validation, or when an operation targets an unknown phase or task.
type InvalidStateError struct {
	Op     string
	Reason string
	// NeedsMigration is set when the payload is readable but was written by an
	// older schema version. Such payloads go through the migration path.
	NeedsMigration bool
	Err            error
}

func (e *InvalidStateError) Error() string {
	msg := e.Reason
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidStateError) Unwrap() error { return e.Err }

// NewInvalidState builds an InvalidStateError with a formatted reason.
func NewInvalidState(op, format string, args ...interface{}) *InvalidStateError {
	return &InvalidStateError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// PhaseError is returned when a phase-level operation cannot proceed, e.g. a
// task failed after exhausting its retries.
type PhaseError struct {
	Phase  Phase
	TaskID string
	Reason string
	Err    error
}

func (e *PhaseError) Error() string {
	msg := fmt.Sprintf("phase %s failed", e.Phase)
	if e.TaskID != "" {
		msg += fmt.Sprintf(" at task %s", e.TaskID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PhaseError) Unwrap() error { return e.Err }

// IsStateNotFound reports whether err is (or wraps) a StateNotFoundError.
func IsStateNotFound(err error) bool {
	var target *StateNotFoundError
	return errors.As(err, &target)
}

// IsInvalidState reports whether err is (or wraps) an InvalidStateError.
func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

// NeedsMigration reports whether err signals a persisted payload written by an
// older schema version.
func NeedsMigration(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target) && target.NeedsMigration
}
