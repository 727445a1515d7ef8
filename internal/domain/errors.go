package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed or missing input on a mutation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a record does not exist for the user.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied is returned by content storage when a write is rejected.
	ErrPermissionDenied = errors.New("permission denied")
)

// Severity tells callers whether a failure may be tolerated.
type Severity int

const (
	// SeverityRecoverable failures are logged and the primary operation continues.
	SeverityRecoverable Severity = iota
	// SeverityFatal failures abort the operation and are surfaced to the caller.
	SeverityFatal
)

func (s Severity) String() string {
	if s == SeverityFatal {
		return "fatal"
	}
	return "recoverable"
}

// OpError annotates an error with the operation that failed and its severity.
type OpError struct {
	Op       string
	Severity Severity
	Err      error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Severity, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Recoverable wraps err as a tolerated failure of op.
func Recoverable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Severity: SeverityRecoverable, Err: err}
}

// Fatal wraps err as a blocking failure of op.
func Fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Severity: SeverityFatal, Err: err}
}

// IsRecoverable reports whether err carries recoverable severity.
func IsRecoverable(err error) bool {
	var opErr *OpError
	return errors.As(err, &opErr) && opErr.Severity == SeverityRecoverable
}

// IsFatal reports whether err must be surfaced. Untyped errors count as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !IsRecoverable(err)
}

// Invalid builds a fatal invalid-input error with a user-facing message.
func Invalid(op, message string) error {
	return Fatal(op, fmt.Errorf("%w: %s", ErrInvalidInput, message))
}
