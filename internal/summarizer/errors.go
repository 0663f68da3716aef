package summarizer

import (
	"errors"
	"fmt"
)

// ErrorKind classifies summarization failures.
type ErrorKind string

const (
	// KindSchemaViolation means the model output failed validation after
	// one corrective repair call.
	KindSchemaViolation ErrorKind = "SchemaViolation"
	// KindUpstreamUnavailable means the model could not be reached after
	// bounded retries, or rejected the request outright.
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
)

// ErrStopped is returned when the caller's stop signal is observed at a
// chunk-call boundary.
var ErrStopped = errors.New("summarization stopped")

// Error is a fatal summarization failure.
type Error struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s after %d attempts: %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a summarization error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
