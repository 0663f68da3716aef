package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackzampolin/reportsum/internal/extract"
	"github.com/jackzampolin/reportsum/internal/summarizer"
	"github.com/jackzampolin/reportsum/internal/tasks"
)

// ErrCancelled is returned when the job's stop signal is seen between stages.
var ErrCancelled = errors.New("processing cancelled")

// StageError ties a failure to the stage that produced it.
type StageError struct {
	Stage tasks.Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Classify maps a processing error onto the task error model.
func Classify(err error) *tasks.ErrorInfo {
	if err == nil {
		return nil
	}
	info := &tasks.ErrorInfo{Kind: tasks.KindInternal, Message: err.Error()}

	var se *StageError
	if errors.As(err, &se) {
		info.Stage = se.Stage
		info.Message = se.Err.Error()
	}

	switch {
	case extract.IsCorruptInput(err):
		info.Kind = tasks.KindCorruptInput
	case summarizer.KindOf(err) == summarizer.KindSchemaViolation:
		info.Kind = tasks.KindSchemaViolation
	case summarizer.KindOf(err) == summarizer.KindUpstreamUnavailable:
		info.Kind = tasks.KindUpstreamUnavailable
	case errors.Is(err, ErrCancelled),
		errors.Is(err, summarizer.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		info.Kind = tasks.KindCancelled
	}
	return info
}
