// Package tasks owns the asynchronous lifecycle of summarization
// submissions: a synchronized task store, a bounded worker pool draining a
// queue, and the PENDING → RUNNING → COMPLETED|FAILED state machine.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/jackzampolin/reportsum/internal/schema"
)

var (
	// ErrNotFound is returned for unknown task or batch IDs.
	ErrNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a state change is not allowed
	// by the state machine or would pair a state with the wrong payload.
	ErrInvalidTransition = errors.New("invalid task state transition")
	// ErrTerminal is returned when cancelling a finished task.
	ErrTerminal = errors.New("task already finished")
	// ErrNotCompleted is returned when fetching the summary of an unfinished
	// or failed task.
	ErrNotCompleted = errors.New("task has no summary")
	// ErrQueueFull is returned when the pending queue cannot take the submission.
	ErrQueueFull = errors.New("task queue full")
	// ErrClosed is returned when submitting to a stopped manager.
	ErrClosed = errors.New("task manager stopped")
)

// State is a task's lifecycle state.
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ParseState parses a state name, case-sensitively.
func ParseState(s string) (State, bool) {
	switch State(s) {
	case StatePending, StateRunning, StateCompleted, StateFailed:
		return State(s), true
	}
	return "", false
}

// ErrorKind classifies a task failure.
type ErrorKind string

const (
	KindCorruptInput        ErrorKind = "CorruptInput"
	KindSchemaViolation     ErrorKind = "SchemaViolation"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindCancelled           ErrorKind = "Cancelled"
	KindInternal            ErrorKind = "Internal"
)

// Stage names the pipeline stage a failure came from.
type Stage string

const (
	StageQueue     Stage = "queue"
	StageExtract   Stage = "extract"
	StageMerge     Stage = "merge"
	StageChunk     Stage = "chunk"
	StageSummarize Stage = "summarize"
	StageArchive   Stage = "archive"
)

// ErrorInfo is the user-visible description of a failed task.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Stage   Stage     `json:"stage"`
}

func (e *ErrorInfo) Error() string {
	return string(e.Stage) + ": " + string(e.Kind) + ": " + e.Message
}

// Task is a snapshot of one submission. Snapshots are copies; mutating one
// never affects the store.
type Task struct {
	ID             string         `json:"task_id"`
	BatchID        string         `json:"batch_id,omitempty"`
	State          State          `json:"state"`
	InputReference string         `json:"input_reference"`
	SourceFile     string         `json:"source_file"`
	Result         *schema.Result `json:"result,omitempty"`
	Error          *ErrorInfo     `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

func (t Task) clone() Task {
	cp := t
	cp.Result = t.Result.Clone()
	if t.Error != nil {
		e := *t.Error
		cp.Error = &e
	}
	if t.StartedAt != nil {
		s := *t.StartedAt
		cp.StartedAt = &s
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		cp.CompletedAt = &c
	}
	return cp
}

// Input describes one file to summarize.
type Input struct {
	// Path is the server-local file to read.
	Path string `json:"path"`
	// SourceFile is the name reported in the summary; defaults to the
	// base name of Path.
	SourceFile string `json:"source_file,omitempty"`
}

// Job is what a Processor receives for one task run.
type Job struct {
	TaskID     string
	BatchID    string
	Path       string
	SourceFile string
	// Stop is closed when the task is cancelled while running.
	Stop <-chan struct{}
	// Enter, when set, is told each stage as it starts.
	Enter func(Stage)
}

// EnterStage reports that stage s is starting.
func (j Job) EnterStage(s Stage) {
	if j.Enter != nil {
		j.Enter(s)
	}
}

// Processor runs the pipeline for one task. Exactly one of the returned
// values is non-nil.
type Processor interface {
	Process(ctx context.Context, job Job) (*schema.Result, *ErrorInfo)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job Job) (*schema.Result, *ErrorInfo)

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, job Job) (*schema.Result, *ErrorInfo) {
	return f(ctx, job)
}
