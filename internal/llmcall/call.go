// Package llmcall records every model call made while summarizing a task,
// for token accounting and traceability.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/reportsum/internal/providers"
)

// Kind identifies the role a call played in summarization.
type Kind string

const (
	KindSingle  Kind = "single"
	KindPartial Kind = "partial"
	KindReduce  Kind = "reduce"
	KindRepair  Kind = "repair"
)

// Call represents a recorded LLM API call.
type Call struct {
	ID string `json:"id"`

	Timestamp time.Time `json:"timestamp"`
	LatencyMs int       `json:"latency_ms"`

	TaskID     string `json:"task_id,omitempty"`
	Kind       Kind   `json:"kind"`
	ChunkIndex *int   `json:"chunk_index,omitempty"`

	// Prompt traceability
	PromptKey  string `json:"prompt_key"`
	PromptHash string `json:"prompt_hash,omitempty"`

	Provider string `json:"provider"`
	Model    string `json:"model"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`

	// Attempts counts transport attempts, including transient retries.
	Attempts int `json:"attempts"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Tokens returns input plus output tokens.
func (c Call) Tokens() int {
	return c.InputTokens + c.OutputTokens
}

// RecordOptions provides context for recording an LLM call.
type RecordOptions struct {
	TaskID     string
	Kind       Kind
	ChunkIndex *int
	PromptKey  string
	PromptHash string
	Attempts   int
	// Err overrides the result's error message when set.
	Err error
}

// FromChatResult creates a Call from a ChatResult.
// Returns nil if result is nil.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := &Call{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		LatencyMs:    int(result.ExecutionTime.Milliseconds()),
		TaskID:       opts.TaskID,
		Kind:         opts.Kind,
		ChunkIndex:   opts.ChunkIndex,
		PromptKey:    opts.PromptKey,
		PromptHash:   opts.PromptHash,
		Provider:     result.Provider,
		Model:        result.ModelUsed,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		Attempts:     opts.Attempts,
		Success:      result.Success && opts.Err == nil,
	}
	if call.Attempts == 0 {
		call.Attempts = 1
	}
	switch {
	case opts.Err != nil:
		call.Error = opts.Err.Error()
	case !result.Success:
		call.Error = result.ErrorMessage
	}
	return call
}
