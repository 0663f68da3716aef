package llmcall

import (
	"github.com/jackzampolin/reportsum/internal/providers"
)

// Recorder writes calls to a Store. A nil Recorder or Store discards.
type Recorder struct {
	store *Store
}

// NewRecorder creates a new LLM call recorder.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Record captures a call from its result and returns the recorded Call.
func (r *Recorder) Record(result *providers.ChatResult, opts RecordOptions) *Call {
	call := FromChatResult(result, opts)
	r.RecordCall(call)
	return call
}

// RecordCall captures an already-constructed Call.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || r.store == nil || call == nil {
		return
	}
	r.store.Add(*call)
}
