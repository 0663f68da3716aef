package llmcall

import (
	"sort"
	"sync"
	"time"
)

// DefaultCapacity bounds the number of calls kept in memory.
const DefaultCapacity = 10000

// Store is a bounded in-memory ledger of calls. When full, the oldest
// call is evicted.
type Store struct {
	mu       sync.RWMutex
	calls    []Call
	capacity int
}

// NewStore creates a store holding at most capacity calls.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// QueryFilter specifies filters for listing LLM calls.
type QueryFilter struct {
	TaskID  string
	Kind    Kind
	Model   string
	After   *time.Time
	Success *bool
	Limit   int
	Offset  int
}

// Add appends a call.
func (s *Store) Add(c Call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) >= s.capacity {
		n := len(s.calls) - s.capacity + 1
		s.calls = append(s.calls[:0], s.calls[n:]...)
	}
	s.calls = append(s.calls, c)
}

// Get retrieves a single call by ID.
func (s *Store) Get(id string) (*Call, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.calls {
		if s.calls[i].ID == id {
			c := s.calls[i]
			return &c, true
		}
	}
	return nil, false
}

// List returns calls matching filter, oldest first.
func (s *Store) List(filter QueryFilter) []Call {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Call, 0)
	for _, c := range s.calls {
		if filter.TaskID != "" && c.TaskID != filter.TaskID {
			continue
		}
		if filter.Kind != "" && c.Kind != filter.Kind {
			continue
		}
		if filter.Model != "" && c.Model != filter.Model {
			continue
		}
		if filter.Success != nil && c.Success != *filter.Success {
			continue
		}
		if filter.After != nil && !c.Timestamp.After(*filter.After) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []Call{}
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// Summary aggregates the calls of one task.
type Summary struct {
	Calls        int `json:"calls"`
	Failed       int `json:"failed"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Summarize totals a task's calls. Token counts include successful calls only.
func (s *Store) Summarize(taskID string) Summary {
	var sum Summary
	for _, c := range s.List(QueryFilter{TaskID: taskID}) {
		sum.Calls++
		if !c.Success {
			sum.Failed++
			continue
		}
		sum.InputTokens += c.InputTokens
		sum.OutputTokens += c.OutputTokens
	}
	return sum
}
