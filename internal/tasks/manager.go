package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/reportsum/internal/schema"
)

// Defaults applied by NewManager for zero Config values.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// Config configures a Manager.
type Config struct {
	Processor Processor
	Workers   int
	QueueSize int
	Logger    *slog.Logger
}

// entry is the stored form of a task plus its cancellation signal.
type entry struct {
	task     Task
	stop     chan struct{}
	stopOnce sync.Once
}

func (e *entry) signalStop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// Manager is the task store and worker pool. All task mutation goes
// through transition, under mu.
type Manager struct {
	mu      sync.RWMutex
	tasks   map[string]*entry
	order   []string
	batches map[string][]string
	// changed is closed and replaced on every transition.
	changed chan struct{}
	closed  bool

	queue     chan string
	processor Processor
	workers   int
	logger    *slog.Logger
	wg        sync.WaitGroup
	startOnce sync.Once

	now func() time.Time
}

// NewManager creates a manager. Call Start to begin processing.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Manager{
		tasks:     make(map[string]*entry),
		batches:   make(map[string][]string),
		changed:   make(chan struct{}),
		queue:     make(chan string, queueSize),
		processor: cfg.Processor,
		workers:   workers,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit creates a PENDING task and queues it.
func (m *Manager) Submit(in Input) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.reserve(1); err != nil {
		return Task{}, err
	}
	e := m.create(in, "")
	m.queue <- e.task.ID
	return e.task.clone(), nil
}

// SubmitBatch creates one PENDING task per input, all sharing a new batch
// ID. Either every task is queued or none is.
func (m *Manager) SubmitBatch(inputs []Input) (string, []Task, error) {
	if len(inputs) == 0 {
		return "", nil, fmt.Errorf("batch has no inputs")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.reserve(len(inputs)); err != nil {
		return "", nil, err
	}
	batchID := uuid.New().String()
	out := make([]Task, 0, len(inputs))
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		e := m.create(in, batchID)
		m.queue <- e.task.ID
		ids = append(ids, e.task.ID)
		out = append(out, e.task.clone())
	}
	m.batches[batchID] = ids
	m.logger.Info("batch submitted", "batch_id", batchID, "tasks", len(ids))
	return batchID, out, nil
}

// reserve checks that n sends to the queue will not block. Must be called
// with mu held; only submitters send, and they hold mu.
func (m *Manager) reserve(n int) error {
	if m.closed {
		return ErrClosed
	}
	if cap(m.queue)-len(m.queue) < n {
		return fmt.Errorf("%w: %d free slots, %d requested", ErrQueueFull, cap(m.queue)-len(m.queue), n)
	}
	return nil
}

// create stores a new PENDING task. Must be called with mu held.
func (m *Manager) create(in Input, batchID string) *entry {
	now := m.now()
	source := in.SourceFile
	if source == "" {
		source = filepath.Base(in.Path)
	}
	e := &entry{
		task: Task{
			ID:             uuid.New().String(),
			BatchID:        batchID,
			State:          StatePending,
			InputReference: in.Path,
			SourceFile:     source,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		stop: make(chan struct{}),
	}
	m.tasks[e.task.ID] = e
	m.order = append(m.order, e.task.ID)
	m.logger.Info("task submitted", "task_id", e.task.ID, "batch_id", batchID, "input", in.Path)
	return e
}

// transition is the single mutation path for task state. It enforces the
// state machine and the state/payload pairing: COMPLETED carries a result
// and no error, FAILED carries an error and no result.
func (m *Manager) transition(id string, to State, result *schema.Result, errInfo *ErrorInfo) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	from := e.task.State
	if !allowed(from, to) {
		return e.task.clone(), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	switch to {
	case StateCompleted:
		if result == nil || errInfo != nil {
			return e.task.clone(), fmt.Errorf("%w: completed task needs a result and no error", ErrInvalidTransition)
		}
	case StateFailed:
		if errInfo == nil || result != nil {
			return e.task.clone(), fmt.Errorf("%w: failed task needs an error and no result", ErrInvalidTransition)
		}
	}

	now := m.now()
	e.task.State = to
	e.task.UpdatedAt = now
	switch to {
	case StateRunning:
		e.task.StartedAt = &now
	case StateCompleted, StateFailed:
		e.task.CompletedAt = &now
		e.task.Result = result
		e.task.Error = errInfo
	}

	close(m.changed)
	m.changed = make(chan struct{})

	attrs := []any{"task_id", id, "from", from, "to", to}
	if errInfo != nil {
		attrs = append(attrs, "kind", errInfo.Kind, "stage", errInfo.Stage, "error", errInfo.Message)
	}
	m.logger.Info("task state changed", attrs...)
	return e.task.clone(), nil
}

func allowed(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}

// Get returns a snapshot of a task.
func (m *Manager) Get(id string) (Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return e.task.clone(), nil
}

// Cancel stops a task. A PENDING task fails immediately with kind
// Cancelled. A RUNNING task is signalled and fails once the pipeline
// reaches its next chunk-call boundary.
func (m *Manager) Cancel(id string) (Task, error) {
	m.mu.RLock()
	e, ok := m.tasks[id]
	var state State
	if ok {
		state = e.task.State
	}
	m.mu.RUnlock()
	if !ok {
		return Task{}, ErrNotFound
	}

	switch state {
	case StatePending:
		t, err := m.transition(id, StateFailed, nil, &ErrorInfo{
			Kind:    KindCancelled,
			Message: "cancelled before start",
			Stage:   StageQueue,
		})
		if err == nil {
			return t, nil
		}
		// Picked up by a worker in the meantime; fall through to signal it.
		if t.State.Terminal() {
			return t, ErrTerminal
		}
		e.signalStop()
		return m.Get(id)
	case StateRunning:
		e.signalStop()
		m.logger.Info("task cancellation requested", "task_id", id)
		return m.Get(id)
	default:
		t, _ := m.Get(id)
		return t, ErrTerminal
	}
}

// ListFilter specifies criteria for listing tasks.
type ListFilter struct {
	BatchID string
	State   State
	Limit   int
}

// List returns task snapshots in submission order.
func (m *Manager) List(filter ListFilter) []Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.order
	if filter.BatchID != "" {
		ids = m.batches[filter.BatchID]
	}
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		e := m.tasks[id]
		if filter.State != "" && e.task.State != filter.State {
			continue
		}
		out = append(out, e.task.clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// BatchStatus summarizes a batch.
type BatchStatus struct {
	BatchID string        `json:"batch_id"`
	TaskIDs []string      `json:"task_ids"`
	Total   int           `json:"total"`
	Counts  map[State]int `json:"counts"`
	Done    bool          `json:"done"`
}

// Batch returns the status of a batch.
func (m *Manager) Batch(batchID string) (BatchStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.batches[batchID]
	if !ok {
		return BatchStatus{}, ErrNotFound
	}
	st := BatchStatus{
		BatchID: batchID,
		TaskIDs: append([]string(nil), ids...),
		Total:   len(ids),
		Counts: map[State]int{
			StatePending:   0,
			StateRunning:   0,
			StateCompleted: 0,
			StateFailed:    0,
		},
	}
	for _, id := range ids {
		st.Counts[m.tasks[id].task.State]++
	}
	st.Done = st.Counts[StateCompleted]+st.Counts[StateFailed] == st.Total
	return st, nil
}

// SummaryInfo identifies a completed summary.
type SummaryInfo struct {
	TaskID              string `json:"task_id"`
	BatchID             string `json:"batch_id,omitempty"`
	SourceFile          string `json:"source_file"`
	ProcessingTimestamp string `json:"processing_timestamp"`
	ModelUsed           string `json:"model_used"`
}

// Summaries lists completed tasks' summaries in submission order.
func (m *Manager) Summaries() []SummaryInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SummaryInfo, 0)
	for _, id := range m.order {
		t := m.tasks[id].task
		if t.State != StateCompleted {
			continue
		}
		out = append(out, SummaryInfo{
			TaskID:              t.ID,
			BatchID:             t.BatchID,
			SourceFile:          t.Result.Metadata.SourceFile,
			ProcessingTimestamp: t.Result.Metadata.ProcessingTimestamp,
			ModelUsed:           t.Result.Metadata.ModelUsed,
		})
	}
	return out
}

// Summary returns a copy of a completed task's result.
func (m *Manager) Summary(id string) (*schema.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if e.task.State != StateCompleted {
		return nil, fmt.Errorf("%w: task is %s", ErrNotCompleted, e.task.State)
	}
	return e.task.Result.Clone(), nil
}

// Wait blocks until the task reaches a terminal state or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (Task, error) {
	for {
		m.mu.RLock()
		e, ok := m.tasks[id]
		if !ok {
			m.mu.RUnlock()
			return Task{}, ErrNotFound
		}
		t := e.task.clone()
		changed := m.changed
		m.mu.RUnlock()

		if t.State.Terminal() {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-changed:
		}
	}
}
