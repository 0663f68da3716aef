package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/jackzampolin/reportsum/internal/schema"
)

// Start launches the worker pool. Workers run until ctx is cancelled.
// Calling Start more than once has no effect.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.logger.Info("task workers starting", "workers", m.workers, "queue_size", cap(m.queue))
		for i := 0; i < m.workers; i++ {
			m.wg.Add(1)
			go m.worker(ctx, i)
		}
	})
}

// Shutdown stops accepting submissions and waits for workers to exit.
// Workers exit once the context given to Start is cancelled.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) worker(ctx context.Context, n int) {
	defer m.wg.Done()
	logger := m.logger.With("worker", n)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopping")
			return
		case id := <-m.queue:
			m.runTask(ctx, id)
		}
	}
}

// runTask moves one task through RUNNING to a terminal state. A task
// cancelled while queued is skipped.
func (m *Manager) runTask(ctx context.Context, id string) {
	task, err := m.transition(id, StateRunning, nil, nil)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			m.logger.Debug("skipping task no longer pending", "task_id", id, "state", task.State)
			return
		}
		m.logger.Error("failed to start task", "task_id", id, "error", err)
		return
	}

	m.mu.RLock()
	stop := m.tasks[id].stop
	m.mu.RUnlock()

	result, errInfo := m.process(ctx, Job{
		TaskID:     task.ID,
		BatchID:    task.BatchID,
		Path:       task.InputReference,
		SourceFile: task.SourceFile,
		Stop:       stop,
	})

	if errInfo != nil {
		_, err = m.transition(id, StateFailed, nil, errInfo)
	} else {
		_, err = m.transition(id, StateCompleted, result, nil)
	}
	if err != nil {
		m.logger.Error("failed to finish task", "task_id", id, "error", err)
	}
}

// process calls the processor, converting a panic into an Internal failure
// so one bad input cannot take down a worker. Failures without a stage of
// their own are attributed to the last stage the processor entered.
func (m *Manager) process(ctx context.Context, job Job) (result *schema.Result, errInfo *ErrorInfo) {
	var current atomic.Value
	current.Store(StageQueue)
	job.Enter = func(s Stage) { current.Store(s) }
	stage := func() Stage { return current.Load().(Stage) }

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("task panicked", "task_id", job.TaskID, "stage", stage(), "panic", r, "stack", string(debug.Stack()))
			result = nil
			errInfo = &ErrorInfo{Kind: KindInternal, Message: fmt.Sprintf("panic: %v", r), Stage: stage()}
		}
	}()
	if m.processor == nil {
		return nil, &ErrorInfo{Kind: KindInternal, Message: "no processor configured", Stage: StageQueue}
	}
	result, errInfo = m.processor.Process(ctx, job)
	if result == nil && errInfo == nil {
		errInfo = &ErrorInfo{Kind: KindInternal, Message: "pipeline returned neither result nor error", Stage: stage()}
	}
	return result, errInfo
}
