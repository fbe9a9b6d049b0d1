package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/agenthive/agenthive/pkg/storage"
	"github.com/agenthive/agenthive/pkg/workflow"
)

// Errors returned by the execution manager
var (
	ErrQueueFull      = errors.New("execution queue is full")
	ErrNotRunning     = errors.New("execution is not running")
	ErrManagerStopped = errors.New("execution manager is stopped")
)

// Notifier receives execution lifecycle events for streaming to clients
type Notifier interface {
	ExecutionEvent(exec workflow.Execution)
}

// MultiNotifier fans each event out to several notifiers
type MultiNotifier []Notifier

// ExecutionEvent implements Notifier
func (m MultiNotifier) ExecutionEvent(exec workflow.Execution) {
	for _, n := range m {
		n.ExecutionEvent(exec)
	}
}

// Manager runs executions on a bounded worker pool. Async triggers
// enqueue and return immediately; a full queue is rejected rather than
// blocking the caller.
type Manager struct {
	executor *Executor
	store    storage.ExecutionStore
	queue    chan job
	workers  int
	notifier Notifier
	logger   *log.Logger

	mu        sync.Mutex
	active    map[string]context.CancelFunc
	cancelled map[string]bool
	stopped   bool
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

type job struct {
	exec workflow.Execution
	wf   workflow.Workflow
}

// NewManager creates a manager with the given pool size and queue
// capacity. The notifier may be nil.
func NewManager(executor *Executor, store storage.ExecutionStore, workers, queueSize int, notifier Notifier, logger *log.Logger) *Manager {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Manager{
		executor:  executor,
		store:     store,
		queue:     make(chan job, queueSize),
		workers:   workers,
		notifier:  notifier,
		logger:    logger,
		active:    make(map[string]context.CancelFunc),
		cancelled: make(map[string]bool),
	}
}

// Start launches the worker pool
func (m *Manager) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}
}

// Stop drains the pool. Queued executions that never ran stay pending
// in storage.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	close(m.queue)
	m.wg.Wait()
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()

	for j := range m.queue {
		select {
		case <-ctx.Done():
			return
		default:
		}
		m.run(ctx, j)
	}
}

// run executes one job with a per-execution cancel handle registered
func (m *Manager) run(ctx context.Context, j job) {
	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	// Cancelled while queued: Cancel already settled the record, drop
	// the job without running anything
	if m.cancelled[j.exec.ID] {
		delete(m.cancelled, j.exec.ID)
		m.mu.Unlock()
		return
	}
	m.active[j.exec.ID] = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.active, j.exec.ID)
		m.mu.Unlock()
	}()

	m.notify(j.exec, workflow.ExecutionRunning)

	result, err := m.executor.Run(execCtx, j.exec, j.wf)
	if err != nil {
		m.logger.Printf("execution %s failed to run: %v", j.exec.ID, err)
		return
	}

	m.notify(result, result.Status)
}

func (m *Manager) notify(exec workflow.Execution, status workflow.ExecutionState) {
	if m.notifier == nil {
		return
	}
	exec.Status = status
	m.notifier.ExecutionEvent(exec)
}

// ExecuteSync runs a workflow inline and returns the terminal execution
func (m *Manager) ExecuteSync(ctx context.Context, wf workflow.Workflow, input map[string]interface{}) (workflow.Execution, error) {
	exec := NewExecution(wf, input)

	execCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return workflow.Execution{}, ErrManagerStopped
	}
	m.active[exec.ID] = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.active, exec.ID)
		m.mu.Unlock()
	}()

	result, err := m.executor.Run(execCtx, exec, wf)
	if err != nil {
		return result, err
	}

	m.notify(result, result.Status)
	return result, nil
}

// Execute enqueues a workflow run and returns the execution id without
// waiting. The pending record is persisted before the id is returned so
// pollers never see a gap.
func (m *Manager) Execute(wf workflow.Workflow, input map[string]interface{}) (string, error) {
	if wf.Status != workflow.StatusActive {
		return "", fmt.Errorf("%w: %s", workflow.ErrNotActive, wf.ID)
	}
	if err := workflow.Validate(&wf); err != nil {
		return "", err
	}

	exec := NewExecution(wf, input)
	if err := m.store.SaveExecution(exec); err != nil {
		return "", fmt.Errorf("failed to persist execution: %w", err)
	}

	// The lock also orders this enqueue against Stop closing the queue
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return "", ErrManagerStopped
	}

	select {
	case m.queue <- job{exec: exec, wf: wf}:
		m.mu.Unlock()
		m.notify(exec, workflow.ExecutionPending)
		return exec.ID, nil
	default:
		m.mu.Unlock()
		// Queue full: settle the pending record as failed so it
		// doesn't hang around as a ghost
		exec.Status = workflow.ExecutionFailed
		exec.Error = ErrQueueFull.Error()
		now := exec.StartedAt
		exec.CompletedAt = &now
		if err := m.store.SaveExecution(exec); err != nil {
			m.logger.Printf("failed to mark rejected execution %s: %v", exec.ID, err)
		}
		return "", ErrQueueFull
	}
}

// Cancel requests cooperative cancellation. A running execution stops
// after its current step; a queued execution is settled immediately and
// dropped when a worker dequeues it.
func (m *Manager) Cancel(executionID string) error {
	m.mu.Lock()
	if cancel, ok := m.active[executionID]; ok {
		m.mu.Unlock()
		cancel()
		return nil
	}
	m.mu.Unlock()

	exec, err := m.store.GetExecution(executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotRunning, executionID, exec.Status)
	}

	m.mu.Lock()
	if cancel, ok := m.active[executionID]; ok {
		// A worker picked it up between the checks
		m.mu.Unlock()
		cancel()
		return nil
	}
	m.cancelled[executionID] = true
	m.mu.Unlock()

	exec.Status = workflow.ExecutionCancelled
	now := time.Now()
	exec.CompletedAt = &now
	if err := m.store.SaveExecution(exec); err != nil {
		return fmt.Errorf("failed to persist cancellation: %w", err)
	}
	m.notify(exec, workflow.ExecutionCancelled)

	return nil
}

// Active returns the ids of executions currently in flight
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}

	return ids
}
