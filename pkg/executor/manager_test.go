package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthive/agenthive/pkg/scripting"
	"github.com/agenthive/agenthive/pkg/storage"
	"github.com/agenthive/agenthive/pkg/workflow"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []workflow.Execution
}

func (n *recordingNotifier) ExecutionEvent(exec workflow.Execution) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, exec)
}

func (n *recordingNotifier) statuses() []workflow.ExecutionState {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]workflow.ExecutionState, len(n.events))
	for i, e := range n.events {
		out[i] = e.Status
	}
	return out
}

func newTestManager(t *testing.T, dispatcher StepDispatcher, workers, queueSize int) (*Manager, *storage.MemoryWorkflowStore, *storage.MemoryExecutionStore, *recordingNotifier) {
	t.Helper()

	workflows := storage.NewMemoryWorkflowStore()
	executions := storage.NewMemoryExecutionStore()
	exec := NewExecutor(workflows, executions, dispatcher, scripting.NewJSEvaluator(), nil, nil)
	notifier := &recordingNotifier{}
	manager := NewManager(exec, executions, workers, queueSize, notifier, nil)
	return manager, workflows, executions, notifier
}

func waitForStatus(t *testing.T, executions storage.ExecutionStore, id string, want workflow.ExecutionState) workflow.Execution {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		exec, err := executions.GetExecution(id)
		if err == nil && exec.Status == want {
			return exec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("execution %s never reached %s", id, want)
	return workflow.Execution{}
}

func TestManagerExecuteAsync(t *testing.T) {
	dispatcher := newFakeDispatcher()
	dispatcher.results["core.log"] = map[string]interface{}{"done": true}

	manager, workflows, executions, notifier := newTestManager(t, dispatcher, 2, 8)
	manager.Start()
	defer manager.Stop()

	wf := activeWorkflow(workflow.Step{Integration: "core", Action: "log"})
	require.NoError(t, workflows.SaveWorkflow(wf))

	id, err := manager.Execute(wf, map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	exec := waitForStatus(t, executions, id, workflow.ExecutionCompleted)
	assert.Equal(t, true, exec.Output["done"])

	// Lifecycle events were broadcast
	require.Eventually(t, func() bool {
		statuses := notifier.statuses()
		return len(statuses) >= 2 && statuses[len(statuses)-1] == workflow.ExecutionCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManagerExecuteRejectsInactive(t *testing.T) {
	dispatcher := newFakeDispatcher()
	manager, workflows, _, _ := newTestManager(t, dispatcher, 1, 4)
	manager.Start()
	defer manager.Stop()

	wf := activeWorkflow(workflow.Step{Integration: "core", Action: "log"})
	wf.Status = workflow.StatusPaused
	require.NoError(t, workflows.SaveWorkflow(wf))

	_, err := manager.Execute(wf, nil)
	assert.ErrorIs(t, err, workflow.ErrNotActive)
}

func TestManagerQueueFull(t *testing.T) {
	dispatcher := newFakeDispatcher()
	dispatcher.block = make(chan struct{})

	// One worker, queue of one: the first job occupies the worker, the
	// second fills the queue, the third must be rejected
	manager, workflows, _, _ := newTestManager(t, dispatcher, 1, 1)
	manager.Start()

	wf := activeWorkflow(workflow.Step{Integration: "core", Action: "log"})
	require.NoError(t, workflows.SaveWorkflow(wf))

	_, err := manager.Execute(wf, nil)
	require.NoError(t, err)

	// Wait for the worker to pick the first job up
	require.Eventually(t, func() bool {
		return dispatcher.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = manager.Execute(wf, nil)
	require.NoError(t, err)

	_, err = manager.Execute(wf, nil)
	assert.ErrorIs(t, err, ErrQueueFull)

	close(dispatcher.block)
	manager.Stop()
}

func TestManagerCancel(t *testing.T) {
	dispatcher := newFakeDispatcher()
	dispatcher.block = make(chan struct{})

	manager, workflows, executions, _ := newTestManager(t, dispatcher, 1, 4)
	manager.Start()
	defer manager.Stop()

	wf := activeWorkflow(
		workflow.Step{Integration: "core", Action: "a"},
		workflow.Step{Integration: "core", Action: "b"},
	)
	require.NoError(t, workflows.SaveWorkflow(wf))

	id, err := manager.Execute(wf, nil)
	require.NoError(t, err)

	// First step is in flight
	require.Eventually(t, func() bool {
		return dispatcher.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, manager.Active(), id)

	require.NoError(t, manager.Cancel(id))
	close(dispatcher.block)

	exec := waitForStatus(t, executions, id, workflow.ExecutionCancelled)
	require.NotNil(t, exec.CompletedAt)

	// Cancelled runs don't count toward statistics
	stored, err := workflows.GetWorkflow(wf.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.RunCount)
}

func TestManagerCancelQueued(t *testing.T) {
	dispatcher := newFakeDispatcher()
	dispatcher.block = make(chan struct{})

	// One worker: the first job occupies it, the second stays queued
	manager, workflows, executions, _ := newTestManager(t, dispatcher, 1, 4)
	manager.Start()
	defer manager.Stop()

	wf := activeWorkflow(workflow.Step{Integration: "core", Action: "log"})
	require.NoError(t, workflows.SaveWorkflow(wf))

	first, err := manager.Execute(wf, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return dispatcher.callCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	queued, err := manager.Execute(wf, nil)
	require.NoError(t, err)

	require.NoError(t, manager.Cancel(queued))

	exec, err := executions.GetExecution(queued)
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionCancelled, exec.Status)
	require.NotNil(t, exec.CompletedAt)

	// The dropped job never runs once the worker frees up
	close(dispatcher.block)
	waitForStatus(t, executions, first, workflow.ExecutionCompleted)
	assert.Equal(t, 1, dispatcher.callCount())

	exec, err = executions.GetExecution(queued)
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionCancelled, exec.Status)
}

func TestManagerCancelTerminal(t *testing.T) {
	dispatcher := newFakeDispatcher()
	manager, workflows, executions, _ := newTestManager(t, dispatcher, 1, 4)
	manager.Start()
	defer manager.Stop()

	wf := activeWorkflow(workflow.Step{Integration: "core", Action: "log"})
	require.NoError(t, workflows.SaveWorkflow(wf))

	id, err := manager.Execute(wf, nil)
	require.NoError(t, err)
	waitForStatus(t, executions, id, workflow.ExecutionCompleted)

	err = manager.Cancel(id)
	assert.ErrorIs(t, err, ErrNotRunning)

	err = manager.Cancel("no-such-execution")
	assert.ErrorIs(t, err, storage.ErrExecutionNotFound)
}

func TestManagerExecuteSync(t *testing.T) {
	dispatcher := newFakeDispatcher()
	dispatcher.results["core.log"] = map[string]interface{}{"done": true}

	manager, workflows, _, notifier := newTestManager(t, dispatcher, 1, 4)
	manager.Start()
	defer manager.Stop()

	wf := activeWorkflow(workflow.Step{Integration: "core", Action: "log"})
	require.NoError(t, workflows.SaveWorkflow(wf))

	result, err := manager.ExecuteSync(context.Background(), wf, nil)
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionCompleted, result.Status)
	assert.Equal(t, true, result.Output["done"])

	statuses := notifier.statuses()
	require.NotEmpty(t, statuses)
	assert.Equal(t, workflow.ExecutionCompleted, statuses[len(statuses)-1])
}

func TestManagerConcurrencyBound(t *testing.T) {
	dispatcher := newFakeDispatcher()
	dispatcher.block = make(chan struct{})

	manager, workflows, _, _ := newTestManager(t, dispatcher, 2, 16)
	manager.Start()

	wf := activeWorkflow(workflow.Step{Integration: "core", Action: "log"})
	require.NoError(t, workflows.SaveWorkflow(wf))

	for i := 0; i < 6; i++ {
		_, err := manager.Execute(wf, nil)
		require.NoError(t, err)
	}

	// Only as many steps in flight as there are workers
	require.Eventually(t, func() bool {
		return dispatcher.callCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, dispatcher.callCount())
	assert.Len(t, manager.Active(), 2)

	close(dispatcher.block)
	manager.Stop()
}
