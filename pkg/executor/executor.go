// Package executor runs workflow steps in order and manages execution
// lifecycle.
package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/agenthive/agenthive/pkg/scripting"
	"github.com/agenthive/agenthive/pkg/storage"
	"github.com/agenthive/agenthive/pkg/workflow"
)

// stepEstimate is the assumed per-step cost reported by simulations
const stepEstimate = 2 * time.Second

// StepDispatcher routes one step to its integration connector
type StepDispatcher interface {
	Dispatch(ctx context.Context, accountID, integration, action string, config map[string]interface{}) (map[string]interface{}, error)
}

// CreditMeter charges prompt credits as steps run
type CreditMeter interface {
	// Consume charges the account; returns an error when the quota is
	// exhausted
	Consume(accountID string, amount int64) error
}

// Executor runs one workflow's steps strictly in stored order
type Executor struct {
	workflows  storage.WorkflowStore
	executions storage.ExecutionStore
	dispatcher StepDispatcher
	evaluator  scripting.ExpressionEvaluator
	meter      CreditMeter
	logger     *log.Logger
}

// NewExecutor creates an executor. The meter may be nil, in which case
// steps run unmetered.
func NewExecutor(
	workflows storage.WorkflowStore,
	executions storage.ExecutionStore,
	dispatcher StepDispatcher,
	evaluator scripting.ExpressionEvaluator,
	meter CreditMeter,
	logger *log.Logger,
) *Executor {
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		workflows:  workflows,
		executions: executions,
		dispatcher: dispatcher,
		evaluator:  evaluator,
		meter:      meter,
		logger:     logger,
	}
}

// NewExecution builds a pending execution record for a workflow trigger
func NewExecution(wf workflow.Workflow, input map[string]interface{}) workflow.Execution {
	return workflow.Execution{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		AccountID:  wf.AccountID,
		Status:     workflow.ExecutionPending,
		Input:      input,
		StartedAt:  time.Now(),
	}
}

// Simulate returns a dry-run plan for a workflow. It never persists an
// execution and never touches the dispatcher.
func (e *Executor) Simulate(wf workflow.Workflow) (workflow.SimulationPlan, error) {
	if err := workflow.Validate(&wf); err != nil {
		return workflow.SimulationPlan{}, err
	}

	steps := make([]string, len(wf.Steps))
	for i, step := range wf.Steps {
		steps[i] = step.Describe()
	}

	return workflow.SimulationPlan{
		WorkflowID:        wf.ID,
		Steps:             steps,
		EstimatedDuration: time.Duration(len(wf.Steps)) * stepEstimate,
	}, nil
}

// Run executes a workflow against a pre-created execution record and
// returns the terminal record. Step failures never propagate as errors;
// they produce a failed execution. The returned error covers only
// persistence problems.
//
// Cancellation is cooperative: the context is checked between steps, so
// an in-flight step always finishes before the execution stops.
func (e *Executor) Run(ctx context.Context, exec workflow.Execution, wf workflow.Workflow) (workflow.Execution, error) {
	if wf.Status != workflow.StatusActive {
		return exec, fmt.Errorf("%w: %s", workflow.ErrNotActive, wf.ID)
	}
	if err := workflow.Validate(&wf); err != nil {
		return exec, err
	}

	exec.Status = workflow.ExecutionRunning
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now()
	}
	if err := e.executions.SaveExecution(exec); err != nil {
		return exec, fmt.Errorf("failed to persist execution: %w", err)
	}

	// The running context starts as the trigger input; each step's
	// result merges into it for later steps to reference.
	output := make(map[string]interface{})
	for k, v := range exec.Input {
		output[k] = v
	}

	for i, step := range wf.Steps {
		select {
		case <-ctx.Done():
			return e.finish(exec, wf, workflow.ExecutionCancelled, "execution cancelled", false)
		default:
		}

		description := step.Describe()

		config, err := e.stepConfig(step, exec.Input, output)
		if err != nil {
			e.appendLog(&exec, description, "error", fmt.Sprintf("Step %d failed: %v", i+1, err))
			return e.finish(exec, wf, workflow.ExecutionFailed, err.Error(), false)
		}

		if e.meter != nil {
			if err := e.meter.Consume(exec.AccountID, 1); err != nil {
				e.appendLog(&exec, description, "error", fmt.Sprintf("Step %d rejected: %v", i+1, err))
				return e.finish(exec, wf, workflow.ExecutionFailed, err.Error(), false)
			}
		}

		result, err := e.dispatcher.Dispatch(ctx, exec.AccountID, step.Integration, step.Action, config)
		if err != nil {
			// A connector aborted by cancellation is not a failure
			if ctx.Err() != nil {
				return e.finish(exec, wf, workflow.ExecutionCancelled, "execution cancelled", false)
			}
			e.appendLog(&exec, description, "error", fmt.Sprintf("Step %d failed: %v", i+1, err))
			return e.finish(exec, wf, workflow.ExecutionFailed, err.Error(), false)
		}

		e.appendLog(&exec, description, "info", fmt.Sprintf("Step %d completed", i+1))
		for k, v := range result {
			output[k] = v
		}
	}

	exec.Output = output
	return e.finish(exec, wf, workflow.ExecutionCompleted, "", true)
}

// stepConfig evaluates ${...} expressions in the step config against the
// running context, after merging the step's static input underneath it
func (e *Executor) stepConfig(step workflow.Step, input, output map[string]interface{}) (map[string]interface{}, error) {
	merged := make(map[string]interface{}, len(step.Input)+len(step.Config))
	for k, v := range step.Input {
		merged[k] = v
	}
	for k, v := range step.Config {
		merged[k] = v
	}

	if e.evaluator == nil {
		return merged, nil
	}

	context := map[string]interface{}{
		"input":   input,
		"context": output,
	}

	evaluated, err := e.evaluator.EvaluateInObject(merged, context)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate step config: %w", err)
	}

	return evaluated, nil
}

// appendLog records a step log entry on the execution and in storage
func (e *Executor) appendLog(exec *workflow.Execution, step, level, message string) {
	entry := workflow.ExecutionLog{
		Timestamp: time.Now(),
		Step:      step,
		Level:     level,
		Message:   message,
	}
	exec.Logs = append(exec.Logs, entry)

	if err := e.executions.AppendExecutionLog(exec.ID, entry); err != nil {
		e.logger.Printf("failed to persist execution log for %s: %v", exec.ID, err)
	}
}

// finish stamps the terminal state, persists the execution, and updates
// the workflow's run statistics. Cancelled runs don't count as runs.
func (e *Executor) finish(exec workflow.Execution, wf workflow.Workflow, status workflow.ExecutionState, errMsg string, success bool) (workflow.Execution, error) {
	now := time.Now()
	exec.Status = status
	exec.Error = errMsg
	exec.CompletedAt = &now

	if err := e.executions.SaveExecution(exec); err != nil {
		return exec, fmt.Errorf("failed to persist execution: %w", err)
	}

	if status != workflow.ExecutionCancelled {
		if err := e.workflows.RecordRun(wf.ID, success, now); err != nil {
			e.logger.Printf("failed to record run for workflow %s: %v", wf.ID, err)
		}
	}

	return exec, nil
}
