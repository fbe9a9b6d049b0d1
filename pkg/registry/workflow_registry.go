// Package registry implements account-scoped CRUD over workflows,
// agents, and integration connections.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agenthive/agenthive/pkg/credits"
	"github.com/agenthive/agenthive/pkg/storage"
	"github.com/agenthive/agenthive/pkg/workflow"
)

// Errors returned by registry operations
var (
	ErrNotOwner      = errors.New("resource belongs to a different account")
	ErrLimitExceeded = errors.New("plan limit reached")
)

// UsageChecker gates resource creation on plan limits
type UsageChecker interface {
	CheckUsageLimit(accountID string, resource credits.ResourceType) (credits.UsageReport, error)
}

// WorkflowRegistry manages workflow definitions for tenants. Every
// operation takes the calling account id and verifies ownership
// explicitly, distinguishing missing resources from foreign ones.
type WorkflowRegistry struct {
	workflows  storage.WorkflowStore
	executions storage.ExecutionStore
	schedules  storage.ScheduleStore
	limits     UsageChecker
}

// NewWorkflowRegistry creates a workflow registry. The limit checker
// may be nil, disabling creation caps.
func NewWorkflowRegistry(workflows storage.WorkflowStore, executions storage.ExecutionStore, schedules storage.ScheduleStore, limits UsageChecker) *WorkflowRegistry {
	return &WorkflowRegistry{
		workflows:  workflows,
		executions: executions,
		schedules:  schedules,
		limits:     limits,
	}
}

// Create validates and stores a new workflow for an account
func (r *WorkflowRegistry) Create(accountID string, wf workflow.Workflow) (workflow.Workflow, error) {
	if r.limits != nil {
		report, err := r.limits.CheckUsageLimit(accountID, credits.ResourceWorkflows)
		if err != nil {
			return workflow.Workflow{}, fmt.Errorf("failed to check workflow limit: %w", err)
		}
		if !report.Allowed {
			return workflow.Workflow{}, fmt.Errorf("%w: %d of %d workflows in use", ErrLimitExceeded, report.Used, report.Limit)
		}
	}

	now := time.Now()
	wf.ID = uuid.New().String()
	wf.AccountID = accountID
	if wf.Status == "" {
		wf.Status = workflow.StatusDraft
	}
	wf.RunCount = 0
	wf.SuccessRate = 0
	wf.LastRunAt = nil
	wf.CreatedAt = now
	wf.UpdatedAt = now

	if err := workflow.Validate(&wf); err != nil {
		return workflow.Workflow{}, err
	}

	if err := r.workflows.SaveWorkflow(wf); err != nil {
		return workflow.Workflow{}, fmt.Errorf("failed to save workflow: %w", err)
	}

	return wf, nil
}

// Get retrieves a workflow, verifying ownership
func (r *WorkflowRegistry) Get(accountID, workflowID string) (workflow.Workflow, error) {
	wf, err := r.workflows.GetWorkflow(workflowID)
	if err != nil {
		return workflow.Workflow{}, err
	}
	if wf.AccountID != accountID {
		return workflow.Workflow{}, ErrNotOwner
	}

	return wf, nil
}

// List returns all workflows for an account
func (r *WorkflowRegistry) List(accountID string) ([]workflow.Workflow, error) {
	return r.workflows.ListWorkflows(accountID)
}

// Update replaces a workflow's definition, preserving identity and run
// statistics
func (r *WorkflowRegistry) Update(accountID, workflowID string, updated workflow.Workflow) (workflow.Workflow, error) {
	existing, err := r.Get(accountID, workflowID)
	if err != nil {
		return workflow.Workflow{}, err
	}

	existing.Name = updated.Name
	existing.Description = updated.Description
	existing.AgentID = updated.AgentID
	existing.Steps = updated.Steps
	if updated.Status != "" {
		existing.Status = updated.Status
	}
	existing.UpdatedAt = time.Now()

	if err := workflow.Validate(&existing); err != nil {
		return workflow.Workflow{}, err
	}

	if err := r.workflows.SaveWorkflow(existing); err != nil {
		return workflow.Workflow{}, fmt.Errorf("failed to save workflow: %w", err)
	}

	return existing, nil
}

// UpdateStatus transitions a workflow between draft, active, and paused
func (r *WorkflowRegistry) UpdateStatus(accountID, workflowID string, status workflow.Status) (workflow.Workflow, error) {
	if !status.Valid() {
		return workflow.Workflow{}, fmt.Errorf("%w: invalid status %q", workflow.ErrInvalidDefinition, status)
	}

	wf, err := r.Get(accountID, workflowID)
	if err != nil {
		return workflow.Workflow{}, err
	}

	wf.Status = status
	wf.UpdatedAt = time.Now()

	if err := r.workflows.SaveWorkflow(wf); err != nil {
		return workflow.Workflow{}, fmt.Errorf("failed to save workflow: %w", err)
	}

	return wf, nil
}

// Delete removes a workflow and cascades its execution history and
// schedules
func (r *WorkflowRegistry) Delete(accountID, workflowID string) error {
	if _, err := r.Get(accountID, workflowID); err != nil {
		return err
	}

	if err := r.executions.DeleteExecutionsForWorkflow(workflowID); err != nil {
		return fmt.Errorf("failed to delete executions: %w", err)
	}

	if r.schedules != nil {
		schedules, err := r.schedules.ListSchedulesForWorkflow(workflowID)
		if err != nil {
			return fmt.Errorf("failed to list schedules: %w", err)
		}
		for _, schedule := range schedules {
			if err := r.schedules.DeleteSchedule(schedule.ID); err != nil {
				return fmt.Errorf("failed to delete schedule %s: %w", schedule.ID, err)
			}
		}
	}

	if err := r.workflows.DeleteWorkflow(workflowID); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// RecentExecutions returns a workflow's latest executions, verifying
// ownership first
func (r *WorkflowRegistry) RecentExecutions(accountID, workflowID string, limit int) ([]workflow.Execution, error) {
	if _, err := r.Get(accountID, workflowID); err != nil {
		return nil, err
	}

	return r.executions.ListExecutionsForWorkflow(workflowID, limit)
}
