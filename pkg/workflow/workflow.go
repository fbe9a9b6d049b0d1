// Package workflow defines the workflow domain model.
package workflow

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a workflow
type Status string

// Workflow statuses
const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// Valid reports whether the status is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused:
		return true
	}
	return false
}

// Workflow is a stored, account-owned sequence of steps
type Workflow struct {
	// ID of the workflow
	ID string `json:"id"`

	// AccountID is the ID of the account that owns the workflow
	AccountID string `json:"account_id"`

	// AgentID optionally links the workflow to an agent persona
	AgentID string `json:"agent_id,omitempty"`

	// Name of the workflow
	Name string `json:"name"`

	// Description of the workflow
	Description string `json:"description"`

	// Steps run strictly in order; there is no branching or looping
	Steps []Step `json:"nodes"`

	// Status of the workflow
	Status Status `json:"status"`

	// RunCount is the number of completed or failed runs
	RunCount int64 `json:"run_count"`

	// SuccessRate is the rolling share of successful runs (0-1)
	SuccessRate float64 `json:"success_rate"`

	// LastRunAt is when the workflow last finished a run
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// CreatedAt is when the workflow was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the workflow was last updated
	UpdatedAt time.Time `json:"updated_at"`
}

// Step is one action within a workflow
type Step struct {
	// Integration names the target integration, e.g. "gmail"
	Integration string `json:"integration"`

	// Action names the operation on the integration, e.g. "send_email"
	Action string `json:"action"`

	// Config is the step configuration; string values may contain
	// ${...} expressions evaluated against the running context
	Config map[string]interface{} `json:"config,omitempty"`

	// Input is an optional static payload merged into the step context
	Input map[string]interface{} `json:"input,omitempty"`
}

// Describe returns a human-readable description of the step for logs
func (s Step) Describe() string {
	if name, ok := s.Config["name"].(string); ok && name != "" {
		return fmt.Sprintf("%s (%s.%s)", name, s.Integration, s.Action)
	}
	return fmt.Sprintf("%s.%s", s.Integration, s.Action)
}

// Validate checks a workflow definition before it is saved or executed.
// Malformed definitions are rejected here, never mid-run.
func Validate(wf *Workflow) error {
	if wf.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if !wf.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrInvalidDefinition, wf.Status)
	}
	for i, step := range wf.Steps {
		if step.Integration == "" {
			return fmt.Errorf("%w: step %d is missing an integration", ErrInvalidDefinition, i)
		}
		if step.Action == "" {
			return fmt.Errorf("%w: step %d is missing an action", ErrInvalidDefinition, i)
		}
	}
	return nil
}
