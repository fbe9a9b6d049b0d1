package workflow

import (
	"errors"
	"time"
)

// Errors shared across the workflow domain
var (
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	ErrNotActive         = errors.New("workflow is not active")
)

// ExecutionState represents the current state of a workflow execution
type ExecutionState string

// Execution states. An execution is terminal once it leaves "running".
const (
	ExecutionPending   ExecutionState = "pending"
	ExecutionRunning   ExecutionState = "running"
	ExecutionCompleted ExecutionState = "completed"
	ExecutionFailed    ExecutionState = "failed"
	ExecutionCancelled ExecutionState = "cancelled"
)

// Terminal reports whether the state is final
func (s ExecutionState) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// Execution is one run instance of a workflow
type Execution struct {
	// ID of the execution
	ID string `json:"id"`

	// WorkflowID is the ID of the workflow being executed
	WorkflowID string `json:"workflow_id"`

	// AccountID is the ID of the account that owns the execution
	AccountID string `json:"account_id"`

	// Status of the execution
	Status ExecutionState `json:"status"`

	// Input is the payload the execution was triggered with
	Input map[string]interface{} `json:"input,omitempty"`

	// Output is the merged result context of all completed steps
	Output map[string]interface{} `json:"output,omitempty"`

	// Error message if the execution failed
	Error string `json:"error,omitempty"`

	// Logs collected per attempted step, in order
	Logs []ExecutionLog `json:"logs,omitempty"`

	// StartedAt is when the execution started
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the execution reached a terminal state
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ExecutionLog is one log entry for an execution
type ExecutionLog struct {
	// Timestamp of the log entry
	Timestamp time.Time `json:"timestamp"`

	// Step describes the step that produced the entry
	Step string `json:"step,omitempty"`

	// Level of the log entry
	Level string `json:"level"` // "info", "warning", "error"

	// Message is the log message
	Message string `json:"message"`
}

// SimulationPlan is the dry-run result returned instead of an execution
type SimulationPlan struct {
	// WorkflowID is the workflow the plan was built for
	WorkflowID string `json:"workflow_id"`

	// Steps are the ordered step descriptions that would run
	Steps []string `json:"steps"`

	// EstimatedDuration assumes a fixed per-step cost
	EstimatedDuration time.Duration `json:"estimated_duration"`
}
