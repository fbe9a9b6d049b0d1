// Package models contains shared domain models.
package models

import "time"

// Agent is a named AI persona owned by an account
type Agent struct {
	// ID of the agent
	ID string `json:"id"`

	// AccountID is the ID of the account that owns the agent
	AccountID string `json:"account_id"`

	// Name of the agent
	Name string `json:"name"`

	// Role is a short description of what the agent does
	Role string `json:"role,omitempty"`

	// Persona is the system prompt used when chatting with the agent
	Persona string `json:"persona,omitempty"`

	// ModelSettings holds provider-specific model configuration
	ModelSettings map[string]interface{} `json:"model_settings,omitempty"`

	// Active indicates whether the agent can be assigned work
	Active bool `json:"active"`

	// CreatedAt is when the agent was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the agent was last updated
	UpdatedAt time.Time `json:"updated_at"`
}

// IntegrationConnection holds per-account credentials and settings for a
// third-party integration
type IntegrationConnection struct {
	// ID of the connection
	ID string `json:"id"`

	// AccountID is the ID of the account that owns the connection
	AccountID string `json:"account_id"`

	// Integration names the connected service, e.g. "gmail", "slack"
	Integration string `json:"integration"`

	// Settings holds connection configuration (hosts, tokens, workspace ids).
	// Values are never exposed through list endpoints.
	Settings map[string]interface{} `json:"settings,omitempty"`

	// CreatedAt is when the connection was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the connection was last updated
	UpdatedAt time.Time `json:"updated_at"`
}

// Schedule triggers a workflow on a cron expression
type Schedule struct {
	// ID of the schedule
	ID string `json:"id"`

	// AccountID is the ID of the account that owns the schedule
	AccountID string `json:"account_id"`

	// WorkflowID is the workflow to trigger
	WorkflowID string `json:"workflow_id"`

	// Expression is a standard 5-field cron expression
	Expression string `json:"expression"`

	// Input is the payload passed to each triggered execution
	Input map[string]interface{} `json:"input,omitempty"`

	// Enabled indicates whether the schedule fires
	Enabled bool `json:"enabled"`

	// CreatedAt is when the schedule was created
	CreatedAt time.Time `json:"created_at"`
}
