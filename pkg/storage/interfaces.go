// Package storage provides interfaces for persistent storage.
package storage

import (
	"time"

	"github.com/agenthive/agenthive/pkg/auth"
	"github.com/agenthive/agenthive/pkg/credits"
	"github.com/agenthive/agenthive/pkg/models"
	"github.com/agenthive/agenthive/pkg/workflow"
)

// StorageProvider defines the interface for persistence backends
type StorageProvider interface {
	// Initialize sets up the storage backend
	Initialize() error

	// Close cleans up resources
	Close() error

	// GetWorkflowStore returns a store for workflow definitions
	GetWorkflowStore() WorkflowStore

	// GetExecutionStore returns a store for execution data
	GetExecutionStore() ExecutionStore

	// GetAccountStore returns a store for account data
	GetAccountStore() AccountStore

	// GetCreditStore returns a store for the credit ledger
	GetCreditStore() CreditStore

	// GetAgentStore returns a store for agent personas
	GetAgentStore() AgentStore

	// GetConnectionStore returns a store for integration connections
	GetConnectionStore() ConnectionStore

	// GetScheduleStore returns a store for workflow schedules
	GetScheduleStore() ScheduleStore
}

// WorkflowStore manages workflow persistence
type WorkflowStore interface {
	// SaveWorkflow persists a workflow (insert or update)
	SaveWorkflow(wf workflow.Workflow) error

	// GetWorkflow retrieves a workflow by ID
	GetWorkflow(workflowID string) (workflow.Workflow, error)

	// ListWorkflows returns all workflows for an account
	ListWorkflows(accountID string) ([]workflow.Workflow, error)

	// CountWorkflows returns the number of workflows for an account
	CountWorkflows(accountID string) (int64, error)

	// DeleteWorkflow removes a workflow definition
	DeleteWorkflow(workflowID string) error

	// RecordRun atomically updates the run statistics after an execution
	// finishes: run_count increments and success_rate is recomputed as
	// (rate*count + outcome) / (count+1) from the stored values.
	RecordRun(workflowID string, success bool, finishedAt time.Time) error
}

// ExecutionStore manages execution data persistence
type ExecutionStore interface {
	// SaveExecution persists execution data (insert or update)
	SaveExecution(execution workflow.Execution) error

	// GetExecution retrieves execution data
	GetExecution(executionID string) (workflow.Execution, error)

	// ListExecutions returns all executions for an account, newest first
	ListExecutions(accountID string) ([]workflow.Execution, error)

	// ListExecutionsForWorkflow returns recent executions of a workflow,
	// newest first, at most limit entries
	ListExecutionsForWorkflow(workflowID string, limit int) ([]workflow.Execution, error)

	// AppendExecutionLog persists an execution log entry
	AppendExecutionLog(executionID string, log workflow.ExecutionLog) error

	// GetExecutionLogs retrieves logs for an execution, oldest first
	GetExecutionLogs(executionID string) ([]workflow.ExecutionLog, error)

	// DeleteExecutionsForWorkflow removes all executions and logs of a
	// workflow. Used when a workflow is deleted.
	DeleteExecutionsForWorkflow(workflowID string) error
}

// AccountStore manages account persistence
type AccountStore interface {
	// SaveAccount persists an account
	SaveAccount(account auth.Account) error

	// GetAccount retrieves an account
	GetAccount(accountID string) (auth.Account, error)

	// GetAccountByUsername retrieves an account by username
	GetAccountByUsername(username string) (auth.Account, error)

	// GetAccountByToken retrieves an account by API token
	GetAccountByToken(token string) (auth.Account, error)

	// ListAccounts returns all accounts
	ListAccounts() ([]auth.Account, error)

	// DeleteAccount removes an account
	DeleteAccount(accountID string) error
}

// CreditStore manages the per-account credit ledger
type CreditStore interface {
	// GetCreditAccount retrieves the ledger row for an account
	GetCreditAccount(accountID string) (credits.Account, error)

	// SaveCreditAccount persists a ledger row (insert or update)
	SaveCreditAccount(account credits.Account) error

	// AddCredits increments credits_added and returns the updated row
	AddCredits(accountID string, amount int64) (credits.Account, error)

	// ConsumeCredits increments credits_used if the effective limit
	// allows it, in a single conditional update. Returns
	// credits.ErrInsufficientCredits when it does not.
	ConsumeCredits(accountID string, amount int64) (credits.Account, error)

	// ResetQuota overwrites the quota baseline, optionally zeroing usage
	ResetQuota(accountID string, quota int64, resetUsed bool) (credits.Account, error)

	// AppendAuditLog persists an audit log entry
	AppendAuditLog(entry credits.AuditLogEntry) error

	// ListAuditLog returns audit entries for an account, newest first
	ListAuditLog(accountID string) ([]credits.AuditLogEntry, error)

	// HasAuditSession reports whether an audit entry exists for a
	// payment session id. Guards webhook replays.
	HasAuditSession(sessionID string) (bool, error)
}

// AgentStore manages agent persistence
type AgentStore interface {
	// SaveAgent persists an agent (insert or update)
	SaveAgent(agent models.Agent) error

	// GetAgent retrieves an agent by ID
	GetAgent(agentID string) (models.Agent, error)

	// ListAgents returns all agents for an account
	ListAgents(accountID string) ([]models.Agent, error)

	// CountAgents returns the number of agents for an account
	CountAgents(accountID string) (int64, error)

	// DeleteAgent removes an agent
	DeleteAgent(agentID string) error
}

// ConnectionStore manages integration connection persistence
type ConnectionStore interface {
	// SaveConnection persists a connection (insert or update)
	SaveConnection(conn models.IntegrationConnection) error

	// GetConnection retrieves a connection by ID
	GetConnection(connectionID string) (models.IntegrationConnection, error)

	// GetConnectionForIntegration retrieves the connection an account
	// holds for an integration
	GetConnectionForIntegration(accountID, integration string) (models.IntegrationConnection, error)

	// ListConnections returns all connections for an account
	ListConnections(accountID string) ([]models.IntegrationConnection, error)

	// CountConnections returns the number of connections for an account
	CountConnections(accountID string) (int64, error)

	// DeleteConnection removes a connection
	DeleteConnection(connectionID string) error
}

// ScheduleStore manages workflow schedule persistence
type ScheduleStore interface {
	// SaveSchedule persists a schedule (insert or update)
	SaveSchedule(schedule models.Schedule) error

	// GetSchedule retrieves a schedule by ID
	GetSchedule(scheduleID string) (models.Schedule, error)

	// ListSchedules returns all schedules, across accounts. Used to
	// register cron entries on startup.
	ListSchedules() ([]models.Schedule, error)

	// ListSchedulesForWorkflow returns all schedules for a workflow
	ListSchedulesForWorkflow(workflowID string) ([]models.Schedule, error)

	// DeleteSchedule removes a schedule
	DeleteSchedule(scheduleID string) error
}
