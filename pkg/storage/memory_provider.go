package storage

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/agenthive/agenthive/pkg/auth"
	"github.com/agenthive/agenthive/pkg/credits"
	"github.com/agenthive/agenthive/pkg/models"
	"github.com/agenthive/agenthive/pkg/workflow"
)

// Errors returned by the in-memory storage provider
var (
	ErrWorkflowNotFound      = errors.New("workflow not found")
	ErrExecutionNotFound     = errors.New("execution not found")
	ErrAccountNotFound       = errors.New("account not found")
	ErrCreditAccountNotFound = errors.New("credit account not found")
	ErrAgentNotFound         = errors.New("agent not found")
	ErrConnectionNotFound    = errors.New("connection not found")
	ErrScheduleNotFound      = errors.New("schedule not found")
)

// MemoryProvider implements the StorageProvider interface using in-memory storage
type MemoryProvider struct {
	workflowStore   *MemoryWorkflowStore
	executionStore  *MemoryExecutionStore
	accountStore    *MemoryAccountStore
	creditStore     *MemoryCreditStore
	agentStore      *MemoryAgentStore
	connectionStore *MemoryConnectionStore
	scheduleStore   *MemoryScheduleStore
}

// NewMemoryProvider creates a new in-memory storage provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		workflowStore:   NewMemoryWorkflowStore(),
		executionStore:  NewMemoryExecutionStore(),
		accountStore:    NewMemoryAccountStore(),
		creditStore:     NewMemoryCreditStore(),
		agentStore:      NewMemoryAgentStore(),
		connectionStore: NewMemoryConnectionStore(),
		scheduleStore:   NewMemoryScheduleStore(),
	}
}

// Initialize sets up the storage backend
func (p *MemoryProvider) Initialize() error {
	// Nothing to initialize for in-memory storage
	return nil
}

// Close cleans up resources
func (p *MemoryProvider) Close() error {
	// Nothing to close for in-memory storage
	return nil
}

// GetWorkflowStore returns a store for workflow definitions
func (p *MemoryProvider) GetWorkflowStore() WorkflowStore {
	return p.workflowStore
}

// GetExecutionStore returns a store for execution data
func (p *MemoryProvider) GetExecutionStore() ExecutionStore {
	return p.executionStore
}

// GetAccountStore returns a store for account data
func (p *MemoryProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// GetCreditStore returns a store for the credit ledger
func (p *MemoryProvider) GetCreditStore() CreditStore {
	return p.creditStore
}

// GetAgentStore returns a store for agent personas
func (p *MemoryProvider) GetAgentStore() AgentStore {
	return p.agentStore
}

// GetConnectionStore returns a store for integration connections
func (p *MemoryProvider) GetConnectionStore() ConnectionStore {
	return p.connectionStore
}

// GetScheduleStore returns a store for workflow schedules
func (p *MemoryProvider) GetScheduleStore() ScheduleStore {
	return p.scheduleStore
}

// MemoryWorkflowStore implements the WorkflowStore interface using in-memory storage
type MemoryWorkflowStore struct {
	workflows map[string]workflow.Workflow
	mu        sync.RWMutex
}

// NewMemoryWorkflowStore creates a new in-memory workflow store
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{
		workflows: make(map[string]workflow.Workflow),
	}
}

// SaveWorkflow persists a workflow
func (s *MemoryWorkflowStore) SaveWorkflow(wf workflow.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[wf.ID] = wf

	return nil
}

// GetWorkflow retrieves a workflow by ID
func (s *MemoryWorkflowStore) GetWorkflow(workflowID string) (workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[workflowID]
	if !ok {
		return workflow.Workflow{}, ErrWorkflowNotFound
	}

	return wf, nil
}

// ListWorkflows returns all workflows for an account
func (s *MemoryWorkflowStore) ListWorkflows(accountID string) ([]workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflows := make([]workflow.Workflow, 0)
	for _, wf := range s.workflows {
		if wf.AccountID == accountID {
			workflows = append(workflows, wf)
		}
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.Before(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// CountWorkflows returns the number of workflows for an account
func (s *MemoryWorkflowStore) CountWorkflows(accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, wf := range s.workflows {
		if wf.AccountID == accountID {
			count++
		}
	}

	return count, nil
}

// DeleteWorkflow removes a workflow definition
func (s *MemoryWorkflowStore) DeleteWorkflow(workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[workflowID]; !ok {
		return ErrWorkflowNotFound
	}

	delete(s.workflows, workflowID)

	return nil
}

// RecordRun atomically updates run statistics after an execution finishes
func (s *MemoryWorkflowStore) RecordRun(workflowID string, success bool, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[workflowID]
	if !ok {
		return ErrWorkflowNotFound
	}

	outcome := 0.0
	if success {
		outcome = 1.0
	}

	// Weighted average over the previous run count
	wf.SuccessRate = (wf.SuccessRate*float64(wf.RunCount) + outcome) / float64(wf.RunCount+1)
	wf.RunCount++
	wf.LastRunAt = &finishedAt
	s.workflows[workflowID] = wf

	return nil
}

// MemoryExecutionStore implements the ExecutionStore interface using in-memory storage
type MemoryExecutionStore struct {
	executions map[string]workflow.Execution
	logs       map[string][]workflow.ExecutionLog
	mu         sync.RWMutex
}

// NewMemoryExecutionStore creates a new in-memory execution store
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{
		executions: make(map[string]workflow.Execution),
		logs:       make(map[string][]workflow.ExecutionLog),
	}
}

// SaveExecution persists execution data
func (s *MemoryExecutionStore) SaveExecution(execution workflow.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.executions[execution.ID] = execution

	return nil
}

// GetExecution retrieves execution data
func (s *MemoryExecutionStore) GetExecution(executionID string) (workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execution, ok := s.executions[executionID]
	if !ok {
		return workflow.Execution{}, ErrExecutionNotFound
	}

	return execution, nil
}

// ListExecutions returns all executions for an account, newest first
func (s *MemoryExecutionStore) ListExecutions(accountID string) ([]workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	executions := make([]workflow.Execution, 0)
	for _, execution := range s.executions {
		if execution.AccountID == accountID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

// ListExecutionsForWorkflow returns recent executions of a workflow
func (s *MemoryExecutionStore) ListExecutionsForWorkflow(workflowID string, limit int) ([]workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	executions := make([]workflow.Execution, 0)
	for _, execution := range s.executions {
		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

// AppendExecutionLog persists an execution log entry
func (s *MemoryExecutionStore) AppendExecutionLog(executionID string, log workflow.ExecutionLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[executionID] = append(s.logs[executionID], log)

	return nil
}

// GetExecutionLogs retrieves logs for an execution
func (s *MemoryExecutionStore) GetExecutionLogs(executionID string) ([]workflow.ExecutionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs, ok := s.logs[executionID]
	if !ok {
		return []workflow.ExecutionLog{}, nil
	}

	return logs, nil
}

// DeleteExecutionsForWorkflow removes all executions and logs of a workflow
func (s *MemoryExecutionStore) DeleteExecutionsForWorkflow(workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, execution := range s.executions {
		if execution.WorkflowID == workflowID {
			delete(s.executions, id)
			delete(s.logs, id)
		}
	}

	return nil
}

// MemoryAccountStore implements the AccountStore interface using in-memory storage
type MemoryAccountStore struct {
	accounts        map[string]auth.Account
	accountsByName  map[string]string
	accountsByToken map[string]string
	mu              sync.RWMutex
}

// NewMemoryAccountStore creates a new in-memory account store
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts:        make(map[string]auth.Account),
		accountsByName:  make(map[string]string),
		accountsByToken: make(map[string]string),
	}
}

// SaveAccount persists an account
func (s *MemoryAccountStore) SaveAccount(account auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = account
	s.accountsByName[account.Username] = account.ID
	s.accountsByToken[account.APIToken] = account.ID

	return nil
}

// GetAccount retrieves an account
func (s *MemoryAccountStore) GetAccount(accountID string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	return account, nil
}

// GetAccountByUsername retrieves an account by username
func (s *MemoryAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, ok := s.accountsByName[username]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	account, ok := s.accounts[accountID]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	return account, nil
}

// GetAccountByToken retrieves an account by API token
func (s *MemoryAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, ok := s.accountsByToken[token]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	account, ok := s.accounts[accountID]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}

	return account, nil
}

// ListAccounts returns all accounts
func (s *MemoryAccountStore) ListAccounts() ([]auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountList := make([]auth.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accountList = append(accountList, account)
	}

	return accountList, nil
}

// DeleteAccount removes an account
func (s *MemoryAccountStore) DeleteAccount(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}

	delete(s.accounts, accountID)
	delete(s.accountsByName, account.Username)
	delete(s.accountsByToken, account.APIToken)

	return nil
}

// MemoryCreditStore implements the CreditStore interface using in-memory storage
type MemoryCreditStore struct {
	accounts map[string]credits.Account
	audit    map[string][]credits.AuditLogEntry
	sessions map[string]bool
	mu       sync.Mutex
}

// NewMemoryCreditStore creates a new in-memory credit store
func NewMemoryCreditStore() *MemoryCreditStore {
	return &MemoryCreditStore{
		accounts: make(map[string]credits.Account),
		audit:    make(map[string][]credits.AuditLogEntry),
		sessions: make(map[string]bool),
	}
}

// GetCreditAccount retrieves the ledger row for an account
func (s *MemoryCreditStore) GetCreditAccount(accountID string) (credits.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return credits.Account{}, ErrCreditAccountNotFound
	}

	return account, nil
}

// SaveCreditAccount persists a ledger row
func (s *MemoryCreditStore) SaveCreditAccount(account credits.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.UpdatedAt = time.Now()
	s.accounts[account.AccountID] = account

	return nil
}

// AddCredits increments credits_added and returns the updated row
func (s *MemoryCreditStore) AddCredits(accountID string, amount int64) (credits.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return credits.Account{}, ErrCreditAccountNotFound
	}

	account.CreditsAdded += amount
	account.UpdatedAt = time.Now()
	s.accounts[accountID] = account

	return account, nil
}

// ConsumeCredits increments credits_used under the store lock, so the
// quota check and the increment are one atomic step.
func (s *MemoryCreditStore) ConsumeCredits(accountID string, amount int64) (credits.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return credits.Account{}, ErrCreditAccountNotFound
	}

	if account.CreditsUsed+amount > account.Limit() {
		return credits.Account{}, credits.ErrInsufficientCredits
	}

	account.CreditsUsed += amount
	account.UpdatedAt = time.Now()
	s.accounts[accountID] = account

	return account, nil
}

// ResetQuota overwrites the quota baseline, optionally zeroing usage
func (s *MemoryCreditStore) ResetQuota(accountID string, quota int64, resetUsed bool) (credits.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return credits.Account{}, ErrCreditAccountNotFound
	}

	account.Quota = quota
	if resetUsed {
		account.CreditsUsed = 0
	}
	account.UpdatedAt = time.Now()
	s.accounts[accountID] = account

	return account, nil
}

// AppendAuditLog persists an audit log entry
func (s *MemoryCreditStore) AppendAuditLog(entry credits.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit[entry.AccountID] = append(s.audit[entry.AccountID], entry)
	if entry.SessionID != "" {
		s.sessions[entry.SessionID] = true
	}

	return nil
}

// ListAuditLog returns audit entries for an account, newest first
func (s *MemoryCreditStore) ListAuditLog(accountID string) ([]credits.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]credits.AuditLogEntry, len(s.audit[accountID]))
	copy(entries, s.audit[accountID])

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	return entries, nil
}

// HasAuditSession reports whether an audit entry exists for a session id
func (s *MemoryCreditStore) HasAuditSession(sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions[sessionID], nil
}

// MemoryAgentStore implements the AgentStore interface using in-memory storage
type MemoryAgentStore struct {
	agents map[string]models.Agent
	mu     sync.RWMutex
}

// NewMemoryAgentStore creates a new in-memory agent store
func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{
		agents: make(map[string]models.Agent),
	}
}

// SaveAgent persists an agent
func (s *MemoryAgentStore) SaveAgent(agent models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents[agent.ID] = agent

	return nil
}

// GetAgent retrieves an agent by ID
func (s *MemoryAgentStore) GetAgent(agentID string) (models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, ok := s.agents[agentID]
	if !ok {
		return models.Agent{}, ErrAgentNotFound
	}

	return agent, nil
}

// ListAgents returns all agents for an account
func (s *MemoryAgentStore) ListAgents(accountID string) ([]models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make([]models.Agent, 0)
	for _, agent := range s.agents {
		if agent.AccountID == accountID {
			agents = append(agents, agent)
		}
	}

	sort.Slice(agents, func(i, j int) bool {
		return agents[i].CreatedAt.Before(agents[j].CreatedAt)
	})

	return agents, nil
}

// CountAgents returns the number of agents for an account
func (s *MemoryAgentStore) CountAgents(accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, agent := range s.agents {
		if agent.AccountID == accountID {
			count++
		}
	}

	return count, nil
}

// DeleteAgent removes an agent
func (s *MemoryAgentStore) DeleteAgent(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.agents[agentID]; !ok {
		return ErrAgentNotFound
	}

	delete(s.agents, agentID)

	return nil
}

// MemoryConnectionStore implements the ConnectionStore interface using in-memory storage
type MemoryConnectionStore struct {
	connections map[string]models.IntegrationConnection
	mu          sync.RWMutex
}

// NewMemoryConnectionStore creates a new in-memory connection store
func NewMemoryConnectionStore() *MemoryConnectionStore {
	return &MemoryConnectionStore{
		connections: make(map[string]models.IntegrationConnection),
	}
}

// SaveConnection persists a connection
func (s *MemoryConnectionStore) SaveConnection(conn models.IntegrationConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connections[conn.ID] = conn

	return nil
}

// GetConnection retrieves a connection by ID
func (s *MemoryConnectionStore) GetConnection(connectionID string) (models.IntegrationConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.connections[connectionID]
	if !ok {
		return models.IntegrationConnection{}, ErrConnectionNotFound
	}

	return conn, nil
}

// GetConnectionForIntegration retrieves the connection an account holds for an integration
func (s *MemoryConnectionStore) GetConnectionForIntegration(accountID, integration string) (models.IntegrationConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conn := range s.connections {
		if conn.AccountID == accountID && conn.Integration == integration {
			return conn, nil
		}
	}

	return models.IntegrationConnection{}, ErrConnectionNotFound
}

// ListConnections returns all connections for an account
func (s *MemoryConnectionStore) ListConnections(accountID string) ([]models.IntegrationConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	connections := make([]models.IntegrationConnection, 0)
	for _, conn := range s.connections {
		if conn.AccountID == accountID {
			connections = append(connections, conn)
		}
	}

	sort.Slice(connections, func(i, j int) bool {
		return connections[i].CreatedAt.Before(connections[j].CreatedAt)
	})

	return connections, nil
}

// CountConnections returns the number of connections for an account
func (s *MemoryConnectionStore) CountConnections(accountID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, conn := range s.connections {
		if conn.AccountID == accountID {
			count++
		}
	}

	return count, nil
}

// DeleteConnection removes a connection
func (s *MemoryConnectionStore) DeleteConnection(connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.connections[connectionID]; !ok {
		return ErrConnectionNotFound
	}

	delete(s.connections, connectionID)

	return nil
}

// MemoryScheduleStore implements the ScheduleStore interface using in-memory storage
type MemoryScheduleStore struct {
	schedules map[string]models.Schedule
	mu        sync.RWMutex
}

// NewMemoryScheduleStore creates a new in-memory schedule store
func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{
		schedules: make(map[string]models.Schedule),
	}
}

// SaveSchedule persists a schedule
func (s *MemoryScheduleStore) SaveSchedule(schedule models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.schedules[schedule.ID] = schedule

	return nil
}

// GetSchedule retrieves a schedule by ID
func (s *MemoryScheduleStore) GetSchedule(scheduleID string) (models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.schedules[scheduleID]
	if !ok {
		return models.Schedule{}, ErrScheduleNotFound
	}

	return schedule, nil
}

// ListSchedules returns all schedules across accounts
func (s *MemoryScheduleStore) ListSchedules() ([]models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedules := make([]models.Schedule, 0, len(s.schedules))
	for _, schedule := range s.schedules {
		schedules = append(schedules, schedule)
	}

	return schedules, nil
}

// ListSchedulesForWorkflow returns all schedules for a workflow
func (s *MemoryScheduleStore) ListSchedulesForWorkflow(workflowID string) ([]models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedules := make([]models.Schedule, 0)
	for _, schedule := range s.schedules {
		if schedule.WorkflowID == workflowID {
			schedules = append(schedules, schedule)
		}
	}

	return schedules, nil
}

// DeleteSchedule removes a schedule
func (s *MemoryScheduleStore) DeleteSchedule(scheduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[scheduleID]; !ok {
		return ErrScheduleNotFound
	}

	delete(s.schedules, scheduleID)

	return nil
}
