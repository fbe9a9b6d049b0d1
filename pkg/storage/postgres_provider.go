package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/agenthive/agenthive/pkg/auth"
	"github.com/agenthive/agenthive/pkg/credits"
	"github.com/agenthive/agenthive/pkg/models"
	"github.com/agenthive/agenthive/pkg/workflow"
)

// PostgreSQLProvider implements the StorageProvider interface using PostgreSQL
type PostgreSQLProvider struct {
	db              *sql.DB
	workflowStore   *PostgreSQLWorkflowStore
	executionStore  *PostgreSQLExecutionStore
	accountStore    *PostgreSQLAccountStore
	creditStore     *PostgreSQLCreditStore
	agentStore      *PostgreSQLAgentStore
	connectionStore *PostgreSQLConnectionStore
	scheduleStore   *PostgreSQLScheduleStore
}

// PostgreSQLProviderConfig contains configuration for the PostgreSQL provider
type PostgreSQLProviderConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgreSQLProvider creates a new PostgreSQL storage provider
func NewPostgreSQLProvider(config PostgreSQLProviderConfig) (*PostgreSQLProvider, error) {
	if config.Port == 0 {
		config.Port = 5432
	}

	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	provider := &PostgreSQLProvider{
		db: db,
	}

	provider.workflowStore = NewPostgreSQLWorkflowStore(db)
	provider.executionStore = NewPostgreSQLExecutionStore(db)
	provider.accountStore = NewPostgreSQLAccountStore(db)
	provider.creditStore = NewPostgreSQLCreditStore(db)
	provider.agentStore = NewPostgreSQLAgentStore(db)
	provider.connectionStore = NewPostgreSQLConnectionStore(db)
	provider.scheduleStore = NewPostgreSQLScheduleStore(db)

	return provider, nil
}

// Initialize sets up the storage backend
func (p *PostgreSQLProvider) Initialize() error {
	if err := p.workflowStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize workflow store: %w", err)
	}

	if err := p.executionStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize execution store: %w", err)
	}

	if err := p.accountStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize account store: %w", err)
	}

	if err := p.creditStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize credit store: %w", err)
	}

	if err := p.agentStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize agent store: %w", err)
	}

	if err := p.connectionStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize connection store: %w", err)
	}

	if err := p.scheduleStore.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize schedule store: %w", err)
	}

	return nil
}

// Close cleans up resources
func (p *PostgreSQLProvider) Close() error {
	return p.db.Close()
}

// GetWorkflowStore returns a store for workflow definitions
func (p *PostgreSQLProvider) GetWorkflowStore() WorkflowStore {
	return p.workflowStore
}

// GetExecutionStore returns a store for execution data
func (p *PostgreSQLProvider) GetExecutionStore() ExecutionStore {
	return p.executionStore
}

// GetAccountStore returns a store for account data
func (p *PostgreSQLProvider) GetAccountStore() AccountStore {
	return p.accountStore
}

// GetCreditStore returns a store for the credit ledger
func (p *PostgreSQLProvider) GetCreditStore() CreditStore {
	return p.creditStore
}

// GetAgentStore returns a store for agent personas
func (p *PostgreSQLProvider) GetAgentStore() AgentStore {
	return p.agentStore
}

// GetConnectionStore returns a store for integration connections
func (p *PostgreSQLProvider) GetConnectionStore() ConnectionStore {
	return p.connectionStore
}

// GetScheduleStore returns a store for workflow schedules
func (p *PostgreSQLProvider) GetScheduleStore() ScheduleStore {
	return p.scheduleStore
}

// PostgreSQLWorkflowStore implements the WorkflowStore interface using PostgreSQL
type PostgreSQLWorkflowStore struct {
	db *sql.DB
}

// NewPostgreSQLWorkflowStore creates a new PostgreSQL workflow store
func NewPostgreSQLWorkflowStore(db *sql.DB) *PostgreSQLWorkflowStore {
	return &PostgreSQLWorkflowStore{
		db: db,
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (s *PostgreSQLWorkflowStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			agent_id TEXT,
			name TEXT NOT NULL,
			description TEXT,
			steps JSONB NOT NULL,
			status TEXT NOT NULL,
			run_count BIGINT NOT NULL DEFAULT 0,
			success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			last_run_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS workflows_account_id_idx ON workflows (account_id);
	`)

	if err != nil {
		return fmt.Errorf("failed to create workflows table: %w", err)
	}

	return nil
}

// SaveWorkflow persists a workflow
func (s *PostgreSQLWorkflowStore) SaveWorkflow(wf workflow.Workflow) error {
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow steps: %w", err)
	}

	// Check if workflow already exists
	var exists bool
	err = s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM workflows WHERE id = $1)", wf.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if workflow exists: %w", err)
	}

	var lastRunAt sql.NullTime
	if wf.LastRunAt != nil {
		lastRunAt = sql.NullTime{Time: *wf.LastRunAt, Valid: true}
	}

	if exists {
		_, err = s.db.Exec(
			`UPDATE workflows SET
				agent_id = $1,
				name = $2,
				description = $3,
				steps = $4,
				status = $5,
				run_count = $6,
				success_rate = $7,
				last_run_at = $8,
				updated_at = $9
			WHERE id = $10`,
			nullString(wf.AgentID),
			wf.Name,
			wf.Description,
			stepsJSON,
			string(wf.Status),
			wf.RunCount,
			wf.SuccessRate,
			lastRunAt,
			wf.UpdatedAt,
			wf.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update workflow: %w", err)
		}
	} else {
		_, err = s.db.Exec(
			`INSERT INTO workflows (
				id, account_id, agent_id, name, description, steps, status,
				run_count, success_rate, last_run_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			wf.ID,
			wf.AccountID,
			nullString(wf.AgentID),
			wf.Name,
			wf.Description,
			stepsJSON,
			string(wf.Status),
			wf.RunCount,
			wf.SuccessRate,
			lastRunAt,
			wf.CreatedAt,
			wf.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert workflow: %w", err)
		}
	}

	return nil
}

// scanWorkflow reads one workflow row
func scanWorkflow(scan func(dest ...interface{}) error) (workflow.Workflow, error) {
	var wf workflow.Workflow
	var agentID sql.NullString
	var description sql.NullString
	var stepsJSON []byte
	var status string
	var lastRunAt sql.NullTime

	err := scan(
		&wf.ID,
		&wf.AccountID,
		&agentID,
		&wf.Name,
		&description,
		&stepsJSON,
		&status,
		&wf.RunCount,
		&wf.SuccessRate,
		&lastRunAt,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return workflow.Workflow{}, err
	}

	if agentID.Valid {
		wf.AgentID = agentID.String
	}
	if description.Valid {
		wf.Description = description.String
	}
	if lastRunAt.Valid {
		t := lastRunAt.Time
		wf.LastRunAt = &t
	}
	wf.Status = workflow.Status(status)

	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &wf.Steps); err != nil {
			return workflow.Workflow{}, fmt.Errorf("failed to unmarshal workflow steps: %w", err)
		}
	}

	return wf, nil
}

const workflowColumns = `id, account_id, agent_id, name, description, steps, status,
	run_count, success_rate, last_run_at, created_at, updated_at`

// GetWorkflow retrieves a workflow by ID
func (s *PostgreSQLWorkflowStore) GetWorkflow(workflowID string) (workflow.Workflow, error) {
	row := s.db.QueryRow(
		"SELECT "+workflowColumns+" FROM workflows WHERE id = $1",
		workflowID,
	)

	wf, err := scanWorkflow(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return workflow.Workflow{}, ErrWorkflowNotFound
		}
		return workflow.Workflow{}, fmt.Errorf("failed to get workflow: %w", err)
	}

	return wf, nil
}

// ListWorkflows returns all workflows for an account
func (s *PostgreSQLWorkflowStore) ListWorkflows(accountID string) ([]workflow.Workflow, error) {
	rows, err := s.db.Query(
		"SELECT "+workflowColumns+" FROM workflows WHERE account_id = $1 ORDER BY created_at ASC",
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []workflow.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workflow rows: %w", err)
	}

	return workflows, nil
}

// CountWorkflows returns the number of workflows for an account
func (s *PostgreSQLWorkflowStore) CountWorkflows(accountID string) (int64, error) {
	var count int64
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM workflows WHERE account_id = $1",
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count workflows: %w", err)
	}

	return count, nil
}

// DeleteWorkflow removes a workflow definition
func (s *PostgreSQLWorkflowStore) DeleteWorkflow(workflowID string) error {
	result, err := s.db.Exec(
		"DELETE FROM workflows WHERE id = $1",
		workflowID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrWorkflowNotFound
	}

	return nil
}

// RecordRun atomically updates run statistics after an execution finishes.
// The weighted average is computed from the stored values in a single
// statement, so concurrent executions never lose an increment.
func (s *PostgreSQLWorkflowStore) RecordRun(workflowID string, success bool, finishedAt time.Time) error {
	outcome := 0.0
	if success {
		outcome = 1.0
	}

	result, err := s.db.Exec(
		`UPDATE workflows SET
			success_rate = (success_rate * run_count + $1) / (run_count + 1),
			run_count = run_count + 1,
			last_run_at = $2,
			updated_at = $2
		WHERE id = $3`,
		outcome, finishedAt, workflowID,
	)
	if err != nil {
		return fmt.Errorf("failed to record workflow run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrWorkflowNotFound
	}

	return nil
}

// PostgreSQLExecutionStore implements the ExecutionStore interface using PostgreSQL
type PostgreSQLExecutionStore struct {
	db *sql.DB
}

// NewPostgreSQLExecutionStore creates a new PostgreSQL execution store
func NewPostgreSQLExecutionStore(db *sql.DB) *PostgreSQLExecutionStore {
	return &PostgreSQLExecutionStore{
		db: db,
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (s *PostgreSQLExecutionStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			account_id TEXT NOT NULL,
			status TEXT NOT NULL,
			input JSONB,
			output JSONB,
			error TEXT,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS executions_account_id_idx ON executions (account_id);
		CREATE INDEX IF NOT EXISTS executions_workflow_id_idx ON executions (workflow_id);
	`)

	if err != nil {
		return fmt.Errorf("failed to create executions table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS execution_logs (
			execution_id TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			step TEXT,
			level TEXT NOT NULL,
			message TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS execution_logs_execution_id_idx ON execution_logs (execution_id);
	`)

	if err != nil {
		return fmt.Errorf("failed to create execution logs table: %w", err)
	}

	return nil
}

// SaveExecution persists execution data
func (s *PostgreSQLExecutionStore) SaveExecution(execution workflow.Execution) error {
	var inputJSON, outputJSON []byte
	var err error
	if execution.Input != nil {
		inputJSON, err = json.Marshal(execution.Input)
		if err != nil {
			return fmt.Errorf("failed to marshal execution input: %w", err)
		}
	}
	if execution.Output != nil {
		outputJSON, err = json.Marshal(execution.Output)
		if err != nil {
			return fmt.Errorf("failed to marshal execution output: %w", err)
		}
	}

	var completedAt sql.NullTime
	if execution.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *execution.CompletedAt, Valid: true}
	}

	// Check if execution already exists
	var exists bool
	err = s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM executions WHERE id = $1)", execution.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if execution exists: %w", err)
	}

	if exists {
		_, err = s.db.Exec(
			`UPDATE executions SET
				status = $1,
				output = $2,
				error = $3,
				completed_at = $4
			WHERE id = $5`,
			string(execution.Status),
			outputJSON,
			nullString(execution.Error),
			completedAt,
			execution.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update execution: %w", err)
		}
	} else {
		_, err = s.db.Exec(
			`INSERT INTO executions (
				id, workflow_id, account_id, status, input, output, error, started_at, completed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			execution.ID,
			execution.WorkflowID,
			execution.AccountID,
			string(execution.Status),
			inputJSON,
			outputJSON,
			nullString(execution.Error),
			execution.StartedAt,
			completedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert execution: %w", err)
		}
	}

	return nil
}

// scanExecution reads one execution row
func scanExecution(scan func(dest ...interface{}) error) (workflow.Execution, error) {
	var execution workflow.Execution
	var status string
	var inputJSON, outputJSON []byte
	var errorText sql.NullString
	var completedAt sql.NullTime

	err := scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.AccountID,
		&status,
		&inputJSON,
		&outputJSON,
		&errorText,
		&execution.StartedAt,
		&completedAt,
	)
	if err != nil {
		return workflow.Execution{}, err
	}

	execution.Status = workflow.ExecutionState(status)
	if errorText.Valid {
		execution.Error = errorText.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		execution.CompletedAt = &t
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &execution.Input); err != nil {
			return workflow.Execution{}, fmt.Errorf("failed to unmarshal execution input: %w", err)
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &execution.Output); err != nil {
			return workflow.Execution{}, fmt.Errorf("failed to unmarshal execution output: %w", err)
		}
	}

	return execution, nil
}

const executionColumns = `id, workflow_id, account_id, status, input, output, error, started_at, completed_at`

// GetExecution retrieves execution data
func (s *PostgreSQLExecutionStore) GetExecution(executionID string) (workflow.Execution, error) {
	row := s.db.QueryRow(
		"SELECT "+executionColumns+" FROM executions WHERE id = $1",
		executionID,
	)

	execution, err := scanExecution(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return workflow.Execution{}, ErrExecutionNotFound
		}
		return workflow.Execution{}, fmt.Errorf("failed to get execution: %w", err)
	}

	return execution, nil
}

// ListExecutions returns all executions for an account, newest first
func (s *PostgreSQLExecutionStore) ListExecutions(accountID string) ([]workflow.Execution, error) {
	rows, err := s.db.Query(
		"SELECT "+executionColumns+" FROM executions WHERE account_id = $1 ORDER BY started_at DESC",
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var executions []workflow.Execution
	for rows.Next() {
		execution, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution rows: %w", err)
	}

	return executions, nil
}

// ListExecutionsForWorkflow returns recent executions of a workflow
func (s *PostgreSQLExecutionStore) ListExecutionsForWorkflow(workflowID string, limit int) ([]workflow.Execution, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		"SELECT "+executionColumns+" FROM executions WHERE workflow_id = $1 ORDER BY started_at DESC LIMIT $2",
		workflowID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow executions: %w", err)
	}
	defer rows.Close()

	var executions []workflow.Execution
	for rows.Next() {
		execution, err := scanExecution(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution rows: %w", err)
	}

	return executions, nil
}

// AppendExecutionLog persists an execution log entry
func (s *PostgreSQLExecutionStore) AppendExecutionLog(executionID string, log workflow.ExecutionLog) error {
	_, err := s.db.Exec(
		"INSERT INTO execution_logs (execution_id, timestamp, step, level, message) VALUES ($1, $2, $3, $4, $5)",
		executionID,
		log.Timestamp,
		log.Step,
		log.Level,
		log.Message,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}

	return nil
}

// GetExecutionLogs retrieves logs for an execution
func (s *PostgreSQLExecutionStore) GetExecutionLogs(executionID string) ([]workflow.ExecutionLog, error) {
	rows, err := s.db.Query(
		"SELECT timestamp, step, level, message FROM execution_logs WHERE execution_id = $1 ORDER BY timestamp ASC",
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get execution logs: %w", err)
	}
	defer rows.Close()

	var logs []workflow.ExecutionLog
	for rows.Next() {
		var log workflow.ExecutionLog
		var step sql.NullString

		if err := rows.Scan(
			&log.Timestamp,
			&step,
			&log.Level,
			&log.Message,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		if step.Valid {
			log.Step = step.String
		}

		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution log rows: %w", err)
	}

	return logs, nil
}

// DeleteExecutionsForWorkflow removes all executions and logs of a workflow
func (s *PostgreSQLExecutionStore) DeleteExecutionsForWorkflow(workflowID string) error {
	_, err := s.db.Exec(
		"DELETE FROM execution_logs WHERE execution_id IN (SELECT id FROM executions WHERE workflow_id = $1)",
		workflowID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete execution logs: %w", err)
	}

	_, err = s.db.Exec(
		"DELETE FROM executions WHERE workflow_id = $1",
		workflowID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete executions: %w", err)
	}

	return nil
}

// PostgreSQLAccountStore implements the AccountStore interface using PostgreSQL
type PostgreSQLAccountStore struct {
	db *sql.DB
}

// NewPostgreSQLAccountStore creates a new PostgreSQL account store
func NewPostgreSQLAccountStore(db *sql.DB) *PostgreSQLAccountStore {
	return &PostgreSQLAccountStore{
		db: db,
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (s *PostgreSQLAccountStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			api_token TEXT UNIQUE NOT NULL,
			plan TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS accounts_username_idx ON accounts (username);
		CREATE INDEX IF NOT EXISTS accounts_api_token_idx ON accounts (api_token);
	`)

	if err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}

	return nil
}

// SaveAccount persists an account
func (s *PostgreSQLAccountStore) SaveAccount(account auth.Account) error {
	// Check if account already exists
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", account.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if account exists: %w", err)
	}

	if exists {
		_, err = s.db.Exec(
			"UPDATE accounts SET username = $1, password_hash = $2, api_token = $3, plan = $4, quantity = $5, updated_at = $6 WHERE id = $7",
			account.Username,
			account.PasswordHash,
			account.APIToken,
			string(account.Plan),
			account.Quantity,
			account.UpdatedAt,
			account.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}
	} else {
		_, err = s.db.Exec(
			"INSERT INTO accounts (id, username, password_hash, api_token, plan, quantity, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
			account.ID,
			account.Username,
			account.PasswordHash,
			account.APIToken,
			string(account.Plan),
			account.Quantity,
			account.CreatedAt,
			account.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert account: %w", err)
		}
	}

	return nil
}

// scanAccount reads one account row
func scanAccount(scan func(dest ...interface{}) error) (auth.Account, error) {
	var account auth.Account
	var plan string

	err := scan(
		&account.ID,
		&account.Username,
		&account.PasswordHash,
		&account.APIToken,
		&plan,
		&account.Quantity,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return auth.Account{}, err
	}

	account.Plan = auth.PlanTier(plan)

	return account, nil
}

const accountColumns = `id, username, password_hash, api_token, plan, quantity, created_at, updated_at`

// GetAccount retrieves an account
func (s *PostgreSQLAccountStore) GetAccount(accountID string) (auth.Account, error) {
	row := s.db.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1",
		accountID,
	)

	account, err := scanAccount(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return auth.Account{}, ErrAccountNotFound
		}
		return auth.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetAccountByUsername retrieves an account by username
func (s *PostgreSQLAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	row := s.db.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE username = $1",
		username,
	)

	account, err := scanAccount(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return auth.Account{}, ErrAccountNotFound
		}
		return auth.Account{}, fmt.Errorf("failed to get account by username: %w", err)
	}

	return account, nil
}

// GetAccountByToken retrieves an account by API token
func (s *PostgreSQLAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	row := s.db.QueryRow(
		"SELECT "+accountColumns+" FROM accounts WHERE api_token = $1",
		token,
	)

	account, err := scanAccount(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return auth.Account{}, ErrAccountNotFound
		}
		return auth.Account{}, fmt.Errorf("failed to get account by token: %w", err)
	}

	return account, nil
}

// ListAccounts returns all accounts
func (s *PostgreSQLAccountStore) ListAccounts() ([]auth.Account, error) {
	rows, err := s.db.Query("SELECT " + accountColumns + " FROM accounts")
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []auth.Account
	for rows.Next() {
		account, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account rows: %w", err)
	}

	return accounts, nil
}

// DeleteAccount removes an account
func (s *PostgreSQLAccountStore) DeleteAccount(accountID string) error {
	result, err := s.db.Exec(
		"DELETE FROM accounts WHERE id = $1",
		accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// PostgreSQLCreditStore implements the CreditStore interface using PostgreSQL
type PostgreSQLCreditStore struct {
	db *sql.DB
}

// NewPostgreSQLCreditStore creates a new PostgreSQL credit store
func NewPostgreSQLCreditStore(db *sql.DB) *PostgreSQLCreditStore {
	return &PostgreSQLCreditStore{
		db: db,
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (s *PostgreSQLCreditStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS credit_accounts (
			account_id TEXT PRIMARY KEY,
			credits_added BIGINT NOT NULL DEFAULT 0,
			credits_used BIGINT NOT NULL DEFAULT 0,
			quota BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		);
	`)

	if err != nil {
		return fmt.Errorf("failed to create credit accounts table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS credit_audit_log (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			amount BIGINT NOT NULL,
			source TEXT,
			session_id TEXT,
			metadata JSONB,
			timestamp TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS credit_audit_log_account_id_idx ON credit_audit_log (account_id);
		CREATE INDEX IF NOT EXISTS credit_audit_log_session_id_idx ON credit_audit_log (session_id);
	`)

	if err != nil {
		return fmt.Errorf("failed to create credit audit log table: %w", err)
	}

	return nil
}

const creditColumns = `account_id, credits_added, credits_used, quota, updated_at`

// scanCreditAccount reads one ledger row
func scanCreditAccount(scan func(dest ...interface{}) error) (credits.Account, error) {
	var account credits.Account

	err := scan(
		&account.AccountID,
		&account.CreditsAdded,
		&account.CreditsUsed,
		&account.Quota,
		&account.UpdatedAt,
	)
	if err != nil {
		return credits.Account{}, err
	}

	return account, nil
}

// GetCreditAccount retrieves the ledger row for an account
func (s *PostgreSQLCreditStore) GetCreditAccount(accountID string) (credits.Account, error) {
	row := s.db.QueryRow(
		"SELECT "+creditColumns+" FROM credit_accounts WHERE account_id = $1",
		accountID,
	)

	account, err := scanCreditAccount(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return credits.Account{}, ErrCreditAccountNotFound
		}
		return credits.Account{}, fmt.Errorf("failed to get credit account: %w", err)
	}

	return account, nil
}

// SaveCreditAccount persists a ledger row
func (s *PostgreSQLCreditStore) SaveCreditAccount(account credits.Account) error {
	_, err := s.db.Exec(
		`INSERT INTO credit_accounts (account_id, credits_added, credits_used, quota, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id) DO UPDATE SET
			credits_added = EXCLUDED.credits_added,
			credits_used = EXCLUDED.credits_used,
			quota = EXCLUDED.quota,
			updated_at = EXCLUDED.updated_at`,
		account.AccountID,
		account.CreditsAdded,
		account.CreditsUsed,
		account.Quota,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save credit account: %w", err)
	}

	return nil
}

// AddCredits increments credits_added and returns the updated row
func (s *PostgreSQLCreditStore) AddCredits(accountID string, amount int64) (credits.Account, error) {
	row := s.db.QueryRow(
		`UPDATE credit_accounts SET
			credits_added = credits_added + $1,
			updated_at = $2
		WHERE account_id = $3
		RETURNING `+creditColumns,
		amount, time.Now(), accountID,
	)

	account, err := scanCreditAccount(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return credits.Account{}, ErrCreditAccountNotFound
		}
		return credits.Account{}, fmt.Errorf("failed to add credits: %w", err)
	}

	return account, nil
}

// ConsumeCredits increments credits_used in a single conditional update,
// so the quota check and the increment cannot race.
func (s *PostgreSQLCreditStore) ConsumeCredits(accountID string, amount int64) (credits.Account, error) {
	row := s.db.QueryRow(
		`UPDATE credit_accounts SET
			credits_used = credits_used + $1,
			updated_at = $2
		WHERE account_id = $3 AND credits_used + $1 <= quota + credits_added
		RETURNING `+creditColumns,
		amount, time.Now(), accountID,
	)

	account, err := scanCreditAccount(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			// Either the account is missing or the quota would be
			// exceeded; check which.
			var exists bool
			if checkErr := s.db.QueryRow(
				"SELECT EXISTS(SELECT 1 FROM credit_accounts WHERE account_id = $1)", accountID,
			).Scan(&exists); checkErr != nil {
				return credits.Account{}, fmt.Errorf("failed to check credit account: %w", checkErr)
			}
			if !exists {
				return credits.Account{}, ErrCreditAccountNotFound
			}
			return credits.Account{}, credits.ErrInsufficientCredits
		}
		return credits.Account{}, fmt.Errorf("failed to consume credits: %w", err)
	}

	return account, nil
}

// ResetQuota overwrites the quota baseline, optionally zeroing usage
func (s *PostgreSQLCreditStore) ResetQuota(accountID string, quota int64, resetUsed bool) (credits.Account, error) {
	query := `UPDATE credit_accounts SET quota = $1, updated_at = $2 WHERE account_id = $3 RETURNING ` + creditColumns
	if resetUsed {
		query = `UPDATE credit_accounts SET quota = $1, credits_used = 0, updated_at = $2 WHERE account_id = $3 RETURNING ` + creditColumns
	}

	row := s.db.QueryRow(query, quota, time.Now(), accountID)

	account, err := scanCreditAccount(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return credits.Account{}, ErrCreditAccountNotFound
		}
		return credits.Account{}, fmt.Errorf("failed to reset quota: %w", err)
	}

	return account, nil
}

// AppendAuditLog persists an audit log entry
func (s *PostgreSQLCreditStore) AppendAuditLog(entry credits.AuditLogEntry) error {
	var metadataJSON []byte
	var err error
	if entry.Metadata != nil {
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
	}

	_, err = s.db.Exec(
		`INSERT INTO credit_audit_log (id, account_id, operation, amount, source, session_id, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID,
		entry.AccountID,
		string(entry.Operation),
		entry.Amount,
		nullString(entry.Source),
		nullString(entry.SessionID),
		metadataJSON,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log entry: %w", err)
	}

	return nil
}

// ListAuditLog returns audit entries for an account, newest first
func (s *PostgreSQLCreditStore) ListAuditLog(accountID string) ([]credits.AuditLogEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, account_id, operation, amount, source, session_id, metadata, timestamp
		FROM credit_audit_log WHERE account_id = $1 ORDER BY timestamp DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log: %w", err)
	}
	defer rows.Close()

	var entries []credits.AuditLogEntry
	for rows.Next() {
		var entry credits.AuditLogEntry
		var operation string
		var source, sessionID sql.NullString
		var metadataJSON []byte

		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&operation,
			&entry.Amount,
			&source,
			&sessionID,
			&metadataJSON,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log entry: %w", err)
		}

		entry.Operation = credits.AuditOp(operation)
		if source.Valid {
			entry.Source = source.String
		}
		if sessionID.Valid {
			entry.SessionID = sessionID.String
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return entries, nil
}

// HasAuditSession reports whether an audit entry exists for a session id
func (s *PostgreSQLCreditStore) HasAuditSession(sessionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM credit_audit_log WHERE session_id = $1)",
		sessionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check audit session: %w", err)
	}

	return exists, nil
}

// PostgreSQLAgentStore implements the AgentStore interface using PostgreSQL
type PostgreSQLAgentStore struct {
	db *sql.DB
}

// NewPostgreSQLAgentStore creates a new PostgreSQL agent store
func NewPostgreSQLAgentStore(db *sql.DB) *PostgreSQLAgentStore {
	return &PostgreSQLAgentStore{
		db: db,
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (s *PostgreSQLAgentStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT,
			persona TEXT,
			model_settings JSONB,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS agents_account_id_idx ON agents (account_id);
	`)

	if err != nil {
		return fmt.Errorf("failed to create agents table: %w", err)
	}

	return nil
}

// SaveAgent persists an agent
func (s *PostgreSQLAgentStore) SaveAgent(agent models.Agent) error {
	var settingsJSON []byte
	var err error
	if agent.ModelSettings != nil {
		settingsJSON, err = json.Marshal(agent.ModelSettings)
		if err != nil {
			return fmt.Errorf("failed to marshal model settings: %w", err)
		}
	}

	_, err = s.db.Exec(
		`INSERT INTO agents (id, account_id, name, role, persona, model_settings, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			persona = EXCLUDED.persona,
			model_settings = EXCLUDED.model_settings,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`,
		agent.ID,
		agent.AccountID,
		agent.Name,
		nullString(agent.Role),
		nullString(agent.Persona),
		settingsJSON,
		agent.Active,
		agent.CreatedAt,
		agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}

	return nil
}

// scanAgent reads one agent row
func scanAgent(scan func(dest ...interface{}) error) (models.Agent, error) {
	var agent models.Agent
	var role, persona sql.NullString
	var settingsJSON []byte

	err := scan(
		&agent.ID,
		&agent.AccountID,
		&agent.Name,
		&role,
		&persona,
		&settingsJSON,
		&agent.Active,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err != nil {
		return models.Agent{}, err
	}

	if role.Valid {
		agent.Role = role.String
	}
	if persona.Valid {
		agent.Persona = persona.String
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &agent.ModelSettings); err != nil {
			return models.Agent{}, fmt.Errorf("failed to unmarshal model settings: %w", err)
		}
	}

	return agent, nil
}

const agentColumns = `id, account_id, name, role, persona, model_settings, active, created_at, updated_at`

// GetAgent retrieves an agent by ID
func (s *PostgreSQLAgentStore) GetAgent(agentID string) (models.Agent, error) {
	row := s.db.QueryRow(
		"SELECT "+agentColumns+" FROM agents WHERE id = $1",
		agentID,
	)

	agent, err := scanAgent(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Agent{}, ErrAgentNotFound
		}
		return models.Agent{}, fmt.Errorf("failed to get agent: %w", err)
	}

	return agent, nil
}

// ListAgents returns all agents for an account
func (s *PostgreSQLAgentStore) ListAgents(accountID string) ([]models.Agent, error) {
	rows, err := s.db.Query(
		"SELECT "+agentColumns+" FROM agents WHERE account_id = $1 ORDER BY created_at ASC",
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		agent, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent rows: %w", err)
	}

	return agents, nil
}

// CountAgents returns the number of agents for an account
func (s *PostgreSQLAgentStore) CountAgents(accountID string) (int64, error) {
	var count int64
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM agents WHERE account_id = $1",
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count agents: %w", err)
	}

	return count, nil
}

// DeleteAgent removes an agent
func (s *PostgreSQLAgentStore) DeleteAgent(agentID string) error {
	result, err := s.db.Exec(
		"DELETE FROM agents WHERE id = $1",
		agentID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrAgentNotFound
	}

	return nil
}

// PostgreSQLConnectionStore implements the ConnectionStore interface using PostgreSQL
type PostgreSQLConnectionStore struct {
	db *sql.DB
}

// NewPostgreSQLConnectionStore creates a new PostgreSQL connection store
func NewPostgreSQLConnectionStore(db *sql.DB) *PostgreSQLConnectionStore {
	return &PostgreSQLConnectionStore{
		db: db,
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (s *PostgreSQLConnectionStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS integration_connections (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			integration TEXT NOT NULL,
			settings JSONB,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (account_id, integration)
		);
	`)

	if err != nil {
		return fmt.Errorf("failed to create integration connections table: %w", err)
	}

	return nil
}

// SaveConnection persists a connection
func (s *PostgreSQLConnectionStore) SaveConnection(conn models.IntegrationConnection) error {
	var settingsJSON []byte
	var err error
	if conn.Settings != nil {
		settingsJSON, err = json.Marshal(conn.Settings)
		if err != nil {
			return fmt.Errorf("failed to marshal connection settings: %w", err)
		}
	}

	_, err = s.db.Exec(
		`INSERT INTO integration_connections (id, account_id, integration, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			settings = EXCLUDED.settings,
			updated_at = EXCLUDED.updated_at`,
		conn.ID,
		conn.AccountID,
		conn.Integration,
		settingsJSON,
		conn.CreatedAt,
		conn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}

	return nil
}

// scanConnection reads one connection row
func scanConnection(scan func(dest ...interface{}) error) (models.IntegrationConnection, error) {
	var conn models.IntegrationConnection
	var settingsJSON []byte

	err := scan(
		&conn.ID,
		&conn.AccountID,
		&conn.Integration,
		&settingsJSON,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return models.IntegrationConnection{}, err
	}

	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &conn.Settings); err != nil {
			return models.IntegrationConnection{}, fmt.Errorf("failed to unmarshal connection settings: %w", err)
		}
	}

	return conn, nil
}

const connectionColumns = `id, account_id, integration, settings, created_at, updated_at`

// GetConnection retrieves a connection by ID
func (s *PostgreSQLConnectionStore) GetConnection(connectionID string) (models.IntegrationConnection, error) {
	row := s.db.QueryRow(
		"SELECT "+connectionColumns+" FROM integration_connections WHERE id = $1",
		connectionID,
	)

	conn, err := scanConnection(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.IntegrationConnection{}, ErrConnectionNotFound
		}
		return models.IntegrationConnection{}, fmt.Errorf("failed to get connection: %w", err)
	}

	return conn, nil
}

// GetConnectionForIntegration retrieves the connection an account holds for an integration
func (s *PostgreSQLConnectionStore) GetConnectionForIntegration(accountID, integration string) (models.IntegrationConnection, error) {
	row := s.db.QueryRow(
		"SELECT "+connectionColumns+" FROM integration_connections WHERE account_id = $1 AND integration = $2",
		accountID, integration,
	)

	conn, err := scanConnection(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.IntegrationConnection{}, ErrConnectionNotFound
		}
		return models.IntegrationConnection{}, fmt.Errorf("failed to get connection for integration: %w", err)
	}

	return conn, nil
}

// ListConnections returns all connections for an account
func (s *PostgreSQLConnectionStore) ListConnections(accountID string) ([]models.IntegrationConnection, error) {
	rows, err := s.db.Query(
		"SELECT "+connectionColumns+" FROM integration_connections WHERE account_id = $1 ORDER BY created_at ASC",
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var connections []models.IntegrationConnection
	for rows.Next() {
		conn, err := scanConnection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		connections = append(connections, conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connection rows: %w", err)
	}

	return connections, nil
}

// CountConnections returns the number of connections for an account
func (s *PostgreSQLConnectionStore) CountConnections(accountID string) (int64, error) {
	var count int64
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM integration_connections WHERE account_id = $1",
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count connections: %w", err)
	}

	return count, nil
}

// DeleteConnection removes a connection
func (s *PostgreSQLConnectionStore) DeleteConnection(connectionID string) error {
	result, err := s.db.Exec(
		"DELETE FROM integration_connections WHERE id = $1",
		connectionID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrConnectionNotFound
	}

	return nil
}

// PostgreSQLScheduleStore implements the ScheduleStore interface using PostgreSQL
type PostgreSQLScheduleStore struct {
	db *sql.DB
}

// NewPostgreSQLScheduleStore creates a new PostgreSQL schedule store
func NewPostgreSQLScheduleStore(db *sql.DB) *PostgreSQLScheduleStore {
	return &PostgreSQLScheduleStore{
		db: db,
	}
}

// Initialize creates the PostgreSQL tables if they don't exist
func (s *PostgreSQLScheduleStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			expression TEXT NOT NULL,
			input JSONB,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS schedules_workflow_id_idx ON schedules (workflow_id);
	`)

	if err != nil {
		return fmt.Errorf("failed to create schedules table: %w", err)
	}

	return nil
}

// SaveSchedule persists a schedule
func (s *PostgreSQLScheduleStore) SaveSchedule(schedule models.Schedule) error {
	var inputJSON []byte
	var err error
	if schedule.Input != nil {
		inputJSON, err = json.Marshal(schedule.Input)
		if err != nil {
			return fmt.Errorf("failed to marshal schedule input: %w", err)
		}
	}

	_, err = s.db.Exec(
		`INSERT INTO schedules (id, account_id, workflow_id, expression, input, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			expression = EXCLUDED.expression,
			input = EXCLUDED.input,
			enabled = EXCLUDED.enabled`,
		schedule.ID,
		schedule.AccountID,
		schedule.WorkflowID,
		schedule.Expression,
		inputJSON,
		schedule.Enabled,
		schedule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}

	return nil
}

// scanSchedule reads one schedule row
func scanSchedule(scan func(dest ...interface{}) error) (models.Schedule, error) {
	var schedule models.Schedule
	var inputJSON []byte

	err := scan(
		&schedule.ID,
		&schedule.AccountID,
		&schedule.WorkflowID,
		&schedule.Expression,
		&inputJSON,
		&schedule.Enabled,
		&schedule.CreatedAt,
	)
	if err != nil {
		return models.Schedule{}, err
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &schedule.Input); err != nil {
			return models.Schedule{}, fmt.Errorf("failed to unmarshal schedule input: %w", err)
		}
	}

	return schedule, nil
}

const scheduleColumns = `id, account_id, workflow_id, expression, input, enabled, created_at`

// GetSchedule retrieves a schedule by ID
func (s *PostgreSQLScheduleStore) GetSchedule(scheduleID string) (models.Schedule, error) {
	row := s.db.QueryRow(
		"SELECT "+scheduleColumns+" FROM schedules WHERE id = $1",
		scheduleID,
	)

	schedule, err := scanSchedule(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.Schedule{}, ErrScheduleNotFound
		}
		return models.Schedule{}, fmt.Errorf("failed to get schedule: %w", err)
	}

	return schedule, nil
}

// ListSchedules returns all schedules across accounts
func (s *PostgreSQLScheduleStore) ListSchedules() ([]models.Schedule, error) {
	rows, err := s.db.Query("SELECT " + scheduleColumns + " FROM schedules")
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule rows: %w", err)
	}

	return schedules, nil
}

// ListSchedulesForWorkflow returns all schedules for a workflow
func (s *PostgreSQLScheduleStore) ListSchedulesForWorkflow(workflowID string) ([]models.Schedule, error) {
	rows, err := s.db.Query(
		"SELECT "+scheduleColumns+" FROM schedules WHERE workflow_id = $1",
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule rows: %w", err)
	}

	return schedules, nil
}

// DeleteSchedule removes a schedule
func (s *PostgreSQLScheduleStore) DeleteSchedule(scheduleID string) error {
	result, err := s.db.Exec(
		"DELETE FROM schedules WHERE id = $1",
		scheduleID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrScheduleNotFound
	}

	return nil
}

// nullString converts an empty string to a NULL column value
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
