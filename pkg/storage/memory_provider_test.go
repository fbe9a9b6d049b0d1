package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthive/agenthive/pkg/auth"
	"github.com/agenthive/agenthive/pkg/config"
	"github.com/agenthive/agenthive/pkg/credits"
	"github.com/agenthive/agenthive/pkg/models"
	"github.com/agenthive/agenthive/pkg/workflow"
)

func newTestWorkflow(id, accountID string) workflow.Workflow {
	now := time.Now()
	return workflow.Workflow{
		ID:        id,
		AccountID: accountID,
		Name:      "Test Workflow",
		Status:    workflow.StatusActive,
		Steps: []workflow.Step{
			{Integration: "core", Action: "log", Config: map[string]interface{}{"message": "hello"}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryWorkflowStore(t *testing.T) {
	store := NewMemoryWorkflowStore()

	// Getting a missing workflow returns the typed error
	_, err := store.GetWorkflow("missing")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	wf := newTestWorkflow("wf1", "acct1")
	require.NoError(t, store.SaveWorkflow(wf))

	got, err := store.GetWorkflow("wf1")
	require.NoError(t, err)
	assert.Equal(t, "Test Workflow", got.Name)
	assert.Len(t, got.Steps, 1)

	// Update in place
	wf.Name = "Renamed"
	require.NoError(t, store.SaveWorkflow(wf))
	got, err = store.GetWorkflow("wf1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	// Listing is scoped per account
	require.NoError(t, store.SaveWorkflow(newTestWorkflow("wf2", "acct1")))
	require.NoError(t, store.SaveWorkflow(newTestWorkflow("wf3", "acct2")))

	list, err := store.ListWorkflows("acct1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	count, err := store.CountWorkflows("acct1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = store.CountWorkflows("acct2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.DeleteWorkflow("wf1"))
	_, err = store.GetWorkflow("wf1")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	assert.ErrorIs(t, store.DeleteWorkflow("wf1"), ErrWorkflowNotFound)
}

func TestMemoryWorkflowStoreRecordRun(t *testing.T) {
	store := NewMemoryWorkflowStore()
	require.NoError(t, store.SaveWorkflow(newTestWorkflow("wf1", "acct1")))

	finished := time.Now()
	require.NoError(t, store.RecordRun("wf1", true, finished))

	got, err := store.GetWorkflow("wf1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.RunCount)
	assert.InDelta(t, 1.0, got.SuccessRate, 0.0001)
	require.NotNil(t, got.LastRunAt)
	assert.Equal(t, finished.Unix(), got.LastRunAt.Unix())

	// One failure out of two runs gives a 0.5 rate
	require.NoError(t, store.RecordRun("wf1", false, time.Now()))
	got, err = store.GetWorkflow("wf1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.RunCount)
	assert.InDelta(t, 0.5, got.SuccessRate, 0.0001)

	// Two more successes: 3/4
	require.NoError(t, store.RecordRun("wf1", true, time.Now()))
	require.NoError(t, store.RecordRun("wf1", true, time.Now()))
	got, err = store.GetWorkflow("wf1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.RunCount)
	assert.InDelta(t, 0.75, got.SuccessRate, 0.0001)

	assert.ErrorIs(t, store.RecordRun("missing", true, time.Now()), ErrWorkflowNotFound)
}

func TestMemoryWorkflowStoreRecordRunConcurrent(t *testing.T) {
	store := NewMemoryWorkflowStore()
	require.NoError(t, store.SaveWorkflow(newTestWorkflow("wf1", "acct1")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.RecordRun("wf1", true, time.Now())
		}()
	}
	wg.Wait()

	got, err := store.GetWorkflow("wf1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), got.RunCount)
	assert.InDelta(t, 1.0, got.SuccessRate, 0.0001)
}

func TestMemoryExecutionStore(t *testing.T) {
	store := NewMemoryExecutionStore()

	_, err := store.GetExecution("missing")
	assert.ErrorIs(t, err, ErrExecutionNotFound)

	first := workflow.Execution{
		ID:         "exec1",
		WorkflowID: "wf1",
		AccountID:  "acct1",
		Status:     workflow.ExecutionRunning,
		StartedAt:  time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.SaveExecution(first))

	second := workflow.Execution{
		ID:         "exec2",
		WorkflowID: "wf1",
		AccountID:  "acct1",
		Status:     workflow.ExecutionCompleted,
		StartedAt:  time.Now(),
	}
	require.NoError(t, store.SaveExecution(second))

	// Newest first
	list, err := store.ListExecutions("acct1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "exec2", list[0].ID)

	scoped, err := store.ListExecutionsForWorkflow("wf1", 1)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "exec2", scoped[0].ID)

	// Terminal update sticks
	completed := time.Now()
	first.Status = workflow.ExecutionFailed
	first.Error = "step 0 failed"
	first.CompletedAt = &completed
	require.NoError(t, store.SaveExecution(first))

	got, err := store.GetExecution("exec1")
	require.NoError(t, err)
	assert.Equal(t, workflow.ExecutionFailed, got.Status)
	assert.Equal(t, "step 0 failed", got.Error)
	require.NotNil(t, got.CompletedAt)

	require.NoError(t, store.AppendExecutionLog("exec1", workflow.ExecutionLog{
		Timestamp: time.Now(),
		Step:      "core.log",
		Level:     "info",
		Message:   "started",
	}))
	require.NoError(t, store.AppendExecutionLog("exec1", workflow.ExecutionLog{
		Timestamp: time.Now(),
		Step:      "core.log",
		Level:     "error",
		Message:   "failed",
	}))

	logs, err := store.GetExecutionLogs("exec1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "started", logs[0].Message)
	assert.Equal(t, "failed", logs[1].Message)

	require.NoError(t, store.DeleteExecutionsForWorkflow("wf1"))
	list, err = store.ListExecutions("acct1")
	require.NoError(t, err)
	assert.Empty(t, list)

	logs, err = store.GetExecutionLogs("exec1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestMemoryAccountStore(t *testing.T) {
	store := NewMemoryAccountStore()

	now := time.Now()
	account := auth.Account{
		ID:           "acct1",
		Username:     "testuser",
		PasswordHash: "hash",
		APIToken:     "token-abc",
		Plan:         auth.PlanFree,
		Quantity:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, store.SaveAccount(account))

	got, err := store.GetAccount("acct1")
	require.NoError(t, err)
	assert.Equal(t, "testuser", got.Username)

	got, err = store.GetAccountByUsername("testuser")
	require.NoError(t, err)
	assert.Equal(t, "acct1", got.ID)

	got, err = store.GetAccountByToken("token-abc")
	require.NoError(t, err)
	assert.Equal(t, "acct1", got.ID)

	_, err = store.GetAccountByUsername("missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)
	_, err = store.GetAccountByToken("missing")
	assert.ErrorIs(t, err, ErrAccountNotFound)

	// Plan upgrade round-trips
	account.Plan = auth.PlanTeams
	account.Quantity = 5
	require.NoError(t, store.SaveAccount(account))
	got, err = store.GetAccount("acct1")
	require.NoError(t, err)
	assert.Equal(t, auth.PlanTeams, got.Plan)
	assert.Equal(t, 5, got.Quantity)

	accounts, err := store.ListAccounts()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, store.DeleteAccount("acct1"))
	_, err = store.GetAccount("acct1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestMemoryCreditStore(t *testing.T) {
	store := NewMemoryCreditStore()

	_, err := store.GetCreditAccount("acct1")
	assert.ErrorIs(t, err, ErrCreditAccountNotFound)

	require.NoError(t, store.SaveCreditAccount(credits.Account{
		AccountID: "acct1",
		Quota:     100,
	}))

	account, err := store.AddCredits("acct1", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), account.CreditsAdded)
	assert.Equal(t, int64(150), account.Limit())

	account, err = store.ConsumeCredits("acct1", 120)
	require.NoError(t, err)
	assert.Equal(t, int64(120), account.CreditsUsed)
	assert.Equal(t, int64(30), account.Remaining())

	// Exceeding the effective limit is rejected and nothing changes
	_, err = store.ConsumeCredits("acct1", 31)
	assert.ErrorIs(t, err, credits.ErrInsufficientCredits)

	account, err = store.GetCreditAccount("acct1")
	require.NoError(t, err)
	assert.Equal(t, int64(120), account.CreditsUsed)

	// Consuming exactly the remainder succeeds
	account, err = store.ConsumeCredits("acct1", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Remaining())

	_, err = store.ConsumeCredits("missing", 1)
	assert.ErrorIs(t, err, ErrCreditAccountNotFound)

	// Renewal overwrites the quota and zeroes usage; purchases survive
	account, err = store.ResetQuota("acct1", 500, true)
	require.NoError(t, err)
	assert.Equal(t, int64(500), account.Quota)
	assert.Equal(t, int64(0), account.CreditsUsed)
	assert.Equal(t, int64(50), account.CreditsAdded)
	assert.Equal(t, int64(550), account.Limit())
}

func TestMemoryCreditStoreConcurrentConsume(t *testing.T) {
	store := NewMemoryCreditStore()
	require.NoError(t, store.SaveCreditAccount(credits.Account{
		AccountID: "acct1",
		Quota:     100,
	}))

	// 200 goroutines race for 100 credits; exactly 100 may win
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeCredits("acct1", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, succeeded)

	account, err := store.GetCreditAccount("acct1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.CreditsUsed)
}

func TestMemoryCreditStoreAuditLog(t *testing.T) {
	store := NewMemoryCreditStore()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.AppendAuditLog(credits.AuditLogEntry{
			ID:        fmt.Sprintf("entry%d", i),
			AccountID: "acct1",
			Operation: credits.OpConsume,
			Amount:    1,
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.AppendAuditLog(credits.AuditLogEntry{
		ID:        "purchase",
		AccountID: "acct1",
		Operation: credits.OpAdd,
		Amount:    500,
		Source:    "stripe_purchase",
		SessionID: "cs_test_123",
		Timestamp: time.Now().Add(time.Hour),
	}))

	entries, err := store.ListAuditLog("acct1")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "purchase", entries[0].ID)

	seen, err := store.HasAuditSession("cs_test_123")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = store.HasAuditSession("cs_test_999")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryAgentStore(t *testing.T) {
	store := NewMemoryAgentStore()

	now := time.Now()
	agent := models.Agent{
		ID:        "agent1",
		AccountID: "acct1",
		Name:      "Support Agent",
		Role:      "customer support",
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.SaveAgent(agent))

	got, err := store.GetAgent("agent1")
	require.NoError(t, err)
	assert.Equal(t, "Support Agent", got.Name)

	count, err := store.CountAgents("acct1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	list, err := store.ListAgents("acct1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteAgent("agent1"))
	_, err = store.GetAgent("agent1")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestMemoryConnectionStore(t *testing.T) {
	store := NewMemoryConnectionStore()

	now := time.Now()
	conn := models.IntegrationConnection{
		ID:          "conn1",
		AccountID:   "acct1",
		Integration: "gmail",
		Settings:    map[string]interface{}{"smtp_host": "smtp.example.com"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.SaveConnection(conn))

	got, err := store.GetConnection("conn1")
	require.NoError(t, err)
	assert.Equal(t, "gmail", got.Integration)

	got, err = store.GetConnectionForIntegration("acct1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "conn1", got.ID)

	// A different account must not see the connection
	_, err = store.GetConnectionForIntegration("acct2", "gmail")
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	count, err := store.CountConnections("acct1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, store.DeleteConnection("conn1"))
	_, err = store.GetConnection("conn1")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestMemoryScheduleStore(t *testing.T) {
	store := NewMemoryScheduleStore()

	schedule := models.Schedule{
		ID:         "sched1",
		AccountID:  "acct1",
		WorkflowID: "wf1",
		Expression: "*/5 * * * *",
		Enabled:    true,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, store.SaveSchedule(schedule))

	got, err := store.GetSchedule("sched1")
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", got.Expression)

	all, err := store.ListSchedules()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	forWorkflow, err := store.ListSchedulesForWorkflow("wf1")
	require.NoError(t, err)
	assert.Len(t, forWorkflow, 1)

	forWorkflow, err = store.ListSchedulesForWorkflow("wf2")
	require.NoError(t, err)
	assert.Empty(t, forWorkflow)

	require.NoError(t, store.DeleteSchedule("sched1"))
	_, err = store.GetSchedule("sched1")
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestFactory(t *testing.T) {
	cfg := config.DefaultConfig()
	provider, err := NewProviderFromConfig(cfg)
	require.NoError(t, err)
	require.NoError(t, provider.Initialize())
	defer provider.Close()

	assert.NotNil(t, provider.GetWorkflowStore())
	assert.NotNil(t, provider.GetExecutionStore())
	assert.NotNil(t, provider.GetAccountStore())
	assert.NotNil(t, provider.GetCreditStore())
	assert.NotNil(t, provider.GetAgentStore())
	assert.NotNil(t, provider.GetConnectionStore())
	assert.NotNil(t, provider.GetScheduleStore())

	cfg.Storage.Type = "cassandra"
	_, err = NewProviderFromConfig(cfg)
	assert.Error(t, err)
}
