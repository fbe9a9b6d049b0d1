package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthive/agenthive/pkg/auth"
	"github.com/agenthive/agenthive/pkg/credits"
	"github.com/agenthive/agenthive/pkg/models"
	"github.com/agenthive/agenthive/pkg/storage"
)

type creditFixture struct {
	service     *CreditService
	ledger      *storage.MemoryCreditStore
	accounts    *storage.MemoryAccountStore
	agents      *storage.MemoryAgentStore
	workflows   *storage.MemoryWorkflowStore
	connections *storage.MemoryConnectionStore
}

func newCreditFixture(t *testing.T, plan auth.PlanTier, quantity int) *creditFixture {
	t.Helper()

	f := &creditFixture{
		ledger:      storage.NewMemoryCreditStore(),
		accounts:    storage.NewMemoryAccountStore(),
		agents:      storage.NewMemoryAgentStore(),
		workflows:   storage.NewMemoryWorkflowStore(),
		connections: storage.NewMemoryConnectionStore(),
	}
	f.service = NewCreditService(f.ledger, f.accounts, f.agents, f.workflows, f.connections, nil)

	now := time.Now()
	require.NoError(t, f.accounts.SaveAccount(auth.Account{
		ID:        "acct1",
		Username:  "testuser",
		Plan:      plan,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}))
	require.NoError(t, f.ledger.SaveCreditAccount(credits.Account{
		AccountID: "acct1",
		Quota:     credits.LimitFor(plan, quantity, credits.ResourcePromptCredits),
		UpdatedAt: now,
	}))

	return f
}

func TestAddCredits(t *testing.T) {
	f := newCreditFixture(t, auth.PlanFree, 1)

	account, err := f.service.AddCredits("acct1", 100, "stripe_purchase", "cs_123", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.CreditsAdded)
	assert.Equal(t, int64(200), account.Limit())

	// Audit entry written with the session id
	entries, err := f.service.AuditLog("acct1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, credits.OpAdd, entries[0].Operation)
	assert.Equal(t, "cs_123", entries[0].SessionID)

	seen, err := f.service.HasSession("cs_123")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestAddCreditsRejectsNonPositiveAmount(t *testing.T) {
	f := newCreditFixture(t, auth.PlanFree, 1)

	for _, amount := range []int64{0, -5} {
		_, err := f.service.AddCredits("acct1", amount, "test", "", nil)
		assert.ErrorIs(t, err, credits.ErrInvalidAmount)
	}

	// credits_added unchanged after rejected calls
	row, err := f.ledger.GetCreditAccount("acct1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), row.CreditsAdded)

	entries, err := f.service.AuditLog("acct1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConsumeCredits(t *testing.T) {
	f := newCreditFixture(t, auth.PlanFree, 1)

	account, err := f.service.ConsumeCredits("acct1", 40)
	require.NoError(t, err)
	assert.Equal(t, int64(40), account.CreditsUsed)
	assert.Equal(t, int64(60), account.Remaining())

	_, err = f.service.ConsumeCredits("acct1", 61)
	assert.ErrorIs(t, err, credits.ErrInsufficientCredits)

	_, err = f.service.ConsumeCredits("acct1", 0)
	assert.ErrorIs(t, err, credits.ErrInvalidAmount)

	entries, err := f.service.AuditLog("acct1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, credits.OpConsume, entries[0].Operation)
}

func TestConsumeCreditsConcurrent(t *testing.T) {
	f := newCreditFixture(t, auth.PlanFree, 1)

	// FREE quota is 100; 150 concurrent single-credit consumers
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.service.Consume("acct1", 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, succeeded)

	row, err := f.ledger.GetCreditAccount("acct1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), row.CreditsUsed)
}

func TestResetMonthlyCredits(t *testing.T) {
	f := newCreditFixture(t, auth.PlanPro, 1)

	_, err := f.service.ConsumeCredits("acct1", 500)
	require.NoError(t, err)

	// Reset overwrites, never accumulates
	account, err := f.service.ResetMonthlyCredits("acct1", 3000, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), account.Quota)
	assert.Equal(t, int64(500), account.CreditsUsed)

	account, err = f.service.ResetMonthlyCredits("acct1", 2000, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), account.Quota)
	assert.Equal(t, int64(0), account.CreditsUsed)

	_, err = f.service.ResetMonthlyCredits("acct1", -1, false)
	assert.ErrorIs(t, err, credits.ErrInvalidAmount)
}

func TestCheckUsageLimitPromptCredits(t *testing.T) {
	f := newCreditFixture(t, auth.PlanFree, 1)

	report, err := f.service.CheckUsageLimit("acct1", credits.ResourcePromptCredits)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Used)
	assert.Equal(t, int64(100), report.Limit)
	assert.Equal(t, int64(100), report.Remaining)
	assert.True(t, report.Allowed)

	// Identical calls without an intervening consume return identical
	// results
	again, err := f.service.CheckUsageLimit("acct1", credits.ResourcePromptCredits)
	require.NoError(t, err)
	assert.Equal(t, report, again)

	// A purchase raises the effective limit
	_, err = f.service.AddCredits("acct1", 100, "stripe_purchase", "cs_1", nil)
	require.NoError(t, err)

	report, err = f.service.CheckUsageLimit("acct1", credits.ResourcePromptCredits)
	require.NoError(t, err)
	assert.Equal(t, int64(200), report.Remaining)

	// Exhaustion flips Allowed off and clamps Remaining at zero
	_, err = f.service.ConsumeCredits("acct1", 200)
	require.NoError(t, err)

	report, err = f.service.CheckUsageLimit("acct1", credits.ResourcePromptCredits)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Remaining)
	assert.False(t, report.Allowed)
}

func TestCheckUsageLimitCountedResources(t *testing.T) {
	f := newCreditFixture(t, auth.PlanFree, 1)

	now := time.Now()
	require.NoError(t, f.agents.SaveAgent(models.Agent{ID: "a1", AccountID: "acct1", Name: "One", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, f.agents.SaveAgent(models.Agent{ID: "a2", AccountID: "acct1", Name: "Two", CreatedAt: now, UpdatedAt: now}))

	// FREE allows 2 agents
	report, err := f.service.CheckUsageLimit("acct1", credits.ResourceAgents)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Used)
	assert.Equal(t, int64(2), report.Limit)
	assert.False(t, report.Allowed)

	report, err = f.service.CheckUsageLimit("acct1", credits.ResourceWorkflows)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Used)
	assert.Equal(t, int64(3), report.Limit)
	assert.True(t, report.Allowed)

	_, err = f.service.CheckUsageLimit("acct1", credits.ResourceType("gpus"))
	assert.ErrorIs(t, err, credits.ErrUnknownResource)
}

func TestCheckUsageLimitSeatScaling(t *testing.T) {
	f := newCreditFixture(t, auth.PlanTeams, 4)

	report, err := f.service.CheckUsageLimit("acct1", credits.ResourceAgents)
	require.NoError(t, err)
	assert.Equal(t, int64(100), report.Limit)

	report, err = f.service.CheckUsageLimit("acct1", credits.ResourcePromptCredits)
	require.NoError(t, err)
	assert.Equal(t, int64(20000), report.Limit)
}

func TestUsageSummary(t *testing.T) {
	f := newCreditFixture(t, auth.PlanPro, 1)

	reports, err := f.service.UsageSummary("acct1")
	require.NoError(t, err)
	require.Len(t, reports, 6)

	seen := make(map[credits.ResourceType]bool)
	for _, report := range reports {
		seen[report.Resource] = true
	}
	assert.True(t, seen[credits.ResourcePromptCredits])
	assert.True(t, seen[credits.ResourceAPIKeys])
}
