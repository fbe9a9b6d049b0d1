package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthive/agenthive/pkg/credits"
	"github.com/agenthive/agenthive/pkg/models"
	"github.com/agenthive/agenthive/pkg/storage"
	"github.com/agenthive/agenthive/pkg/workflow"
)

// fixedLimits is a UsageChecker with a scripted per-resource allowance
type fixedLimits struct {
	allowed map[credits.ResourceType]bool
}

func (l *fixedLimits) CheckUsageLimit(accountID string, resource credits.ResourceType) (credits.UsageReport, error) {
	allowed, ok := l.allowed[resource]
	if !ok {
		allowed = true
	}
	return credits.UsageReport{Resource: resource, Allowed: allowed}, nil
}

func allowAll() *fixedLimits {
	return &fixedLimits{allowed: map[credits.ResourceType]bool{}}
}

func newWorkflowRegistry(limits UsageChecker) (*WorkflowRegistry, *storage.MemoryWorkflowStore, *storage.MemoryExecutionStore, *storage.MemoryScheduleStore) {
	workflows := storage.NewMemoryWorkflowStore()
	executions := storage.NewMemoryExecutionStore()
	schedules := storage.NewMemoryScheduleStore()
	return NewWorkflowRegistry(workflows, executions, schedules, limits), workflows, executions, schedules
}

func validDefinition() workflow.Workflow {
	return workflow.Workflow{
		Name:   "Daily digest",
		Status: workflow.StatusActive,
		Steps: []workflow.Step{
			{Integration: "gmail", Action: "send_email"},
		},
	}
}

func TestWorkflowRegistryCreate(t *testing.T) {
	registry, _, _, _ := newWorkflowRegistry(allowAll())

	created, err := registry.Create("acct1", validDefinition())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "acct1", created.AccountID)
	assert.Equal(t, int64(0), created.RunCount)

	// Status defaults to draft when omitted
	def := validDefinition()
	def.Status = ""
	created, err = registry.Create("acct1", def)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusDraft, created.Status)

	// Malformed definitions rejected
	def = validDefinition()
	def.Steps[0].Action = ""
	_, err = registry.Create("acct1", def)
	assert.ErrorIs(t, err, workflow.ErrInvalidDefinition)

	def = validDefinition()
	def.Name = ""
	_, err = registry.Create("acct1", def)
	assert.ErrorIs(t, err, workflow.ErrInvalidDefinition)
}

func TestWorkflowRegistryCreateLimit(t *testing.T) {
	limits := &fixedLimits{allowed: map[credits.ResourceType]bool{
		credits.ResourceWorkflows: false,
	}}
	registry, workflows, _, _ := newWorkflowRegistry(limits)

	_, err := registry.Create("acct1", validDefinition())
	assert.ErrorIs(t, err, ErrLimitExceeded)

	count, err := workflows.CountWorkflows("acct1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestWorkflowRegistryOwnership(t *testing.T) {
	registry, _, _, _ := newWorkflowRegistry(allowAll())

	created, err := registry.Create("acct1", validDefinition())
	require.NoError(t, err)

	// Another account can't read, update, or delete it
	_, err = registry.Get("acct2", created.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = registry.Update("acct2", created.ID, validDefinition())
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = registry.UpdateStatus("acct2", created.ID, workflow.StatusPaused)
	assert.ErrorIs(t, err, ErrNotOwner)

	err = registry.Delete("acct2", created.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	// No mutation happened
	got, err := registry.Get("acct1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusActive, got.Status)

	// A missing workflow is reported distinctly
	_, err = registry.Get("acct1", "no-such-workflow")
	assert.ErrorIs(t, err, storage.ErrWorkflowNotFound)
}

func TestWorkflowRegistryUpdatePreservesStats(t *testing.T) {
	registry, workflows, _, _ := newWorkflowRegistry(allowAll())

	created, err := registry.Create("acct1", validDefinition())
	require.NoError(t, err)

	require.NoError(t, workflows.RecordRun(created.ID, true, time.Now()))

	updated := validDefinition()
	updated.Name = "Renamed digest"
	got, err := registry.Update("acct1", created.ID, updated)
	require.NoError(t, err)

	assert.Equal(t, "Renamed digest", got.Name)
	assert.Equal(t, int64(1), got.RunCount)
	assert.InDelta(t, 1.0, got.SuccessRate, 0.0001)
}

func TestWorkflowRegistryUpdateStatus(t *testing.T) {
	registry, _, _, _ := newWorkflowRegistry(allowAll())

	created, err := registry.Create("acct1", validDefinition())
	require.NoError(t, err)

	got, err := registry.UpdateStatus("acct1", created.ID, workflow.StatusPaused)
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusPaused, got.Status)

	_, err = registry.UpdateStatus("acct1", created.ID, workflow.Status("archived"))
	assert.ErrorIs(t, err, workflow.ErrInvalidDefinition)
}

func TestWorkflowRegistryDeleteCascades(t *testing.T) {
	registry, workflows, executions, schedules := newWorkflowRegistry(allowAll())

	created, err := registry.Create("acct1", validDefinition())
	require.NoError(t, err)

	require.NoError(t, executions.SaveExecution(workflow.Execution{
		ID:         "exec1",
		WorkflowID: created.ID,
		AccountID:  "acct1",
		Status:     workflow.ExecutionCompleted,
		StartedAt:  time.Now(),
	}))
	require.NoError(t, schedules.SaveSchedule(models.Schedule{
		ID:         "sched1",
		AccountID:  "acct1",
		WorkflowID: created.ID,
		Expression: "0 9 * * *",
		Enabled:    true,
		CreatedAt:  time.Now(),
	}))

	require.NoError(t, registry.Delete("acct1", created.ID))

	_, err = workflows.GetWorkflow(created.ID)
	assert.ErrorIs(t, err, storage.ErrWorkflowNotFound)

	list, err := executions.ListExecutions("acct1")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = schedules.GetSchedule("sched1")
	assert.ErrorIs(t, err, storage.ErrScheduleNotFound)
}

func TestWorkflowRegistryRecentExecutions(t *testing.T) {
	registry, _, executions, _ := newWorkflowRegistry(allowAll())

	created, err := registry.Create("acct1", validDefinition())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, executions.SaveExecution(workflow.Execution{
			ID:         "exec" + string(rune('a'+i)),
			WorkflowID: created.ID,
			AccountID:  "acct1",
			Status:     workflow.ExecutionCompleted,
			StartedAt:  time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := registry.RecentExecutions("acct1", created.ID, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	_, err = registry.RecentExecutions("acct2", created.ID, 2)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestAgentRegistry(t *testing.T) {
	agents := storage.NewMemoryAgentStore()
	registry := NewAgentRegistry(agents, allowAll())

	created, err := registry.Create("acct1", models.Agent{Name: "Researcher", Role: "research"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Active)

	_, err = registry.Create("acct1", models.Agent{})
	assert.Error(t, err)

	_, err = registry.Get("acct2", created.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	updated, err := registry.Update("acct1", created.ID, models.Agent{Name: "Lead Researcher", Role: "research", Active: true})
	require.NoError(t, err)
	assert.Equal(t, "Lead Researcher", updated.Name)

	require.NoError(t, registry.Delete("acct1", created.ID))
	_, err = registry.Get("acct1", created.ID)
	assert.ErrorIs(t, err, storage.ErrAgentNotFound)
}

func TestAgentRegistryLimit(t *testing.T) {
	agents := storage.NewMemoryAgentStore()
	limits := &fixedLimits{allowed: map[credits.ResourceType]bool{
		credits.ResourceAgents: false,
	}}
	registry := NewAgentRegistry(agents, limits)

	_, err := registry.Create("acct1", models.Agent{Name: "Researcher"})
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestConnectionRegistry(t *testing.T) {
	connections := storage.NewMemoryConnectionStore()
	registry := NewConnectionRegistry(connections, allowAll())

	created, err := registry.Create("acct1", models.IntegrationConnection{
		Integration: "slack",
		Settings:    map[string]interface{}{"bot_token": "xoxb-1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	// A second create for the same integration replaces the settings
	replaced, err := registry.Create("acct1", models.IntegrationConnection{
		Integration: "slack",
		Settings:    map[string]interface{}{"bot_token": "xoxb-2"},
	})
	require.NoError(t, err)
	assert.Equal(t, created.ID, replaced.ID)
	assert.Equal(t, "xoxb-2", replaced.Settings["bot_token"])

	// Listing redacts credentials
	list, err := registry.List("acct1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Settings)

	// The stored settings are intact
	stored, err := connections.GetConnection(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "xoxb-2", stored.Settings["bot_token"])

	// A single fetch redacts credentials too
	fetched, err := registry.Get("acct1", created.ID)
	require.NoError(t, err)
	assert.Nil(t, fetched.Settings)

	_, err = registry.Get("acct2", created.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	require.NoError(t, registry.Delete("acct1", created.ID))
}
