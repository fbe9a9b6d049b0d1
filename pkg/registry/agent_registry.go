package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agenthive/agenthive/pkg/credits"
	"github.com/agenthive/agenthive/pkg/models"
	"github.com/agenthive/agenthive/pkg/storage"
)

// AgentRegistry manages agent personas for tenants
type AgentRegistry struct {
	agents storage.AgentStore
	limits UsageChecker
}

// NewAgentRegistry creates an agent registry
func NewAgentRegistry(agents storage.AgentStore, limits UsageChecker) *AgentRegistry {
	return &AgentRegistry{
		agents: agents,
		limits: limits,
	}
}

// Create stores a new agent for an account
func (r *AgentRegistry) Create(accountID string, agent models.Agent) (models.Agent, error) {
	if agent.Name == "" {
		return models.Agent{}, fmt.Errorf("agent name is required")
	}

	if r.limits != nil {
		report, err := r.limits.CheckUsageLimit(accountID, credits.ResourceAgents)
		if err != nil {
			return models.Agent{}, fmt.Errorf("failed to check agent limit: %w", err)
		}
		if !report.Allowed {
			return models.Agent{}, fmt.Errorf("%w: %d of %d agents in use", ErrLimitExceeded, report.Used, report.Limit)
		}
	}

	now := time.Now()
	agent.ID = uuid.New().String()
	agent.AccountID = accountID
	agent.Active = true
	agent.CreatedAt = now
	agent.UpdatedAt = now

	if err := r.agents.SaveAgent(agent); err != nil {
		return models.Agent{}, fmt.Errorf("failed to save agent: %w", err)
	}

	return agent, nil
}

// Get retrieves an agent, verifying ownership
func (r *AgentRegistry) Get(accountID, agentID string) (models.Agent, error) {
	agent, err := r.agents.GetAgent(agentID)
	if err != nil {
		return models.Agent{}, err
	}
	if agent.AccountID != accountID {
		return models.Agent{}, ErrNotOwner
	}

	return agent, nil
}

// List returns all agents for an account
func (r *AgentRegistry) List(accountID string) ([]models.Agent, error) {
	return r.agents.ListAgents(accountID)
}

// Update replaces an agent's mutable fields
func (r *AgentRegistry) Update(accountID, agentID string, updated models.Agent) (models.Agent, error) {
	agent, err := r.Get(accountID, agentID)
	if err != nil {
		return models.Agent{}, err
	}

	if updated.Name != "" {
		agent.Name = updated.Name
	}
	agent.Role = updated.Role
	agent.Persona = updated.Persona
	agent.ModelSettings = updated.ModelSettings
	agent.Active = updated.Active
	agent.UpdatedAt = time.Now()

	if err := r.agents.SaveAgent(agent); err != nil {
		return models.Agent{}, fmt.Errorf("failed to save agent: %w", err)
	}

	return agent, nil
}

// Delete removes an agent
func (r *AgentRegistry) Delete(accountID, agentID string) error {
	if _, err := r.Get(accountID, agentID); err != nil {
		return err
	}

	return r.agents.DeleteAgent(agentID)
}
