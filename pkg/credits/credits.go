// Package credits defines the credit metering ledger model.
package credits

import (
	"errors"
	"time"

	"github.com/agenthive/agenthive/pkg/auth"
)

// Errors returned by ledger operations
var (
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUnknownResource     = errors.New("unknown resource type")
)

// ResourceType identifies a metered resource
type ResourceType string

// Metered resources
const (
	ResourcePromptCredits      ResourceType = "prompt_credits"
	ResourceAgents             ResourceType = "agents"
	ResourceWorkflows          ResourceType = "workflows"
	ResourceBatchJobs          ResourceType = "batch_jobs"
	ResourcePluginIntegrations ResourceType = "plugin_integrations"
	ResourceAPIKeys            ResourceType = "api_keys"
)

// Valid reports whether the resource type is known
func (r ResourceType) Valid() bool {
	switch r {
	case ResourcePromptCredits, ResourceAgents, ResourceWorkflows,
		ResourceBatchJobs, ResourcePluginIntegrations, ResourceAPIKeys:
		return true
	}
	return false
}

// Account is the per-tenant credit ledger row.
// The effective prompt-credit limit is Quota + CreditsAdded: Quota is the
// plan-derived baseline overwritten on subscription renewal, CreditsAdded
// accumulates one-time purchases.
type Account struct {
	// AccountID of the owning tenant
	AccountID string `json:"account_id"`

	// CreditsAdded is the total of one-time credit purchases
	CreditsAdded int64 `json:"credits_added"`

	// CreditsUsed is the total consumed
	CreditsUsed int64 `json:"credits_used"`

	// Quota is the plan-derived baseline
	Quota int64 `json:"quota"`

	// UpdatedAt is when the ledger row last changed
	UpdatedAt time.Time `json:"updated_at"`
}

// Limit returns the effective prompt-credit limit
func (a Account) Limit() int64 {
	return a.Quota + a.CreditsAdded
}

// Remaining returns the prompt credits left, never negative
func (a Account) Remaining() int64 {
	remaining := a.Limit() - a.CreditsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AuditOp identifies a ledger audit operation
type AuditOp string

// Audit operations
const (
	OpAdd     AuditOp = "add"
	OpConsume AuditOp = "consume"
	OpReset   AuditOp = "reset"
)

// AuditLogEntry records one ledger mutation. Entries are append-only.
type AuditLogEntry struct {
	// ID of the entry
	ID string `json:"id"`

	// AccountID of the owning tenant
	AccountID string `json:"account_id"`

	// Operation performed
	Operation AuditOp `json:"operation"`

	// Amount moved by the operation
	Amount int64 `json:"amount"`

	// Source describes what triggered the operation, e.g. "stripe_purchase"
	Source string `json:"source,omitempty"`

	// SessionID is the originating payment session, used to make
	// webhook replays idempotent
	SessionID string `json:"session_id,omitempty"`

	// Metadata holds additional operation context
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Timestamp of the entry
	Timestamp time.Time `json:"timestamp"`
}

// UsageReport describes the state of one metered resource for an account
type UsageReport struct {
	// Resource the report covers
	Resource ResourceType `json:"resource"`

	// Used is the current consumption
	Used int64 `json:"used"`

	// Limit is the plan-derived cap
	Limit int64 `json:"limit"`

	// Remaining is max(0, Limit-Used)
	Remaining int64 `json:"remaining"`

	// Allowed reports whether further consumption is permitted
	Allowed bool `json:"allowed"`
}

// planLimits holds the static per-resource limits for each tier.
// TEAMS and ENTERPRISE limits are per seat.
var planLimits = map[auth.PlanTier]map[ResourceType]int64{
	auth.PlanFree: {
		ResourcePromptCredits:      100,
		ResourceAgents:             2,
		ResourceWorkflows:          3,
		ResourceBatchJobs:          1,
		ResourcePluginIntegrations: 2,
		ResourceAPIKeys:            1,
	},
	auth.PlanPro: {
		ResourcePromptCredits:      2000,
		ResourceAgents:             10,
		ResourceWorkflows:          25,
		ResourceBatchJobs:          10,
		ResourcePluginIntegrations: 10,
		ResourceAPIKeys:            5,
	},
	auth.PlanTeams: {
		ResourcePromptCredits:      5000,
		ResourceAgents:             25,
		ResourceWorkflows:          100,
		ResourceBatchJobs:          25,
		ResourcePluginIntegrations: 25,
		ResourceAPIKeys:            10,
	},
	auth.PlanEnterprise: {
		ResourcePromptCredits:      20000,
		ResourceAgents:             100,
		ResourceWorkflows:          500,
		ResourceBatchJobs:          100,
		ResourcePluginIntegrations: 100,
		ResourceAPIKeys:            50,
	},
}

// LimitFor returns the limit for a resource on a tier. Seat-based tiers
// multiply every limit by the seat quantity.
func LimitFor(tier auth.PlanTier, quantity int, resource ResourceType) int64 {
	limits, ok := planLimits[tier]
	if !ok {
		limits = planLimits[auth.PlanFree]
	}

	limit := limits[resource]
	if tier == auth.PlanTeams || tier == auth.PlanEnterprise {
		if quantity < 1 {
			quantity = 1
		}
		limit *= int64(quantity)
	}

	return limit
}
