package services

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/agenthive/agenthive/pkg/credits"
	"github.com/agenthive/agenthive/pkg/storage"
)

// CreditService implements the credit metering ledger: add, consume,
// reset, and per-resource usage checks. Every ledger mutation writes an
// append-only audit entry.
type CreditService struct {
	ledger      storage.CreditStore
	accounts    storage.AccountStore
	agents      storage.AgentStore
	workflows   storage.WorkflowStore
	connections storage.ConnectionStore
	logger      *log.Logger
}

// NewCreditService creates a credit service over the given stores
func NewCreditService(
	ledger storage.CreditStore,
	accounts storage.AccountStore,
	agents storage.AgentStore,
	workflows storage.WorkflowStore,
	connections storage.ConnectionStore,
	logger *log.Logger,
) *CreditService {
	if logger == nil {
		logger = log.Default()
	}
	return &CreditService{
		ledger:      ledger,
		accounts:    accounts,
		agents:      agents,
		workflows:   workflows,
		connections: connections,
		logger:      logger,
	}
}

// AddCredits grants one-time credits to an account and records an
// audit entry. The session id, when set, keys webhook idempotency.
func (s *CreditService) AddCredits(accountID string, amount int64, source, sessionID string, metadata map[string]interface{}) (credits.Account, error) {
	if amount <= 0 {
		return credits.Account{}, credits.ErrInvalidAmount
	}

	account, err := s.ledger.AddCredits(accountID, amount)
	if err != nil {
		return credits.Account{}, fmt.Errorf("failed to add credits: %w", err)
	}

	s.audit(credits.AuditLogEntry{
		AccountID: accountID,
		Operation: credits.OpAdd,
		Amount:    amount,
		Source:    source,
		SessionID: sessionID,
		Metadata:  metadata,
	})

	return account, nil
}

// ConsumeCredits charges prompt credits against the effective limit.
// The check and the increment are one conditional update, so concurrent
// consumers can never push usage past the limit.
func (s *CreditService) ConsumeCredits(accountID string, amount int64) (credits.Account, error) {
	if amount <= 0 {
		return credits.Account{}, credits.ErrInvalidAmount
	}

	account, err := s.ledger.ConsumeCredits(accountID, amount)
	if err != nil {
		return credits.Account{}, err
	}

	s.audit(credits.AuditLogEntry{
		AccountID: accountID,
		Operation: credits.OpConsume,
		Amount:    amount,
	})

	return account, nil
}

// Consume charges prompt credits; it adapts the service to the
// executor's metering hook
func (s *CreditService) Consume(accountID string, amount int64) error {
	_, err := s.ConsumeCredits(accountID, amount)
	return err
}

// ResetMonthlyCredits overwrites the quota baseline on subscription
// renewal. It never accumulates: two resets leave the later quota.
func (s *CreditService) ResetMonthlyCredits(accountID string, newQuota int64, resetUsed bool) (credits.Account, error) {
	if newQuota < 0 {
		return credits.Account{}, credits.ErrInvalidAmount
	}

	account, err := s.ledger.ResetQuota(accountID, newQuota, resetUsed)
	if err != nil {
		return credits.Account{}, fmt.Errorf("failed to reset quota: %w", err)
	}

	s.audit(credits.AuditLogEntry{
		AccountID: accountID,
		Operation: credits.OpReset,
		Amount:    newQuota,
	})

	return account, nil
}

// CheckUsageLimit reports usage against the plan-derived limit for one
// resource type. Read-only; identical calls without an intervening
// consume return identical results.
func (s *CreditService) CheckUsageLimit(accountID string, resource credits.ResourceType) (credits.UsageReport, error) {
	if !resource.Valid() {
		return credits.UsageReport{}, fmt.Errorf("%w: %s", credits.ErrUnknownResource, resource)
	}

	account, err := s.accounts.GetAccount(accountID)
	if err != nil {
		return credits.UsageReport{}, fmt.Errorf("failed to get account: %w", err)
	}

	var used, limit int64

	switch resource {
	case credits.ResourcePromptCredits:
		ledgerRow, err := s.ledger.GetCreditAccount(accountID)
		if err != nil {
			return credits.UsageReport{}, fmt.Errorf("failed to get credit account: %w", err)
		}
		used = ledgerRow.CreditsUsed
		limit = ledgerRow.Limit()
	case credits.ResourceAgents:
		used, err = s.agents.CountAgents(accountID)
		if err != nil {
			return credits.UsageReport{}, fmt.Errorf("failed to count agents: %w", err)
		}
		limit = credits.LimitFor(account.Plan, account.Quantity, resource)
	case credits.ResourceWorkflows:
		used, err = s.workflows.CountWorkflows(accountID)
		if err != nil {
			return credits.UsageReport{}, fmt.Errorf("failed to count workflows: %w", err)
		}
		limit = credits.LimitFor(account.Plan, account.Quantity, resource)
	case credits.ResourcePluginIntegrations:
		used, err = s.connections.CountConnections(accountID)
		if err != nil {
			return credits.UsageReport{}, fmt.Errorf("failed to count connections: %w", err)
		}
		limit = credits.LimitFor(account.Plan, account.Quantity, resource)
	case credits.ResourceAPIKeys:
		// Every account carries exactly one API token today
		used = 1
		limit = credits.LimitFor(account.Plan, account.Quantity, resource)
	case credits.ResourceBatchJobs:
		used = 0
		limit = credits.LimitFor(account.Plan, account.Quantity, resource)
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return credits.UsageReport{
		Resource:  resource,
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		Allowed:   used < limit,
	}, nil
}

// UsageSummary reports every metered resource for an account
func (s *CreditService) UsageSummary(accountID string) ([]credits.UsageReport, error) {
	resources := []credits.ResourceType{
		credits.ResourcePromptCredits,
		credits.ResourceAgents,
		credits.ResourceWorkflows,
		credits.ResourceBatchJobs,
		credits.ResourcePluginIntegrations,
		credits.ResourceAPIKeys,
	}

	reports := make([]credits.UsageReport, 0, len(resources))
	for _, resource := range resources {
		report, err := s.CheckUsageLimit(accountID, resource)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	return reports, nil
}

// GetBalance returns the ledger row for an account
func (s *CreditService) GetBalance(accountID string) (credits.Account, error) {
	return s.ledger.GetCreditAccount(accountID)
}

// AuditLog returns the ledger's audit trail for an account, newest
// first
func (s *CreditService) AuditLog(accountID string) ([]credits.AuditLogEntry, error) {
	return s.ledger.ListAuditLog(accountID)
}

// HasSession reports whether a payment session was already applied
func (s *CreditService) HasSession(sessionID string) (bool, error) {
	return s.ledger.HasAuditSession(sessionID)
}

// audit appends a ledger audit entry. A failed audit write is logged
// but never rolls back the ledger mutation it records.
func (s *CreditService) audit(entry credits.AuditLogEntry) {
	entry.ID = uuid.New().String()
	entry.Timestamp = time.Now()

	if err := s.ledger.AppendAuditLog(entry); err != nil {
		s.logger.Printf("failed to write audit entry for %s: %v", entry.AccountID, err)
	}
}
