// Package auth provides authentication and authorization functionality.
package auth

import (
	"time"
)

// PlanTier identifies a subscription tier
type PlanTier string

// Plan tiers
const (
	PlanFree       PlanTier = "FREE"
	PlanPro        PlanTier = "PRO"
	PlanTeams      PlanTier = "TEAMS"
	PlanEnterprise PlanTier = "ENTERPRISE"
)

// Valid reports whether the tier is one of the known tiers
func (t PlanTier) Valid() bool {
	switch t {
	case PlanFree, PlanPro, PlanTeams, PlanEnterprise:
		return true
	}
	return false
}

// AccountService manages accounts and authentication
type AccountService interface {
	// Authenticate verifies credentials and returns an account ID
	Authenticate(username, password string) (string, error)

	// ValidateToken verifies a bearer token and returns an account ID
	ValidateToken(token string) (string, error)

	// CreateAccount creates a new account on the FREE tier
	CreateAccount(username, password string) (string, error)

	// UpdatePlan changes the plan tier and seat quantity for an account
	UpdatePlan(accountID string, tier PlanTier, quantity int) error

	// DeleteAccount removes an account
	DeleteAccount(accountID string) error

	// GetAccount retrieves account information
	GetAccount(accountID string) (Account, error)

	// ListAccounts returns all accounts (admin only)
	ListAccounts() ([]Account, error)
}

// Account represents a tenant in the system
type Account struct {
	// ID of the account
	ID string `json:"id"`

	// Username for the account
	Username string `json:"username"`

	// PasswordHash is the hashed password (not exposed via API)
	PasswordHash string `json:"-"`

	// APIToken for authentication
	APIToken string `json:"-"`

	// Plan is the subscription tier
	Plan PlanTier `json:"plan"`

	// Quantity is the seat count; TEAMS and ENTERPRISE limits scale with it
	Quantity int `json:"quantity"`

	// CreatedAt is when the account was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the account was last updated
	UpdatedAt time.Time `json:"updated_at"`
}
