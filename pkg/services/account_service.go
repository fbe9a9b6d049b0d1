// Package services contains the business logic behind the HTTP API.
package services

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/agenthive/agenthive/pkg/auth"
	"github.com/agenthive/agenthive/pkg/credits"
	"github.com/agenthive/agenthive/pkg/storage"
)

// AccountService implements the auth.AccountService interface
type AccountService struct {
	accounts storage.AccountStore
	ledger   storage.CreditStore
}

// NewAccountService creates a new account service with the given
// storage backends. The credit ledger row is provisioned alongside
// each new account.
func NewAccountService(accounts storage.AccountStore, ledger storage.CreditStore) *AccountService {
	return &AccountService{
		accounts: accounts,
		ledger:   ledger,
	}
}

// Authenticate verifies credentials and returns an account ID
func (s *AccountService) Authenticate(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", fmt.Errorf("username and password are required")
	}

	account, err := s.accounts.GetAccountByUsername(username)
	if err != nil {
		return "", fmt.Errorf("authentication failed")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("authentication failed")
	}

	return account.ID, nil
}

// ValidateToken verifies a bearer API token and returns an account ID
func (s *AccountService) ValidateToken(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("token is required")
	}

	account, err := s.accounts.GetAccountByToken(token)
	if err != nil {
		return "", fmt.Errorf("invalid token")
	}

	return account.ID, nil
}

// CreateAccount creates a new account on the FREE tier with a fresh
// credit ledger row
func (s *AccountService) CreateAccount(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", fmt.Errorf("username and password are required")
	}

	_, err := s.accounts.GetAccountByUsername(username)
	if err == nil {
		return "", fmt.Errorf("username already exists")
	}
	if err != storage.ErrAccountNotFound {
		return "", fmt.Errorf("failed to check username availability: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	apiToken, err := generateAPIToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate API token: %w", err)
	}

	accountID := uuid.New().String()
	now := time.Now()
	account := auth.Account{
		ID:           accountID,
		Username:     username,
		PasswordHash: string(passwordHash),
		APIToken:     apiToken,
		Plan:         auth.PlanFree,
		Quantity:     1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.SaveAccount(account); err != nil {
		return "", fmt.Errorf("failed to save account: %w", err)
	}

	ledgerRow := credits.Account{
		AccountID: accountID,
		Quota:     credits.LimitFor(auth.PlanFree, 1, credits.ResourcePromptCredits),
		UpdatedAt: now,
	}
	if err := s.ledger.SaveCreditAccount(ledgerRow); err != nil {
		return "", fmt.Errorf("failed to provision credit account: %w", err)
	}

	return accountID, nil
}

// UpdatePlan changes the plan tier and seat quantity for an account.
// The prompt-credit quota baseline follows the new tier.
func (s *AccountService) UpdatePlan(accountID string, tier auth.PlanTier, quantity int) error {
	if !tier.Valid() {
		return fmt.Errorf("invalid plan tier: %s", tier)
	}
	if quantity < 1 {
		quantity = 1
	}

	account, err := s.accounts.GetAccount(accountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}

	account.Plan = tier
	account.Quantity = quantity
	account.UpdatedAt = time.Now()

	if err := s.accounts.SaveAccount(account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	quota := credits.LimitFor(tier, quantity, credits.ResourcePromptCredits)
	if _, err := s.ledger.ResetQuota(accountID, quota, false); err != nil {
		return fmt.Errorf("failed to update credit quota: %w", err)
	}

	return nil
}

// DeleteAccount removes an account
func (s *AccountService) DeleteAccount(accountID string) error {
	if accountID == "" {
		return fmt.Errorf("account ID is required")
	}

	if err := s.accounts.DeleteAccount(accountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	return nil
}

// GetAccount retrieves account information
func (s *AccountService) GetAccount(accountID string) (auth.Account, error) {
	if accountID == "" {
		return auth.Account{}, fmt.Errorf("account ID is required")
	}

	account, err := s.accounts.GetAccount(accountID)
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// ListAccounts returns all accounts (admin only)
func (s *AccountService) ListAccounts() ([]auth.Account, error) {
	accounts, err := s.accounts.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	return accounts, nil
}

// generateAPIToken generates a secure random API token
func generateAPIToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	return hex.EncodeToString(bytes), nil
}
