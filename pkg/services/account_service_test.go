package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthive/agenthive/pkg/auth"
	"github.com/agenthive/agenthive/pkg/storage"
)

func newAccountService() (*AccountService, *storage.MemoryAccountStore, *storage.MemoryCreditStore) {
	accounts := storage.NewMemoryAccountStore()
	ledger := storage.NewMemoryCreditStore()
	return NewAccountService(accounts, ledger), accounts, ledger
}

func TestCreateAccount(t *testing.T) {
	service, _, ledger := newAccountService()

	accountID, err := service.CreateAccount("testuser", "password123")
	require.NoError(t, err)
	require.NotEmpty(t, accountID)

	account, err := service.GetAccount(accountID)
	require.NoError(t, err)
	assert.Equal(t, "testuser", account.Username)
	assert.Equal(t, auth.PlanFree, account.Plan)
	assert.Equal(t, 1, account.Quantity)
	assert.NotEmpty(t, account.APIToken)
	assert.NotEqual(t, "password123", account.PasswordHash)

	// Credit ledger provisioned with the FREE quota
	row, err := ledger.GetCreditAccount(accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), row.Quota)
	assert.Equal(t, int64(0), row.CreditsUsed)

	// Duplicate usernames are rejected
	_, err = service.CreateAccount("testuser", "other")
	assert.Error(t, err)

	// Empty credentials are rejected
	_, err = service.CreateAccount("", "password123")
	assert.Error(t, err)
	_, err = service.CreateAccount("someone", "")
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	service, _, _ := newAccountService()

	accountID, err := service.CreateAccount("testuser", "password123")
	require.NoError(t, err)

	got, err := service.Authenticate("testuser", "password123")
	require.NoError(t, err)
	assert.Equal(t, accountID, got)

	_, err = service.Authenticate("testuser", "wrong")
	assert.Error(t, err)

	_, err = service.Authenticate("nobody", "password123")
	assert.Error(t, err)
}

func TestValidateToken(t *testing.T) {
	service, _, _ := newAccountService()

	accountID, err := service.CreateAccount("testuser", "password123")
	require.NoError(t, err)

	account, err := service.GetAccount(accountID)
	require.NoError(t, err)

	got, err := service.ValidateToken(account.APIToken)
	require.NoError(t, err)
	assert.Equal(t, accountID, got)

	_, err = service.ValidateToken("bogus")
	assert.Error(t, err)
}

func TestUpdatePlan(t *testing.T) {
	service, _, ledger := newAccountService()

	accountID, err := service.CreateAccount("testuser", "password123")
	require.NoError(t, err)

	require.NoError(t, service.UpdatePlan(accountID, auth.PlanTeams, 3))

	account, err := service.GetAccount(accountID)
	require.NoError(t, err)
	assert.Equal(t, auth.PlanTeams, account.Plan)
	assert.Equal(t, 3, account.Quantity)

	// The quota baseline follows the tier: TEAMS is per seat
	row, err := ledger.GetCreditAccount(accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), row.Quota)

	err = service.UpdatePlan(accountID, auth.PlanTier("PLATINUM"), 1)
	assert.Error(t, err)
}

func TestDeleteAccount(t *testing.T) {
	service, _, _ := newAccountService()

	accountID, err := service.CreateAccount("testuser", "password123")
	require.NoError(t, err)

	require.NoError(t, service.DeleteAccount(accountID))

	_, err = service.GetAccount(accountID)
	assert.Error(t, err)
}

func TestJWTService(t *testing.T) {
	jwtService := NewJWTService("test-secret", 1)

	account := auth.Account{
		ID:       "acct1",
		Username: "testuser",
	}

	token, err := jwtService.GenerateToken(account)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	accountID, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acct1", accountID)

	// Wrong secret
	other := NewJWTService("other-secret", 1)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)

	_, err = jwtService.ValidateToken("not.a.token")
	assert.Error(t, err)
}
