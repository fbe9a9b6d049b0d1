package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signWebhook(t *testing.T, secret string, body []byte) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (env *testEnv) postWebhook(t *testing.T, event webhookEvent, secret string) *http.Response {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/api/v1/billing/webhook", bytes.NewReader(body))
	require.NoError(t, err)
	if secret != "" {
		req.Header.Set(webhookSignatureHeader, signWebhook(t, secret, body))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	accountID, _ := env.signup(t, "alice")

	event := webhookEvent{
		Type:      eventPaymentSucceeded,
		SessionID: "cs_1",
		AccountID: accountID,
		Amount:    500,
	}

	// Missing signature
	resp := env.postWebhook(t, event, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Signed with the wrong secret
	resp = env.postWebhook(t, event, "wrong-secret")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	balance, err := env.credits.GetBalance(accountID)
	require.NoError(t, err)
	assert.Zero(t, balance.CreditsAdded)
}

func TestWebhookOneTimePayment(t *testing.T) {
	env := newTestEnv(t)
	accountID, _ := env.signup(t, "alice")

	event := webhookEvent{
		Type:      eventPaymentSucceeded,
		SessionID: "cs_42",
		AccountID: accountID,
		Amount:    500,
	}

	resp := env.postWebhook(t, event, "hook-secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	balance, err := env.credits.GetBalance(accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance.CreditsAdded)

	// Replaying the same session id must not double-credit
	resp = env.postWebhook(t, event, "hook-secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	balance, err = env.credits.GetBalance(accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance.CreditsAdded)
}

func TestWebhookSubscriptionUpdate(t *testing.T) {
	env := newTestEnv(t)
	accountID, _ := env.signup(t, "alice")

	resp := env.postWebhook(t, webhookEvent{
		Type:      eventSubscriptionUpdated,
		SessionID: "sub_1",
		AccountID: accountID,
		Plan:      "TEAMS",
		Quantity:  3,
	}, "hook-secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	account, err := env.accounts.GetAccount(accountID)
	require.NoError(t, err)
	assert.Equal(t, "TEAMS", string(account.Plan))
	assert.Equal(t, 3, account.Quantity)

	// Quota resets to the seat-scaled tier baseline
	balance, err := env.credits.GetBalance(accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), balance.Quota)
}

func TestWebhookSubscriptionRenewal(t *testing.T) {
	env := newTestEnv(t)
	accountID, _ := env.signup(t, "alice")

	// Renewal overwrites the quota baseline with the configured
	// monthly grant per seat
	resp := env.postWebhook(t, webhookEvent{
		Type:      eventSubscriptionRenewed,
		SessionID: "inv_1",
		AccountID: accountID,
		Quantity:  2,
	}, "hook-secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	balance, err := env.credits.GetBalance(accountID)
	require.NoError(t, err)
	assert.Equal(t, env.cfg.Billing.MonthlyQuotaBase*2, balance.Quota)

	// A second renewal overwrites rather than accumulates
	resp = env.postWebhook(t, webhookEvent{
		Type:      eventSubscriptionRenewed,
		SessionID: "inv_2",
		AccountID: accountID,
		Quantity:  1,
	}, "hook-secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	balance, err = env.credits.GetBalance(accountID)
	require.NoError(t, err)
	assert.Equal(t, env.cfg.Billing.MonthlyQuotaBase, balance.Quota)
}

func TestWebhookUnknownEventIsAccepted(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postWebhook(t, webhookEvent{Type: "invoice.voided"}, "hook-secret")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
