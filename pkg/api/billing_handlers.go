package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/agenthive/agenthive/pkg/auth"
	"github.com/agenthive/agenthive/pkg/credits"
)

// webhookSignatureHeader carries the payment processor's HMAC signature
const webhookSignatureHeader = "X-Webhook-Signature"

// Webhook event types dispatched by the payment processor
const (
	eventPaymentSucceeded    = "payment.succeeded"
	eventSubscriptionCreated = "subscription.created"
	eventSubscriptionUpdated = "subscription.updated"
	eventSubscriptionRenewed = "subscription.renewed"
)

// webhookEvent is the payload the payment processor posts
type webhookEvent struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"session_id"`
	AccountID string                 `json:"account_id"`
	Amount    int64                  `json:"amount"`
	Plan      string                 `json:"plan,omitempty"`
	Quantity  int                    `json:"quantity,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// CheckLimitRequest asks for the state of one metered resource
type CheckLimitRequest struct {
	ResourceType string `json:"resourceType"`
}

// AddCreditsRequest is the admin-gated credit grant payload
type AddCreditsRequest struct {
	AccountID string                 `json:"account_id"`
	Amount    int64                  `json:"amount"`
	Source    string                 `json:"source,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// handleUsageSummary handles GET /api/v1/billing/subscription/limits
func (s *Server) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	reports, err := s.deps.Credits.UsageSummary(accountID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	balance, err := s.deps.Credits.GetBalance(accountID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"limits":  reports,
		"balance": balance,
	})
}

// handleCheckLimit handles POST /api/v1/billing/subscription/limits
func (s *Server) handleCheckLimit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var req CheckLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	report, err := s.deps.Credits.CheckUsageLimit(accountID, credits.ResourceType(req.ResourceType))
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleAddCredits handles POST /api/v1/billing/credits (admin only)
func (s *Server) handleAddCredits(w http.ResponseWriter, r *http.Request) {
	var req AddCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "validation", "account_id is required")
		return
	}
	if req.Source == "" {
		req.Source = "admin_grant"
	}

	account, err := s.deps.Credits.AddCredits(req.AccountID, req.Amount, req.Source, req.SessionID, req.Metadata)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// handleBillingWebhook handles POST /api/v1/billing/webhook. The
// processor retries on anything but 200, so internal failures are
// logged under a generated reference and still answered with 200.
func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "failed to read body")
		return
	}

	if !s.verifyWebhookSignature(body, r.Header.Get(webhookSignatureHeader)) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid event payload")
		return
	}

	if err := s.processWebhookEvent(event); err != nil {
		errorID := uuid.New().String()
		s.logger.Printf("webhook %s event %s failed (%s): %v", event.Type, event.SessionID, errorID, err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"received": "ok"})
}

// verifyWebhookSignature checks the hex HMAC-SHA256 of the raw body
func (s *Server) verifyWebhookSignature(body []byte, signature string) bool {
	secret := s.config.Billing.WebhookSecret
	if secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// processWebhookEvent applies one verified payment event to the ledger
func (s *Server) processWebhookEvent(event webhookEvent) error {
	quantity := event.Quantity
	if quantity < 1 {
		quantity = 1
	}

	switch event.Type {
	case eventPaymentSucceeded:
		// Replays of the same payment session must not double-credit
		if event.SessionID != "" {
			seen, err := s.deps.Credits.HasSession(event.SessionID)
			if err != nil {
				return err
			}
			if seen {
				s.logger.Printf("webhook replay for session %s ignored", event.SessionID)
				return nil
			}
		}
		_, err := s.deps.Credits.AddCredits(event.AccountID, event.Amount, "one_time_purchase", event.SessionID, event.Metadata)
		return err

	case eventSubscriptionCreated, eventSubscriptionUpdated:
		// Plan changes reset the quota to the new tier's baseline
		return s.deps.Accounts.UpdatePlan(event.AccountID, auth.PlanTier(event.Plan), quantity)

	case eventSubscriptionRenewed:
		newQuota := s.config.Billing.MonthlyQuotaBase * int64(quantity)
		_, err := s.deps.Credits.ResetMonthlyCredits(event.AccountID, newQuota, false)
		return err

	default:
		s.logger.Printf("ignoring unhandled webhook event type %q", event.Type)
		return nil
	}
}
