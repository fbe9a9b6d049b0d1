package api

import (
	"encoding/json"
	"net/http"
)

// AccountRequest represents a request to create an account
type AccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token issued on login
type LoginResponse struct {
	Token     string `json:"token"`
	AccountID string `json:"account_id"`
	Username  string `json:"username"`
}

// handleCreateAccount handles POST /api/v1/accounts
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	accountID, err := s.deps.Accounts.CreateAccount(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}

	account, err := s.deps.Accounts.GetAccount(accountID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// handleLogin handles POST /api/v1/login and returns a JWT token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	accountID, err := s.deps.Accounts.Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
		return
	}

	account, err := s.deps.Accounts.GetAccount(accountID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	token, err := s.deps.JWT.GenerateToken(account)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		AccountID: accountID,
		Username:  account.Username,
	})
}

// handleCurrentAccount handles GET /api/v1/accounts/me
func (s *Server) handleCurrentAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	account, err := s.deps.Accounts.GetAccount(accountID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}
