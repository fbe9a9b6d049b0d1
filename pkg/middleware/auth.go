// Package middleware provides HTTP middleware for agenthive.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/agenthive/agenthive/pkg/auth"
)

// Key type for context values
type contextKey string

// Context keys
const (
	AccountIDKey contextKey = "account_id"
)

// TokenValidator verifies bearer tokens and yields an account id
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// AuthMiddleware provides authentication middleware for HTTP handlers.
// Bearer tokens are tried against the JWT validator first, then as
// long-lived API tokens; Basic credentials go through the account
// service.
type AuthMiddleware struct {
	accountService auth.AccountService
	jwt            TokenValidator
	rateLimiter    Limiter
}

// NewAuthMiddleware creates a new authentication middleware. The JWT
// validator may be nil, leaving only API token auth. The limiter may be
// nil, disabling rate limiting of failed attempts.
func NewAuthMiddleware(accountService auth.AccountService, jwt TokenValidator, limiter Limiter) *AuthMiddleware {
	if limiter == nil {
		limiter = NewRateLimiter(100, time.Minute)
	}
	return &AuthMiddleware{
		accountService: accountService,
		jwt:            jwt,
		rateLimiter:    limiter,
	}
}

// Authenticate is middleware that authenticates requests
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication for OPTIONS requests (CORS preflight)
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		clientIP := r.RemoteAddr
		if m.rateLimiter.IsLimited(clientIP) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		var accountID string
		var err error

		if strings.HasPrefix(authHeader, "Bearer ") {
			token := strings.TrimPrefix(authHeader, "Bearer ")
			accountID, err = m.validateBearer(token)
		} else if strings.HasPrefix(authHeader, "Basic ") {
			username, password, ok := r.BasicAuth()
			if !ok {
				http.Error(w, "Invalid Authorization header", http.StatusUnauthorized)
				return
			}
			accountID, err = m.accountService.Authenticate(username, password)
		} else {
			http.Error(w, "Unsupported authentication method", http.StatusUnauthorized)
			return
		}

		if err != nil {
			m.rateLimiter.Record(clientIP)
			http.Error(w, "Authentication failed", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validateBearer accepts either a session JWT or a long-lived API token
func (m *AuthMiddleware) validateBearer(token string) (string, error) {
	if m.jwt != nil {
		if accountID, err := m.jwt.ValidateToken(token); err == nil {
			return accountID, nil
		}
	}
	return m.accountService.ValidateToken(token)
}

// GetAccountID retrieves the account ID from the request context
func GetAccountID(r *http.Request) (string, bool) {
	accountID, ok := r.Context().Value(AccountIDKey).(string)
	return accountID, ok
}

// RequireAccount is middleware that ensures an account ID is present in the context
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetAccountID(r); !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AdminMiddleware gates privileged routes behind a shared admin secret
// carried in the X-Admin-Key header
type AdminMiddleware struct {
	adminKey string
}

// NewAdminMiddleware creates a new admin middleware
func NewAdminMiddleware(adminKey string) *AdminMiddleware {
	return &AdminMiddleware{
		adminKey: adminKey,
	}
}

// Require is middleware that rejects requests without the admin secret
func (m *AdminMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.adminKey == "" {
			http.Error(w, "Admin operations are not configured", http.StatusForbidden)
			return
		}

		provided := r.Header.Get("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(m.adminKey)) != 1 {
			http.Error(w, "Invalid admin key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CORS adds permissive cross-origin headers and answers preflights
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Admin-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
