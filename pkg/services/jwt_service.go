package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agenthive/agenthive/pkg/auth"
)

// JWTService mints and validates session tokens for the HTTP API
type JWTService struct {
	secret          string
	tokenExpiration time.Duration
}

// NewJWTService creates a new JWT service
func NewJWTService(secret string, expirationHours int) *JWTService {
	return &JWTService{
		secret:          secret,
		tokenExpiration: time.Duration(expirationHours) * time.Hour,
	}
}

// Claims carries the session identity. The plan tier is embedded so
// consumers can read it without an account lookup; it reflects the
// plan at login time, not live subscription state.
type Claims struct {
	AccountID string        `json:"account_id"`
	Username  string        `json:"username"`
	Plan      auth.PlanTier `json:"plan"`
	jwt.RegisteredClaims
}

// GenerateToken mints a signed session token for an account
func (s *JWTService) GenerateToken(account auth.Account) (string, error) {
	now := time.Now()
	claims := Claims{
		AccountID: account.ID,
		Username:  account.Username,
		Plan:      account.Plan,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "agenthive",
			Subject:   account.ID,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// ParseClaims verifies a token's signature and expiry and returns its
// session claims
func (s *JWTService) ParseClaims(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// ValidateToken validates a session token and returns the account ID
func (s *JWTService) ValidateToken(tokenString string) (string, error) {
	claims, err := s.ParseClaims(tokenString)
	if err != nil {
		return "", err
	}

	return claims.AccountID, nil
}
