// Package auth issues and verifies the HS256 bearer tokens that guard the CPI
// endpoint.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of an issued token.
const DefaultTokenTTL = time.Hour

// Config configures token issuance and verification.
type Config struct {
	// Issuer is written to and required in the iss claim.
	Issuer string
	// Audience is written to and required in the aud claim.
	Audience string
	// SigningKey is the shared HMAC secret. Must be at least 32 bytes.
	SigningKey []byte
	TokenTTL   time.Duration
	// Users maps usernames to passwords accepted by Issue.
	Users map[string]string
}

// TokenManager issues tokens for known users and verifies presented tokens.
type TokenManager struct {
	cfg Config
	now func() time.Time
}

// NewTokenManager creates a TokenManager.
func NewTokenManager(cfg Config) (*TokenManager, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	return &TokenManager{cfg: cfg, now: time.Now}, nil
}

// Issue returns a signed token for username if password matches.
func (m *TokenManager) Issue(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", ErrMissingCredentials
	}
	want, ok := m.cfg.Users[username]
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(password)) != 1 {
		return "", ErrInvalidCredentials
	}

	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    m.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.TokenTTL)),
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.SigningKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and returns the subject it was issued to.
func (m *TokenManager) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrMissingCredentials
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}
	if m.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.cfg.Audience))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.cfg.SigningKey, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "", ErrTokenMalformed
	case err != nil:
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	if claims.Subject == "" {
		return "", ErrInvalidCredentials
	}
	return claims.Subject, nil
}
