// Package auth mints agent credentials and operator tokens.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	APIKeyPrefix     = "ideaforge_"
	ClaimTokenPrefix = "ideaforge_claim_"

	apiKeyBytes     = 32
	claimTokenBytes = 24

	AdminRole = "admin"
)

// Credentials are returned to a registering agent exactly once.
type Credentials struct {
	APIKey     string
	ClaimToken string
}

// NewCredentials draws a fresh API key and claim token.
func NewCredentials() (Credentials, error) {
	key, err := randomHex(apiKeyBytes)
	if err != nil {
		return Credentials{}, fmt.Errorf("generate api key: %w", err)
	}
	claim, err := randomHex(claimTokenBytes)
	if err != nil {
		return Credentials{}, fmt.Errorf("generate claim token: %w", err)
	}
	return Credentials{APIKey: APIKeyPrefix + key, ClaimToken: ClaimTokenPrefix + claim}, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

type adminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// SignAdminToken mints an HS256 operator token for the admin endpoints.
func SignAdminToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("admin secret not configured")
	}
	if subject == "" {
		subject = "operator"
	}
	claims := adminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   "ideaforge",
		},
		Role: AdminRole,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyAdminToken checks signature, expiry and role, returning the subject.
func VerifyAdminToken(secret, token string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("admin secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &adminClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Role != AdminRole {
		return "", errors.New("admin role required")
	}
	return claims.Subject, nil
}
