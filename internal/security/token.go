package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityClaims are the claims carried by identity provider session tokens.
type IdentityClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ErrEmptySecret indicates that no signing secret is configured.
var ErrEmptySecret = errors.New("security: empty jwt secret")

// ParseIdentityToken validates an HS256 token and returns its claims.
func ParseIdentityToken(secret, token string) (*IdentityClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}
	claims := &IdentityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("security: parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("security: invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("security: token has no subject")
	}
	return claims, nil
}

// IssueIdentityToken signs a session token for subject.
func IssueIdentityToken(secret, subject, email, name string, expiry time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrEmptySecret
	}
	now := time.Now().UTC()
	claims := IdentityClaims{
		Email: email,
		Name:  name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
