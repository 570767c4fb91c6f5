// Package auth resolves the owner of an inbound request. Tokens are
// HS256-signed JWTs whose subject claim is the owner id.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoCredentials is returned when a request carries no bearer
	// token and no development owner is configured.
	ErrNoCredentials = errors.New("missing bearer token")

	// ErrInvalidToken is returned for malformed, expired, or wrongly
	// signed tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// IssueToken signs a token for owner that expires after ttl.
func IssueToken(secret []byte, owner string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	if strings.TrimSpace(owner) == "" {
		return "", errors.New("owner is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   owner,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies token and returns its subject.
func ParseToken(secret []byte, token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Resolver extracts the owner from a request.
type Resolver struct {
	secret   []byte
	devOwner string
}

// NewResolver creates a resolver. When devOwner is non-empty, requests
// without an Authorization header are attributed to it. A supplied but
// invalid token is always rejected.
func NewResolver(secret []byte, devOwner string) *Resolver {
	return &Resolver{secret: secret, devOwner: strings.TrimSpace(devOwner)}
}

// Owner returns the owner for r.
func (a *Resolver) Owner(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		if a.devOwner != "" {
			return a.devOwner, nil
		}
		return "", ErrNoCredentials
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("%w: expected Bearer scheme", ErrInvalidToken)
	}
	if len(a.secret) == 0 {
		return "", fmt.Errorf("%w: token auth not configured", ErrInvalidToken)
	}
	return ParseToken(a.secret, strings.TrimSpace(token))
}

type ownerKey struct{}

// WithOwner returns a context carrying owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFromContext returns the owner stored by WithOwner, or "".
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}
