// Package auth provides token-based authentication: HS256 JWT issuance and
// validation, credential verification against an injected store, and HTTP
// middleware that guards the API surface.
package auth

import (
	"context"
	"errors"
)

// Common authentication errors.
var (
	// ErrInvalidToken is returned when a token cannot be validated.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidCredentials is returned when a login attempt fails. Unknown
	// user and wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Claims are the validated claims of a bearer token.
type Claims struct {
	// Subject is the unique identifier for the user (sub claim).
	Subject string `json:"sub"`

	// Email is the user's email address (if present).
	Email string `json:"email,omitempty"`
}

// User is a stored account as the credential store sees it.
type User struct {
	ID       string
	Email    string
	Password string
}

// CredentialStore looks up accounts for login. Implementations return
// ErrInvalidCredentials for unknown usernames.
type CredentialStore interface {
	Lookup(ctx context.Context, username string) (*User, error)
}

// Verifier compares a stored password record against a presented password.
// The hashing scheme lives entirely behind this function.
type Verifier func(stored, presented string) bool

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const claimsContextKey contextKey = "claims"

// ContextWithClaims returns a new context carrying the given claims.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext extracts claims from a context, or nil when absent.
func ClaimsFromContext(ctx context.Context) *Claims {
	if claims, ok := ctx.Value(claimsContextKey).(*Claims); ok {
		return claims
	}
	return nil
}
