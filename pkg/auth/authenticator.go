package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Authenticator issues and validates HS256 tokens signed with a shared
// secret. The secret never leaves the process; no JWKS endpoint is exposed.
type Authenticator struct {
	key      jwk.Key
	issuer   string
	ttl      time.Duration
	store    CredentialStore
	verifier Verifier
}

// NewAuthenticator creates an authenticator. store and verifier back the
// Login flow; validation-only callers may pass nil for both.
func NewAuthenticator(secret, issuer string, ttl time.Duration, store CredentialStore, verifier Verifier) (*Authenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	key, err := jwk.FromRaw([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("failed to build signing key: %w", err)
	}

	return &Authenticator{
		key:      key,
		issuer:   issuer,
		ttl:      ttl,
		store:    store,
		verifier: verifier,
	}, nil
}

// Login verifies the credentials and issues a token for the account.
func (a *Authenticator) Login(ctx context.Context, username, password string) (string, error) {
	if a.store == nil || a.verifier == nil {
		return "", fmt.Errorf("login is not configured")
	}

	user, err := a.store.Lookup(ctx, username)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	if !a.verifier(user.Password, password) {
		return "", ErrInvalidCredentials
	}

	return a.IssueToken(user)
}

// IssueToken signs a token for the user with sub, email, iss, iat and exp.
func (a *Authenticator) IssueToken(user *User) (string, error) {
	now := time.Now()

	builder := jwt.NewBuilder().
		Issuer(a.issuer).
		Subject(user.ID).
		IssuedAt(now).
		Expiration(now.Add(a.ttl))
	if user.Email != "" {
		builder = builder.Claim("email", user.Email)
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, a.key))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return string(signed), nil
}

// ValidateToken verifies the signature, expiry and issuer of a token and
// extracts its claims.
func (a *Authenticator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.HS256, a.key),
		jwt.WithValidate(true),
		jwt.WithIssuer(a.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}

	claims := &Claims{Subject: token.Subject()}
	if email, ok := token.Get("email"); ok {
		if emailStr, ok := email.(string); ok {
			claims.Email = emailStr
		}
	}

	return claims, nil
}
