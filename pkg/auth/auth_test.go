package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type staticStore map[string]*User

func (s staticStore) Lookup(ctx context.Context, username string) (*User, error) {
	user, ok := s[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func plainVerifier(stored, presented string) bool { return stored == presented }

func newTestAuthenticator(t *testing.T, ttl time.Duration) *Authenticator {
	t.Helper()
	store := staticStore{
		"alice": {ID: "u-1", Email: "alice@example.com", Password: "secret"},
	}
	a, err := NewAuthenticator(testSecret, "scholium", ttl, store, plainVerifier)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	return a
}

func TestLoginAndValidate(t *testing.T) {
	a := newTestAuthenticator(t, time.Hour)

	token, err := a.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	claims, err := a.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.Subject != "u-1" {
		t.Errorf("Subject = %q, want u-1", claims.Subject)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("Email = %q, want alice@example.com", claims.Email)
	}
}

func TestLoginRejections(t *testing.T) {
	a := newTestAuthenticator(t, time.Hour)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"unknown user", "mallory", "secret"},
		{"wrong password", "alice", "wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Login(context.Background(), tt.username, tt.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	a := newTestAuthenticator(t, time.Millisecond)

	token, err := a.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	_, err = a.ValidateToken(context.Background(), token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("ValidateToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	a := newTestAuthenticator(t, time.Hour)

	token, err := a.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	// Flip a character in the signature segment.
	tampered := token[:len(token)-2] + "xx"
	if _, err := a.ValidateToken(context.Background(), tampered); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestWrongIssuerRejected(t *testing.T) {
	a := newTestAuthenticator(t, time.Hour)

	other, err := NewAuthenticator(testSecret, "someone-else", time.Hour, nil, nil)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	token, err := other.IssueToken(&User{ID: "u-1"})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if _, err := a.ValidateToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestHTTPMiddleware(t *testing.T) {
	a := newTestAuthenticator(t, time.Hour)

	token, err := a.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	var seenClaims *Claims
	handler := a.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenClaims = GetClaims(r)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seenClaims = nil
			req := httptest.NewRequest(http.MethodGet, "/api/articles", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if seenClaims == nil || seenClaims.Subject != "u-1" {
					t.Errorf("claims = %+v, want subject u-1", seenClaims)
				}
			}
		})
	}
}
