package store

import (
	"context"
	"database/sql"
	"fmt"
)

// User is an account row. IDs are uuid strings.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
}

const userByEmailSQL = `
SELECT id, email, password_hash, is_active
FROM users
WHERE lower(email) = lower($1)`

// GetUserByEmail returns the account for an email, or ErrNotFound.
func (s *ArticleStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, userByEmailSQL, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.IsActive,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}
