// Package identity owns caller accounts: the user record, its password
// capability, and the per-tenant stores the pipeline loads callers from.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("identity: not found")
	ErrConflict = errors.New("identity: already exists")
)

// User is a caller account inside one tenant store. Active=false means
// the caller is never authorized regardless of role.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"is_active"`
	WorkspaceID  string    `json:"workspace_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is the per-tenant persistence surface for user records.
type Store interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	SetActive(ctx context.Context, userID string, active bool) error
	Delete(ctx context.Context, userID string) error
}
