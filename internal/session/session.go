// Package session implements opaque server-side sessions and the
// authenticator that guards non-public routes.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session: not found")
)

// DefaultTTL is the absolute session lifetime.
const DefaultTTL = 30 * 24 * time.Hour

// Session is a server-side session row. The cookie carries only the id.
type Session struct {
	ID          string
	UserID      string
	WorkspaceID string
	ExpiresAt   time.Time
	Revoked     bool
	CreatedAt   time.Time
}

// Expired reports whether the session is past its lifetime at t.
func (s Session) Expired(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// Store is the per-tenant persistence surface for sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	Revoke(ctx context.Context, id string) error
}
