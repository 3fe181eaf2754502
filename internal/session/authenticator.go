package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"gatekit.dev/internal/apperr"
	"gatekit.dev/internal/identity"
)

// CookieName is the session cookie; its value is the opaque session id.
const CookieName = "gatekit_session"

// Routes that bypass authentication and receive no caller identity.
var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/auth/signup",
	"/v1/auth/signin",
	"/v1/auth/confirm-email",
	"/v1/auth/password-reset/request",
	"/v1/auth/password-reset/confirm",
}

var publicPrefixes = []string{
	"/v1/auth/oauth/",
}

// IsPublicPath reports whether a route is on the public allow-list.
func IsPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Identity is what authentication binds to a request: the freshly-loaded
// caller plus the session's workspace, which may be empty (e.g. a caller
// listing their workspaces has no active one yet).
type Identity struct {
	Caller      *identity.User
	WorkspaceID string
}

// Authenticator validates session references against per-tenant stores.
type Authenticator struct {
	now func() time.Time
}

// Option configures Authenticator behavior.
type Option func(*Authenticator)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(a *Authenticator) {
		if fn != nil {
			a.now = fn
		}
	}
}

// NewAuthenticator builds an authenticator.
func NewAuthenticator(opts ...Option) *Authenticator {
	a := &Authenticator{now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate resolves a session reference to a caller identity. Public
// routes pass with a nil identity; every other route fails closed on a
// missing, unknown, revoked or expired session. The caller row is loaded
// fresh so role and active-status changes apply on the very next request.
func (a *Authenticator) Authenticate(ctx context.Context, sessions Store, users identity.Store, sessionRef, routePath string) (*Identity, error) {
	if IsPublicPath(routePath) {
		return nil, nil
	}
	sessionRef = strings.TrimSpace(sessionRef)
	if sessionRef == "" {
		return nil, apperr.Authentication("session required")
	}
	sess, err := sessions.Find(ctx, sessionRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.Authentication("invalid session")
		}
		return nil, apperr.Database(err)
	}
	if sess.Revoked || sess.Expired(a.now().UTC()) {
		return nil, apperr.Authentication("invalid session")
	}
	caller, err := users.Find(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, apperr.Authentication("invalid session")
		}
		return nil, apperr.Database(err)
	}
	return &Identity{Caller: caller, WorkspaceID: sess.WorkspaceID}, nil
}

// Issue creates a session for a caller with the default lifetime.
func (a *Authenticator) Issue(ctx context.Context, sessions Store, userID, workspaceID string) (*Session, error) {
	now := a.now().UTC()
	sess := &Session{
		UserID:      userID,
		WorkspaceID: workspaceID,
		ExpiresAt:   now.Add(DefaultTTL),
		CreatedAt:   now,
	}
	if err := sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}
