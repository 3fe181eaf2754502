// Package pipeline composes tenant resolution, rate limiting, session
// authentication and audit recording into the fixed-order check every
// protected request passes through before business logic runs.
package pipeline

import (
	"context"
	"net"
	"net/http"
	"strings"

	"gatekit.dev/internal/ratelimit"
	"gatekit.dev/internal/session"
	"gatekit.dev/internal/tenant"
)

// Context is the per-request authorization context. It is constructed by
// Authorize and immutable afterwards; handlers read it, never write it.
type Context struct {
	RequestID string
	Tenant    tenant.Context

	// Identity is nil on public routes.
	Identity *session.Identity

	RateLimit ratelimit.Decision

	ClientIP  string
	UserAgent string
	Endpoint  string
	Method    string
}

// Authenticated reports whether a caller identity is bound.
func (c Context) Authenticated() bool {
	return c.Identity != nil && c.Identity.Caller != nil
}

// CallerID returns the bound caller id, or "" on public routes.
func (c Context) CallerID() string {
	if !c.Authenticated() {
		return ""
	}
	return c.Identity.Caller.ID
}

// WorkspaceID returns the session's workspace, which may be empty.
func (c Context) WorkspaceID() string {
	if c.Identity == nil {
		return ""
	}
	return c.Identity.WorkspaceID
}

type ctxKey struct{}
type requestIDKey struct{}

// WithContext attaches the authorization context to a request context.
func WithContext(ctx context.Context, rc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, &rc)
}

// FromContext extracts the authorization context.
func FromContext(ctx context.Context) (Context, bool) {
	v, ok := ctx.Value(ctxKey{}).(*Context)
	if !ok || v == nil {
		return Context{}, false
	}
	return *v, true
}

// WithRequestID stores the request id before the pipeline runs, so even
// failed stages can be traced.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id attached to the context.
func RequestIDFrom(ctx context.Context) string {
	if rc, ok := FromContext(ctx); ok && rc.RequestID != "" {
		return rc.RequestID
	}
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// ClientIP extracts the caller address, honoring the first entry of
// X-Forwarded-For when an edge proxy sets it.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
