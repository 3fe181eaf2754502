// Package ratelimit guards abuse-prone routes with a fixed-window counter.
// Only routes present in the gate's table are checked; everything else
// passes through. The counting backend is auxiliary: when it is down the
// gate admits and logs rather than blocking the primary feature.
package ratelimit

import (
	"context"
	"time"

	"gatekit.dev/internal/apperr"
	"gatekit.dev/internal/obs"
)

// Limit is a fixed-window admission threshold.
type Limit struct {
	Requests int
	Window   time.Duration
}

// Decision describes one admission check. The header fields are surfaced
// on throttled responses.
type Decision struct {
	Admitted   bool
	Limit      int
	Remaining  int
	RetryAfter int // seconds; set when throttled
	Reset      time.Time
}

// Counter is the external fixed-window counting service. Incr bumps the
// window counter for key and returns the new count and the time left in
// the window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// Gate checks callers against the per-route table.
type Gate struct {
	counter Counter
	routes  map[string]Limit
	now     func() time.Time
}

// Option configures Gate behavior.
type Option func(*Gate)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(g *Gate) {
		if fn != nil {
			g.now = fn
		}
	}
}

// NewGate builds a gate over a counting backend. A nil counter is a valid
// deployment state (backend not provisioned); the gate then admits
// everything with a warning per guarded hit.
func NewGate(counter Counter, routes map[string]Limit, opts ...Option) *Gate {
	g := &Gate{counter: counter, routes: routes, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DefaultRoutes is the static route table guarding the abuse-prone
// authentication endpoints.
func DefaultRoutes() map[string]Limit {
	return map[string]Limit{
		"/v1/auth/signin":                 {Requests: 5, Window: time.Minute},
		"/v1/auth/signup":                 {Requests: 3, Window: 5 * time.Minute},
		"/v1/auth/password-reset/request": {Requests: 3, Window: 10 * time.Minute},
	}
}

// Admit checks one request. callerKey is the client IP; the counter key
// composites it with the route so limits apply per caller per route.
// Returns a typed RateLimitError when the threshold is exceeded.
func (g *Gate) Admit(ctx context.Context, callerKey, route string) (Decision, error) {
	limit, guarded := g.routes[route]
	if !guarded {
		return Decision{Admitted: true}, nil
	}
	if g.counter == nil {
		obs.RateLimitAdmission("fail_open")
		obs.Warn("rate limit backend not provisioned; admitting", map[string]any{
			"route": route,
		})
		return Decision{Admitted: true, Limit: limit.Requests}, nil
	}

	key := "ratelimit:" + callerKey + "|" + route
	count, remaining, err := g.counter.Incr(ctx, key, limit.Window)
	if err != nil {
		// Availability of the primary feature must not depend on the
		// counting backend.
		obs.RateLimitAdmission("fail_open")
		obs.Warn("rate limit backend unavailable; admitting", map[string]any{
			"route": route,
			"error": err.Error(),
		})
		return Decision{Admitted: true, Limit: limit.Requests}, nil
	}

	reset := g.now().UTC().Add(remaining)
	if count > int64(limit.Requests) {
		retryAfter := int(limit.Window.Seconds())
		obs.RateLimitAdmission("throttle")
		dec := Decision{
			Admitted:   false,
			Limit:      limit.Requests,
			Remaining:  0,
			RetryAfter: retryAfter,
			Reset:      reset,
		}
		return dec, apperr.RateLimited(retryAfter).WithDetails(map[string]any{
			"limit": limit.Requests,
			"reset": reset.Unix(),
		})
	}

	obs.RateLimitAdmission("admit")
	return Decision{
		Admitted:  true,
		Limit:     limit.Requests,
		Remaining: limit.Requests - int(count),
		Reset:     reset,
	}, nil
}
