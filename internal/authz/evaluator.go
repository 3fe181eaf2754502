package authz

import (
	"context"
	"errors"
	"fmt"

	"gatekit.dev/internal/apperr"
	"gatekit.dev/internal/obs"
)

// Caller is the evaluator's view of an identity. Loaded fresh per request
// so role and active-status changes take effect on the next request.
type Caller struct {
	ID     string
	Active bool
	Role   string
}

// CallerSource loads caller identities. The identity service implements
// this; the evaluator depends only on the interface.
type CallerSource interface {
	Caller(ctx context.Context, callerID string) (Caller, error)
}

// RoleSource optionally resolves role permissions dynamically. When a role
// is not found here the static registry is consulted.
type RoleSource interface {
	RolePermissions(ctx context.Context, role string) ([]string, bool, error)
}

// ErrCallerNotFound is returned by CallerSource implementations for
// unknown ids. The evaluator treats it as a plain deny.
var ErrCallerNotFound = errors.New("authz: caller not found")

// Evaluator decides whether a caller holds a required permission.
type Evaluator struct {
	registry *Registry
	callers  CallerSource
	roles    RoleSource

	// disabled trusts every caller. Explicit configuration only; errors
	// never fall back to this path.
	disabled bool
}

// EvaluatorOption configures optional Evaluator behavior.
type EvaluatorOption func(*Evaluator)

// WithRoleSource adds dynamic role storage consulted before the registry.
func WithRoleSource(src RoleSource) EvaluatorOption {
	return func(e *Evaluator) { e.roles = src }
}

// WithDisabled puts the evaluator in trust-everyone mode. Intended for
// deployments where authorization is enforced by the surrounding
// environment, e.g. local development.
func WithDisabled(disabled bool) EvaluatorOption {
	return func(e *Evaluator) { e.disabled = disabled }
}

// NewEvaluator builds an evaluator over the static registry and a caller
// source.
func NewEvaluator(registry *Registry, callers CallerSource, opts ...EvaluatorOption) (*Evaluator, error) {
	if registry == nil {
		return nil, errors.New("authz: registry is required")
	}
	if callers == nil {
		return nil, errors.New("authz: caller source is required")
	}
	e := &Evaluator{registry: registry, callers: callers}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Disabled reports whether the evaluator is in trust-everyone mode.
func (e *Evaluator) Disabled() bool { return e.disabled }

// Registry returns the static role registry the evaluator consults.
func (e *Evaluator) Registry() *Registry { return e.registry }

// Check reports whether the caller holds the required permission. Any
// failure loading the caller or role data denies.
func (e *Evaluator) Check(ctx context.Context, callerID, required string) bool {
	if e.disabled {
		return true
	}
	ok, err := e.evaluate(ctx, callerID, required)
	if err != nil {
		obs.AuthzDecision("deny")
		return false
	}
	if ok {
		obs.AuthzDecision("allow")
	} else {
		obs.AuthzDecision("deny")
	}
	return ok
}

// Require returns nil when the caller holds the permission and a typed
// PermissionDeniedError otherwise. Load failures surface as storage
// errors, never as an allow.
func (e *Evaluator) Require(ctx context.Context, callerID, required string) error {
	if e.disabled {
		return nil
	}
	ok, err := e.evaluate(ctx, callerID, required)
	if err != nil {
		obs.AuthzDecision("deny")
		if errors.Is(err, ErrCallerNotFound) {
			return apperr.PermissionDenied(required)
		}
		return apperr.Database(fmt.Errorf("authz: load caller %s: %w", callerID, err))
	}
	if !ok {
		obs.AuthzDecision("deny")
		return apperr.PermissionDenied(required)
	}
	obs.AuthzDecision("allow")
	return nil
}

// HasAny reports whether the caller holds at least one of the codes.
func (e *Evaluator) HasAny(ctx context.Context, callerID string, codes []string) bool {
	if e.disabled {
		return true
	}
	granted, err := e.grants(ctx, callerID)
	if err != nil {
		return false
	}
	for _, code := range codes {
		if HasPermission(granted, code) {
			return true
		}
	}
	return false
}

// HasAll reports whether the caller holds every one of the codes.
func (e *Evaluator) HasAll(ctx context.Context, callerID string, codes []string) bool {
	if e.disabled {
		return true
	}
	granted, err := e.grants(ctx, callerID)
	if err != nil {
		return false
	}
	for _, code := range codes {
		if !HasPermission(granted, code) {
			return false
		}
	}
	return true
}

// UserPermissions returns the codes granted to a caller, or an empty list
// in disabled mode.
func (e *Evaluator) UserPermissions(ctx context.Context, callerID string) ([]string, error) {
	if e.disabled {
		return []string{}, nil
	}
	return e.grants(ctx, callerID)
}

func (e *Evaluator) evaluate(ctx context.Context, callerID, required string) (bool, error) {
	granted, err := e.grants(ctx, callerID)
	if err != nil {
		return false, err
	}
	return HasPermission(granted, required), nil
}

func (e *Evaluator) grants(ctx context.Context, callerID string) ([]string, error) {
	caller, err := e.callers.Caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	// An inactive admin is still denied.
	if !caller.Active {
		return nil, nil
	}
	if e.roles != nil {
		perms, found, err := e.roles.RolePermissions(ctx, caller.Role)
		if err != nil {
			return nil, err
		}
		if found {
			return perms, nil
		}
	}
	return e.registry.Permissions(caller.Role), nil
}
