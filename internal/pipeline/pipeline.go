package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"gatekit.dev/internal/audit"
	"gatekit.dev/internal/authz"
	"gatekit.dev/internal/identity"
	"gatekit.dev/internal/ratelimit"
	"gatekit.dev/internal/session"
	"gatekit.dev/internal/tenant"
)

// StoreFactory builds per-tenant persistence surfaces from the store
// handle the resolver bound. The pg factory is the production path;
// tests substitute in-memory stores.
type StoreFactory interface {
	Users(db *sql.DB) identity.Store
	Sessions(db *sql.DB) session.Store
	Audit(db *sql.DB) audit.Store
}

// PGFactory builds pgx-backed stores.
type PGFactory struct{}

func (PGFactory) Users(db *sql.DB) identity.Store   { return identity.NewPGStore(db) }
func (PGFactory) Sessions(db *sql.DB) session.Store { return session.NewPGStore(db) }
func (PGFactory) Audit(db *sql.DB) audit.Store      { return audit.NewPGStore(db) }

// Pipeline runs the authorization stages in their fixed order: tenant
// resolution, rate limiting, session authentication. RBAC and audit hang
// off the resulting context.
type Pipeline struct {
	resolver *tenant.Resolver
	gate     *ratelimit.Gate
	auth     *session.Authenticator
	recorder *audit.Recorder
	stores   StoreFactory

	evaluator *authz.Evaluator
}

// New wires a pipeline. The RBAC evaluator is constructed here because it
// loads callers through the pipeline's own per-tenant store lookup.
func New(resolver *tenant.Resolver, gate *ratelimit.Gate, auth *session.Authenticator, recorder *audit.Recorder, stores StoreFactory, registry *authz.Registry, authzOpts ...authz.EvaluatorOption) (*Pipeline, error) {
	if resolver == nil || gate == nil || auth == nil || recorder == nil || stores == nil {
		return nil, errors.New("pipeline: all stages are required")
	}
	p := &Pipeline{
		resolver: resolver,
		gate:     gate,
		auth:     auth,
		recorder: recorder,
		stores:   stores,
	}
	evaluator, err := authz.NewEvaluator(registry, p, authzOpts...)
	if err != nil {
		return nil, err
	}
	p.evaluator = evaluator
	return p, nil
}

// Evaluator exposes the RBAC evaluator handlers call before mutating.
func (p *Pipeline) Evaluator() *authz.Evaluator { return p.evaluator }

// Authorize executes the pipeline stages for one request, strictly in
// order, and returns the fully populated context. On any stage failure it
// returns the typed error; no later stage runs on a context an earlier
// stage failed to populate.
func (p *Pipeline) Authorize(r *http.Request) (Context, error) {
	rc := Context{
		RequestID: RequestIDFrom(r.Context()),
		ClientIP:  ClientIP(r),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Method:    r.Method,
	}

	tc, err := p.resolver.Resolve(r.Host, r.Header.Get(tenant.HeaderTenantID))
	if err != nil {
		return Context{}, err
	}
	rc.Tenant = tc

	decision, err := p.gate.Admit(r.Context(), rc.ClientIP, r.URL.Path)
	rc.RateLimit = decision
	if err != nil {
		return Context{}, err
	}

	ident, err := p.auth.Authenticate(r.Context(),
		p.stores.Sessions(tc.Store), p.stores.Users(tc.Store),
		sessionRef(r), r.URL.Path)
	if err != nil {
		return Context{}, err
	}
	rc.Identity = ident

	return rc, nil
}

// Caller implements authz.CallerSource by loading the user from the
// request's bound tenant store. Loaded fresh on every evaluation so
// role and status changes apply immediately.
func (p *Pipeline) Caller(ctx context.Context, callerID string) (authz.Caller, error) {
	rc, ok := FromContext(ctx)
	if !ok {
		return authz.Caller{}, errors.New("pipeline: no authorization context")
	}
	u, err := p.stores.Users(rc.Tenant.Store).Find(ctx, callerID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return authz.Caller{}, authz.ErrCallerNotFound
		}
		return authz.Caller{}, err
	}
	return authz.Caller{ID: u.ID, Active: u.Active, Role: u.Role}, nil
}

// Audit appends a record to the request's tenant trail, filling request
// metadata from the authorization context. Handlers call this after every
// state-changing action; failures never propagate.
func (p *Pipeline) Audit(ctx context.Context, rec *audit.Record) *audit.Record {
	rc, ok := FromContext(ctx)
	if !ok {
		return rec
	}
	if rec.CallerID == "" {
		rec.CallerID = rc.CallerID()
	}
	rec.RequestID = rc.RequestID
	rec.Endpoint = rc.Endpoint
	rec.Method = rc.Method
	rec.IPAddress = rc.ClientIP
	rec.UserAgent = rc.UserAgent
	return p.recorder.Record(ctx, p.stores.Audit(rc.Tenant.Store), rec)
}

// Sessions returns the session store bound to the request's tenant.
func (p *Pipeline) Sessions(ctx context.Context) (session.Store, bool) {
	rc, ok := FromContext(ctx)
	if !ok {
		return nil, false
	}
	return p.stores.Sessions(rc.Tenant.Store), true
}

// Users returns the user store bound to the request's tenant.
func (p *Pipeline) Users(ctx context.Context) (identity.Store, bool) {
	rc, ok := FromContext(ctx)
	if !ok {
		return nil, false
	}
	return p.stores.Users(rc.Tenant.Store), true
}

// Authenticator exposes the session authenticator for signin flows.
func (p *Pipeline) Authenticator() *session.Authenticator { return p.auth }

func sessionRef(r *http.Request) string {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
