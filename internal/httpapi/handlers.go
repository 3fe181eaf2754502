package httpapi

import (
	"context"
	"net/http"
	"time"

	"gatekit.dev/internal/obs"
	"gatekit.dev/internal/pipeline"
	"gatekit.dev/internal/token"
)

// ReadyProbe checks readiness of the tenant stores.
type ReadyProbe struct {
	Check func(ctx context.Context) error
}

func (rp ReadyProbe) check(ctx context.Context) error {
	if rp.Check == nil {
		return nil
	}
	return rp.Check(ctx)
}

// API is the HTTP surface in front of the authorization pipeline. The
// handlers here are the pipeline's reference callers; product CRUD lives
// elsewhere.
type API struct {
	mux        *http.ServeMux
	pipeline   *pipeline.Pipeline
	tokens     *token.Service
	readyProbe ReadyProbe
	version    string
	devMode    bool
}

// Option configures the API.
type Option func(*API)

// WithDevMode surfaces server-class error detail to callers. Development
// deployments only.
func WithDevMode(dev bool) Option {
	return func(a *API) { a.devMode = dev }
}

// WithReadyProbe sets the readiness check backing /readyz.
func WithReadyProbe(rp ReadyProbe) Option {
	return func(a *API) { a.readyProbe = rp }
}

// New builds the HTTP API over a wired pipeline and token service.
func New(p *pipeline.Pipeline, tokens *token.Service, version string, opts ...Option) *API {
	a := &API{
		mux:      http.NewServeMux(),
		pipeline: p,
		tokens:   tokens,
		version:  version,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/v1/auth/signin", a.handleSignin)
	a.mux.HandleFunc("/v1/auth/signout", a.handleSignout)
	a.mux.HandleFunc("/v1/auth/confirm-email", a.handleConfirmEmail)
	a.mux.HandleFunc("/v1/auth/password-reset/request", a.handlePasswordResetRequest)
	a.mux.HandleFunc("/v1/auth/password-reset/confirm", a.handlePasswordResetConfirm)

	a.mux.HandleFunc("/v1/profile", a.handleProfile)
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/workspaces", a.handleWorkspaces)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler: metrics around logging
// around the authorization pipeline around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withPipeline(h)
	h = BurstLimit(h, 100, 200)
	h = MaxBodyBytes(h, 1<<20)
	h = SecurityHeaders(h)
	h = a.Recover(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// Infrastructure endpoints hit by load balancers and scrapers; they have
// no tenant and never enter the pipeline.
var infraPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// withPipeline runs the fixed-order authorization stages and attaches the
// resulting context. Stage failures render the uniform error envelope and
// stop the request here.
func (a *API) withPipeline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if infraPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		rc, err := a.pipeline.Authorize(r)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(pipeline.WithContext(r.Context(), rc)))
	})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gatekit-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
