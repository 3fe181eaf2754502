package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gatekit.dev/internal/audit"
	"gatekit.dev/internal/authz"
	"gatekit.dev/internal/identity"
	"gatekit.dev/internal/pipeline"
	"gatekit.dev/internal/ratelimit"
	"gatekit.dev/internal/session"
	"gatekit.dev/internal/tenant"
	"gatekit.dev/internal/token"
)

type memFactory struct {
	users    *identity.MemoryStore
	sessions *session.MemoryStore
	audits   *audit.MemoryStore
}

func (f memFactory) Users(*sql.DB) identity.Store   { return f.users }
func (f memFactory) Sessions(*sql.DB) session.Store { return f.sessions }
func (f memFactory) Audit(*sql.DB) audit.Store      { return f.audits }

type apiFixture struct {
	api     *API
	handler http.Handler
	factory memFactory
}

func newAPIFixture(t *testing.T, opts ...Option) *apiFixture {
	t.Helper()
	storeReg := tenant.NewRegistry()
	storeReg.Register("default", &sql.DB{})
	registry, err := authz.NewRegistry(authz.DefaultRoles())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	factory := memFactory{
		users:    identity.NewMemoryStore(),
		sessions: session.NewMemoryStore(),
		audits:   audit.NewMemoryStore(),
	}
	p, err := pipeline.New(
		tenant.NewResolver(tenant.Config{Enabled: false, DefaultTenant: "default"}, storeReg),
		ratelimit.NewGate(ratelimit.NewLocalCounter(), ratelimit.DefaultRoutes()),
		session.NewAuthenticator(),
		audit.NewRecorder(),
		factory,
		registry,
	)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	tokens, err := token.NewService("test-secret")
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	api := New(p, tokens, "test", opts...)
	return &apiFixture{api: api, handler: api.Handler(), factory: factory}
}

func (f *apiFixture) seedUser(t *testing.T, email, password, role string, active bool) *identity.User {
	t.Helper()
	hash, err := identity.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &identity.User{Email: email, PasswordHash: hash, Role: role, Active: active}
	if err := f.factory.users.Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (f *apiFixture) seedSession(t *testing.T, u *identity.User) *session.Session {
	t.Helper()
	auth := session.NewAuthenticator()
	sess, err := auth.Issue(context.Background(), f.factory.sessions, u.ID, u.WorkspaceID)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return sess
}

func (f *apiFixture) do(method, path string, body any, sessionID string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Host = "example.com"
	r.RemoteAddr = "10.0.0.1:4321"
	if sessionID != "" {
		r.AddCookie(&http.Cookie{Name: session.CookieName, Value: sessionID})
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v: %s", err, w.Body.String())
	}
	return body
}

func TestSignupConfirmSigninFlow(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(http.MethodPost, "/v1/auth/signup",
		map[string]string{"email": "new@acme.example", "password": "hunter2hunter2"}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d: %s", w.Code, w.Body.String())
	}
	data := decodeBody(t, w)["data"].(map[string]any)
	confirm, _ := data["confirm_token"].(string)
	if confirm == "" {
		t.Fatalf("expected confirm token in signup response")
	}

	// Unconfirmed accounts cannot sign in.
	w = f.do(http.MethodPost, "/v1/auth/signin",
		map[string]string{"email": "new@acme.example", "password": "hunter2hunter2"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("pre-confirmation signin status = %d", w.Code)
	}

	w = f.do(http.MethodPost, "/v1/auth/confirm-email", map[string]string{"token": confirm}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status = %d: %s", w.Code, w.Body.String())
	}

	w = f.do(http.MethodPost, "/v1/auth/signin",
		map[string]string{"email": "new@acme.example", "password": "hunter2hunter2"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("signin status = %d: %s", w.Code, w.Body.String())
	}
	cookie := w.Result().Cookies()
	var sessionID string
	for _, c := range cookie {
		if c.Name == session.CookieName {
			sessionID = c.Value
		}
	}
	if sessionID == "" {
		t.Fatalf("expected session cookie on signin")
	}

	w = f.do(http.MethodGet, "/v1/profile", nil, sessionID)
	if w.Code != http.StatusOK {
		t.Fatalf("profile status = %d: %s", w.Code, w.Body.String())
	}
}

func TestErrorEnvelopeShape(t *testing.T) {
	f := newAPIFixture(t)

	r := httptest.NewRequest(http.MethodGet, "/v1/profile", nil)
	r.Host = "example.com"
	r.RemoteAddr = "10.0.0.1:4321"
	r.Header.Set("X-Request-Id", "req-envelope-1")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("X-Request-Id"); got != "req-envelope-1" {
		t.Fatalf("request id echo = %q", got)
	}
	body := decodeBody(t, w)
	if body["message"] == "" {
		t.Fatalf("missing top-level message")
	}
	if body["data"] != nil {
		t.Fatalf("data should be null on errors, got %v", body["data"])
	}
	inner, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("missing error object: %v", body)
	}
	if inner["code"] != "AUTHENTICATION_ERROR" {
		t.Fatalf("code = %v", inner["code"])
	}
	if inner["traceId"] != "req-envelope-1" {
		t.Fatalf("traceId = %v", inner["traceId"])
	}
}

func TestSigninRateLimitHeaders(t *testing.T) {
	f := newAPIFixture(t)
	body := map[string]string{"email": "nobody@acme.example", "password": "wrongwrong"}

	var w *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		w = f.do(http.MethodPost, "/v1/auth/signin", body, "")
	}
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("sixth attempt status = %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("X-RateLimit-Limit = %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("X-RateLimit-Remaining = %q", got)
	}
	inner := decodeBody(t, w)["error"].(map[string]any)
	if inner["code"] != "RATE_LIMITED" {
		t.Fatalf("code = %v", inner["code"])
	}
}

func TestPermissionDeniedForUserRole(t *testing.T) {
	f := newAPIFixture(t)
	member := f.seedUser(t, "member@acme.example", "hunter2hunter2", "user", true)
	target := f.seedUser(t, "target@acme.example", "hunter2hunter2", "user", true)
	sess := f.seedSession(t, member)

	w := f.do(http.MethodDelete, "/v1/users/"+target.ID, nil, sess.ID)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	inner := decodeBody(t, w)["error"].(map[string]any)
	if inner["code"] != "PERMISSION_DENIED" {
		t.Fatalf("code = %v", inner["code"])
	}
}

func TestAdminUserLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.seedUser(t, "admin@acme.example", "hunter2hunter2", "admin", true)
	sess := f.seedSession(t, admin)

	w := f.do(http.MethodPost, "/v1/users", map[string]string{
		"email": "ops@acme.example", "password": "hunter2hunter2", "role": "manager",
	}, sess.ID)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body.String())
	}
	created := decodeBody(t, w)["data"].(map[string]any)["user"].(map[string]any)
	id := created["id"].(string)

	w = f.do(http.MethodPatch, "/v1/users/"+id+"/active", map[string]bool{"active": false}, sess.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate status = %d: %s", w.Code, w.Body.String())
	}

	w = f.do(http.MethodDelete, "/v1/users/"+id, nil, sess.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", w.Code, w.Body.String())
	}

	actions := map[string]bool{}
	for _, rec := range f.factory.audits.Records() {
		actions[rec.Action] = true
	}
	for _, want := range []string{"user.created", "user.status_changed", "user.deleted"} {
		if !actions[want] {
			t.Fatalf("missing audit action %q in %v", want, actions)
		}
	}
}

func TestDeleteOwnAccountRejected(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.seedUser(t, "admin@acme.example", "hunter2hunter2", "admin", true)
	sess := f.seedSession(t, admin)

	w := f.do(http.MethodDelete, "/v1/users/"+admin.ID, nil, sess.ID)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestPasswordResetFlowDevMode(t *testing.T) {
	f := newAPIFixture(t, WithDevMode(true))
	f.seedUser(t, "reset@acme.example", "oldpassword1", "user", true)

	w := f.do(http.MethodPost, "/v1/auth/password-reset/request",
		map[string]string{"email": "reset@acme.example"}, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("request status = %d: %s", w.Code, w.Body.String())
	}
	data := decodeBody(t, w)["data"].(map[string]any)
	reset, _ := data["reset_token"].(string)
	if reset == "" {
		t.Fatalf("expected reset token in dev mode response")
	}

	w = f.do(http.MethodPost, "/v1/auth/password-reset/confirm",
		map[string]string{"token": reset, "password": "newpassword1"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("confirm status = %d: %s", w.Code, w.Body.String())
	}

	w = f.do(http.MethodPost, "/v1/auth/signin",
		map[string]string{"email": "reset@acme.example", "password": "newpassword1"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("signin with new password status = %d: %s", w.Code, w.Body.String())
	}
}

func TestPasswordResetRequestHidesExistence(t *testing.T) {
	f := newAPIFixture(t)
	f.seedUser(t, "known@acme.example", "hunter2hunter2", "user", true)

	for _, email := range []string{"known@acme.example", "unknown@acme.example"} {
		w := f.do(http.MethodPost, "/v1/auth/password-reset/request",
			map[string]string{"email": email}, "")
		if w.Code != http.StatusAccepted {
			t.Fatalf("status for %s = %d", email, w.Code)
		}
		data := decodeBody(t, w)["data"].(map[string]any)
		if _, leaked := data["reset_token"]; leaked {
			t.Fatalf("reset token leaked outside dev mode for %s", email)
		}
	}
}

func TestHealthzBypassesPipeline(t *testing.T) {
	f := newAPIFixture(t)

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Host = "lb-probe.internal"
	r.RemoteAddr = "10.0.0.9:1"
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d: %s", w.Code, w.Body.String())
	}
}
