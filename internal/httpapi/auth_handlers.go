package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatekit.dev/internal/apperr"
	"gatekit.dev/internal/audit"
	"gatekit.dev/internal/identity"
	"gatekit.dev/internal/pipeline"
	"gatekit.dev/internal/session"
	"gatekit.dev/internal/token"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

const minPasswordLength = 8

func validateCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return apperr.Validation("a valid email address is required")
	}
	if len(password) < minPasswordLength {
		return apperr.Validation("password must be at least 8 characters")
	}
	return nil
}

// handleSignup registers an inactive account and mints the email
// confirmation token. No mail transport is wired, so the token rides in
// the response for the caller's delivery channel to pick up.
func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	rc, _ := pipeline.FromContext(r.Context())

	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := validateCredentials(req.Email, req.Password); err != nil {
		a.writeError(w, r, err)
		return
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		a.writeError(w, r, apperr.Internal(err))
		return
	}

	users, ok := a.pipeline.Users(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Internal(nil))
		return
	}
	u := &identity.User{
		Email:        strings.TrimSpace(strings.ToLower(req.Email)),
		PasswordHash: hash,
		Role:         "user",
		Active:       false,
	}
	if err := users.Create(r.Context(), u); err != nil {
		if errors.Is(err, identity.ErrConflict) {
			a.writeError(w, r, apperr.Validation("email is already registered"))
			return
		}
		a.writeError(w, r, apperr.Database(err))
		return
	}

	confirm, err := a.tokens.Issue(token.PurposeEmailConfirm, u.ID, u.Email, rc.Tenant.TenantID, token.EmailConfirmTTL)
	if err != nil {
		a.writeError(w, r, apperr.Internal(err))
		return
	}

	a.pipeline.Audit(r.Context(), &audit.Record{
		CallerID:   u.ID,
		Action:     "auth.signup",
		EntityType: "user",
		EntityID:   u.ID,
		StatusCode: http.StatusCreated,
	})

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "account created, confirmation required",
		"data": map[string]any{
			"user":          u,
			"confirm_token": confirm,
		},
	})
}

// handleSignin checks credentials and issues a session cookie. Unknown
// email, wrong password and unconfirmed account all fail with the same
// message; failed attempts are audited with no caller identity.
func (a *API) handleSignin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	users, ok := a.pipeline.Users(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Internal(nil))
		return
	}

	fail := func() {
		a.pipeline.Audit(r.Context(), &audit.Record{
			Action:     "auth.signin_failed",
			StatusCode: http.StatusUnauthorized,
			Metadata:   map[string]any{"email": strings.TrimSpace(strings.ToLower(req.Email))},
		})
		a.writeError(w, r, apperr.Authentication("invalid credentials"))
	}

	u, err := users.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			fail()
			return
		}
		a.writeError(w, r, apperr.Database(err))
		return
	}
	if err := identity.VerifyPassword(u.PasswordHash, req.Password); err != nil {
		fail()
		return
	}
	if !u.Active {
		fail()
		return
	}

	sessions, ok := a.pipeline.Sessions(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Internal(nil))
		return
	}
	sess, err := a.pipeline.Authenticator().Issue(r.Context(), sessions, u.ID, u.WorkspaceID)
	if err != nil {
		a.writeError(w, r, apperr.Database(err))
		return
	}
	a.setSessionCookie(w, sess.ID, int(session.DefaultTTL.Seconds()))

	a.pipeline.Audit(r.Context(), &audit.Record{
		CallerID:   u.ID,
		Action:     "auth.signin",
		EntityType: "user",
		EntityID:   u.ID,
		StatusCode: http.StatusOK,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "signed in",
		"data":    map[string]any{"user": u},
	})
}

// handleSignout revokes the caller's session. The route is not public, so
// the pipeline has already authenticated the cookie by the time we run.
func (a *API) handleSignout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	rc, _ := pipeline.FromContext(r.Context())

	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		a.writeError(w, r, apperr.Authentication("session required"))
		return
	}
	sessions, ok := a.pipeline.Sessions(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Internal(nil))
		return
	}
	if err := sessions.Revoke(r.Context(), cookie.Value); err != nil {
		a.writeError(w, r, apperr.Database(err))
		return
	}
	a.setSessionCookie(w, "", -1)

	a.pipeline.Audit(r.Context(), &audit.Record{
		Action:     "auth.signout",
		EntityType: "user",
		EntityID:   rc.CallerID(),
		StatusCode: http.StatusOK,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "signed out",
		"data":    nil,
	})
}

// handleConfirmEmail activates the account named by a valid confirmation
// token. The token must have been minted for this request's tenant.
func (a *API) handleConfirmEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	rc, _ := pipeline.FromContext(r.Context())

	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	sub, err := a.tokens.Verify(req.Token, token.PurposeEmailConfirm, rc.Tenant.TenantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	users, ok := a.pipeline.Users(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Internal(nil))
		return
	}
	if err := users.SetActive(r.Context(), sub.ID, true); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			a.writeError(w, r, apperr.InvalidToken())
			return
		}
		a.writeError(w, r, apperr.Database(err))
		return
	}

	a.pipeline.Audit(r.Context(), &audit.Record{
		CallerID:   sub.ID,
		Action:     "auth.email_confirmed",
		EntityType: "user",
		EntityID:   sub.ID,
		StatusCode: http.StatusOK,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "email confirmed",
		"data":    nil,
	})
}

// handlePasswordResetRequest accepts an email and always answers 202 so
// callers cannot probe which addresses exist. A reset token is minted
// only for known accounts; without a mail transport it is surfaced in
// development mode only.
func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	rc, _ := pipeline.FromContext(r.Context())

	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	data := map[string]any{}
	if users, ok := a.pipeline.Users(r.Context()); ok {
		if u, err := users.FindByEmail(r.Context(), req.Email); err == nil {
			reset, err := a.tokens.Issue(token.PurposePasswordReset, u.ID, u.Email, rc.Tenant.TenantID, token.PasswordResetTTL)
			if err == nil {
				a.pipeline.Audit(r.Context(), &audit.Record{
					CallerID:   u.ID,
					Action:     "auth.password_reset_requested",
					EntityType: "user",
					EntityID:   u.ID,
					StatusCode: http.StatusAccepted,
				})
				if a.devMode {
					data["reset_token"] = reset
				}
			}
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": "if the address is registered, a reset link has been issued",
		"data":    data,
	})
}

// handlePasswordResetConfirm exchanges a live reset token for a new
// password.
func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	rc, _ := pipeline.FromContext(r.Context())

	var req resetConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(req.Password) < minPasswordLength {
		a.writeError(w, r, apperr.Validation("password must be at least 8 characters"))
		return
	}

	sub, err := a.tokens.Verify(req.Token, token.PurposePasswordReset, rc.Tenant.TenantID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		a.writeError(w, r, apperr.Internal(err))
		return
	}
	users, ok := a.pipeline.Users(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Internal(nil))
		return
	}
	if err := users.UpdatePassword(r.Context(), sub.ID, hash); err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			a.writeError(w, r, apperr.InvalidToken())
			return
		}
		a.writeError(w, r, apperr.Database(err))
		return
	}

	a.pipeline.Audit(r.Context(), &audit.Record{
		CallerID:   sub.ID,
		Action:     "auth.password_reset",
		EntityType: "user",
		EntityID:   sub.ID,
		StatusCode: http.StatusOK,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "password updated",
		"data":    nil,
	})
}

func (a *API) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !a.devMode,
		SameSite: http.SameSiteLaxMode,
	})
}
