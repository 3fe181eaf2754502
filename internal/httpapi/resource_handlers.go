package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatekit.dev/internal/apperr"
	"gatekit.dev/internal/audit"
	"gatekit.dev/internal/authz"
	"gatekit.dev/internal/identity"
	"gatekit.dev/internal/pipeline"
)

// handleProfile serves the caller's own record. Reads need profile:read,
// password changes need profile:update.
func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	rc, _ := pipeline.FromContext(r.Context())
	ev := a.pipeline.Evaluator()

	switch r.Method {
	case http.MethodGet:
		if err := ev.Require(r.Context(), rc.CallerID(), authz.PermProfileRead); err != nil {
			a.writeError(w, r, err)
			return
		}
		perms, err := ev.UserPermissions(r.Context(), rc.CallerID())
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "profile",
			"data": map[string]any{
				"user":        rc.Identity.Caller,
				"permissions": perms,
				"workspace":   rc.WorkspaceID(),
			},
		})
	case http.MethodPatch:
		if err := ev.Require(r.Context(), rc.CallerID(), authz.PermProfileWrite); err != nil {
			a.writeError(w, r, err)
			return
		}
		var req struct {
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
		if len(req.Password) < minPasswordLength {
			a.writeError(w, r, apperr.Validation("password must be at least 8 characters"))
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
		if err := users.UpdatePassword(r.Context(), rc.CallerID(), hash); err != nil {
			a.writeError(w, r, apperr.Database(err))
			return
		}
		a.pipeline.Audit(r.Context(), &audit.Record{
			Action:     "profile.password_changed",
			EntityType: "user",
			EntityID:   rc.CallerID(),
			StatusCode: http.StatusOK,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "profile updated",
			"data":    nil,
		})
	default:
		methodNotAllowed(w, "GET, PATCH")
	}
}

// handleUsers is the collection endpoint: lookup by email and admin
// creation of accounts.
func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	rc, _ := pipeline.FromContext(r.Context())
	ev := a.pipeline.Evaluator()

	switch r.Method {
	case http.MethodGet:
		if err := ev.Require(r.Context(), rc.CallerID(), authz.PermUsersRead); err != nil {
			a.writeError(w, r, err)
			return
		}
		email := strings.TrimSpace(r.URL.Query().Get("email"))
		if email == "" {
			a.writeError(w, r, apperr.Validation("email query parameter is required"))
			return
		}
		users, ok := a.pipeline.Users(r.Context())
		if !ok {
			a.writeError(w, r, apperr.Internal(nil))
			return
		}
		u, err := users.FindByEmail(r.Context(), email)
		if err != nil {
			a.writeError(w, r, userStoreError(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "user",
			"data":    map[string]any{"user": u},
		})
	case http.MethodPost:
		if err := ev.Require(r.Context(), rc.CallerID(), authz.PermUsersCreate); err != nil {
			a.writeError(w, r, err)
			return
		}
		var req struct {
			Email       string `json:"email"`
			Password    string `json:"password"`
			Role        string `json:"role"`
			WorkspaceID string `json:"workspace_id"`
		}
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
		if err := validateCredentials(req.Email, req.Password); err != nil {
			a.writeError(w, r, err)
			return
		}
		role := strings.TrimSpace(strings.ToLower(req.Role))
		if role == "" {
			role = "user"
		}
		if _, ok := ev.Registry().Role(role); !ok {
			a.writeError(w, r, apperr.Validation("unknown role: "+role))
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
			Role:         role,
			Active:       true,
			WorkspaceID:  req.WorkspaceID,
		}
		if err := users.Create(r.Context(), u); err != nil {
			if errors.Is(err, identity.ErrConflict) {
				a.writeError(w, r, apperr.Validation("email is already registered"))
				return
			}
			a.writeError(w, r, apperr.Database(err))
			return
		}
		a.pipeline.Audit(r.Context(), &audit.Record{
			Action:     "user.created",
			EntityType: "user",
			EntityID:   u.ID,
			StatusCode: http.StatusCreated,
			StateAfter: userState(u),
		})
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "user created",
			"data":    map[string]any{"user": u},
		})
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

// handleUserResource routes /v1/users/{id} and /v1/users/{id}/active.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	id := parts[0]

	switch {
	case len(parts) == 1:
		a.handleUserByID(w, r, id)
	case len(parts) == 2 && parts[1] == "active":
		a.handleUserActive(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleUserByID(w http.ResponseWriter, r *http.Request, id string) {
	rc, _ := pipeline.FromContext(r.Context())
	ev := a.pipeline.Evaluator()

	users, ok := a.pipeline.Users(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Internal(nil))
		return
	}

	switch r.Method {
	case http.MethodGet:
		if err := ev.Require(r.Context(), rc.CallerID(), authz.PermUsersRead); err != nil {
			a.writeError(w, r, err)
			return
		}
		u, err := users.Find(r.Context(), id)
		if err != nil {
			a.writeError(w, r, userStoreError(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "user",
			"data":    map[string]any{"user": u},
		})
	case http.MethodDelete:
		if err := ev.Require(r.Context(), rc.CallerID(), authz.PermUsersDelete); err != nil {
			a.writeError(w, r, err)
			return
		}
		if id == rc.CallerID() {
			a.writeError(w, r, apperr.Validation("cannot delete the calling account"))
			return
		}
		u, err := users.Find(r.Context(), id)
		if err != nil {
			a.writeError(w, r, userStoreError(err))
			return
		}
		if err := users.Delete(r.Context(), id); err != nil {
			a.writeError(w, r, userStoreError(err))
			return
		}
		a.pipeline.Audit(r.Context(), &audit.Record{
			Action:      "user.deleted",
			EntityType:  "user",
			EntityID:    id,
			StatusCode:  http.StatusOK,
			StateBefore: userState(u),
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "user deleted",
			"data":    nil,
		})
	default:
		methodNotAllowed(w, "GET, DELETE")
	}
}

// handleUserActive toggles account status. The audit record captures the
// flag before and after the change.
func (a *API) handleUserActive(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPatch {
		methodNotAllowed(w, http.MethodPatch)
		return
	}
	rc, _ := pipeline.FromContext(r.Context())
	if err := a.pipeline.Evaluator().Require(r.Context(), rc.CallerID(), authz.PermUsersUpdate); err != nil {
		a.writeError(w, r, err)
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	users, ok := a.pipeline.Users(r.Context())
	if !ok {
		a.writeError(w, r, apperr.Internal(nil))
		return
	}
	before, err := users.Find(r.Context(), id)
	if err != nil {
		a.writeError(w, r, userStoreError(err))
		return
	}
	if err := users.SetActive(r.Context(), id, req.Active); err != nil {
		a.writeError(w, r, userStoreError(err))
		return
	}

	a.pipeline.Audit(r.Context(), &audit.Record{
		Action:      "user.status_changed",
		EntityType:  "user",
		EntityID:    id,
		StatusCode:  http.StatusOK,
		StateBefore: map[string]any{"is_active": before.Active},
		StateAfter:  map[string]any{"is_active": req.Active},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "user status updated",
		"data":    map[string]any{"id": id, "is_active": req.Active},
	})
}

// handleWorkspaces reports the caller's workspace binding. A session
// without a workspace is a valid state, not an error.
func (a *API) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	rc, _ := pipeline.FromContext(r.Context())
	if err := a.pipeline.Evaluator().Require(r.Context(), rc.CallerID(), authz.PermWorkspacesRead); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "workspaces",
		"data": map[string]any{
			"workspace_id": rc.WorkspaceID(),
			"bound":        rc.WorkspaceID() != "",
		},
	})
}

func userState(u *identity.User) map[string]any {
	return map[string]any{
		"email":     u.Email,
		"role":      u.Role,
		"is_active": u.Active,
	}
}

func userStoreError(err error) error {
	if errors.Is(err, identity.ErrNotFound) {
		return apperr.Validation("user not found")
	}
	return apperr.Database(err)
}
