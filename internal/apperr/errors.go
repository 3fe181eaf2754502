// Package apperr defines the error taxonomy shared by every stage of the
// authorization pipeline. Stages return *Error values; the HTTP layer maps
// them onto the uniform response envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable machine-readable codes. These are part of the wire contract and
// must not be renamed.
const (
	CodeAuthentication   = "AUTHENTICATION_ERROR"
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeTenantMismatch   = "TENANT_MISMATCH"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeValidation       = "VALIDATION_ERROR"
	CodeInternal         = "INTERNAL_SERVER_ERROR"
	CodeDatabase         = "DATABASE_ERROR"
)

// Error is a typed pipeline error carrying a stable code and HTTP status.
type Error struct {
	Code    string
	Status  int
	Message string
	Details map[string]any

	// RetryAfter is the throttle hint in seconds; only set for CodeRateLimited.
	RetryAfter int

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match two taxonomy errors by code, so callers can
// compare against the exported prototypes below without allocating state.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// ServerClass reports whether the error must have its message suppressed
// outside development mode.
func (e *Error) ServerClass() bool { return e.Status >= 500 }

// WithCause returns a copy wrapping the underlying error.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.cause = err
	return &c
}

// WithDetails returns a copy carrying caller-visible detail fields.
func (e *Error) WithDetails(details map[string]any) *Error {
	c := *e
	c.Details = details
	return &c
}

// Prototypes for errors.Is comparisons.
var (
	ErrAuthentication   = &Error{Code: CodeAuthentication, Status: http.StatusUnauthorized, Message: "authentication required"}
	ErrInvalidToken     = &Error{Code: CodeInvalidToken, Status: http.StatusUnauthorized, Message: "invalid token"}
	ErrTokenExpired     = &Error{Code: CodeTokenExpired, Status: http.StatusUnauthorized, Message: "token expired"}
	ErrTenantMismatch   = &Error{Code: CodeTenantMismatch, Status: http.StatusUnauthorized, Message: "tenant could not be resolved"}
	ErrPermissionDenied = &Error{Code: CodePermissionDenied, Status: http.StatusForbidden, Message: "permission denied"}
	ErrRateLimited      = &Error{Code: CodeRateLimited, Status: http.StatusTooManyRequests, Message: "rate limit exceeded"}
	ErrValidation       = &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: "invalid input"}
	ErrInternal         = &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal server error"}
	ErrDatabase         = &Error{Code: CodeDatabase, Status: http.StatusInternalServerError, Message: "storage failure"}
)

// Authentication builds a 401 with a caller-visible message.
func Authentication(msg string) *Error {
	return &Error{Code: CodeAuthentication, Status: http.StatusUnauthorized, Message: msg}
}

// InvalidToken builds the shared token-rejection error. Signature failures
// and scope mismatches intentionally share this one code.
func InvalidToken() *Error {
	return &Error{Code: CodeInvalidToken, Status: http.StatusUnauthorized, Message: "invalid token"}
}

// TokenExpired builds the expiry-specific token error.
func TokenExpired() *Error {
	return &Error{Code: CodeTokenExpired, Status: http.StatusUnauthorized, Message: "token expired"}
}

// TenantMismatch builds a 401 tenant-resolution failure.
func TenantMismatch(msg string) *Error {
	return &Error{Code: CodeTenantMismatch, Status: http.StatusUnauthorized, Message: msg}
}

// PermissionDenied builds a 403 naming the missing permission code.
func PermissionDenied(permission string) *Error {
	return &Error{
		Code:    CodePermissionDenied,
		Status:  http.StatusForbidden,
		Message: "permission denied",
		Details: map[string]any{"required": permission},
	}
}

// RateLimited builds a 429 carrying the retry hint in seconds.
func RateLimited(retryAfter int) *Error {
	return &Error{
		Code:       CodeRateLimited,
		Status:     http.StatusTooManyRequests,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// Validation builds a 400 that is always safe to show verbatim.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: msg}
}

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal server error", cause: err}
}

// Database wraps a storage failure.
func Database(err error) *Error {
	return &Error{Code: CodeDatabase, Status: http.StatusInternalServerError, Message: "storage failure", cause: err}
}

// From coerces any error into a taxonomy error, defaulting to internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
