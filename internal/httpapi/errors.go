package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"gatekit.dev/internal/apperr"
	"gatekit.dev/internal/obs"
	"gatekit.dev/internal/pipeline"
)

// errorBody is the uniform envelope every pipeline failure renders.
type errorBody struct {
	Message string     `json:"message"`
	Data    any        `json:"data"`
	Error   errorInner `json:"error"`
}

type errorInner struct {
	TraceID string         `json:"traceId"`
	Code    string         `json:"code"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// writeError renders a typed error in the uniform shape. Client-class
// errors surface their message and details; server-class errors surface
// only a generic message plus the trace id outside development mode. Full
// detail is always logged server-side.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.From(err)
	traceID := pipeline.RequestIDFrom(r.Context())

	obs.Error("request failed", map[string]any{
		"request_id": traceID,
		"method":     r.Method,
		"path":       r.URL.Path,
		"code":       e.Code,
		"status":     e.Status,
		"error":      e.Error(),
	})

	if e.Code == apperr.CodeRateLimited {
		writeRateLimitHeaders(w, e)
	}

	inner := errorInner{TraceID: traceID, Code: e.Code}
	message := e.Message
	if e.ServerClass() && !a.devMode {
		message = "internal server error"
	} else {
		inner.Message = e.Message
		inner.Details = e.Details
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Message: message,
		Data:    nil,
		Error:   inner,
	})
}

func writeRateLimitHeaders(w http.ResponseWriter, e *apperr.Error) {
	w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	w.Header().Set("X-RateLimit-Remaining", "0")
	if limit, ok := e.Details["limit"].(int); ok {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	}
	if reset, ok := e.Details["reset"].(int64); ok {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("malformed JSON body")
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	w.WriteHeader(http.StatusMethodNotAllowed)
}
