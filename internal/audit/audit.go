// Package audit appends immutable records of state-changing actions. The
// trail is best-effort relative to the primary operation: a failed audit
// write is logged and swallowed, never surfaced as the caller's error.
package audit

import (
	"context"
	"time"
)

// Record is one append-only audit row. CallerID is empty for
// pre-authentication events (e.g. failed signin attempts); no synthetic
// identity is invented for them.
type Record struct {
	ID          string         `json:"id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	CallerID    string         `json:"caller_id,omitempty"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entity_type,omitempty"`
	EntityID    string         `json:"entity_id,omitempty"`
	RequestID   string         `json:"request_id"`
	Endpoint    string         `json:"endpoint"`
	Method      string         `json:"method"`
	StatusCode  int            `json:"status_code"`
	StateBefore map[string]any `json:"state_before,omitempty"`
	StateAfter  map[string]any `json:"state_after,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IPAddress   string         `json:"ip_address"`
	UserAgent   string         `json:"user_agent"`
}

// Store appends records to one tenant's trail. Records are never updated
// or deleted through this interface.
type Store interface {
	Append(ctx context.Context, rec *Record) error
}
