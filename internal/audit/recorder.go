package audit

import (
	"context"
	"time"

	"gatekit.dev/internal/ids"
	"gatekit.dev/internal/obs"
)

// Recorder writes audit records with the swallow-on-failure policy.
type Recorder struct {
	now func() time.Time
}

// Option configures Recorder behavior.
type Option func(*Recorder)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder builds a recorder.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record fills in id and timestamp and appends the record to the store.
// Persistence failures are logged and swallowed: the audit trail must
// never veto the caller's primary operation. That tradeoff is this
// method's contract, not an accident.
func (r *Recorder) Record(ctx context.Context, store Store, rec *Record) *Record {
	if rec.ID == "" {
		rec.ID = ids.New()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = r.now().UTC()
	}
	if err := store.Append(ctx, rec); err != nil {
		obs.AuditWrite("dropped")
		obs.Error("audit record dropped", map[string]any{
			"action":     rec.Action,
			"request_id": rec.RequestID,
			"error":      err.Error(),
		})
		return rec
	}
	obs.AuditWrite("ok")
	return rec
}
