package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

var _ Store = (*PGStore)(nil)

// PGStore appends records to one tenant's audit_records table.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps the tenant store handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, rec *Record) error {
	before, err := marshalState(rec.StateBefore)
	if err != nil {
		return fmt.Errorf("audit: encode state_before: %w", err)
	}
	after, err := marshalState(rec.StateAfter)
	if err != nil {
		return fmt.Errorf("audit: encode state_after: %w", err)
	}
	meta, err := marshalState(rec.Metadata)
	if err != nil {
		return fmt.Errorf("audit: encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_records (
			id, occurred_at, caller_id, action, entity_type, entity_id,
			request_id, endpoint, method, status_code,
			state_before, state_after, metadata, ip_address, user_agent
		) values ($1, $2, nullif($3, ''), $4, nullif($5, ''), nullif($6, ''),
			$7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, rec.ID, rec.OccurredAt, rec.CallerID, rec.Action, rec.EntityType, rec.EntityID,
		rec.RequestID, rec.Endpoint, rec.Method, rec.StatusCode,
		before, after, meta, rec.IPAddress, rec.UserAgent)
	return err
}

func marshalState(state map[string]any) ([]byte, error) {
	if len(state) == 0 {
		return nil, nil
	}
	return json.Marshal(state)
}
