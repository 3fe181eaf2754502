package session

import (
	"context"
	"database/sql"
	"errors"

	"gatekit.dev/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store over one tenant's database handle.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps the tenant store handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into sessions (id, user_id, workspace_id, expires_at, revoked, created_at)
		values ($1, $2, nullif($3, ''), $4, $5, $6)
	`, sess.ID, sess.UserID, sess.WorkspaceID, sess.ExpiresAt, sess.Revoked, sess.CreatedAt)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, coalesce(workspace_id, ''), expires_at, revoked, created_at
		from sessions where id = $1
	`, id).Scan(&sess.ID, &sess.UserID, &sess.WorkspaceID, &sess.ExpiresAt, &sess.Revoked, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PGStore) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update sessions set revoked = true where id = $1
	`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
