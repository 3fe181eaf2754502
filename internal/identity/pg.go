package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"gatekit.dev/internal/ids"
)

const pgErrUniqueViolation = "23505"

var _ Store = (*PGStore)(nil)

// PGStore implements Store over one tenant's database handle.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps the tenant store handle. Constructed per request from
// the resolved tenant context; carries no state of its own.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, role, is_active, workspace_id)
		values ($1, $2, $3, $4, $5, nullif($6, ''))
		returning created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, u.Role, u.Active, u.WorkspaceID)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *PGStore) Find(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, email, password_hash, role, is_active, coalesce(workspace_id, ''), created_at, updated_at
		from users where id = $1
	`, id))
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	return s.scanOne(s.db.QueryRowContext(ctx, `
		select id, email, password_hash, role, is_active, coalesce(workspace_id, ''), created_at, updated_at
		from users where email = $1
	`, email))
}

func (s *PGStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set password_hash = $2, updated_at = now() where id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *PGStore) SetActive(ctx context.Context, userID string, active bool) error {
	res, err := s.db.ExecContext(ctx, `
		update users set is_active = $2, updated_at = now() where id = $1
	`, userID, active)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *PGStore) Delete(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from users where id = $1
	`, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *PGStore) scanOne(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Active, &u.WorkspaceID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
