package tenant

import (
	"context"
	"database/sql"
	"fmt"
)

// Statements applied to every tenant store at startup. Each store carries
// the same schema; isolation comes from the store boundary itself.
var schemaStatements = []string{
	`create table if not exists users (
		id            text primary key,
		email         text not null unique,
		password_hash text not null,
		role          text not null default 'user',
		is_active     boolean not null default true,
		workspace_id  text,
		created_at    timestamptz not null default now(),
		updated_at    timestamptz not null default now()
	)`,
	`create table if not exists sessions (
		id           text primary key,
		user_id      text not null references users(id) on delete cascade,
		workspace_id text,
		expires_at   timestamptz not null,
		revoked      boolean not null default false,
		created_at   timestamptz not null default now()
	)`,
	`create index if not exists sessions_user_idx on sessions(user_id)`,
	`create table if not exists audit_records (
		id           text primary key,
		occurred_at  timestamptz not null default now(),
		caller_id    text,
		action       text not null,
		entity_type  text,
		entity_id    text,
		request_id   text not null,
		endpoint     text not null,
		method       text not null,
		status_code  integer not null,
		state_before jsonb,
		state_after  jsonb,
		metadata     jsonb,
		ip_address   text not null default '',
		user_agent   text not null default ''
	)`,
	`create index if not exists audit_records_caller_idx on audit_records(caller_id)`,
}

// Bootstrap applies the schema to a single store.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("tenant: apply schema: %w", err)
		}
	}
	return nil
}

// BootstrapAll applies the schema to every registered store.
func BootstrapAll(ctx context.Context, r *Registry) error {
	return r.Each(func(binding string, db *sql.DB) error {
		if err := Bootstrap(ctx, db); err != nil {
			return fmt.Errorf("store %s: %w", binding, err)
		}
		return nil
	})
}
