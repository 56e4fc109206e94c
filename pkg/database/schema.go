package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student' CHECK (role IN ('student', 'admin')),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS elections (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('Pending', 'Ongoing', 'Completed')),
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		total_votes INTEGER NOT NULL DEFAULT 0 CHECK (total_votes >= 0),
		eligible_voters INTEGER NOT NULL CHECK (eligible_voters >= 0),
		created_by TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_elections_created_at ON elections(created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS election_candidates (
		id TEXT PRIMARY KEY,
		election_id TEXT NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		department TEXT NOT NULL,
		profile_image TEXT NOT NULL,
		platform TEXT[] NOT NULL DEFAULT '{}',
		votes INTEGER NOT NULL DEFAULT 0 CHECK (votes >= 0),
		position INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_election_candidates_election ON election_candidates(election_id, position)`,
	`CREATE TABLE IF NOT EXISTS election_voters (
		election_id TEXT NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		candidate_id TEXT NOT NULL REFERENCES election_candidates(id) ON DELETE CASCADE,
		voted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (election_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT REFERENCES users(id) ON DELETE SET NULL,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		resource_id TEXT,
		old_values JSONB,
		new_values JSONB,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables the API depends on.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
