package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements are applied in order; each one is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS applicants (
		applicant_id TEXT PRIMARY KEY,
		demographic  JSONB,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS applications (
		application_id TEXT PRIMARY KEY,
		applicant_id   TEXT NOT NULL REFERENCES applicants(applicant_id) ON DELETE CASCADE,
		income         DOUBLE PRECISION NOT NULL,
		family_size    INTEGER NOT NULL,
		eligibility    TEXT NOT NULL,
		recommendation TEXT NOT NULL,
		final_decision TEXT NOT NULL DEFAULT '',
		raw_data       JSONB NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_applicant_id ON applications (applicant_id)`,
	`CREATE TABLE IF NOT EXISTS chat_history (
		id           BIGSERIAL PRIMARY KEY,
		session_id   TEXT NOT NULL,
		applicant_id TEXT NOT NULL REFERENCES applicants(applicant_id) ON DELETE CASCADE,
		role         TEXT NOT NULL,
		message      TEXT NOT NULL,
		timestamp    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_history_session_id ON chat_history (session_id)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id            BIGSERIAL PRIMARY KEY,
		event_type    TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id   TEXT NOT NULL,
		details       JSONB,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables the repositories write to.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
