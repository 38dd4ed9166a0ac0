package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS enrollments (
		id            BIGSERIAL PRIMARY KEY,
		student_name  TEXT NOT NULL,
		parent_name   TEXT NOT NULL,
		parent_email  TEXT NOT NULL,
		parent_phone  TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id                  BIGSERIAL PRIMARY KEY,
		external_intent_id  TEXT,
		enrollment_id       BIGINT NOT NULL REFERENCES enrollments(id),
		amount              NUMERIC(10,2) NOT NULL CHECK (amount > 0),
		payment_type        TEXT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'pending',
		payment_method      TEXT NOT NULL DEFAULT 'card',
		parent_email        TEXT NOT NULL DEFAULT '',
		description         TEXT NOT NULL DEFAULT '',
		due_date            TIMESTAMPTZ,
		billing_address     JSONB,
		paid_date           TIMESTAMPTZ,
		failure_reason      TEXT,
		receipt_url         TEXT,
		refund_amount       NUMERIC(10,2) CHECK (refund_amount > 0 AND refund_amount <= amount),
		processing_fee      NUMERIC(10,2),
		notes               TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS payments_external_intent_id_key
		ON payments (external_intent_id) WHERE external_intent_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS payments_enrollment_id_idx ON payments (enrollment_id)`,
	`CREATE INDEX IF NOT EXISTS payments_status_idx ON payments (status)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id          UUID PRIMARY KEY,
		action      TEXT NOT NULL,
		resource    TEXT NOT NULL,
		actor_id    TEXT,
		details     JSONB NOT NULL DEFAULT '{}',
		success     BOOLEAN NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS audit_logs_action_idx ON audit_logs (action, created_at)`,
}

// Migrate creates the tables the service owns. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
