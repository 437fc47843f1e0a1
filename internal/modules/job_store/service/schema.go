package service

import (
	"context"
	"fmt"

	"signal_exec/pkg/db"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS signals (
	id         TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS execution_jobs (
	id         TEXT PRIMARY KEY,
	signal_id  TEXT,
	signal     JSONB,
	status     TEXT NOT NULL DEFAULT 'pending'
	           CHECK (status IN ('pending', 'claimed', 'completed', 'failed')),
	attempt    INTEGER NOT NULL DEFAULT 0 CHECK (attempt >= 0),
	claimed_at TIMESTAMPTZ,
	last_error TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT execution_jobs_one_payload CHECK ((signal_id IS NULL) <> (signal IS NULL)),
	CONSTRAINT execution_jobs_claimed_at CHECK ((status = 'claimed') = (claimed_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS execution_jobs_pending_idx
	ON execution_jobs (created_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS execution_jobs_claimed_idx
	ON execution_jobs (claimed_at) WHERE status = 'claimed';
`

// Migrate создаёт таблицы, если их ещё нет.
func Migrate(ctx context.Context, conn db.Transaction) error {
	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
