package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS outbox_jobs (
    id            UUID PRIMARY KEY,
    job_type      TEXT        NOT NULL,
    batch_id      UUID        NULL,
    payload       JSONB       NOT NULL DEFAULT '{}'::jsonb,
    status        TEXT        NOT NULL DEFAULT 'PENDING'
                  CHECK (status IN ('PENDING', 'PROCESSING', 'COMPLETED', 'FAILED')),
    attempts      INT         NOT NULL DEFAULT 0,
    max_attempts  INT         NOT NULL DEFAULT 5,
    error_message TEXT        NULL,
    scheduled_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    processed_at  TIMESTAMPTZ NULL,
    claim_token   UUID        NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
    CHECK (attempts <= max_attempts)
);

ALTER TABLE outbox_jobs ADD COLUMN IF NOT EXISTS claim_token UUID NULL;

CREATE INDEX IF NOT EXISTS idx_outbox_jobs_eligible
    ON outbox_jobs (status, scheduled_at, created_at);

CREATE INDEX IF NOT EXISTS idx_outbox_jobs_batch
    ON outbox_jobs (batch_id, status);

CREATE INDEX IF NOT EXISTS idx_outbox_jobs_processing
    ON outbox_jobs (updated_at) WHERE status = 'PROCESSING';
`

// EnsureSchema creates the outbox table and its indexes if they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
