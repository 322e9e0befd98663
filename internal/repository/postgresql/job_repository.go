package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/repository"
	"academic-sync-service/internal/retry"
)

const leaseExpiredMessage = "processing lease expired"

const jobColumns = `id, job_type, batch_id, payload, status, attempts, max_attempts,
error_message, scheduled_at, processed_at, created_at, updated_at`

type JobRepository struct {
	pool   *pgxpool.Pool
	policy retry.Policy
	now    func() time.Time
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool, now: time.Now}
}

// WithPolicy overrides the retry policy (jitter source) used by Fail and ReclaimStale.
func (r *JobRepository) WithPolicy(p retry.Policy) *JobRepository {
	r.policy = p
	return r
}

// CreateBatch inserts all intents in one transaction and returns their ids in order.
func (r *JobRepository) CreateBatch(ctx context.Context, intents []entity.JobIntent) ([]uuid.UUID, error) {
	if len(intents) == 0 {
		return nil, nil
	}

	const q = `
INSERT INTO outbox_jobs (id, job_type, batch_id, payload, status, attempts, max_attempts, scheduled_at)
VALUES ($1, $2, $3, $4, 'PENDING', 0, $5, $6);
`
	now := r.now()
	ids := make([]uuid.UUID, len(intents))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	b := &pgx.Batch{}
	for i := range intents {
		in := intents[i]
		in.Normalize(now)
		ids[i] = uuid.New()
		b.Queue(q, ids[i], string(in.Type), in.BatchID, []byte(in.Payload), in.MaxAttempts, in.ScheduledAt)
	}

	br := tx.SendBatch(ctx, b)
	for i := range intents {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return nil, fmt.Errorf("insert job %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *JobRepository) FindEligible(ctx context.Context, limit int) ([]entity.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := `SELECT ` + jobColumns + `
FROM outbox_jobs
WHERE status = 'PENDING' AND scheduled_at <= $1
ORDER BY created_at ASC, id ASC
LIMIT $2;`

	rows, err := r.pool.Query(ctx, q, r.now(), limit)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// Claim flips PENDING to PROCESSING under a fresh claim token. ok=false means another
// worker got there first.
func (r *JobRepository) Claim(ctx context.Context, id uuid.UUID) (uuid.UUID, bool, error) {
	const q = `
UPDATE outbox_jobs
SET status = 'PROCESSING', claim_token = $2, updated_at = clock_timestamp()
WHERE id = $1 AND status = 'PENDING';
`
	token := uuid.New()
	tag, err := r.pool.Exec(ctx, q, id, token)
	if err != nil {
		return uuid.Nil, false, err
	}
	if tag.RowsAffected() != 1 {
		return uuid.Nil, false, nil
	}
	return token, true, nil
}

func (r *JobRepository) Complete(ctx context.Context, id, token uuid.UUID) error {
	const q = `
UPDATE outbox_jobs
SET status = 'COMPLETED', processed_at = $3, error_message = NULL, claim_token = NULL,
    updated_at = clock_timestamp()
WHERE id = $1 AND status = 'PROCESSING' AND claim_token = $2;
`
	tag, err := r.pool.Exec(ctx, q, id, token, r.now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.notOwned(ctx, id)
	}
	return nil
}

// Fail records a failed attempt and either reschedules the job or fails it for good.
func (r *JobRepository) Fail(ctx context.Context, id, token uuid.UUID, cause error) (retry.Decision, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return retry.Decision{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var (
		status      string
		attempts    int
		maxAttempts int
		owner       *uuid.UUID
	)
	const sel = `SELECT status, attempts, max_attempts, claim_token FROM outbox_jobs WHERE id = $1 FOR UPDATE;`
	if err := tx.QueryRow(ctx, sel, id).Scan(&status, &attempts, &maxAttempts, &owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return retry.Decision{}, repository.ErrNotFound
		}
		return retry.Decision{}, err
	}
	if entity.JobStatus(status) != entity.StatusProcessing {
		return retry.Decision{}, fmt.Errorf("%w: fail from %s", repository.ErrInvalidTransition, status)
	}
	if owner == nil || *owner != token {
		return retry.Decision{}, fmt.Errorf("%w: fail", repository.ErrLeaseLost)
	}

	d := r.policy.Decide(attempts, maxAttempts, cause, r.now())
	if err := applyDecision(ctx, tx, id, d); err != nil {
		return retry.Decision{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return retry.Decision{}, err
	}
	return d, nil
}

func applyDecision(ctx context.Context, tx pgx.Tx, id uuid.UUID, d retry.Decision) error {
	var (
		q    string
		args []any
	)
	if d.Retrying() {
		q = `
UPDATE outbox_jobs
SET status = 'PENDING', attempts = $2, error_message = $3, scheduled_at = $4, claim_token = NULL,
    updated_at = clock_timestamp()
WHERE id = $1 AND status = 'PROCESSING';`
		args = []any{id, d.Attempts, d.Message, d.ScheduledAt}
	} else {
		q = `
UPDATE outbox_jobs
SET status = 'FAILED', attempts = $2, error_message = $3, claim_token = NULL, updated_at = clock_timestamp()
WHERE id = $1 AND status = 'PROCESSING';`
		args = []any{id, d.Attempts, d.Message}
	}

	tag, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrInvalidTransition
	}
	return nil
}

func (r *JobRepository) BatchStats(ctx context.Context, batchID uuid.UUID) (entity.BatchStats, error) {
	const q = `
SELECT
    count(*),
    count(*) FILTER (WHERE status = 'PENDING'),
    count(*) FILTER (WHERE status = 'PROCESSING'),
    count(*) FILTER (WHERE status = 'COMPLETED'),
    count(*) FILTER (WHERE status = 'FAILED')
FROM outbox_jobs
WHERE batch_id = $1;
`
	var s entity.BatchStats
	err := r.pool.QueryRow(ctx, q, batchID).Scan(&s.Total, &s.Pending, &s.Processing, &s.Completed, &s.Failed)
	return s, err
}

// RetryFailed resets every FAILED job in the batch to a fresh PENDING job.
func (r *JobRepository) RetryFailed(ctx context.Context, batchID uuid.UUID) (int64, error) {
	const q = `
UPDATE outbox_jobs
SET status = 'PENDING', attempts = 0, error_message = NULL, scheduled_at = $2, updated_at = clock_timestamp()
WHERE batch_id = $1 AND status = 'FAILED';
`
	tag, err := r.pool.Exec(ctx, q, batchID, r.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM outbox_jobs WHERE id = $1;`

	rows, err := r.pool.Query(ctx, q, id)
	if err != nil {
		return nil, err
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, repository.ErrNotFound
	}
	return &jobs[0], nil
}

// ListByBatch returns the batch's jobs oldest first, optionally filtered by status.
func (r *JobRepository) ListByBatch(ctx context.Context, batchID uuid.UUID, status *entity.JobStatus) ([]entity.Job, error) {
	q := `SELECT ` + jobColumns + `
FROM outbox_jobs
WHERE batch_id = $1 AND ($2::text IS NULL OR status = $2::text)
ORDER BY created_at ASC, id ASC;`

	var st *string
	if status != nil {
		s := string(*status)
		st = &s
	}
	rows, err := r.pool.Query(ctx, q, batchID, st)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// ReclaimStale treats PROCESSING jobs untouched for longer than lease as a failed attempt.
// The cutoff is taken from the database clock, the same one Claim stamps updated_at with.
func (r *JobRepository) ReclaimStale(ctx context.Context, lease time.Duration, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	const sel = `
SELECT id, attempts, max_attempts
FROM outbox_jobs
WHERE status = 'PROCESSING'
  AND updated_at <= clock_timestamp() - ($1::bigint * interval '1 microsecond')
ORDER BY updated_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED;
`
	now := r.now()
	rows, err := tx.Query(ctx, sel, lease.Microseconds(), limit)
	if err != nil {
		return 0, err
	}

	type stale struct {
		id          uuid.UUID
		attempts    int
		maxAttempts int
	}
	var found []stale
	for rows.Next() {
		var s stale
		if err := rows.Scan(&s.id, &s.attempts, &s.maxAttempts); err != nil {
			rows.Close()
			return 0, err
		}
		found = append(found, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	cause := errors.New(leaseExpiredMessage)
	for _, s := range found {
		d := r.policy.Decide(s.attempts, s.maxAttempts, cause, now)
		if err := applyDecision(ctx, tx, s.id, d); err != nil {
			return 0, fmt.Errorf("reclaim %s: %w", s.id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int64(len(found)), nil
}

// notOwned explains why Complete matched no row.
func (r *JobRepository) notOwned(ctx context.Context, id uuid.UUID) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM outbox_jobs WHERE id = $1;`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	if entity.JobStatus(status) != entity.StatusProcessing {
		return fmt.Errorf("%w: complete from %s", repository.ErrInvalidTransition, status)
	}
	return fmt.Errorf("%w: complete", repository.ErrLeaseLost)
}

func collectJobs(rows pgx.Rows) ([]entity.Job, error) {
	defer rows.Close()

	var jobs []entity.Job
	for rows.Next() {
		var (
			job        entity.Job
			typeText   string
			statusText string
			payload    []byte
		)
		if err := rows.Scan(
			&job.ID,
			&typeText,
			&job.BatchID, // NULL => nil
			&payload,
			&statusText,
			&job.Attempts,
			&job.MaxAttempts,
			&job.ErrorMessage, // NULL => nil
			&job.ScheduledAt,
			&job.ProcessedAt,
			&job.CreatedAt,
			&job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		job.Type = entity.JobType(typeText)
		job.Status = entity.JobStatus(statusText)
		job.Payload = json.RawMessage(payload)
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
