// Package memory is an in-process job store with the same semantics as the Postgres one.
// It backs tests and single-process runs (store.driver=memory).
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/repository"
	"academic-sync-service/internal/retry"
)

const leaseExpiredMessage = "processing lease expired"

type row struct {
	job   entity.Job
	seq   uint64
	token uuid.UUID // current claim, uuid.Nil outside PROCESSING
}

type JobStore struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]*row
	seq    uint64
	policy retry.Policy
	now    func() time.Time

	// failInsertAt makes CreateBatch fail on the n-th intent (1-based); tests only.
	failInsertAt int
}

func NewJobStore() *JobStore {
	return &JobStore{
		rows: make(map[uuid.UUID]*row),
		now:  time.Now,
	}
}

func (s *JobStore) WithPolicy(p retry.Policy) *JobStore {
	s.policy = p
	return s
}

// WithClock replaces the time source.
func (s *JobStore) WithClock(now func() time.Time) *JobStore {
	s.now = now
	return s
}

// CreateBatch is all-or-nothing: nothing becomes visible unless every intent is valid.
func (s *JobStore) CreateBatch(_ context.Context, intents []entity.JobIntent) ([]uuid.UUID, error) {
	if len(intents) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	staged := make([]*row, 0, len(intents))
	for i := range intents {
		in := intents[i]
		in.Normalize(now)
		if in.Type == "" {
			return nil, fmt.Errorf("insert job %d: empty job type", i)
		}
		if s.failInsertAt == i+1 {
			return nil, fmt.Errorf("insert job %d: injected failure", i)
		}
		staged = append(staged, &row{job: entity.Job{
			ID:          uuid.New(),
			Type:        in.Type,
			BatchID:     copyUUID(in.BatchID),
			Payload:     append([]byte(nil), in.Payload...),
			Status:      entity.StatusPending,
			MaxAttempts: in.MaxAttempts,
			ScheduledAt: in.ScheduledAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}})
	}

	ids := make([]uuid.UUID, len(staged))
	for i, r := range staged {
		s.seq++
		r.seq = s.seq
		s.rows[r.job.ID] = r
		ids[i] = r.job.ID
	}
	return ids, nil
}

func (s *JobStore) FindEligible(_ context.Context, limit int) ([]entity.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []*row
	for _, r := range s.rows {
		if r.job.Status == entity.StatusPending && !r.job.ScheduledAt.After(now) {
			out = append(out, r)
		}
	}
	sortRows(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return snapshot(out), nil
}

// Claim flips PENDING to PROCESSING and returns the claim token that Complete and Fail
// must present. ok=false means another worker got there first.
func (s *JobStore) Claim(_ context.Context, id uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok || r.job.Status != entity.StatusPending {
		return uuid.Nil, false, nil
	}
	r.job.Status = entity.StatusProcessing
	r.job.UpdatedAt = s.now()
	r.token = uuid.New()
	return r.token, true, nil
}

func (s *JobStore) Complete(_ context.Context, id, token uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.owned(id, token, "complete")
	if err != nil {
		return err
	}
	now := s.now()
	r.job.Status = entity.StatusCompleted
	r.job.ProcessedAt = &now
	r.job.ErrorMessage = nil
	r.job.UpdatedAt = now
	r.token = uuid.Nil
	return nil
}

func (s *JobStore) Fail(_ context.Context, id, token uuid.UUID, cause error) (retry.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.owned(id, token, "fail")
	if err != nil {
		return retry.Decision{}, err
	}
	now := s.now()
	d := s.policy.Decide(r.job.Attempts, r.job.MaxAttempts, cause, now)
	apply(r, d, now)
	return d, nil
}

// owned returns the row if it is PROCESSING under token. Caller holds s.mu.
func (s *JobStore) owned(id, token uuid.UUID, op string) (*row, error) {
	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if r.job.Status != entity.StatusProcessing {
		return nil, fmt.Errorf("%w: %s from %s", repository.ErrInvalidTransition, op, r.job.Status)
	}
	if r.token != token {
		return nil, fmt.Errorf("%w: %s", repository.ErrLeaseLost, op)
	}
	return r, nil
}

func apply(r *row, d retry.Decision, now time.Time) {
	r.token = uuid.Nil
	msg := d.Message
	r.job.Status = d.Status
	r.job.Attempts = d.Attempts
	r.job.ErrorMessage = &msg
	if d.Retrying() {
		r.job.ScheduledAt = d.ScheduledAt
	}
	r.job.UpdatedAt = now
}

func (s *JobStore) BatchStats(_ context.Context, batchID uuid.UUID) (entity.BatchStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st entity.BatchStats
	for _, r := range s.rows {
		if r.job.BatchID == nil || *r.job.BatchID != batchID {
			continue
		}
		st.Total++
		switch r.job.Status {
		case entity.StatusPending:
			st.Pending++
		case entity.StatusProcessing:
			st.Processing++
		case entity.StatusCompleted:
			st.Completed++
		case entity.StatusFailed:
			st.Failed++
		}
	}
	return st, nil
}

func (s *JobStore) RetryFailed(_ context.Context, batchID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for _, r := range s.rows {
		if r.job.BatchID == nil || *r.job.BatchID != batchID || r.job.Status != entity.StatusFailed {
			continue
		}
		r.job.Status = entity.StatusPending
		r.job.Attempts = 0
		r.job.ErrorMessage = nil
		r.job.ScheduledAt = now
		r.job.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *JobStore) GetByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	job := clone(r.job)
	return &job, nil
}

func (s *JobStore) ListByBatch(_ context.Context, batchID uuid.UUID, status *entity.JobStatus) ([]entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*row
	for _, r := range s.rows {
		if r.job.BatchID == nil || *r.job.BatchID != batchID {
			continue
		}
		if status != nil && r.job.Status != *status {
			continue
		}
		out = append(out, r)
	}
	sortRows(out)
	return snapshot(out), nil
}

func (s *JobStore) ReclaimStale(_ context.Context, lease time.Duration, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-lease)

	var stale []*row
	for _, r := range s.rows {
		if r.job.Status == entity.StatusProcessing && !r.job.UpdatedAt.After(cutoff) {
			stale = append(stale, r)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].job.UpdatedAt.Before(stale[j].job.UpdatedAt)
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}

	cause := errors.New(leaseExpiredMessage)
	for _, r := range stale {
		apply(r, s.policy.Decide(r.job.Attempts, r.job.MaxAttempts, cause, now), now)
	}
	return int64(len(stale)), nil
}

func sortRows(rows []*row) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].job.CreatedAt.Equal(rows[j].job.CreatedAt) {
			return rows[i].job.CreatedAt.Before(rows[j].job.CreatedAt)
		}
		return rows[i].seq < rows[j].seq
	})
}

func snapshot(rows []*row) []entity.Job {
	out := make([]entity.Job, 0, len(rows))
	for _, r := range rows {
		out = append(out, clone(r.job))
	}
	return out
}

func clone(j entity.Job) entity.Job {
	j.BatchID = copyUUID(j.BatchID)
	j.Payload = append([]byte(nil), j.Payload...)
	if j.ErrorMessage != nil {
		m := *j.ErrorMessage
		j.ErrorMessage = &m
	}
	if j.ProcessedAt != nil {
		t := *j.ProcessedAt
		j.ProcessedAt = &t
	}
	return j
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
