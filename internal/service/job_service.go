package service

//go:generate mockgen -destination=mocks/mock_locker.go -package=mocks academic-sync-service/internal/service Locker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/repository"
	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/source"
)

// ErrInvalidInput marks requests rejected before touching the store.
var ErrInvalidInput = errors.New("invalid input")

var errSourceRequired = fmt.Errorf("%w: source_code is required", ErrInvalidInput)

// Порт хранилища задач (реализации: postgresql.JobRepository, memory.JobStore)
type JobStore interface {
	CreateBatch(ctx context.Context, intents []entity.JobIntent) ([]uuid.UUID, error)
	BatchStats(ctx context.Context, batchID uuid.UUID) (entity.BatchStats, error)
	RetryFailed(ctx context.Context, batchID uuid.UUID) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID, status *entity.JobStatus) ([]entity.Job, error)
}

// Locker guards batch creation across processes (реализация: lock.RedisLock).
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// AdapterResolver is satisfied by *source.Registry.
type AdapterResolver interface {
	Get(code string) (source.Adapter, error)
}

// JobService is the operator side of the outbox: inspection, manual retry and enqueueing.
type JobService struct {
	store    JobStore
	adapters AdapterResolver
}

func NewJobService(store JobStore, adapters AdapterResolver) *JobService {
	return &JobService{store: store, adapters: adapters}
}

type BatchStatus struct {
	BatchID    uuid.UUID         `json:"batch_id"`
	Stats      entity.BatchStats `json:"stats"`
	Progress   int               `json:"progress"`
	IsComplete bool              `json:"is_complete"`
}

// BatchStatus returns ErrNotFound for a batch without jobs.
func (s *JobService) BatchStatus(ctx context.Context, batchID uuid.UUID) (*BatchStatus, error) {
	stats, err := s.store.BatchStats(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if stats.Total == 0 {
		return nil, repository.ErrNotFound
	}
	return &BatchStatus{
		BatchID:    batchID,
		Stats:      stats,
		Progress:   stats.Progress(),
		IsComplete: stats.IsComplete(),
	}, nil
}

// RetryFailedJobs resets the batch's FAILED jobs to PENDING and returns how many were reset.
func (s *JobService) RetryFailedJobs(ctx context.Context, batchID uuid.UUID) (int64, error) {
	return s.store.RetryFailed(ctx, batchID)
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.store.GetByID(ctx, id)
}

func (s *JobService) ListJobs(ctx context.Context, batchID uuid.UUID, status *entity.JobStatus) ([]entity.Job, error) {
	if status != nil && !status.Valid() {
		return nil, retry.Permanent(fmt.Errorf("%w: status %q", ErrInvalidInput, *status))
	}
	return s.store.ListByBatch(ctx, batchID, status)
}

// Enqueue records a sync request as a COORDINATE_SYNC job so a worker coordinates it.
func (s *JobService) Enqueue(ctx context.Context, req entity.SyncRequest) (uuid.UUID, error) {
	req.SourceCode = source.NormalizeCode(req.SourceCode)
	if req.SourceCode == "" {
		return uuid.Nil, retry.Permanent(errSourceRequired)
	}
	if _, err := s.adapters.Get(req.SourceCode); err != nil {
		return uuid.Nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return uuid.Nil, err
	}

	ids, err := s.store.CreateBatch(ctx, []entity.JobIntent{{
		Type:    entity.JobTypeCoordinateSync,
		Payload: payload,
	}})
	if err != nil {
		return uuid.Nil, err
	}
	return ids[0], nil
}
