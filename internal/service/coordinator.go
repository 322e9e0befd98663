package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/lock"
	"academic-sync-service/internal/logger"
	"academic-sync-service/internal/metrics"
	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/source"
)

var ErrCoordinationInProgress = errors.New("sync coordination in progress, please try again shortly")

// batchNamespace scopes deterministic batch ids.
var batchNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:academic-sync:batch"))

const (
	defaultLockTTL  = 5 * time.Minute
	defaultLockWait = 2 * time.Second
	defaultPageSize = 100

	// jobsPerMinute is the observed worker throughput used for the ETA.
	jobsPerMinute = 12
)

type CoordinatorConfig struct {
	LockTTL     time.Duration
	LockWait    time.Duration
	PageSize    int
	MaxAttempts int
}

type CoordinateResult struct {
	BatchID          uuid.UUID          `json:"batch_id"`
	AlreadyExists    bool               `json:"already_exists"`
	TotalJobs        int                `json:"total_jobs"`
	TotalItems       int                `json:"total_items,omitempty"`
	EstimatedMinutes int                `json:"estimated_minutes,omitempty"`
	Stats            *entity.BatchStats `json:"stats,omitempty"`
	Message          string             `json:"message"`
}

// Coordinator turns a sync request into one batch of page jobs, exactly once per day.
type Coordinator struct {
	store    JobStore
	locker   Locker
	adapters AdapterResolver
	metrics  *metrics.Metrics
	cfg      CoordinatorConfig
	now      func() time.Time
}

func NewCoordinator(store JobStore, locker Locker, adapters AdapterResolver, cfg CoordinatorConfig, m *metrics.Metrics) *Coordinator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait < 0 {
		cfg.LockWait = defaultLockWait
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = entity.DefaultMaxAttempts
	}
	return &Coordinator{
		store:    store,
		locker:   locker,
		adapters: adapters,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

// BatchID derives the batch identity from the request and the UTC calendar day of now.
func BatchID(req entity.SyncRequest, now time.Time) uuid.UUID {
	name := fmt.Sprintf("%s:%s:%s:%s",
		source.NormalizeCode(req.SourceCode),
		orAll(req.Year),
		orAll(req.Term),
		now.UTC().Format(time.DateOnly),
	)
	return uuid.NewSHA1(batchNamespace, []byte(name))
}

// LockKey is the batch identity without the day.
func LockKey(req entity.SyncRequest) string {
	return fmt.Sprintf("sync:%s:%s:%s", source.NormalizeCode(req.SourceCode), orAll(req.Year), orAll(req.Term))
}

func orAll(s string) string {
	if s == "" {
		return "all"
	}
	return s
}

func (c *Coordinator) Coordinate(ctx context.Context, req entity.SyncRequest) (*CoordinateResult, error) {
	req.SourceCode = source.NormalizeCode(req.SourceCode)
	if req.SourceCode == "" {
		return nil, retry.Permanent(errSourceRequired)
	}
	adapter, err := c.adapters.Get(req.SourceCode)
	if err != nil {
		return nil, err
	}

	batchID := BatchID(req, c.now())
	ctx = logger.SetBatchID(ctx, batchID.String())
	ctx = logger.SetSource(ctx, req.SourceCode)
	log := logger.FromContext(ctx)

	if res, err := c.existing(ctx, batchID, "Sync already in progress or completed"); res != nil || err != nil {
		log.Info("batch already exists")
		return res, err
	}

	var result *CoordinateResult
	err = c.locker.WithLock(ctx, LockKey(req), c.cfg.LockTTL, func(ctx context.Context) error {
		// another process may have created the batch while we waited for the lock
		res, err := c.existing(ctx, batchID, "Sync already in progress or completed")
		if err != nil {
			return err
		}
		if res != nil {
			result = res
			return nil
		}

		result, err = c.createBatch(ctx, adapter, req, batchID)
		return err
	})

	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, lock.ErrNotAcquired):
		log.Info("coordination lock held elsewhere, re-checking")
		if err := sleep(ctx, c.cfg.LockWait); err != nil {
			return nil, err
		}
		res, err := c.existing(ctx, batchID, "Batch created by a concurrent coordinator")
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
		return nil, ErrCoordinationInProgress
	default:
		return nil, err
	}
}

func (c *Coordinator) existing(ctx context.Context, batchID uuid.UUID, msg string) (*CoordinateResult, error) {
	stats, err := c.store.BatchStats(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("batch stats: %w", err)
	}
	if stats.Total == 0 {
		return nil, nil
	}
	return &CoordinateResult{
		BatchID:       batchID,
		AlreadyExists: true,
		TotalJobs:     int(stats.Total),
		Stats:         &stats,
		Message:       msg,
	}, nil
}

// createBatch discovers the page count with one live fetch and inserts one job per page.
func (c *Coordinator) createBatch(ctx context.Context, adapter source.Adapter, req entity.SyncRequest, batchID uuid.UUID) (*CoordinateResult, error) {
	log := logger.FromContext(ctx)

	first, err := adapter.FetchPage(ctx, source.PageRequest{
		Page:     1,
		PageSize: c.cfg.PageSize,
		Year:     req.Year,
		Term:     req.Term,
	})
	if err != nil {
		return nil, fmt.Errorf("discover pages: %w", err)
	}

	meta := first.Metadata
	pageSize := meta.PageSize
	if pageSize <= 0 {
		pageSize = c.cfg.PageSize
	}

	if meta.TotalPages <= 0 {
		log.Info("source reported no data")
		return &CoordinateResult{BatchID: batchID, Message: "No data to sync"}, nil
	}

	intents := make([]entity.JobIntent, 0, meta.TotalPages)
	for page := 1; page <= meta.TotalPages; page++ {
		payload, err := json.Marshal(entity.PagePayload{
			SourceCode: req.SourceCode,
			Page:       page,
			PageSize:   pageSize,
			Year:       req.Year,
			Term:       req.Term,
		})
		if err != nil {
			return nil, err
		}
		intents = append(intents, entity.JobIntent{
			Type:        entity.JobTypeFetchSyllabus,
			BatchID:     &batchID,
			Payload:     payload,
			MaxAttempts: c.cfg.MaxAttempts,
		})
	}

	ids, err := c.store.CreateBatch(ctx, intents)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	c.metrics.BatchCreated(req.SourceCode)

	log.WithFields(logger.Fields{
		"total_jobs":  len(ids),
		"total_items": meta.TotalItems,
	}).Info("batch created")

	return &CoordinateResult{
		BatchID:          batchID,
		TotalJobs:        len(ids),
		TotalItems:       meta.TotalItems,
		EstimatedMinutes: (len(ids) + jobsPerMinute - 1) / jobsPerMinute,
		Message:          "Sync coordinated",
	}, nil
}

// Handle runs a COORDINATE_SYNC job. Lock contention comes back as a retryable error.
func (c *Coordinator) Handle(ctx context.Context, job entity.Job) error {
	var req entity.SyncRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		return retry.Permanent(fmt.Errorf("%w: sync payload: %w", ErrInvalidInput, err))
	}
	res, err := c.Coordinate(ctx, req)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldBatchID: res.BatchID.String(),
		"already_exists":    res.AlreadyExists,
		"total_jobs":        res.TotalJobs,
	}).Info("coordinate job done")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
