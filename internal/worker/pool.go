package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/logger"
	"academic-sync-service/internal/metrics"
	"academic-sync-service/internal/repository"
	"academic-sync-service/internal/retry"
)

// JobStore is the part of the job store the poller drives.
type JobStore interface {
	FindEligible(ctx context.Context, limit int) ([]entity.Job, error)
	Claim(ctx context.Context, id uuid.UUID) (token uuid.UUID, ok bool, err error)
	Complete(ctx context.Context, id, token uuid.UUID) error
	Fail(ctx context.Context, id, token uuid.UUID, cause error) (retry.Decision, error)
}

type PollerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

type CycleResult struct {
	Found     int
	Claimed   int
	Lost      int
	Succeeded int
	Failed    int
}

// Poller drains eligible jobs from the store on a fixed interval.
type Poller struct {
	store     JobStore
	processor *Processor
	metrics   *metrics.Metrics
	cfg       PollerConfig

	running atomic.Bool
	wg      sync.WaitGroup
}

func NewPoller(store JobStore, processor *Processor, cfg PollerConfig, m *metrics.Metrics) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = cfg.BatchSize
	}
	return &Poller{store: store, processor: processor, metrics: m, cfg: cfg}
}

// Run polls until ctx is done, then waits for the running cycle to finish.
func (p *Poller) Run(ctx context.Context) {
	log := logger.FromContext(ctx)
	log.WithFields(logger.Fields{
		"interval":    p.cfg.Interval.String(),
		"batch_size":  p.cfg.BatchSize,
		"concurrency": p.cfg.Concurrency,
	}).Info("poller started")

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			log.Info("poller stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		p.metrics.CycleSkipped()
		logger.FromContext(ctx).Debug("previous cycle still running, tick skipped")
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		p.RunCycle(ctx)
	}()
}

// TryCycle runs one cycle unless another is in progress; ok=false means it was skipped.
func (p *Poller) TryCycle(ctx context.Context) (res CycleResult, ok bool) {
	if !p.running.CompareAndSwap(false, true) {
		p.metrics.CycleSkipped()
		return CycleResult{}, false
	}
	defer p.running.Store(false)
	return p.RunCycle(ctx), true
}

// RunCycle claims and processes one batch of eligible jobs. It never panics and never
// returns an error: store failures are logged and end the cycle early.
func (p *Poller) RunCycle(ctx context.Context) CycleResult {
	start := time.Now()
	log := logger.FromContext(ctx)
	defer func() {
		p.metrics.ObserveCycle(time.Since(start))
		if r := recover(); r != nil {
			log.Errorf("poll cycle panic: %v", r)
		}
	}()

	jobs, err := p.store.FindEligible(ctx, p.cfg.BatchSize)
	if err != nil {
		log.WithError(err).Error("find eligible jobs failed")
		return CycleResult{}
	}
	if len(jobs) == 0 {
		return CycleResult{}
	}

	// claimed jobs run to the end even if the poller is shutting down
	jobCtx := context.WithoutCancel(ctx)

	var claimed, lost, succeeded, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	for _, job := range jobs {
		g.Go(func() error {
			// panics from the store must not take the process down
			defer func() {
				if r := recover(); r != nil {
					failed.Add(1)
					log.WithField(logger.FieldJobID, job.ID.String()).Errorf("job goroutine panic: %v", r)
				}
			}()

			token, won, err := p.store.Claim(jobCtx, job.ID)
			if err != nil {
				log.WithError(err).WithField(logger.FieldJobID, job.ID.String()).Error("claim failed")
				return nil
			}
			if !won {
				lost.Add(1)
				p.metrics.ClaimLost()
				return nil
			}
			claimed.Add(1)

			if p.finish(jobCtx, job, token) {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := CycleResult{
		Found:     len(jobs),
		Claimed:   int(claimed.Load()),
		Lost:      int(lost.Load()),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
	}
	log.WithFields(logger.Fields{
		"found":                res.Found,
		"claimed":              res.Claimed,
		"lost":                 res.Lost,
		"succeeded":            res.Succeeded,
		"failed":               res.Failed,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info("poll cycle done")
	return res
}

// finish processes a claimed job and writes the outcome back. It reports success.
func (p *Poller) finish(ctx context.Context, job entity.Job, token uuid.UUID) bool {
	log := logger.FromContext(ctx).WithField(logger.FieldJobID, job.ID.String())

	procErr := p.processor.Process(ctx, job)
	if procErr == nil {
		if err := p.store.Complete(ctx, job.ID, token); err != nil {
			p.writeBackFailed(log, err, "mark completed failed")
			return false
		}
		p.metrics.JobProcessed(string(job.Type), metrics.OutcomeCompleted)
		return true
	}

	d, err := p.store.Fail(ctx, job.ID, token, procErr)
	if err != nil {
		p.writeBackFailed(log, err, "mark failed failed")
		return false
	}

	outcome := metrics.OutcomeFailed
	if d.Retrying() {
		outcome = metrics.OutcomeRetried
	}
	p.metrics.JobProcessed(string(job.Type), outcome)
	log.WithFields(logger.Fields{
		logger.FieldStatus:  d.Status,
		logger.FieldAttempt: d.Attempts,
		"permanent":         d.Permanent,
		"scheduled_at":      d.ScheduledAt,
	}).Info("job failure recorded")
	return false
}

// writeBackFailed logs an outcome the store refused. A reclaimed job belongs to whoever
// claimed it next, so its result is dropped.
func (p *Poller) writeBackFailed(log *logger.Logger, err error, msg string) {
	if errors.Is(err, repository.ErrLeaseLost) || errors.Is(err, repository.ErrInvalidTransition) {
		p.metrics.LeaseLost()
		log.WithError(err).Warn("lease lost before write-back, result dropped")
		return
	}
	log.WithError(err).Error(msg)
}
