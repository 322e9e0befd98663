package worker

import (
	"context"
	"time"

	"academic-sync-service/internal/logger"
	"academic-sync-service/internal/metrics"
)

// StaleReclaimer is implemented by both job stores.
type StaleReclaimer interface {
	ReclaimStale(ctx context.Context, lease time.Duration, limit int) (int64, error)
}

// Reaper periodically returns PROCESSING jobs whose lease has expired to the retry path.
// A job whose worker died mid-run would otherwise stay PROCESSING forever.
type Reaper struct {
	store    StaleReclaimer
	metrics  *metrics.Metrics
	lease    time.Duration
	interval time.Duration
	limit    int
}

func NewReaper(store StaleReclaimer, lease, interval time.Duration, m *metrics.Metrics) *Reaper {
	if lease <= 0 {
		lease = 15 * time.Minute
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reaper{store: store, metrics: m, lease: lease, interval: interval, limit: 100}
}

func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Reap(ctx)
		}
	}
}

// Reap runs one reclaim pass and returns how many jobs were reclaimed.
func (r *Reaper) Reap(ctx context.Context) int64 {
	n, err := r.store.ReclaimStale(ctx, r.lease, r.limit)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("reclaim stale jobs failed")
		return 0
	}
	if n > 0 {
		r.metrics.JobsReclaimed(n)
		logger.FromContext(ctx).WithField(logger.FieldCount, n).Warn("reclaimed jobs with expired lease")
	}
	return n
}
