// Package pipeline runs one page job: extract a page from the source, transform it into
// standardized records and load them one by one.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/logger"
	"academic-sync-service/internal/metrics"
	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/source"
)

const (
	defaultMaxTries  = 3
	defaultBaseDelay = 10 * time.Second

	// maxReportedErrors caps Result.Errors; the counters stay exact.
	maxReportedErrors = 20
)

// AdapterResolver is satisfied by *source.Registry.
type AdapterResolver interface {
	Get(code string) (source.Adapter, error)
}

// RecordSink persists one normalized record.
type RecordSink interface {
	Save(ctx context.Context, s *entity.Syllabus) error
}

// IngestionLogger records per-page runs. Its failures never fail a job.
type IngestionLogger interface {
	Start(ctx context.Context, l *entity.IngestionLog) error
	Finish(ctx context.Context, l *entity.IngestionLog) error
}

type Result struct {
	Extracted  int      `json:"extracted"`
	Normalized int      `json:"normalized"`
	Saved      int      `json:"saved"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

type Pipeline struct {
	adapters AdapterResolver
	sink     RecordSink
	ingest   IngestionLogger
	metrics  *metrics.Metrics

	maxTries  uint
	baseDelay time.Duration
}

type Option func(*Pipeline)

func WithIngestionLogger(l IngestionLogger) Option {
	return func(p *Pipeline) { p.ingest = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithExtractRetry sets how many times a page fetch is tried and the linear backoff step.
func WithExtractRetry(maxTries int, baseDelay time.Duration) Option {
	return func(p *Pipeline) {
		if maxTries > 0 {
			p.maxTries = uint(maxTries)
		}
		if baseDelay >= 0 {
			p.baseDelay = baseDelay
		}
	}
}

func New(adapters AdapterResolver, sink RecordSink, opts ...Option) *Pipeline {
	p := &Pipeline{
		adapters:  adapters,
		sink:      sink,
		maxTries:  defaultMaxTries,
		baseDelay: defaultBaseDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle runs a FETCH_SYLLABUS job.
func (p *Pipeline) Handle(ctx context.Context, job entity.Job) error {
	var payload entity.PagePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return retry.Permanent(fmt.Errorf("invalid input: page payload: %w", err))
	}

	run := &entity.IngestionLog{
		SourceCode: source.NormalizeCode(payload.SourceCode),
		JobID:      job.ID.String(),
		Page:       payload.Page,
	}
	if job.BatchID != nil {
		run.BatchID = job.BatchID.String()
	}

	_, err := p.execute(ctx, payload, run)
	return err
}

// Execute runs extract, transform and load for one page.
func (p *Pipeline) Execute(ctx context.Context, payload entity.PagePayload) (*Result, error) {
	run := &entity.IngestionLog{SourceCode: source.NormalizeCode(payload.SourceCode), Page: payload.Page}
	return p.execute(ctx, payload, run)
}

func (p *Pipeline) execute(ctx context.Context, payload entity.PagePayload, run *entity.IngestionLog) (*Result, error) {
	if payload.Page < 1 || payload.PageSize < 1 {
		return nil, retry.Permanent(fmt.Errorf("invalid input: page %d size %d", payload.Page, payload.PageSize))
	}

	adapter, err := p.adapters.Get(payload.SourceCode)
	if err != nil {
		return nil, err
	}

	ctx = logger.SetSource(ctx, adapter.Code())
	ctx = logger.WithField(ctx, logger.FieldPage, payload.Page)
	log := logger.FromContext(ctx)
	start := time.Now()

	p.startLog(ctx, run)

	res, err := p.run(ctx, adapter, payload)
	if err != nil {
		p.finishLog(ctx, run, entity.IngestionFailed, res, err)
		log.WithError(err).Error("page failed")
		return res, err
	}
	p.finishLog(ctx, run, entity.IngestionCompleted, res, nil)

	fields := logger.Fields{
		"extracted":            res.Extracted,
		"normalized":           res.Normalized,
		"saved":                res.Saved,
		"failed":               res.Failed,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}
	if res.Failed > 0 {
		log.WithFields(fields).WithField("errors", res.Errors).Warn("page loaded with record failures")
	} else {
		log.WithFields(fields).Info("page loaded")
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, adapter source.Adapter, payload entity.PagePayload) (*Result, error) {
	res := &Result{}

	page, err := p.extract(ctx, adapter, source.PageRequest{
		Page:     payload.Page,
		PageSize: payload.PageSize,
		Year:     payload.Year,
		Term:     payload.Term,
	})
	if err != nil {
		return res, fmt.Errorf("extract page %d: %w", payload.Page, err)
	}
	res.Extracted = len(page.Items)

	records, err := adapter.Normalize(page.Items, source.Filters{Year: payload.Year, Term: payload.Term})
	if err != nil {
		return res, fmt.Errorf("transform page %d: %w", payload.Page, err)
	}
	res.Normalized = len(records)

	if err := p.load(ctx, records, res); err != nil {
		return res, err
	}
	p.metrics.RecordsLoaded(adapter.Code(), res.Saved, res.Failed)
	return res, nil
}

// extract fetches the page, retrying only network-class errors with linear backoff.
func (p *Pipeline) extract(ctx context.Context, adapter source.Adapter, req source.PageRequest) (*source.Page, error) {
	log := logger.FromContext(ctx)
	attempt := 0

	op := func() (*source.Page, error) {
		attempt++
		page, err := adapter.FetchPage(ctx, req)
		if err == nil {
			return page, nil
		}
		if retry.IsPermanent(err) || !IsNetworkError(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, next time.Duration) {
		log.WithError(err).WithFields(logger.Fields{
			logger.FieldAttempt: attempt,
			"retry_in":          next.String(),
		}).Warn("extract failed, retrying")
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(&linearBackOff{step: p.baseDelay}),
		backoff.WithMaxTries(p.maxTries),
		backoff.WithNotify(notify),
	)
}

// load saves records one at a time. It fails only when every record fails.
func (p *Pipeline) load(ctx context.Context, records []entity.Syllabus, res *Result) error {
	var firstErr error
	for i := range records {
		rec := &records[i]
		if err := p.sink.Save(ctx, rec); err != nil {
			res.Failed++
			if firstErr == nil {
				firstErr = err
			}
			if len(res.Errors) < maxReportedErrors {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", rec.CourseID, err))
			}
			continue
		}
		res.Saved++
	}

	if len(records) > 0 && res.Saved == 0 {
		return fmt.Errorf("load: all %d records failed: %w", len(records), firstErr)
	}
	return nil
}

func (p *Pipeline) startLog(ctx context.Context, run *entity.IngestionLog) {
	if p.ingest == nil {
		return
	}
	if err := p.ingest.Start(ctx, run); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("ingestion log start failed")
		run.ID = ""
	}
}

func (p *Pipeline) finishLog(ctx context.Context, run *entity.IngestionLog, status entity.IngestionStatus, res *Result, cause error) {
	if p.ingest == nil || run.ID == "" {
		return
	}
	run.Status = status
	if res != nil {
		run.SavedCount = res.Saved
		run.FailedCount = res.Failed
	}
	if cause != nil {
		run.ErrorMessage = retry.Truncate(cause.Error(), entity.MaxErrorMessageLen)
	}
	if err := p.ingest.Finish(context.WithoutCancel(ctx), run); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("ingestion log finish failed")
	}
}

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }

var _ backoff.BackOff = (*linearBackOff)(nil)
