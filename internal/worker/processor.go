package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/logger"
	"academic-sync-service/internal/retry"
)

// Handler runs one job of a given type (FETCH_SYLLABUS → pipeline, PROCESS_TRANSCRIPT → transcript
// processor, COORDINATE_SYNC → coordinator).
type Handler interface {
	Handle(ctx context.Context, job entity.Job) error
}

type HandlerFunc func(ctx context.Context, job entity.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job entity.Job) error { return f(ctx, job) }

// Processor dispatches a claimed job to the handler registered for its type.
type Processor struct {
	handlers map[entity.JobType]Handler
}

func NewProcessor() *Processor {
	return &Processor{handlers: make(map[entity.JobType]Handler)}
}

// Register is not safe for concurrent use; call it before the poller starts.
func (p *Processor) Register(typ entity.JobType, h Handler) *Processor {
	p.handlers[typ] = h
	return p
}

// Process runs the job. A panicking handler is turned into an error.
func (p *Processor) Process(ctx context.Context, job entity.Job) (err error) {
	start := time.Now()
	ctx = logger.SetJobID(ctx, job.ID.String())
	if job.BatchID != nil {
		ctx = logger.SetBatchID(ctx, job.BatchID.String())
	}
	log := logger.FromContext(ctx).WithFields(logger.Fields{
		"type":              job.Type,
		logger.FieldAttempt: job.Attempts + 1,
	})

	h, ok := p.handlers[job.Type]
	if !ok {
		return retry.Permanent(fmt.Errorf("invalid input: unknown job type %q", job.Type))
	}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("handler panic: %v", r)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	log.Debug("job started")
	err = h.Handle(ctx, job)

	log = log.WithField(logger.FieldDurationMs, time.Since(start).Milliseconds())
	if err != nil {
		log.WithError(err).Warn("job failed")
		return err
	}
	log.Info("job done")
	return nil
}
