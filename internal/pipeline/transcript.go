package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/logger"
	"academic-sync-service/internal/metrics"
	"academic-sync-service/internal/repository"
	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/source"
)

// SubmissionStore is the slice of records.SubmissionRepository the processor needs.
type SubmissionStore interface {
	Get(ctx context.Context, id string) (*entity.TranscriptSubmission, error)
	MarkProcessing(ctx context.Context, id string) error
	Finish(ctx context.Context, s *entity.TranscriptSubmission) error
}

type TranscriptSink interface {
	Save(ctx context.Context, t *entity.Transcript) error
}

// TranscriptProcessor turns a stored raw transcript into standardized course rows.
type TranscriptProcessor struct {
	adapters    AdapterResolver
	submissions SubmissionStore
	sink        TranscriptSink
	metrics     *metrics.Metrics
}

func NewTranscriptProcessor(adapters AdapterResolver, submissions SubmissionStore, sink TranscriptSink, m *metrics.Metrics) *TranscriptProcessor {
	return &TranscriptProcessor{adapters: adapters, submissions: submissions, sink: sink, metrics: m}
}

// Handle runs a PROCESS_TRANSCRIPT job. A completed submission is skipped, so a job
// replayed after a crash does not write twice.
func (p *TranscriptProcessor) Handle(ctx context.Context, job entity.Job) error {
	var payload entity.TranscriptPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return retry.Permanent(fmt.Errorf("invalid input: transcript payload: %w", err))
	}
	if payload.SubmissionID == "" {
		return retry.Permanent(errors.New("invalid input: submission id is required"))
	}

	sub, err := p.submissions.Get(ctx, payload.SubmissionID)
	if errors.Is(err, repository.ErrNotFound) {
		return retry.Permanent(fmt.Errorf("submission %s: %w", payload.SubmissionID, err))
	}
	if err != nil {
		return fmt.Errorf("load submission %s: %w", payload.SubmissionID, err)
	}

	ctx = logger.SetSource(ctx, sub.SourceCode)
	ctx = logger.WithField(ctx, "submission_id", sub.ID)
	log := logger.FromContext(ctx)

	if sub.Status == entity.IngestionCompleted {
		log.Info("submission already processed, skipping")
		return nil
	}
	if err := p.submissions.MarkProcessing(ctx, sub.ID); err != nil {
		return fmt.Errorf("mark submission %s processing: %w", sub.ID, err)
	}

	start := time.Now()
	saved, err := p.process(ctx, sub)
	sub.SavedCount = saved
	if err != nil {
		sub.Status = entity.IngestionFailed
		sub.ErrorMessage = retry.Truncate(err.Error(), entity.MaxErrorMessageLen)
		p.finish(ctx, sub)
		log.WithError(err).Error("transcript failed")
		return err
	}

	sub.Status = entity.IngestionCompleted
	sub.ErrorMessage = ""
	p.finish(ctx, sub)
	p.metrics.RecordsLoaded(sub.SourceCode, saved, 0)

	log.WithFields(logger.Fields{
		"saved":                saved,
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info("transcript processed")
	return nil
}

func (p *TranscriptProcessor) process(ctx context.Context, sub *entity.TranscriptSubmission) (int, error) {
	adapter, err := p.adapters.Get(sub.SourceCode)
	if err != nil {
		return 0, err
	}
	norm, err := source.TranscriptNormalizerFor(adapter)
	if err != nil {
		return 0, err
	}
	courses, err := norm.NormalizeTranscript(json.RawMessage(sub.RawData))
	if err != nil {
		return 0, fmt.Errorf("transform transcript: %w", err)
	}

	saved := 0
	for _, c := range courses {
		row := &entity.Transcript{
			SubmissionID: sub.ID,
			SourceCode:   adapter.Code(),
			StudentID:    sub.StudentID,
			CourseCode:   c.CourseCode,
			Semester:     c.Semester,
			CourseName:   c.CourseName,
			Credits:      c.Credits,
			Grade:        c.Grade,
			AcademicYear: c.AcademicYear,
		}
		// rows are upserts, so the retry rewrites whatever landed before the failure
		if err := p.sink.Save(ctx, row); err != nil {
			return saved, fmt.Errorf("load %s %s: %w", c.CourseCode, c.Semester, err)
		}
		saved++
	}
	return saved, nil
}

func (p *TranscriptProcessor) finish(ctx context.Context, sub *entity.TranscriptSubmission) {
	if err := p.submissions.Finish(context.WithoutCancel(ctx), sub); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("submission finish failed")
	}
}
