package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/source"
)

// SubmissionStore is implemented by records.SubmissionRepository.
type SubmissionStore interface {
	Create(ctx context.Context, s *entity.TranscriptSubmission) error
	Get(ctx context.Context, id string) (*entity.TranscriptSubmission, error)
}

// TranscriptReader is implemented by records.TranscriptRepository.
type TranscriptReader interface {
	ListBySubmission(ctx context.Context, submissionID string) ([]entity.Transcript, error)
}

// TranscriptService accepts raw transcripts and hands them to workers through the outbox.
type TranscriptService struct {
	jobs        JobStore
	adapters    AdapterResolver
	submissions SubmissionStore
	transcripts TranscriptReader
}

func NewTranscriptService(jobs JobStore, adapters AdapterResolver, submissions SubmissionStore, transcripts TranscriptReader) *TranscriptService {
	return &TranscriptService{jobs: jobs, adapters: adapters, submissions: submissions, transcripts: transcripts}
}

type TranscriptSubmit struct {
	SourceCode string          `json:"source_code"`
	StudentID  string          `json:"student_id"`
	Data       json.RawMessage `json:"data" swaggertype:"object"`
}

type SubmitResult struct {
	SubmissionID string    `json:"submission_id"`
	JobID        uuid.UUID `json:"job_id"`
}

type TranscriptDetail struct {
	Submission *entity.TranscriptSubmission `json:"submission"`
	Courses    []entity.Transcript          `json:"courses"`
}

// Submit stores the raw transcript as PENDING and enqueues a PROCESS_TRANSCRIPT job for it.
// If the enqueue fails the submission stays PENDING and can be resubmitted.
func (s *TranscriptService) Submit(ctx context.Context, req TranscriptSubmit) (*SubmitResult, error) {
	req.SourceCode = source.NormalizeCode(req.SourceCode)
	req.StudentID = strings.TrimSpace(req.StudentID)
	switch {
	case req.SourceCode == "":
		return nil, retry.Permanent(errSourceRequired)
	case req.StudentID == "":
		return nil, retry.Permanent(fmt.Errorf("%w: student_id is required", ErrInvalidInput))
	case len(req.Data) == 0 || !json.Valid(req.Data):
		return nil, retry.Permanent(fmt.Errorf("%w: data must be a JSON document", ErrInvalidInput))
	}

	adapter, err := s.adapters.Get(req.SourceCode)
	if err != nil {
		return nil, err
	}
	if _, err := source.TranscriptNormalizerFor(adapter); err != nil {
		return nil, err
	}

	sub := &entity.TranscriptSubmission{
		SourceCode: req.SourceCode,
		StudentID:  req.StudentID,
		RawData:    entity.RawJSON(req.Data),
	}
	if err := s.submissions.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("store submission: %w", err)
	}

	payload, err := json.Marshal(entity.TranscriptPayload{SubmissionID: sub.ID})
	if err != nil {
		return nil, err
	}
	ids, err := s.jobs.CreateBatch(ctx, []entity.JobIntent{{
		Type:    entity.JobTypeProcessTranscript,
		Payload: payload,
	}})
	if err != nil {
		return nil, fmt.Errorf("enqueue submission %s: %w", sub.ID, err)
	}
	return &SubmitResult{SubmissionID: sub.ID, JobID: ids[0]}, nil
}

// Get returns the submission with the course rows processed from it so far.
func (s *TranscriptService) Get(ctx context.Context, id string) (*TranscriptDetail, error) {
	sub, err := s.submissions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	courses, err := s.transcripts.ListBySubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if courses == nil {
		courses = []entity.Transcript{}
	}
	return &TranscriptDetail{Submission: sub, Courses: courses}, nil
}
