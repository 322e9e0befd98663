package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusProcessing JobStatus = "PROCESSING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type JobType string

const (
	JobTypeFetchSyllabus     JobType = "FETCH_SYLLABUS"
	JobTypeCoordinateSync    JobType = "COORDINATE_SYNC"
	JobTypeProcessTranscript JobType = "PROCESS_TRANSCRIPT"
)

// DefaultMaxAttempts is used when a JobIntent leaves MaxAttempts unset.
const DefaultMaxAttempts = 5

// MaxErrorMessageLen bounds Job.ErrorMessage (in runes).
const MaxErrorMessageLen = 2000

type Job struct {
	ID           uuid.UUID       `json:"id"`
	Type         JobType         `json:"job_type"`
	BatchID      *uuid.UUID      `json:"batch_id,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	Status       JobStatus       `json:"status"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"max_attempts"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// JobIntent is everything needed to insert a job row.
type JobIntent struct {
	Type        JobType
	BatchID     *uuid.UUID
	Payload     json.RawMessage
	MaxAttempts int
	ScheduledAt time.Time
}

// Normalize fills defaults in place: max attempts, empty payload, scheduled_at = now.
func (i *JobIntent) Normalize(now time.Time) {
	if i.MaxAttempts <= 0 {
		i.MaxAttempts = DefaultMaxAttempts
	}
	if len(i.Payload) == 0 {
		i.Payload = json.RawMessage(`{}`)
	}
	if i.ScheduledAt.IsZero() {
		i.ScheduledAt = now
	}
}

type BatchStats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Progress is the rounded percentage of jobs in a terminal state.
func (s BatchStats) Progress() int {
	if s.Total == 0 {
		return 0
	}
	done := s.Completed + s.Failed
	return int((done*100 + s.Total/2) / s.Total)
}

func (s BatchStats) IsComplete() bool {
	return s.Total > 0 && s.Completed+s.Failed == s.Total
}

// SyncRequest identifies one logical sync: a source, optionally narrowed by year and term.
type SyncRequest struct {
	SourceCode string `json:"source_code"`
	Year       string `json:"year,omitempty"`
	Term       string `json:"term,omitempty"`
}

// PagePayload is the payload of a FETCH_SYLLABUS job.
type PagePayload struct {
	SourceCode string `json:"source_code"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	Year       string `json:"year,omitempty"`
	Term       string `json:"term,omitempty"`
}

// TranscriptPayload is the payload of a PROCESS_TRANSCRIPT job.
type TranscriptPayload struct {
	SubmissionID string `json:"submission_id"`
}
