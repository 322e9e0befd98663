package entity

import "time"

// TranscriptSubmission is a raw student transcript as received from an institution.
// It is append-only: processing only moves its status and counters.
type TranscriptSubmission struct {
	ID           string          `gorm:"type:text;primaryKey" json:"id"`
	SourceCode   string          `gorm:"type:text;not null;index" json:"source_code"`
	StudentID    string          `gorm:"type:text;not null;index" json:"student_id"`
	RawData      RawJSON         `gorm:"type:text" json:"raw_data"`
	Status       IngestionStatus `gorm:"type:text;not null" json:"status"`
	SavedCount   int             `json:"saved_count"`
	ErrorMessage string          `gorm:"type:text" json:"error_message,omitempty"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (TranscriptSubmission) TableName() string {
	return "transcript_submissions"
}

// Transcript is one standardized course result of a student.
// A student has one row per (source, course, semester), so reprocessing upserts.
type Transcript struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	SubmissionID string    `gorm:"type:text;not null;index" json:"submission_id"`
	SourceCode   string    `gorm:"type:text;not null;index:idx_transcripts_course,unique" json:"source_code"`
	StudentID    string    `gorm:"type:text;not null;index:idx_transcripts_course,unique" json:"student_id"`
	CourseCode   string    `gorm:"type:text;not null;index:idx_transcripts_course,unique" json:"course_code"`
	Semester     string    `gorm:"type:text;not null;index:idx_transcripts_course,unique" json:"semester"`
	CourseName   string    `gorm:"type:text" json:"course_name"`
	Credits      float64   `json:"credits"`
	Grade        string    `gorm:"type:text" json:"grade"`
	AcademicYear int       `json:"academic_year"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Transcript) TableName() string {
	return "transcripts"
}
