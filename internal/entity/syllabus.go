package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// RawJSON stores an arbitrary JSON document in a text column.
type RawJSON json.RawMessage

// Value implements driver.Valuer.
func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "{}", nil
	}
	return string(r), nil
}

// Scan implements sql.Scanner.
func (r *RawJSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*r = RawJSON(`{}`)
	case []byte:
		*r = append((*r)[:0], v...)
	case string:
		*r = RawJSON(v)
	default:
		return errors.New("failed to scan RawJSON")
	}
	return nil
}

// MarshalJSON keeps the stored document verbatim.
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RawJSON) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

// Syllabus is the standardized course syllabus record every source adapter normalizes into.
// Records are keyed by (source_code, course_id) so re-running a page upserts instead of duplicating.
type Syllabus struct {
	ID               string    `gorm:"type:text;primaryKey" json:"id"`
	SourceCode       string    `gorm:"type:text;not null;index:idx_syllabi_course,unique" json:"source_code"`
	CourseID         string    `gorm:"type:text;not null;index:idx_syllabi_course,unique" json:"course_id"`
	CourseNo         string    `gorm:"type:text" json:"course_no"`
	CourseTitleTh    string    `gorm:"type:text" json:"course_title_th"`
	CourseTitleEn    string    `gorm:"type:text" json:"course_title_en"`
	Credits          string    `gorm:"type:text" json:"credits"`
	SchoolID         int       `json:"school_id"`
	SchoolNameTh     string    `gorm:"type:text" json:"school_name_th"`
	SchoolNameEn     string    `gorm:"type:text" json:"school_name_en"`
	DepartmentID     int       `json:"department_id"`
	DepartmentNameTh string    `gorm:"type:text" json:"department_name_th"`
	DepartmentNameEn string    `gorm:"type:text" json:"department_name_en"`
	AcademicYear     string    `gorm:"type:text;index:idx_syllabi_term" json:"academic_year"`
	Term             string    `gorm:"type:text;index:idx_syllabi_term" json:"term"`
	RawData          RawJSON   `gorm:"type:text" json:"raw_data"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Syllabus) TableName() string {
	return "syllabi"
}

type IngestionStatus string

const (
	IngestionPending    IngestionStatus = "PENDING"
	IngestionProcessing IngestionStatus = "PROCESSING"
	IngestionCompleted  IngestionStatus = "COMPLETED"
	IngestionFailed     IngestionStatus = "FAILED"
)

// IngestionLog is the audit row written for every ETL run of one page.
type IngestionLog struct {
	ID           string          `gorm:"type:text;primaryKey" json:"id"`
	SourceCode   string          `gorm:"type:text;not null;index" json:"source_code"`
	BatchID      string          `gorm:"type:text;index" json:"batch_id,omitempty"`
	JobID        string          `gorm:"type:text;index" json:"job_id,omitempty"`
	Page         int             `json:"page"`
	Status       IngestionStatus `gorm:"type:text;not null" json:"status"`
	SavedCount   int             `json:"saved_count"`
	FailedCount  int             `json:"failed_count"`
	ErrorMessage string          `gorm:"type:text" json:"error_message,omitempty"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (IngestionLog) TableName() string {
	return "ingestion_logs"
}
