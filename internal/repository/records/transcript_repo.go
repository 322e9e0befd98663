package records

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/repository"
)

type SubmissionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db, now: time.Now}
}

// Create stores a new PENDING submission and assigns its id.
func (r *SubmissionRepository) Create(ctx context.Context, s *entity.TranscriptSubmission) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Status = entity.IngestionPending
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *SubmissionRepository) Get(ctx context.Context, id string) (*entity.TranscriptSubmission, error) {
	var s entity.TranscriptSubmission
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubmissionRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]interface{}{"status": entity.IngestionProcessing})
}

// Finish stores the final status, the saved count and the error of a submission.
func (r *SubmissionRepository) Finish(ctx context.Context, s *entity.TranscriptSubmission) error {
	now := r.now()
	s.ProcessedAt = &now
	return r.update(ctx, s.ID, map[string]interface{}{
		"status":        s.Status,
		"saved_count":   s.SavedCount,
		"error_message": s.ErrorMessage,
		"processed_at":  now,
	})
}

func (r *SubmissionRepository) update(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&entity.TranscriptSubmission{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type TranscriptRepository struct {
	db *gorm.DB
}

func NewTranscriptRepository(db *gorm.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// Save upserts one course result keyed by (source_code, student_id, course_code, semester).
// A later submission for the same course and semester overwrites grade and credits.
func (r *TranscriptRepository) Save(ctx context.Context, t *entity.Transcript) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "source_code"}, {Name: "student_id"}, {Name: "course_code"}, {Name: "semester"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"submission_id", "course_name", "credits", "grade", "academic_year", "updated_at",
		}),
	}).Create(t).Error
}

func (r *TranscriptRepository) ListBySubmission(ctx context.Context, submissionID string) ([]entity.Transcript, error) {
	var out []entity.Transcript
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("semester ASC, course_code ASC").
		Find(&out).Error
	return out, err
}
