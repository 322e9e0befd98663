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

type SyllabusRepository struct {
	db *gorm.DB
}

func NewSyllabusRepository(db *gorm.DB) *SyllabusRepository {
	return &SyllabusRepository{db: db}
}

// Save upserts one record keyed by (source_code, course_id), so replaying a page is harmless.
func (r *SyllabusRepository) Save(ctx context.Context, s *entity.Syllabus) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_code"}, {Name: "course_id"}},
		UpdateAll: true,
	}).Create(s).Error
}

func (r *SyllabusRepository) Get(ctx context.Context, sourceCode, courseID string) (*entity.Syllabus, error) {
	var s entity.Syllabus
	err := r.db.WithContext(ctx).
		Where("source_code = ? AND course_id = ?", sourceCode, courseID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type IngestionLogRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewIngestionLogRepository(db *gorm.DB) *IngestionLogRepository {
	return &IngestionLogRepository{db: db, now: time.Now}
}

// Start inserts a PROCESSING row and assigns its id.
func (r *IngestionLogRepository) Start(ctx context.Context, l *entity.IngestionLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.Status = entity.IngestionProcessing
	return r.db.WithContext(ctx).Create(l).Error
}

// Finish stores the final status and counters of a row created by Start.
func (r *IngestionLogRepository) Finish(ctx context.Context, l *entity.IngestionLog) error {
	now := r.now()
	l.ProcessedAt = &now

	res := r.db.WithContext(ctx).Model(&entity.IngestionLog{}).
		Where("id = ?", l.ID).
		Updates(map[string]interface{}{
			"status":        l.Status,
			"saved_count":   l.SavedCount,
			"failed_count":  l.FailedCount,
			"error_message": l.ErrorMessage,
			"processed_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByBatch returns the page logs of one batch in page order.
func (r *IngestionLogRepository) ListByBatch(ctx context.Context, batchID string) ([]entity.IngestionLog, error) {
	var logs []entity.IngestionLog
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("page ASC, created_at ASC").
		Find(&logs).Error
	return logs, err
}
