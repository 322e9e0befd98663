package service

import (
	"context"

	"github.com/google/uuid"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/source"
)

// IngestionLogReader is implemented by records.IngestionLogRepository.
type IngestionLogReader interface {
	ListByBatch(ctx context.Context, batchID string) ([]entity.IngestionLog, error)
}

// SyllabusReader is implemented by records.SyllabusRepository.
type SyllabusReader interface {
	Get(ctx context.Context, sourceCode, courseID string) (*entity.Syllabus, error)
}

// RecordService reads what the page jobs loaded.
type RecordService struct {
	logs    IngestionLogReader
	syllabi SyllabusReader
}

func NewRecordService(logs IngestionLogReader, syllabi SyllabusReader) *RecordService {
	return &RecordService{logs: logs, syllabi: syllabi}
}

// IngestionLogs lists the page runs of a batch. An unknown batch yields an empty list.
func (s *RecordService) IngestionLogs(ctx context.Context, batchID uuid.UUID) ([]entity.IngestionLog, error) {
	logs, err := s.logs.ListByBatch(ctx, batchID.String())
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []entity.IngestionLog{}
	}
	return logs, nil
}

func (s *RecordService) Syllabus(ctx context.Context, sourceCode, courseID string) (*entity.Syllabus, error) {
	return s.syllabi.Get(ctx, source.NormalizeCode(sourceCode), courseID)
}
