package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/repository"
	"academic-sync-service/internal/service"
)

type memLogs map[string][]entity.IngestionLog

func (m memLogs) ListByBatch(_ context.Context, batchID string) ([]entity.IngestionLog, error) {
	return m[batchID], nil
}

type memSyllabi struct{ asked [2]string }

func (m *memSyllabi) Get(_ context.Context, sourceCode, courseID string) (*entity.Syllabus, error) {
	m.asked = [2]string{sourceCode, courseID}
	if courseID != "2110101" {
		return nil, repository.ErrNotFound
	}
	return &entity.Syllabus{SourceCode: sourceCode, CourseID: courseID}, nil
}

func TestRecordService_IngestionLogs(t *testing.T) {
	batch := uuid.New()
	svc := service.NewRecordService(memLogs{batch.String(): {{Page: 1}, {Page: 2}}}, &memSyllabi{})

	logs, err := svc.IngestionLogs(context.Background(), batch)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}

	logs, err = svc.IngestionLogs(context.Background(), uuid.New())
	if err != nil || logs == nil || len(logs) != 0 {
		t.Fatalf("expected empty non-nil list, got %v, %v", logs, err)
	}
}

func TestRecordService_Syllabus(t *testing.T) {
	syl := &memSyllabi{}
	svc := service.NewRecordService(memLogs{}, syl)

	s, err := svc.Syllabus(context.Background(), " chula ", "2110101")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if s.SourceCode != "CHULA" || syl.asked != [2]string{"CHULA", "2110101"} {
		t.Fatalf("source code not normalized: %+v", syl.asked)
	}

	if _, err := svc.Syllabus(context.Background(), "CHULA", "nope"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
