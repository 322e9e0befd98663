package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/repository"
	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/service"
	"academic-sync-service/internal/source"
)

type fakeStore struct {
	stats      entity.BatchStats
	retried    int64
	created    [][]entity.JobIntent
	createID   uuid.UUID
	createErr  error
	listStatus *entity.JobStatus
}

func (s *fakeStore) CreateBatch(ctx context.Context, intents []entity.JobIntent) ([]uuid.UUID, error) {
	s.created = append(s.created, intents)
	if s.createErr != nil {
		return nil, s.createErr
	}
	return []uuid.UUID{s.createID}, nil
}

func (s *fakeStore) BatchStats(ctx context.Context, batchID uuid.UUID) (entity.BatchStats, error) {
	return s.stats, nil
}

func (s *fakeStore) RetryFailed(ctx context.Context, batchID uuid.UUID) (int64, error) {
	return s.retried, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return nil, repository.ErrNotFound
}

func (s *fakeStore) ListByBatch(ctx context.Context, batchID uuid.UUID, status *entity.JobStatus) ([]entity.Job, error) {
	s.listStatus = status
	return nil, nil
}

type fakeResolver struct{}

// Только код "X" считается известным
func (fakeResolver) Get(code string) (source.Adapter, error) {
	if code != "X" {
		return nil, retry.Permanent(source.ErrUnknownSource)
	}
	return nil, nil
}

func TestJobService_BatchStatus(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{stats: entity.BatchStats{Total: 4, Pending: 1, Completed: 2, Failed: 1}}
	svc := service.NewJobService(store, fakeResolver{})

	st, err := svc.BatchStatus(ctx, uuid.New())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if st.Progress != 75 {
		t.Fatalf("expected progress=75, got %d", st.Progress)
	}
	if st.IsComplete {
		t.Fatalf("expected incomplete batch")
	}
}

func TestJobService_BatchStatus_UnknownBatch(t *testing.T) {
	svc := service.NewJobService(&fakeStore{}, fakeResolver{})

	_, err := svc.BatchStatus(context.Background(), uuid.New())
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobService_RetryFailedJobs(t *testing.T) {
	svc := service.NewJobService(&fakeStore{retried: 3}, fakeResolver{})

	n, err := svc.RetryFailedJobs(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 reset jobs, got %d", n)
	}
}

func TestJobService_Enqueue(t *testing.T) {
	id := uuid.MustParse("66666666-6666-6666-6666-666666666666")
	store := &fakeStore{createID: id}
	svc := service.NewJobService(store, fakeResolver{})

	got, err := svc.Enqueue(context.Background(), entity.SyncRequest{SourceCode: " x ", Year: "2024"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got != id {
		t.Fatalf("expected id %s, got %s", id, got)
	}
	if len(store.created) != 1 || len(store.created[0]) != 1 {
		t.Fatalf("expected one intent, got %#v", store.created)
	}

	in := store.created[0][0]
	if in.Type != entity.JobTypeCoordinateSync {
		t.Fatalf("expected COORDINATE_SYNC, got %s", in.Type)
	}
	if in.BatchID != nil {
		t.Fatalf("expected no batch id")
	}
	var req entity.SyncRequest
	if err := json.Unmarshal(in.Payload, &req); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if req.SourceCode != "X" || req.Year != "2024" {
		t.Fatalf("unexpected payload %#v", req)
	}
}

func TestJobService_Enqueue_UnknownSource(t *testing.T) {
	store := &fakeStore{}
	svc := service.NewJobService(store, fakeResolver{})

	_, err := svc.Enqueue(context.Background(), entity.SyncRequest{SourceCode: "MIT"})
	if !errors.Is(err, source.ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
	if len(store.created) != 0 {
		t.Fatalf("nothing must be enqueued for unknown source")
	}
}

func TestJobService_ListJobs_RejectsBadStatus(t *testing.T) {
	store := &fakeStore{}
	svc := service.NewJobService(store, fakeResolver{})

	bad := entity.JobStatus("DONE")
	if _, err := svc.ListJobs(context.Background(), uuid.New(), &bad); !retry.IsPermanent(err) {
		t.Fatalf("expected permanent error, got %v", err)
	}

	ok := entity.StatusFailed
	if _, err := svc.ListJobs(context.Background(), uuid.New(), &ok); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if store.listStatus == nil || *store.listStatus != entity.StatusFailed {
		t.Fatalf("status filter not passed through")
	}
}
