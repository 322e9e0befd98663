package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/lock"
	"academic-sync-service/internal/repository/memory"
	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/service/mocks"
	"academic-sync-service/internal/source"
	sourcemocks "academic-sync-service/internal/source/mocks"
)

var testDay = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

type coordinatorFixture struct {
	store   *memory.JobStore
	locker  *mocks.MockLocker
	adapter *sourcemocks.MockAdapter
	coord   *Coordinator
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	adapter := sourcemocks.NewMockAdapter(ctrl)
	adapter.EXPECT().Code().Return("X").AnyTimes()
	reg, err := source.NewRegistry(adapter)
	require.NoError(t, err)

	store := memory.NewJobStore().WithClock(func() time.Time { return testDay })
	locker := mocks.NewMockLocker(ctrl)

	coord := NewCoordinator(store, locker, reg, CoordinatorConfig{PageSize: 100}, nil)
	coord.now = func() time.Time { return testDay }

	return &coordinatorFixture{store: store, locker: locker, adapter: adapter, coord: coord}
}

// runFn makes the mock locker behave like an uncontended lock.
func runFn(ctx context.Context, _ string, _ time.Duration, fn func(context.Context) error) error {
	return fn(ctx)
}

func threePages() *source.Page {
	return &source.Page{Metadata: source.Metadata{TotalItems: 250, TotalPages: 3, CurrentPage: 1, PageSize: 100, HasNextPage: true}}
}

func TestCoordinate_CreatesOneJobPerPage(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	req := entity.SyncRequest{SourceCode: "x", Year: "2024", Term: "1"}

	f.locker.EXPECT().WithLock(gomock.Any(), "sync:X:2024:1", 5*time.Minute, gomock.Any()).DoAndReturn(runFn)
	f.adapter.EXPECT().
		FetchPage(gomock.Any(), source.PageRequest{Page: 1, PageSize: 100, Year: "2024", Term: "1"}).
		Return(threePages(), nil)

	res, err := f.coord.Coordinate(ctx, req)
	require.NoError(t, err)
	assert.False(t, res.AlreadyExists)
	assert.Equal(t, 3, res.TotalJobs)
	assert.Equal(t, 250, res.TotalItems)
	assert.Equal(t, 1, res.EstimatedMinutes)
	assert.Equal(t, BatchID(req, testDay), res.BatchID)

	jobs, err := f.store.ListByBatch(ctx, res.BatchID, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	for i, j := range jobs {
		assert.Equal(t, entity.StatusPending, j.Status)
		assert.Equal(t, entity.JobTypeFetchSyllabus, j.Type)

		var p entity.PagePayload
		require.NoError(t, json.Unmarshal(j.Payload, &p))
		assert.Equal(t, entity.PagePayload{SourceCode: "X", Page: i + 1, PageSize: 100, Year: "2024", Term: "1"}, p)
	}
}

func TestCoordinate_IsIdempotentWithinADay(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	req := entity.SyncRequest{SourceCode: "X", Year: "2024", Term: "1"}

	f.locker.EXPECT().WithLock(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(runFn).Times(1)
	f.adapter.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Return(threePages(), nil).Times(1)

	first, err := f.coord.Coordinate(ctx, req)
	require.NoError(t, err)

	second, err := f.coord.Coordinate(ctx, entity.SyncRequest{SourceCode: "x", Year: "2024", Term: "1"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyExists)
	assert.Equal(t, first.BatchID, second.BatchID)
	assert.Equal(t, first.TotalJobs, second.TotalJobs)
	require.NotNil(t, second.Stats)
	assert.Equal(t, int64(3), second.Stats.Pending)
}

func TestCoordinate_DoubleCheckInsideLock(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	req := entity.SyncRequest{SourceCode: "X"}
	batchID := BatchID(req, testDay)

	// a concurrent coordinator finishes while we wait for the lock
	f.locker.EXPECT().WithLock(gomock.Any(), "sync:X:all:all", gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
			_, err := f.store.CreateBatch(ctx, []entity.JobIntent{
				{Type: entity.JobTypeFetchSyllabus, BatchID: &batchID},
				{Type: entity.JobTypeFetchSyllabus, BatchID: &batchID},
			})
			require.NoError(t, err)
			return fn(ctx)
		})
	f.adapter.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Times(0)

	res, err := f.coord.Coordinate(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.AlreadyExists)
	assert.Equal(t, 2, res.TotalJobs)
}

func TestCoordinate_LockHeldButBatchAppears(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	req := entity.SyncRequest{SourceCode: "X", Year: "2024"}
	batchID := BatchID(req, testDay)

	f.locker.EXPECT().WithLock(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ time.Duration, _ func(context.Context) error) error {
			_, err := f.store.CreateBatch(ctx, []entity.JobIntent{{Type: entity.JobTypeFetchSyllabus, BatchID: &batchID}})
			require.NoError(t, err)
			return lock.ErrNotAcquired
		})

	res, err := f.coord.Coordinate(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.AlreadyExists)
	assert.Equal(t, batchID, res.BatchID)
	assert.Contains(t, res.Message, "concurrent")
}

func TestCoordinate_LockHeldAndNoBatch(t *testing.T) {
	f := newCoordinatorFixture(t)

	f.locker.EXPECT().WithLock(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(lock.ErrNotAcquired)

	_, err := f.coord.Coordinate(context.Background(), entity.SyncRequest{SourceCode: "X"})
	require.ErrorIs(t, err, ErrCoordinationInProgress)
	assert.False(t, retry.IsPermanent(err))
}

func TestCoordinate_UnknownSourceFailsBeforeLocking(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.locker.EXPECT().WithLock(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := f.coord.Coordinate(context.Background(), entity.SyncRequest{SourceCode: "MIT"})
	require.ErrorIs(t, err, source.ErrUnknownSource)
	assert.True(t, retry.IsPermanent(err))

	_, err = f.coord.Coordinate(context.Background(), entity.SyncRequest{})
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
}

func TestCoordinate_DiscoveryErrorPropagates(t *testing.T) {
	f := newCoordinatorFixture(t)
	ctx := context.Background()
	req := entity.SyncRequest{SourceCode: "X"}

	f.locker.EXPECT().WithLock(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(runFn)
	f.adapter.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))

	_, err := f.coord.Coordinate(ctx, req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discover pages")

	stats, err := f.store.BatchStats(ctx, BatchID(req, testDay))
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestCoordinate_NoData(t *testing.T) {
	f := newCoordinatorFixture(t)

	f.locker.EXPECT().WithLock(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(runFn)
	f.adapter.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Return(&source.Page{}, nil)

	res, err := f.coord.Coordinate(context.Background(), entity.SyncRequest{SourceCode: "X"})
	require.NoError(t, err)
	assert.Zero(t, res.TotalJobs)
	assert.False(t, res.AlreadyExists)
}

func TestCoordinatorHandle(t *testing.T) {
	f := newCoordinatorFixture(t)

	f.locker.EXPECT().WithLock(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(lock.ErrNotAcquired)

	payload, err := json.Marshal(entity.SyncRequest{SourceCode: "X", Year: "2024"})
	require.NoError(t, err)

	err = f.coord.Handle(context.Background(), entity.Job{Type: entity.JobTypeCoordinateSync, Payload: payload})
	require.ErrorIs(t, err, ErrCoordinationInProgress)

	err = f.coord.Handle(context.Background(), entity.Job{Payload: json.RawMessage(`[]`)})
	assert.True(t, retry.IsPermanent(err))
}

func TestBatchIDIsDeterministic(t *testing.T) {
	req := entity.SyncRequest{SourceCode: "chula", Year: "2024", Term: "1"}
	later := testDay.Add(10 * time.Hour) // same UTC day

	assert.Equal(t, BatchID(req, testDay), BatchID(req, later))
	assert.Equal(t, BatchID(req, testDay), BatchID(entity.SyncRequest{SourceCode: "CHULA", Year: "2024", Term: "1"}, testDay))
	assert.NotEqual(t, BatchID(req, testDay), BatchID(req, testDay.Add(24*time.Hour)))
	assert.NotEqual(t, BatchID(req, testDay), BatchID(entity.SyncRequest{SourceCode: "CHULA", Year: "2024"}, testDay))

	assert.Equal(t, "sync:CHULA:2024:1", LockKey(req))
	assert.Equal(t, "sync:CHULA:all:all", LockKey(entity.SyncRequest{SourceCode: "chula"}))
}
