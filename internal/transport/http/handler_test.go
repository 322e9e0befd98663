package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/lock"
	"academic-sync-service/internal/metrics"
	"academic-sync-service/internal/repository"
	"academic-sync-service/internal/repository/memory"
	"academic-sync-service/internal/retry"
	"academic-sync-service/internal/service"
	"academic-sync-service/internal/source"
	httptransport "academic-sync-service/internal/transport/http"
)

// ---- fakes ----

type lockerStub struct {
	busy bool
}

func (l *lockerStub) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if l.busy {
		return lock.ErrNotAcquired
	}
	return fn(ctx)
}

// adapterStub reports 250 items in pages of 100
type adapterStub struct{}

func (adapterStub) Code() string { return "X" }

func (adapterStub) FetchPage(ctx context.Context, req source.PageRequest) (*source.Page, error) {
	return &source.Page{Metadata: source.NewMetadata(250, req.Page, req.PageSize)}, nil
}

func (adapterStub) Normalize(items []json.RawMessage, f source.Filters) ([]entity.Syllabus, error) {
	return nil, nil
}

// transcriptStub accepts transcripts for source "T"
type transcriptStub struct{ adapterStub }

func (transcriptStub) Code() string { return "T" }

func (transcriptStub) NormalizeTranscript(raw json.RawMessage) ([]source.TranscriptCourse, error) {
	return nil, nil
}

type logsStub map[string][]entity.IngestionLog

func (l logsStub) ListByBatch(ctx context.Context, batchID string) ([]entity.IngestionLog, error) {
	return l[batchID], nil
}

type syllabiStub map[string]entity.Syllabus

func (s syllabiStub) Get(ctx context.Context, sourceCode, courseID string) (*entity.Syllabus, error) {
	rec, ok := s[sourceCode+"/"+courseID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

type submissionsStub map[string]*entity.TranscriptSubmission

func (s submissionsStub) Create(ctx context.Context, sub *entity.TranscriptSubmission) error {
	sub.ID = fmt.Sprintf("sub-%d", len(s)+1)
	sub.Status = entity.IngestionPending
	s[sub.ID] = sub
	return nil
}

func (s submissionsStub) Get(ctx context.Context, id string) (*entity.TranscriptSubmission, error) {
	sub, ok := s[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return sub, nil
}

type coursesStub struct{}

func (coursesStub) ListBySubmission(ctx context.Context, id string) ([]entity.Transcript, error) {
	return nil, nil
}

// ---- helpers ----

type testEnv struct {
	store  *memory.JobStore
	locker *lockerStub
	logs   logsStub
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	reg, err := source.NewRegistry(adapterStub{}, transcriptStub{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	m, err := metrics.New()
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	store := memory.NewJobStore()
	locker := &lockerStub{}
	coord := service.NewCoordinator(store, locker, reg, service.CoordinatorConfig{PageSize: 100}, m)
	logs := logsStub{}
	syllabi := syllabiStub{"X/2110101": {SourceCode: "X", CourseID: "2110101", CourseTitleEn: "Computer Programming"}}
	h := httptransport.NewHandler(
		service.NewJobService(store, reg),
		coord,
		service.NewRecordService(logs, syllabi),
		service.NewTranscriptService(store, reg, submissionsStub{}, coursesStub{}),
	)

	return &testEnv{store: store, locker: locker, logs: logs, router: httptransport.Routes(h, m.Handler())}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid json response: %v, body=%s", err, rr.Body.String())
	}
}

// ---- tests ----

func TestHTTP_Coordinate_202_Then_200(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/syncs", `{"source_code":"x","year":"2024","term":"1"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var first service.CoordinateResult
	decode(t, rr, &first)
	if first.TotalJobs != 3 || first.TotalItems != 250 || first.AlreadyExists {
		t.Fatalf("unexpected result %#v", first)
	}

	// повторный запрос в тот же день не создаёт новых задач
	rr = env.do(http.MethodPost, "/syncs", `{"source_code":"X","year":"2024","term":"1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var second service.CoordinateResult
	decode(t, rr, &second)
	if !second.AlreadyExists || second.BatchID != first.BatchID {
		t.Fatalf("expected existing batch %s, got %#v", first.BatchID, second)
	}
}

func TestHTTP_Coordinate_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{"source_code":`, http.StatusBadRequest},
		{"missing source", `{"year":"2024"}`, http.StatusBadRequest},
		{"unknown source", `{"source_code":"MIT"}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		rr := env.do(http.MethodPost, "/syncs", tc.body)
		if rr.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d, body=%s", tc.name, tc.code, rr.Code, rr.Body.String())
		}
	}
}

func TestHTTP_Coordinate_503_WhenLockHeld(t *testing.T) {
	env := newTestEnv(t)
	env.locker.busy = true

	rr := env.do(http.MethodPost, "/syncs", `{"source_code":"X"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestHTTP_BatchStatus(t *testing.T) {
	env := newTestEnv(t)

	var res service.CoordinateResult
	decode(t, env.do(http.MethodPost, "/syncs", `{"source_code":"X"}`), &res)

	rr := env.do(http.MethodGet, "/batches/"+res.BatchID.String(), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var st service.BatchStatus
	decode(t, rr, &st)
	if st.Stats.Total != 3 || st.Stats.Pending != 3 || st.Progress != 0 || st.IsComplete {
		t.Fatalf("unexpected status %#v", st)
	}

	if rr := env.do(http.MethodGet, "/batches/"+uuid.NewString(), ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := env.do(http.MethodGet, "/batches/not-a-uuid", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHTTP_ListJobs_FilterAndRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var res service.CoordinateResult
	decode(t, env.do(http.MethodPost, "/syncs", `{"source_code":"X"}`), &res)

	jobs, err := env.store.FindEligible(ctx, 1)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("expected one eligible job, got %d (%v)", len(jobs), err)
	}
	token, ok, _ := env.store.Claim(ctx, jobs[0].ID)
	if !ok {
		t.Fatalf("claim failed")
	}
	if _, err := env.store.Fail(ctx, jobs[0].ID, token, retry.Permanent(errors.New("bad page"))); err != nil {
		t.Fatalf("fail: %v", err)
	}

	rr := env.do(http.MethodGet, "/batches/"+res.BatchID.String()+"/jobs?status=failed", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var list struct {
		Jobs []map[string]any `json:"jobs"`
	}
	decode(t, rr, &list)
	if len(list.Jobs) != 1 || list.Jobs[0]["status"] != "FAILED" || list.Jobs[0]["error"] != "bad page" {
		t.Fatalf("unexpected jobs %#v", list.Jobs)
	}

	if rr := env.do(http.MethodGet, "/batches/"+res.BatchID.String()+"/jobs?status=done", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}

	rr = env.do(http.MethodPost, "/batches/"+res.BatchID.String()+"/retry", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var reset struct {
		Reset int64 `json:"reset"`
	}
	decode(t, rr, &reset)
	if reset.Reset != 1 {
		t.Fatalf("expected 1 reset job, got %d", reset.Reset)
	}

	j, err := env.store.GetByID(ctx, jobs[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if j.Status != entity.StatusPending || j.Attempts != 0 {
		t.Fatalf("expected PENDING with 0 attempts, got %s/%d", j.Status, j.Attempts)
	}
}

func TestHTTP_Enqueue_ThenGetJob(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/syncs/enqueue", `{"source_code":"x","year":"2024"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		JobID string `json:"job_id"`
	}
	decode(t, rr, &resp)

	rr = env.do(http.MethodGet, "/jobs/"+resp.JobID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var got map[string]any
	decode(t, rr, &got)
	if got["job_type"] != string(entity.JobTypeCoordinateSync) || got["status"] != "PENDING" {
		t.Fatalf("unexpected job %#v", got)
	}

	if rr := env.do(http.MethodGet, "/jobs/"+uuid.NewString(), ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := env.do(http.MethodPost, "/syncs/enqueue", `{"source_code":"MIT"}`); rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rr.Code, rr.Body.String())
	}

	_ = env.do(http.MethodPost, "/syncs", `{"source_code":"X"}`)

	rr = env.do(http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `sync_batches_created_total{source="X"} 1`) {
		t.Fatalf("batch counter missing from metrics output")
	}
}

func TestHTTP_IngestionLogsAndSyllabus(t *testing.T) {
	env := newTestEnv(t)
	batch := uuid.New()
	env.logs[batch.String()] = []entity.IngestionLog{
		{SourceCode: "X", BatchID: batch.String(), Page: 1, Status: entity.IngestionCompleted, SavedCount: 100},
		{SourceCode: "X", BatchID: batch.String(), Page: 2, Status: entity.IngestionFailed, ErrorMessage: "timeout"},
	}

	rr := env.do(http.MethodGet, "/batches/"+batch.String()+"/ingestion-logs", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var logs struct {
		Logs []entity.IngestionLog `json:"logs"`
	}
	decode(t, rr, &logs)
	if len(logs.Logs) != 2 || logs.Logs[1].Status != entity.IngestionFailed {
		t.Fatalf("unexpected logs %#v", logs.Logs)
	}

	rr = env.do(http.MethodGet, "/batches/"+uuid.NewString()+"/ingestion-logs", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"logs":[]`) {
		t.Fatalf("expected empty list, got %d %s", rr.Code, rr.Body.String())
	}

	rr = env.do(http.MethodGet, "/syllabi/x/2110101", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var syl entity.Syllabus
	decode(t, rr, &syl)
	if syl.CourseTitleEn != "Computer Programming" {
		t.Fatalf("unexpected syllabus %#v", syl)
	}

	if rr := env.do(http.MethodGet, "/syllabi/X/missing", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestHTTP_SubmitTranscript_ThenGet(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/transcripts", `{"source_code":"t","student_id":"6430000021","data":{"courses":[]}}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var res service.SubmitResult
	decode(t, rr, &res)

	j, err := env.store.GetByID(context.Background(), res.JobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if j.Type != entity.JobTypeProcessTranscript || j.Status != entity.StatusPending {
		t.Fatalf("unexpected job %s/%s", j.Type, j.Status)
	}

	rr = env.do(http.MethodGet, "/transcripts/"+res.SubmissionID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}
	var d service.TranscriptDetail
	decode(t, rr, &d)
	if d.Submission.StudentID != "6430000021" || d.Submission.Status != entity.IngestionPending {
		t.Fatalf("unexpected submission %#v", d.Submission)
	}

	cases := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{"source_code":`, http.StatusBadRequest},
		{"missing student", `{"source_code":"T","data":{}}`, http.StatusBadRequest},
		{"unknown source", `{"source_code":"MIT","student_id":"1","data":{}}`, http.StatusUnprocessableEntity},
		{"no transcript support", `{"source_code":"X","student_id":"1","data":{}}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		rr := env.do(http.MethodPost, "/transcripts", tc.body)
		if rr.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d, body=%s", tc.name, tc.code, rr.Code, rr.Body.String())
		}
	}

	if rr := env.do(http.MethodGet, "/transcripts/nope", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
