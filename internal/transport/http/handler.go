package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/service"
)

// Coordinator is satisfied by *service.Coordinator.
type Coordinator interface {
	Coordinate(ctx context.Context, req entity.SyncRequest) (*service.CoordinateResult, error)
}

type Handler struct {
	jobSvc      *service.JobService
	coord       Coordinator
	records     *service.RecordService
	transcripts *service.TranscriptService
}

func NewHandler(jobSvc *service.JobService, coord Coordinator, records *service.RecordService, transcripts *service.TranscriptService) *Handler {
	return &Handler{jobSvc: jobSvc, coord: coord, records: records, transcripts: transcripts}
}

type syncRequestDTO struct {
	SourceCode string `json:"source_code"`
	Year       string `json:"year,omitempty"`
	Term       string `json:"term,omitempty"`
}

type enqueueResp struct {
	JobID string `json:"job_id"`
}

type jobResp struct {
	ID          string           `json:"id"`
	Type        entity.JobType   `json:"job_type"`
	BatchID     *string          `json:"batch_id,omitempty"`
	Status      entity.JobStatus `json:"status"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"max_attempts"`
	Payload     json.RawMessage  `json:"payload"`
	Error       *string          `json:"error,omitempty"`
	ScheduledAt string           `json:"scheduled_at"`
	ProcessedAt *string          `json:"processed_at,omitempty"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
}

type jobListResp struct {
	BatchID string    `json:"batch_id"`
	Jobs    []jobResp `json:"jobs"`
}

type retryResp struct {
	BatchID string `json:"batch_id"`
	Reset   int64  `json:"reset"`
}

func toJobResp(j entity.Job) jobResp {
	resp := jobResp{
		ID:          j.ID.String(),
		Type:        j.Type,
		Status:      j.Status,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		Payload:     j.Payload,
		Error:       j.ErrorMessage,
		ScheduledAt: j.ScheduledAt.Format(time.RFC3339),
		CreatedAt:   j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   j.UpdatedAt.Format(time.RFC3339),
	}
	if j.BatchID != nil {
		s := j.BatchID.String()
		resp.BatchID = &s
	}
	if j.ProcessedAt != nil {
		s := j.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &s
	}
	return resp
}

func decodeSyncRequest(r *http.Request) (entity.SyncRequest, bool) {
	var dto syncRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		return entity.SyncRequest{}, false
	}
	return entity.SyncRequest{
		SourceCode: strings.TrimSpace(dto.SourceCode),
		Year:       strings.TrimSpace(dto.Year),
		Term:       strings.TrimSpace(dto.Term),
	}, true
}

func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// Coordinate godoc
// @Summary Coordinate a sync
// @Description Creates one FETCH_SYLLABUS job per source page, at most once per source/year/term per day.
// @Tags syncs
// @Accept json
// @Produce json
// @Param request body syncRequestDTO true "sync request"
// @Success 202 {object} service.CoordinateResult "batch created"
// @Success 200 {object} service.CoordinateResult "batch already exists"
// @Failure 400 {object} apiError
// @Failure 422 {object} apiError
// @Failure 503 {object} apiError
// @Router /syncs [post]
func (h *Handler) Coordinate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSyncRequest(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := h.coord.Coordinate(r.Context(), req)
	if err != nil {
		writeServiceErr(w, r, err)
		return
	}

	status := http.StatusOK
	if !res.AlreadyExists && res.TotalJobs > 0 {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// Enqueue godoc
// @Summary Enqueue a sync coordination
// @Description Records the request as a COORDINATE_SYNC job; a worker coordinates it.
// @Tags syncs
// @Accept json
// @Produce json
// @Param request body syncRequestDTO true "sync request"
// @Success 202 {object} enqueueResp
// @Failure 400 {object} apiError
// @Failure 422 {object} apiError
// @Router /syncs/enqueue [post]
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSyncRequest(r)
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	id, err := h.jobSvc.Enqueue(r.Context(), req)
	if err != nil {
		writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, enqueueResp{JobID: id.String()})
}

// BatchStatus godoc
// @Summary Get batch progress
// @Tags batches
// @Produce json
// @Param id path string true "batch id (uuid)"
// @Success 200 {object} service.BatchStatus
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /batches/{id} [get]
func (h *Handler) BatchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	st, err := h.jobSvc.BatchStatus(r.Context(), id)
	if err != nil {
		writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListJobs godoc
// @Summary List batch jobs
// @Tags batches
// @Produce json
// @Param id path string true "batch id (uuid)"
// @Param status query string false "PENDING, PROCESSING, COMPLETED or FAILED"
// @Success 200 {object} jobListResp
// @Failure 400 {object} apiError
// @Router /batches/{id}/jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var status *entity.JobStatus
	if s := strings.TrimSpace(r.URL.Query().Get("status")); s != "" {
		st := entity.JobStatus(strings.ToUpper(s))
		status = &st
	}

	jobs, err := h.jobSvc.ListJobs(r.Context(), id, status)
	if err != nil {
		writeServiceErr(w, r, err)
		return
	}

	resp := jobListResp{BatchID: id.String(), Jobs: make([]jobResp, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResp(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RetryFailed godoc
// @Summary Retry failed jobs of a batch
// @Description Resets FAILED jobs to PENDING with attempts zeroed.
// @Tags batches
// @Produce json
// @Param id path string true "batch id (uuid)"
// @Success 200 {object} retryResp
// @Failure 400 {object} apiError
// @Router /batches/{id}/retry [post]
func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	n, err := h.jobSvc.RetryFailedJobs(r.Context(), id)
	if err != nil {
		writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, retryResp{BatchID: id.String(), Reset: n})
}

// GetJob godoc
// @Summary Get job by id
// @Tags jobs
// @Produce json
// @Param id path string true "job id (uuid)"
// @Success 200 {object} jobResp
// @Failure 400 {object} apiError
// @Failure 404 {object} apiError
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	j, err := h.jobSvc.GetJob(r.Context(), id)
	if err != nil {
		writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResp(*j))
}
