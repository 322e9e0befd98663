package httptransport

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"academic-sync-service/internal/entity"
	"academic-sync-service/internal/service"
)

type ingestionLogsResp struct {
	BatchID string                `json:"batch_id"`
	Logs    []entity.IngestionLog `json:"logs"`
}

// IngestionLogs godoc
// @Summary List page runs of a batch
// @Description One row per page job run with saved and failed record counts.
// @Tags batches
// @Produce json
// @Param id path string true "batch id (uuid)"
// @Success 200 {object} ingestionLogsResp
// @Failure 400 {object} apiError
// @Router /batches/{id}/ingestion-logs [get]
func (h *Handler) IngestionLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	logs, err := h.records.IngestionLogs(r.Context(), id)
	if err != nil {
		writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestionLogsResp{BatchID: id.String(), Logs: logs})
}

// GetSyllabus godoc
// @Summary Get a standardized syllabus
// @Tags records
// @Produce json
// @Param source path string true "source code"
// @Param courseID path string true "course id"
// @Success 200 {object} entity.Syllabus
// @Failure 404 {object} apiError
// @Router /syllabi/{source}/{courseID} [get]
func (h *Handler) GetSyllabus(w http.ResponseWriter, r *http.Request) {
	s, err := h.records.Syllabus(r.Context(), chi.URLParam(r, "source"), chi.URLParam(r, "courseID"))
	if err != nil {
		writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// SubmitTranscript godoc
// @Summary Submit a raw student transcript
// @Description Stores the transcript and enqueues a PROCESS_TRANSCRIPT job for it.
// @Tags transcripts
// @Accept json
// @Produce json
// @Param request body service.TranscriptSubmit true "transcript"
// @Success 202 {object} service.SubmitResult
// @Failure 400 {object} apiError
// @Failure 422 {object} apiError
// @Router /transcripts [post]
func (h *Handler) SubmitTranscript(w http.ResponseWriter, r *http.Request) {
	var req service.TranscriptSubmit
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := h.transcripts.Submit(r.Context(), req)
	if err != nil {
		writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// GetTranscript godoc
// @Summary Get a transcript submission
// @Description Returns the submission status and the course rows processed from it.
// @Tags transcripts
// @Produce json
// @Param id path string true "submission id"
// @Success 200 {object} service.TranscriptDetail
// @Failure 404 {object} apiError
// @Router /transcripts/{id} [get]
func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	d, err := h.transcripts.Get(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
