package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"academic-sync-service/internal/logger"
	"academic-sync-service/internal/repository"
	"academic-sync-service/internal/service"
	"academic-sync-service/internal/source"
)

// retryAfterSeconds is sent with 503 while another coordinator holds the lock.
const retryAfterSeconds = "5"

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Message: msg})
}

// writeServiceErr maps service errors to status codes.
func writeServiceErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, source.ErrUnknownSource), errors.Is(err, source.ErrTranscriptsUnsupported):
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeErr(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrCoordinationInProgress):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeErr(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.FromContext(r.Context()).WithError(err).Error("request failed")
		writeErr(w, http.StatusInternalServerError, "internal error")
	}
}
