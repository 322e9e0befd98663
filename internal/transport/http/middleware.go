package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"academic-sync-service/internal/logger"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// RequestLogger puts a request-scoped logger into the context and logs one line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()

		// chi middleware.RequestID кладёт id в контекст
		ctx := logger.SetRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ctx = logger.SetComponent(ctx, "http")

		next.ServeHTTP(sw, r.WithContext(ctx))

		entry := logger.FromContext(ctx).WithFields(logger.Fields{
			"method":               r.Method,
			"path":                 r.URL.Path,
			logger.FieldStatus:     sw.status,
			"bytes":                sw.bytes,
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
		})
		if sw.status >= http.StatusInternalServerError {
			entry.Warn("request served")
			return
		}
		entry.Info("request served")
	})
}
