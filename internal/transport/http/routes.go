package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "academic-sync-service/docs"
)

// Routes builds the api router. metrics may be nil.
func Routes(h *Handler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	// базовые middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// наш логгер (после RequestID)
	r.Use(RequestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/syncs", func(r chi.Router) {
		r.Post("/", h.Coordinate)
		r.Post("/enqueue", h.Enqueue)
	})

	r.Route("/batches/{id}", func(r chi.Router) {
		r.Get("/", h.BatchStatus)
		r.Get("/jobs", h.ListJobs)
		r.Post("/retry", h.RetryFailed)
		r.Get("/ingestion-logs", h.IngestionLogs)
	})

	r.Get("/jobs/{id}", h.GetJob)
	r.Get("/syllabi/{source}/{courseID}", h.GetSyllabus)

	r.Route("/transcripts", func(r chi.Router) {
		r.Post("/", h.SubmitTranscript)
		r.Get("/{id}", h.GetTranscript)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
