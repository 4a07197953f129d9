package api

import (
	"net/http"

	"github.com/driveflow/driveflow-api/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the HTTP router with all pipeline endpoints mounted.
func NewRouter(tasks *TaskHandler, quota *QuotaHandler, health *HealthHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.TraceMiddleware)

	r.Get("/health", health.GetHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/files/{id}/process", tasks.ProcessFile)
		r.Get("/tasks/{id}", tasks.GetTask)
		r.Post("/tasks/{id}/reprocess", tasks.ReprocessTask)
		r.Get("/quota", quota.GetQuota)
	})

	return r
}
