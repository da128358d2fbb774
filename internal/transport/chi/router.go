package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	domkey "github.com/kailas-cloud/searchcore/internal/domain/key"
	"github.com/kailas-cloud/searchcore/internal/metrics"
)

// NewRouter mounts the admin API. Health and metrics bypass authentication.
func NewRouter(s *Server, auth *Authenticator, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.With(auth.Require(domkey.ActionTasksGet)).Get("/tasks", s.ListTasks)
	r.With(auth.Require(domkey.ActionTasksGet)).Get("/tasks/{uid}", s.GetTask)
	r.With(auth.Require(domkey.ActionTasksCancel)).Post("/tasks/cancel", s.CancelTasks)
	r.With(auth.Require(domkey.ActionTasksDelete)).Delete("/tasks", s.DeleteTasks)
	r.With(auth.Require(domkey.ActionTasksGet)).Get("/batches/{uid}", s.GetBatch)
	r.With(auth.Require(domkey.ActionDumpsCreate)).Post("/dumps", s.CreateDump)
	return r
}
