package frontend

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"

	"github.com/flowrun-dev/flowrun/internal/build"
	"github.com/flowrun-dev/flowrun/internal/metrics"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	requestLogger := httplog.NewLogger(build.Slug, httplog.Options{
		LogLevel: slog.LevelInfo,
		Concise:  true,
	})
	r.Use(httplog.RequestLogger(requestLogger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/dags", func(r chi.Router) {
		r.Get("/", s.handleListDAGs)
		r.Post("/", s.handleCreateDAG)
		r.Get("/{dagID}", s.handleGetDAG)
		r.Post("/{dagID}/run", s.handleRunDAG)
	})

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{runID}", s.handleGetRun)
	})

	r.Route("/schedules", func(r chi.Router) {
		r.Get("/", s.handleListSchedules)
		r.Post("/", s.handleCreateSchedule)
		r.Delete("/{dagID}", s.handleDeleteSchedule)
		r.Post("/{dagID}/enable", s.handleEnableSchedule)
		r.Post("/{dagID}/disable", s.handleDisableSchedule)
	})

	r.Route("/triggers", func(r chi.Router) {
		r.Get("/", s.handleListTriggers)
		r.Post("/", s.handleCreateTrigger)
		r.Get("/{triggerID}", s.handleGetTrigger)
		r.Post("/{triggerID}/fire", s.handleFireTrigger)
		r.Post("/{triggerID}/listeners/{dagID}", s.handleAddListener)
		r.Delete("/{triggerID}/listeners/{dagID}", s.handleRemoveListener)
	})

	return r
}
