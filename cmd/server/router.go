package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/studybuddy/studybuddy-api/internal/api"
	apiMiddleware "github.com/studybuddy/studybuddy-api/internal/api/middleware"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace)

	jobHandler := api.NewJobHandler(app.coordinator, app.orchestrator)
	artifactHandler := api.NewArtifactHandler(app.noteStore, app.quizStore)
	eventsHandler := api.NewEventsHandler(app.broker, app.history)

	r.Route("/api", func(r chi.Router) {
		r.Post("/uploads", jobHandler.SubmitUpload)

		r.Get("/jobs", jobHandler.ListJobs)
		r.Get("/jobs/{id}", jobHandler.GetJob)
		r.Get("/jobs/{id}/events", eventsHandler.StreamJob)
		r.Get("/queues/{queue}/jobs", jobHandler.ListQueueJobs)

		r.Get("/notes/{id}", artifactHandler.GetNote)
		r.Get("/quizzes/{id}", artifactHandler.GetQuiz)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
