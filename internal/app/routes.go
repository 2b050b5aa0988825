package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rfpdesk/internal/handler"
	"github.com/rfpdesk/internal/middleware"
)

func (app *App) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders(app.config.IsProduction()))

	// Health check
	r.Get("/api/health", handler.Health(map[string]handler.Pinger{
		"journal": app.journal,
		"source":  app.source,
	}))

	workflowHandler := handler.NewWorkflowHandler(app.logger, app.controller)
	settingsHandler := handler.NewSettingsHandler(app.logger, app.settings)
	journalHandler := handler.NewJournalHandler(app.logger, app.journal)

	// The progress stream is long lived and stays outside the limiter.
	r.Get("/api/task/events", workflowHandler.Events)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(app.config.APIRatePerMinute, 20))

		r.Get("/api/requests", workflowHandler.ListRequests)
		r.Post("/api/requests/fetch", workflowHandler.Fetch)
		r.Put("/api/requests/selection", workflowHandler.SelectAll)
		r.Put("/api/requests/{id}/selection", workflowHandler.SetSelection)

		r.Post("/api/generation", workflowHandler.Generate)
		r.Post("/api/dispatch", workflowHandler.Dispatch)
		r.Post("/api/output/purge", workflowHandler.Purge)

		r.Get("/api/task", workflowHandler.Status)
		r.Post("/api/task/cancel", workflowHandler.Cancel)

		r.Get("/api/settings", settingsHandler.Get)
		r.Put("/api/settings", settingsHandler.Update)

		r.Get("/api/journal", journalHandler.List)
	})
	return r
}
