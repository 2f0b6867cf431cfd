package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Get("/context", h.GetContext)

			r.Route("/forms/{docID}", func(r chi.Router) {
				r.Put("/", h.PutFormDocument)
				r.Get("/data", h.GetFormsData)
				r.Get("/properties", h.GetFormsProperties)
				r.Post("/sync", h.PostFormsSync)
			})

			r.Route("/sheets/{docID}", func(r chi.Router) {
				r.Put("/", h.PutSheetDocument)
				r.Get("/data", h.GetSheetsData)
				r.Get("/properties", h.GetSheetsProperties)
				r.Post("/sync", h.PostSheetSync)
			})

			r.Post("/events/submission", h.SubmissionEvent)
		})
	})

	return r
}
