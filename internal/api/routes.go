package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the HTTP surface: message dispatch, template
// management, and health.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/messages", func(r chi.Router) {
			r.Post("/send", h.SendMessage)
			r.Post("/bulk", h.SendBulkMessages)
			r.Post("/process", h.ProcessPending)
			r.Get("/", h.ListMessages)
			r.Get("/{id}", h.GetMessage)
			r.Post("/{id}/cancel", h.CancelMessage)
		})

		r.Route("/templates", func(r chi.Router) {
			r.Post("/", h.CreateTemplate)
			r.Get("/", h.ListTemplates)
			r.Get("/pending-approvals", h.PendingApprovals)
			r.Get("/{id}", h.GetTemplate)
			r.Put("/{id}", h.UpdateTemplate)
			r.Delete("/{id}", h.DeleteTemplate)
			r.Post("/{id}/activate", h.ActivateTemplate)
			r.Post("/{id}/deactivate", h.DeactivateTemplate)
			r.Post("/{id}/approve", h.ApproveTemplate)
			r.Post("/{id}/preview", h.PreviewTemplate)
			r.Post("/{id}/validate", h.ValidateTemplate)
			r.Post("/{id}/duplicate", h.DuplicateTemplate)
		})
	})

	return r
}
