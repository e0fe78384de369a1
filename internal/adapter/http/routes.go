package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Content submission and lifecycle
		r.Post("/content", h.SubmitContent)
		r.Get("/content/{id}", h.GetContent)
		r.Get("/content/{id}/status", h.ContentStatus)
		r.Post("/content/{id}/decision", h.SubmitDecision)
		r.Get("/content/{id}/audit", h.GetAudit)
		r.Post("/content/{id}/repair", h.RequeueRepair)

		// Workflow instances
		r.Get("/instances/{id}", h.InstanceStatus)

		// Operator and reviewer queues
		r.Get("/attention", h.ListAttention)
		r.Get("/reviews/pending", h.ListPendingReviews)
	})
}
