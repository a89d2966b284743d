package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all optimization routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/optimization", func(r chi.Router) {
		r.Post("/grid", h.HandleGridSearch)         // Queue a grid search
		r.Post("/walkforward", h.HandleWalkForward) // Queue a walk-forward analysis
		r.Get("/runs/{id}", h.HandleGetRun)         // Poll status and report
		r.Get("/metrics", h.HandleListMetrics)      // Rankable metric names
	})
}
