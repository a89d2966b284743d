package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all risk routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/risk", func(r chi.Router) {
		r.Get("/limits", h.HandleGetLimits)    // Configured thresholds
		r.Post("/validate", h.HandleValidate) // Dry-run pre-trade validation
	})
}
