package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all comparison routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/comparison", func(r chi.Router) {
		r.Post("/run", h.HandleCompare)                      // Rank strategies over one symbol
		r.Post("/signals", h.HandleRecordSignal)             // Journal a live signal
		r.Post("/signals/evaluate", h.HandleEvaluateSignals) // Grade closed windows
		r.Get("/accuracy", h.HandleAccuracyReport)           // Accuracy breakdown
	})
}
