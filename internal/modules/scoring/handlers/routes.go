package handlers

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts analysis routes on the router.
func (h *ScoringHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/analyze", func(r chi.Router) {
		r.Post("/", h.HandleAnalyzeBatch)   // POST /api/analyze {"symbols": [...]}
		r.Get("/{symbol}", h.HandleAnalyze) // GET /api/analyze/{symbol}
	})
}
