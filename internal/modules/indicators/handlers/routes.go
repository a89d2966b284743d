package handlers

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts indicator routes on the router.
func (h *IndicatorHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/indicators", func(r chi.Router) {
		r.Get("/stats", h.HandleStats)                   // GET /api/indicators/stats
		r.Get("/{symbol}", h.HandleGetVector)            // GET /api/indicators/{symbol}
		r.Get("/{symbol}/series", h.HandleGetSeries)     // GET /api/indicators/{symbol}/series?id=rsi&params=14
		r.Get("/{symbol}/patterns", h.HandleGetPatterns) // GET /api/indicators/{symbol}/patterns?bars=30
	})
}
