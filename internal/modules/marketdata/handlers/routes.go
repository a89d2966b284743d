package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all market data routes
func (h *MarketDataHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/data", func(r chi.Router) {
		r.Get("/bars/{symbol}", h.HandleGetBars)                 // Daily bars for a date range
		r.Get("/quote/{symbol}", h.HandleGetQuote)               // Latest quote (TTL cached)
		r.Post("/quotes", h.HandleBulkQuotes)                    // Bulk quotes
		r.Get("/fundamentals/{symbol}", h.HandleGetFundamentals) // Fundamentals snapshot
		r.Post("/sync", h.HandleSync)                            // Trigger watchlist sync
		r.Get("/stats", h.HandleStats)                           // Facade health counters
	})
}
