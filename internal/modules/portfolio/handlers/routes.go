package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolios", func(r chi.Router) {
		r.Post("/", h.HandleCreate) // Open a portfolio
		r.Get("/", h.HandleList)    // All portfolios
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)                            // Current state
			r.Post("/trades", h.HandleCommit)                  // Commit an execution
			r.Get("/trades", h.HandleTrades)                   // Trade log
			r.Post("/value", h.HandleValue)                    // Mark to market
			r.Post("/snapshots", h.HandleSnapshot)             // Persist a snapshot
			r.Get("/snapshots/latest", h.HandleLatestSnapshot) // Most recent snapshot
		})
	})
}
