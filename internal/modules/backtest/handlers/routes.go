package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all backtest routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/backtest", func(r chi.Router) {
		r.Post("/run", h.HandleRun)                // Queue a single-symbol run
		r.Post("/margin", h.HandleMarginRun)       // Queue a short-selling run
		r.Post("/portfolio", h.HandlePortfolioRun) // Queue a portfolio run
		r.Get("/runs", h.HandleListRuns)           // Recent runs, newest first
		r.Get("/runs/{id}", h.HandleGetRun)        // Poll status and result
		r.Delete("/runs/{id}", h.HandleCancelRun)  // Cancel a queued or running run
	})
}
