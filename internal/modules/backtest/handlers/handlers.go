// Package handlers exposes the backtest run queue over HTTP. Runs execute
// asynchronously; submission returns a run id the client polls.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/work"
)

// RunQueue is the slice of the work queue the handlers drive.
type RunQueue interface {
	Submit(kind work.RunKind, symbol, strategy, metric string, params any) (string, error)
	Get(id string) (*work.Run, error)
	List(limit int) ([]work.Run, error)
	Cancel(id string) error
}

// Handler handles backtest HTTP requests.
type Handler struct {
	queue RunQueue
	log   zerolog.Logger
}

// NewHandler creates a new backtest handler.
func NewHandler(queue RunQueue, log zerolog.Logger) *Handler {
	return &Handler{
		queue: queue,
		log:   log.With().Str("handler", "backtest").Logger(),
	}
}

// HandleRun queues a single-symbol backtest
// POST /api/backtest/run
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	h.submitSingle(w, r, work.KindBacktestSingle)
}

// HandleMarginRun queues a single-symbol backtest with short selling
// POST /api/backtest/margin
func (h *Handler) HandleMarginRun(w http.ResponseWriter, r *http.Request) {
	h.submitSingle(w, r, work.KindBacktestMargin)
}

func (h *Handler) submitSingle(w http.ResponseWriter, r *http.Request, kind work.RunKind) {
	var req work.SingleRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.queue.Submit(kind, req.Symbol, req.Strategy, "", req)
	if err != nil {
		h.writeDomainError(w, err, "Failed to queue backtest")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id, "status": string(work.StatusPending)})
}

// HandlePortfolioRun queues a multi-symbol portfolio backtest
// POST /api/backtest/portfolio
func (h *Handler) HandlePortfolioRun(w http.ResponseWriter, r *http.Request) {
	var req work.PortfolioRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.queue.Submit(work.KindBacktestPortfolio, "", "", "", req)
	if err != nil {
		h.writeDomainError(w, err, "Failed to queue portfolio backtest")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id, "status": string(work.StatusPending)})
}

// HandleListRuns lists recent runs, newest first
// GET /api/backtest/runs?limit=50
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.queue.List(limit)
	if err != nil {
		h.writeDomainError(w, err, "Failed to list runs")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

// HandleGetRun returns a run's status and result
// GET /api/backtest/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.queue.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err, "Failed to load run")
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// HandleCancelRun cancels a pending or running run
// DELETE /api/backtest/runs/{id}
func (h *Handler) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queue.Cancel(id); err != nil {
		h.writeDomainError(w, err, "Failed to cancel run")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"run_id": id, "status": string(work.StatusCancelled)})
}

// writeDomainError maps domain error kinds to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, logMsg string) {
	h.log.Error().Err(err).Msg(logMsg)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	}
	h.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  domain.ErrorCode(err),
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
