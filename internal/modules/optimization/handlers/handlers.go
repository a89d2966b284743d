// Package handlers exposes parameter optimization over HTTP. Grid searches
// and walk-forward analyses run on the shared work queue.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/optimization"
	"github.com/aristath/hindsight/internal/work"
)

// RunQueue is the slice of the work queue the handlers drive.
type RunQueue interface {
	Submit(kind work.RunKind, symbol, strategy, metric string, params any) (string, error)
	Get(id string) (*work.Run, error)
}

// Handler handles optimization HTTP requests.
type Handler struct {
	queue RunQueue
	log   zerolog.Logger
}

// NewHandler creates a new optimization handler.
func NewHandler(queue RunQueue, log zerolog.Logger) *Handler {
	return &Handler{
		queue: queue,
		log:   log.With().Str("handler", "optimization").Logger(),
	}
}

// HandleGridSearch queues an exhaustive grid search
// POST /api/optimization/grid
func (h *Handler) HandleGridSearch(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, work.KindGridSearch)
}

// HandleWalkForward queues a walk-forward analysis
// POST /api/optimization/walkforward
func (h *Handler) HandleWalkForward(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, work.KindWalkForward)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, kind work.RunKind) {
	var req work.OptimizationRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !optimization.ValidMetric(req.Metric) {
		h.writeError(w, http.StatusBadRequest, "unknown metric "+req.Metric)
		return
	}

	id, err := h.queue.Submit(kind, req.Symbol, req.Strategy, req.Metric, req)
	if err != nil {
		h.writeDomainError(w, err, "Failed to queue optimization")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id, "status": string(work.StatusPending)})
}

// HandleGetRun returns a run's status and report
// GET /api/optimization/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.queue.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err, "Failed to load run")
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// HandleListMetrics lists the metrics a search can rank by
// GET /api/optimization/metrics
func (h *Handler) HandleListMetrics(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"metrics": optimization.Metrics()})
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
