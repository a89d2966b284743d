// Package handlers exposes strategy comparison and signal accuracy over
// HTTP. Comparisons run synchronously; they replay a handful of strategies
// over one symbol and finish quickly.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/comparison"
)

// BarLoader loads the bars a comparison replays.
type BarLoader interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// StrategyBuilder creates strategy instances by name.
type StrategyBuilder interface {
	Create(name string, params map[string]float64) (domain.Strategy, error)
}

// Handler handles comparison and accuracy HTTP requests.
type Handler struct {
	comparator *comparison.Comparator
	tracker    *comparison.Tracker
	bars       BarLoader
	builder    StrategyBuilder
	log        zerolog.Logger
}

// NewHandler creates a new comparison handler.
func NewHandler(comparator *comparison.Comparator, tracker *comparison.Tracker, bars BarLoader, builder StrategyBuilder, log zerolog.Logger) *Handler {
	return &Handler{
		comparator: comparator,
		tracker:    tracker,
		bars:       bars,
		builder:    builder,
		log:        log.With().Str("handler", "comparison").Logger(),
	}
}

// compareRequest names the strategies to replay, each with optional
// parameter overrides.
type compareRequest struct {
	Symbol     string                        `json:"symbol"`
	Strategies map[string]map[string]float64 `json:"strategies"`
	Metric     string                        `json:"metric"`
	Start      string                        `json:"start"`
	End        string                        `json:"end"`
}

// HandleCompare replays the named strategies and ranks them
// POST /api/comparison/run?format=csv|json
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	start, err := domain.ParseDate(req.Start)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid start date")
		return
	}
	end, err := domain.ParseDate(req.End)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid end date")
		return
	}

	strategies := make(map[string]domain.Strategy, len(req.Strategies))
	for name, params := range req.Strategies {
		s, err := h.builder.Create(name, params)
		if err != nil {
			h.writeDomainError(w, err, "Failed to build strategy")
			return
		}
		strategies[name] = s
	}

	bars, err := h.bars.GetBars(r.Context(), req.Symbol, start, end)
	if err != nil {
		h.writeDomainError(w, err, "Failed to load bars")
		return
	}

	report, err := h.comparator.Compare(r.Context(), strategies, req.Symbol, bars, req.Metric)
	if err != nil {
		h.writeDomainError(w, err, "Comparison failed")
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="comparison_`+req.Symbol+`.csv"`)
		if err := report.WriteCSV(w); err != nil {
			h.log.Error().Err(err).Msg("Failed to stream comparison CSV")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

// signalRequest journals one live signal for later grading.
type signalRequest struct {
	Strategy      string  `json:"strategy"`
	Symbol        string  `json:"symbol"`
	Sector        string  `json:"sector"`
	MarketIndex   string  `json:"market_index"`
	Action        string  `json:"action"`
	SignalPrice   float64 `json:"signal_price"`
	Confidence    float64 `json:"confidence"`
	LookaheadDays int     `json:"lookahead_days"`
	SignalDate    string  `json:"signal_date"`
}

// HandleRecordSignal journals a signal for accuracy tracking
// POST /api/comparison/signals
func (h *Handler) HandleRecordSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	signalDate := time.Now().UTC()
	if req.SignalDate != "" {
		var err error
		signalDate, err = domain.ParseDate(req.SignalDate)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid signal date")
			return
		}
	}

	id, err := h.tracker.Record(comparison.SignalRecord{
		Strategy:      req.Strategy,
		Symbol:        req.Symbol,
		Sector:        req.Sector,
		MarketIndex:   req.MarketIndex,
		Action:        domain.SignalAction(req.Action),
		SignalPrice:   req.SignalPrice,
		Confidence:    req.Confidence,
		LookaheadDays: req.LookaheadDays,
		SignalDate:    signalDate,
	})
	if err != nil {
		h.writeDomainError(w, err, "Failed to record signal")
		return
	}
	if id == 0 {
		// HOLD signals are acknowledged but not tracked.
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"tracked": false})
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"tracked": true, "signal_id": id})
}

// HandleEvaluateSignals grades every signal whose window has closed
// POST /api/comparison/signals/evaluate
func (h *Handler) HandleEvaluateSignals(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if s := r.URL.Query().Get("as_of"); s != "" {
		var err error
		asOf, err = domain.ParseDate(s)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid as_of date")
			return
		}
	}

	graded, err := h.tracker.EvaluateDue(asOf)
	if err != nil {
		h.writeDomainError(w, err, "Signal evaluation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"evaluated": graded})
}

// HandleAccuracyReport returns accuracy sliced by strategy, symbol,
// sector, index, lookahead and confidence
// GET /api/comparison/accuracy
func (h *Handler) HandleAccuracyReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.tracker.Report()
	if err != nil {
		h.writeDomainError(w, err, "Failed to build accuracy report")
		return
	}
	h.writeJSON(w, http.StatusOK, report)
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
	case errors.Is(err, domain.ErrDataUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrCancelled):
		status = http.StatusRequestTimeout
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
