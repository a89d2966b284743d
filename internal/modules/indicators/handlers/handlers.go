// Package handlers provides HTTP handlers for indicator and pattern queries.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/indicators"
)

// barWindowDays is how much history the handlers request when computing
// indicators. Enough for SMA200 plus warmup.
const barWindowDays = 400

// BarSource supplies the price history indicators are computed from.
type BarSource interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// IndicatorService is the computation surface the handlers consume.
type IndicatorService interface {
	ComputeVector(symbol string, bars []domain.Bar) (*indicators.Vector, error)
	GetSeries(symbol string, spec indicators.Spec, bars []domain.Bar) (*indicators.Series, error)
	ScanPatterns(symbol string, bars []domain.Bar, lookbackBars int) ([]indicators.PatternHit, error)
	Stats() map[string]interface{}
}

// IndicatorHandlers handles indicator HTTP requests.
type IndicatorHandlers struct {
	bars       BarSource
	indicators IndicatorService
	log        zerolog.Logger
}

// NewIndicatorHandlers creates new indicator handlers.
func NewIndicatorHandlers(bars BarSource, svc IndicatorService, log zerolog.Logger) *IndicatorHandlers {
	return &IndicatorHandlers{
		bars:       bars,
		indicators: svc,
		log:        log.With().Str("handler", "indicators").Logger(),
	}
}

// HandleGetVector returns the standard indicator bundle for a symbol
// GET /api/indicators/{symbol}
func (h *IndicatorHandlers) HandleGetVector(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	bars, err := h.loadBars(r.Context(), symbol)
	if err != nil {
		h.writeDomainError(w, err, "Failed to load bars for indicators")
		return
	}

	vector, err := h.indicators.ComputeVector(symbol, bars)
	if err != nil {
		h.writeDomainError(w, err, "Failed to compute indicator vector")
		return
	}

	h.writeJSON(w, http.StatusOK, vector)
}

// HandleGetSeries returns one indicator series by id and params
// GET /api/indicators/{symbol}/series?id=rsi&params=14
func (h *IndicatorHandlers) HandleGetSeries(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "id query parameter is required")
		return
	}

	var params []float64
	if raw := r.URL.Query().Get("params"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			p, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				h.writeError(w, http.StatusBadRequest, "invalid params value: "+part)
				return
			}
			params = append(params, p)
		}
	}

	bars, err := h.loadBars(r.Context(), symbol)
	if err != nil {
		h.writeDomainError(w, err, "Failed to load bars for series")
		return
	}

	series, err := h.indicators.GetSeries(symbol, indicators.Spec{ID: id, Params: params}, bars)
	if err != nil {
		h.writeDomainError(w, err, "Failed to compute series")
		return
	}

	h.writeJSON(w, http.StatusOK, series)
}

// HandleGetPatterns returns candlestick pattern hits over recent bars
// GET /api/indicators/{symbol}/patterns?bars=30
func (h *IndicatorHandlers) HandleGetPatterns(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	lookback := 30
	if v := r.URL.Query().Get("bars"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "bars must be a positive integer")
			return
		}
		lookback = n
	}

	bars, err := h.loadBars(r.Context(), symbol)
	if err != nil {
		h.writeDomainError(w, err, "Failed to load bars for patterns")
		return
	}

	hits, err := h.indicators.ScanPatterns(symbol, bars, lookback)
	if err != nil {
		h.writeDomainError(w, err, "Failed to scan patterns")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"bars":   lookback,
		"count":  len(hits),
		"hits":   hits,
	})
}

// HandleStats returns cache effectiveness counters
// GET /api/indicators/stats
func (h *IndicatorHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.indicators.Stats())
}

func (h *IndicatorHandlers) loadBars(ctx context.Context, symbol string) ([]domain.Bar, error) {
	end := domain.Day(time.Now())
	start := end.AddDate(0, 0, -barWindowDays)
	return h.bars.GetBars(ctx, symbol, start, end)
}

// writeDomainError maps domain error kinds to HTTP statuses.
func (h *IndicatorHandlers) writeDomainError(w http.ResponseWriter, err error, logMsg string) {
	h.log.Error().Err(err).Msg(logMsg)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrDataUnavailable):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrCancelled):
		status = http.StatusRequestTimeout
	}
	h.writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  domain.ErrorCode(err),
	})
}

// writeJSON writes a JSON response
func (h *IndicatorHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *IndicatorHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
