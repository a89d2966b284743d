// Package handlers exposes the scoring engine over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/indicators"
	"github.com/aristath/hindsight/internal/modules/scoring"
)

const (
	// historyDays feeds enough bars for the 200-day averages plus warmup.
	historyDays = 400
	// patternScanBars bounds the candlestick window that feeds scoring.
	patternScanBars = 5
)

// MarketData supplies bars and fundamentals for bundle assembly.
type MarketData interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
	GetFundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error)
}

// Indicators supplies the computed vector and pattern hits.
type Indicators interface {
	ComputeVector(symbol string, bars []domain.Bar) (*indicators.Vector, error)
	ScanPatterns(symbol string, bars []domain.Bar, lookbackBars int) ([]indicators.PatternHit, error)
}

// Scorer runs the scoring engine over an assembled bundle.
type Scorer interface {
	Score(b scoring.Bundle) (*scoring.Recommendation, error)
}

// ScoringHandlers handles analysis HTTP requests.
type ScoringHandlers struct {
	data       MarketData
	indicators Indicators
	scorer     Scorer
	log        zerolog.Logger
}

// NewScoringHandlers creates new scoring handlers.
func NewScoringHandlers(data MarketData, ind Indicators, scorer Scorer, log zerolog.Logger) *ScoringHandlers {
	return &ScoringHandlers{
		data:       data,
		indicators: ind,
		scorer:     scorer,
		log:        log.With().Str("handler", "scoring").Logger(),
	}
}

// HandleAnalyze scores one symbol
// GET /api/analyze/{symbol}
func (h *ScoringHandlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	rec, err := h.analyze(r.Context(), symbol)
	if err != nil {
		h.writeDomainError(w, err, "Analysis failed")
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

// HandleAnalyzeBatch scores a list of symbols, skipping failures
// POST /api/analyze {"symbols": ["AAPL", "MSFT"]}
func (h *ScoringHandlers) HandleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Symbols) == 0 {
		h.writeError(w, http.StatusBadRequest, "symbols list is empty")
		return
	}

	results := make([]*scoring.Recommendation, 0, len(req.Symbols))
	failed := make(map[string]string)
	for _, symbol := range req.Symbols {
		rec, err := h.analyze(r.Context(), symbol)
		if err != nil {
			if errors.Is(err, domain.ErrCancelled) {
				h.writeDomainError(w, err, "Batch analysis cancelled")
				return
			}
			h.log.Warn().Err(err).Str("symbol", symbol).Msg("Skipping symbol in batch analysis")
			failed[symbol] = domain.ErrorCode(err)
			continue
		}
		results = append(results, rec)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requested":       len(req.Symbols),
		"analyzed":        len(results),
		"recommendations": results,
		"failed":          failed,
	})
}

// analyze assembles the bundle for one symbol and scores it. Missing
// fundamentals degrade to neutral rather than failing the request.
func (h *ScoringHandlers) analyze(ctx context.Context, symbol string) (*scoring.Recommendation, error) {
	end := domain.Day(time.Now())
	start := end.AddDate(0, 0, -historyDays)

	bars, err := h.data.GetBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	fundamentals, err := h.data.GetFundamentals(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			return nil, err
		}
		h.log.Debug().Err(err).Str("symbol", symbol).Msg("Scoring without fundamentals")
		fundamentals = nil
	}

	vector, err := h.indicators.ComputeVector(symbol, bars)
	if err != nil {
		return nil, err
	}
	patterns, err := h.indicators.ScanPatterns(symbol, bars, patternScanBars)
	if err != nil {
		return nil, err
	}

	return h.scorer.Score(scoring.Bundle{
		Symbol:       symbol,
		Bars:         bars,
		Fundamentals: fundamentals,
		Vector:       vector,
		Patterns:     patterns,
	})
}

// writeDomainError maps domain error kinds to HTTP statuses.
func (h *ScoringHandlers) writeDomainError(w http.ResponseWriter, err error, logMsg string) {
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
func (h *ScoringHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *ScoringHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
