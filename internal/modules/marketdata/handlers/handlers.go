// Package handlers provides HTTP handlers for market data operations.
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
	"github.com/aristath/hindsight/internal/modules/marketdata"
)

// DataService is the facade surface the handlers consume.
type DataService interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
	GetQuote(ctx context.Context, symbol string) (*domain.Quote, error)
	BulkQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error)
	GetFundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error)
	SyncWatchlist(ctx context.Context) (marketdata.SyncSummary, error)
	Stats() map[string]interface{}
}

// MarketDataHandlers handles market data HTTP requests.
type MarketDataHandlers struct {
	data DataService
	log  zerolog.Logger
}

// NewMarketDataHandlers creates new market data handlers.
func NewMarketDataHandlers(data DataService, log zerolog.Logger) *MarketDataHandlers {
	return &MarketDataHandlers{
		data: data,
		log:  log.With().Str("handler", "marketdata").Logger(),
	}
}

// HandleGetBars returns daily bars for a symbol and date range
// GET /api/data/bars/{symbol}?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *MarketDataHandlers) HandleGetBars(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	end := domain.Day(time.Now())
	start := end.AddDate(-1, 0, 0)
	var err error
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = domain.ParseDate(v); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid start date")
			return
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = domain.ParseDate(v); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid end date")
			return
		}
	}

	bars, err := h.data.GetBars(r.Context(), symbol, start, end)
	if err != nil {
		h.writeDomainError(w, err, "Failed to get bars")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"start":  start.Format("2006-01-02"),
		"end":    end.Format("2006-01-02"),
		"count":  len(bars),
		"bars":   bars,
	})
}

// HandleGetQuote returns the latest quote for a symbol
// GET /api/data/quote/{symbol}
func (h *MarketDataHandlers) HandleGetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	quote, err := h.data.GetQuote(r.Context(), symbol)
	if err != nil {
		h.writeDomainError(w, err, "Failed to get quote")
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

// HandleBulkQuotes returns quotes for a list of symbols
// POST /api/data/quotes {"symbols": ["AAPL", "MSFT"]}
func (h *MarketDataHandlers) HandleBulkQuotes(w http.ResponseWriter, r *http.Request) {
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

	quotes, err := h.data.BulkQuotes(r.Context(), req.Symbols)
	if err != nil {
		h.writeDomainError(w, err, "Failed to get bulk quotes")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"requested": len(req.Symbols),
		"returned":  len(quotes),
		"quotes":    quotes,
	})
}

// HandleGetFundamentals returns the fundamentals snapshot for a symbol
// GET /api/data/fundamentals/{symbol}
func (h *MarketDataHandlers) HandleGetFundamentals(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	fundamentals, err := h.data.GetFundamentals(r.Context(), symbol)
	if err != nil {
		h.writeDomainError(w, err, "Failed to get fundamentals")
		return
	}

	h.writeJSON(w, http.StatusOK, fundamentals)
}

// HandleSync triggers a watchlist sync
// POST /api/data/sync
func (h *MarketDataHandlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	summary, err := h.data.SyncWatchlist(r.Context())
	if err != nil {
		h.writeDomainError(w, err, "Watchlist sync failed")
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

// HandleStats returns facade health counters
// GET /api/data/stats
func (h *MarketDataHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.data.Stats())
}

// writeDomainError maps domain error kinds to HTTP statuses.
func (h *MarketDataHandlers) writeDomainError(w http.ResponseWriter, err error, logMsg string) {
	h.log.Error().Err(err).Msg(logMsg)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidParameter):
		status = http.StatusBadRequest
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
func (h *MarketDataHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *MarketDataHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
