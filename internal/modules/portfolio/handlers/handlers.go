// Package handlers exposes the portfolio ledger over HTTP: create, commit
// trades, value against marks, snapshot and trade history.
package handlers

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests.
type Handler struct {
	manager *portfolio.Manager
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler.
func NewHandler(manager *portfolio.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		manager: manager,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// createRequest opens a new portfolio.
type createRequest struct {
	UserID       string  `json:"user_id"`
	BaseCurrency string  `json:"base_currency"`
	Cash         float64 `json:"cash"`
}

// HandleCreate opens a portfolio with starting cash
// POST /api/portfolios
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.manager.Create(req.UserID, req.BaseCurrency, req.Cash)
	if err != nil {
		h.writeDomainError(w, err, "Failed to create portfolio")
		return
	}
	h.writeJSON(w, http.StatusCreated, state)
}

// HandleList lists every portfolio's current state
// GET /api/portfolios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	states, err := h.manager.List()
	if err != nil {
		h.writeDomainError(w, err, "Failed to list portfolios")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"portfolios": states, "count": len(states)})
}

// HandleGet returns one portfolio's state
// GET /api/portfolios/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	state, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err, "Failed to load portfolio")
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// commitRequest journals one execution against the portfolio.
type commitRequest struct {
	Symbol            string  `json:"symbol"`
	Action            string  `json:"action"`
	Shares            int     `json:"shares"`
	FillPrice         float64 `json:"fill_price"`
	Commission        float64 `json:"commission"`
	Date              string  `json:"date"`
	StrategyName      string  `json:"strategy_name"`
	Reasoning         string  `json:"reasoning"`
	MarginRequirement float64 `json:"margin_requirement"`
}

// HandleCommit applies a trade through the single commit entrypoint
// POST /api/portfolios/{id}/trades
func (h *Handler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	date := time.Now().UTC()
	if req.Date != "" {
		var err error
		date, err = domain.ParseDate(req.Date)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid trade date")
			return
		}
	}

	trade, err := h.manager.Commit(chi.URLParam(r, "id"), portfolio.Execution{
		Symbol:            req.Symbol,
		Action:            domain.TradeAction(req.Action),
		Shares:            req.Shares,
		FillPrice:         req.FillPrice,
		Commission:        req.Commission,
		Date:              date,
		StrategyName:      req.StrategyName,
		Reasoning:         req.Reasoning,
		MarginRequirement: req.MarginRequirement,
	})
	if err != nil {
		if reason := domain.RejectionReason(err); reason != "" {
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"committed": false,
				"reason":    reason,
				"detail":    err.Error(),
			})
			return
		}
		h.writeDomainError(w, err, "Failed to commit trade")
		return
	}
	h.writeJSON(w, http.StatusCreated, trade)
}

// HandleTrades returns the trade log, newest first
// GET /api/portfolios/{id}/trades?limit=100&format=csv|json
func (h *Handler) HandleTrades(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	trades, err := h.manager.Trades(id, limit)
	if err != nil {
		h.writeDomainError(w, err, "Failed to load trades")
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="trades-`+id+`.csv"`)
		if err := writeTradesCSV(w, trades); err != nil {
			h.log.Error().Err(err).Msg("Failed to stream trade log CSV")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades, "count": len(trades)})
}

// writeTradesCSV streams the journal in execution order.
func writeTradesCSV(w io.Writer, trades []domain.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Symbol", "Action", "Shares", "Fill Price", "Commission", "Strategy", "Reasoning"}); err != nil {
		return err
	}
	for _, tr := range trades {
		record := []string{
			tr.Date.UTC().Format("2006-01-02"),
			tr.Symbol,
			string(tr.Action),
			strconv.FormatFloat(tr.Shares, 'f', -1, 64),
			strconv.FormatFloat(tr.FillPrice, 'f', 2, 64),
			strconv.FormatFloat(tr.Commission, 'f', 2, 64),
			tr.StrategyName,
			tr.Reasoning,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// valueRequest marks the book to market.
type valueRequest struct {
	Marks map[string]float64 `json:"marks"`
}

// HandleValue values the portfolio against supplied marks
// POST /api/portfolios/{id}/value
func (h *Handler) HandleValue(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	valuation, err := h.manager.Value(chi.URLParam(r, "id"), req.Marks)
	if err != nil {
		h.writeDomainError(w, err, "Failed to value portfolio")
		return
	}
	h.writeJSON(w, http.StatusOK, valuation)
}

// HandleSnapshot persists a point-in-time copy of the state
// POST /api/portfolios/{id}/snapshots
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	takenAt, err := h.manager.TakeSnapshot(id)
	if err != nil {
		h.writeDomainError(w, err, "Failed to take snapshot")
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"portfolio_id": id, "taken_at": takenAt})
}

// HandleLatestSnapshot returns the most recent persisted snapshot
// GET /api/portfolios/{id}/snapshots/latest
func (h *Handler) HandleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	state, takenAt, err := h.manager.LatestSnapshot(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err, "Failed to load snapshot")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"taken_at": takenAt, "state": state})
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
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrInsufficientMargin):
		status = http.StatusUnprocessableEntity
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
