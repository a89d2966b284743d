// Package handlers provides HTTP handlers for pre-trade risk validation.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/portfolio"
	"github.com/aristath/hindsight/internal/modules/risk"
)

// PortfolioReader supplies the snapshot a validation runs against.
type PortfolioReader interface {
	Get(id string) (portfolio.State, error)
}

// Handler handles risk validation HTTP requests.
type Handler struct {
	validator  *risk.Validator
	portfolios PortfolioReader
	log        zerolog.Logger
}

// NewHandler creates a new risk handler.
func NewHandler(validator *risk.Validator, portfolios PortfolioReader, log zerolog.Logger) *Handler {
	return &Handler{
		validator:  validator,
		portfolios: portfolios,
		log:        log.With().Str("handler", "risk").Logger(),
	}
}

// HandleGetLimits returns the configured risk thresholds
// GET /api/risk/limits
func (h *Handler) HandleGetLimits(w http.ResponseWriter, r *http.Request) {
	limits := h.validator.Limits()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"max_position_size":     limits.MaxPositionSize,
		"max_sector_allocation": limits.MaxSectorAllocation,
		"correlation_threshold": limits.CorrelationThreshold,
		"max_leverage":          limits.MaxLeverage,
		"max_positions":         limits.MaxPositions,
	})
}

// validateRequest is the JSON body for a dry-run validation.
type validateRequest struct {
	PortfolioID       string             `json:"portfolio_id"`
	Symbol            string             `json:"symbol"`
	Action            string             `json:"action"`
	Shares            int                `json:"shares"`
	Price             float64            `json:"price"`
	Commission        float64            `json:"commission"`
	MarginRequirement float64            `json:"margin_requirement"`
	Sector            string             `json:"sector"`
	Marks             map[string]float64 `json:"marks"`
	Sectors           map[string]string  `json:"sectors"`
}

// HandleValidate dry-runs the pre-trade checks without committing anything
// POST /api/risk/validate
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.portfolios.Get(req.PortfolioID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Failed to load portfolio for validation")
		h.writeError(w, http.StatusInternalServerError, "failed to load portfolio")
		return
	}

	verdict := h.validator.Validate(state, risk.TradeRequest{
		Symbol:            req.Symbol,
		Action:            domain.TradeAction(req.Action),
		Shares:            req.Shares,
		Price:             req.Price,
		Commission:        req.Commission,
		MarginRequirement: req.MarginRequirement,
		Sector:            req.Sector,
		Marks:             req.Marks,
		Sectors:           req.Sectors,
	})

	if verdict == nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"approved": true})
		return
	}
	if reason := domain.RejectionReason(verdict); reason != "" {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"approved": false,
			"reason":   reason,
			"detail":   verdict.Error(),
		})
		return
	}
	// Anything else is a malformed request, not a rejection.
	h.writeJSON(w, http.StatusBadRequest, map[string]string{
		"error": verdict.Error(),
		"code":  domain.ErrorCode(verdict),
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
