// Package risk is the pre-trade validator. It receives a portfolio snapshot
// by value together with the candidate trade and either approves it or
// rejects it with a stable reason code. The validator never mutates
// portfolio state.
package risk

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/portfolio"
)

// Rejection reason codes counted under signals_stats.rejection_reasons.
const (
	ReasonInsufficientFunds    = "insufficient_funds"
	ReasonInsufficientMargin   = "insufficient_margin"
	ReasonInsufficientShares   = "insufficient_shares"
	ReasonMaxPositionSize      = "max_position_size"
	ReasonMaxSectorAllocation  = "max_sector_allocation"
	ReasonCorrelationThreshold = "correlation_threshold"
	ReasonMaxLeverage          = "max_leverage"
	ReasonMaxPositions         = "max_positions"
)

// TradeRequest is one candidate trade under validation. Marks carry the
// latest known price per held symbol; Sectors maps symbols to sectors for
// the concentration check. Correlations may be nil, which skips the
// correlation check.
type TradeRequest struct {
	Symbol            string
	Action            domain.TradeAction
	Shares            int
	Price             float64
	Commission        float64
	MarginRequirement float64 // SHORT only
	Sector            string
	Marks             map[string]float64
	Sectors           map[string]string
	Correlations      *CorrelationMatrix
}

// Validator runs the pre-trade checks in a fixed order: funds and margin
// first (mandatory), then position size, sector concentration, correlation,
// leverage and the open-position cap.
type Validator struct {
	limits config.PortfolioConfig
	log    zerolog.Logger
}

func NewValidator(limits config.PortfolioConfig, log zerolog.Logger) *Validator {
	return &Validator{
		limits: limits,
		log:    log.With().Str("service", "risk").Logger(),
	}
}

// Limits returns the configured thresholds.
func (v *Validator) Limits() config.PortfolioConfig {
	return v.limits
}

// Validate approves or rejects one candidate trade against a portfolio
// snapshot. Rejections carry a RiskRejectedError with the reason code;
// the backtest engines absorb them into rejection_reasons and continue.
func (v *Validator) Validate(state portfolio.State, req TradeRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if req.Shares <= 0 {
		return fmt.Errorf("%w: shares must be positive, got %d", domain.ErrInvalidInput, req.Shares)
	}
	if req.Price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %.4f", domain.ErrInvalidInput, req.Price)
	}

	switch req.Action {
	case domain.TradeActionBuy:
		return v.validateBuy(state, req)
	case domain.TradeActionShort:
		return v.validateShort(state, req)
	case domain.TradeActionSell:
		return v.validateSell(state, req)
	case domain.TradeActionCover, domain.TradeActionForcedLiquidation:
		return v.validateCover(state, req)
	default:
		return fmt.Errorf("%w: unknown trade action %q", domain.ErrInvalidInput, req.Action)
	}
}

func (v *Validator) validateBuy(state portfolio.State, req TradeRequest) error {
	cost := float64(req.Shares)*req.Price + req.Commission
	if cost > state.Cash {
		return v.reject(req, ReasonInsufficientFunds)
	}
	return v.validateEntry(state, req, float64(req.Shares)*req.Price)
}

func (v *Validator) validateShort(state portfolio.State, req TradeRequest) error {
	if req.MarginRequirement < 1 {
		return fmt.Errorf("%w: margin requirement must be at least 1, got %.2f",
			domain.ErrInvalidParameter, req.MarginRequirement)
	}
	margin := float64(req.Shares) * req.Price * req.MarginRequirement
	if margin+req.Commission > state.Cash {
		return v.reject(req, ReasonInsufficientMargin)
	}
	return v.validateEntry(state, req, float64(req.Shares)*req.Price)
}

// validateEntry runs the portfolio-level limits shared by BUY and SHORT.
// value is the notional the trade adds to gross exposure.
func (v *Validator) validateEntry(state portfolio.State, req TradeRequest, value float64) error {
	netWorth := stateNetWorth(state, req.Marks)
	if netWorth <= 0 {
		return v.reject(req, ReasonInsufficientFunds)
	}

	// Max position size, measured after the trade.
	existing := positionValue(state, req.Symbol, req.Marks)
	if v.limits.MaxPositionSize > 0 && (existing+value)/netWorth > v.limits.MaxPositionSize {
		return v.reject(req, ReasonMaxPositionSize)
	}

	// Sector concentration needs a symbol -> sector map.
	if v.limits.MaxSectorAllocation > 0 && req.Sector != "" {
		sectorValue := value
		for _, pos := range state.Longs {
			if req.Sectors[pos.Symbol] == req.Sector {
				sectorValue += pos.MarketValue(markOr(req.Marks, pos.Symbol, pos.AvgCost))
			}
		}
		if sectorValue/netWorth > v.limits.MaxSectorAllocation {
			return v.reject(req, ReasonMaxSectorAllocation)
		}
	}

	// Correlation applies to new entries only; existing violating holdings
	// are grandfathered.
	if v.limits.CorrelationThreshold > 0 && req.Correlations != nil {
		if !isHeld(state, req.Symbol) {
			held := heldSymbols(state)
			if r, against := req.Correlations.MaxAgainst(req.Symbol, held); r > v.limits.CorrelationThreshold {
				v.log.Debug().
					Str("symbol", req.Symbol).
					Str("against", against).
					Float64("correlation", r).
					Msg("Correlation cap rejected entry")
				return v.reject(req, ReasonCorrelationThreshold)
			}
		}
	}

	// Leverage: gross exposure over net worth after the trade.
	if v.limits.MaxLeverage > 0 {
		gross := grossExposure(state, req.Marks) + value
		if gross/netWorth > v.limits.MaxLeverage+1e-9 {
			return v.reject(req, ReasonMaxLeverage)
		}
	}

	// Open-position cap, counting the new symbol if unheld. 0 = unbounded.
	if v.limits.MaxPositions > 0 && !isHeld(state, req.Symbol) {
		if len(state.Longs)+len(state.Shorts) >= v.limits.MaxPositions {
			return v.reject(req, ReasonMaxPositions)
		}
	}

	return nil
}

func (v *Validator) validateSell(state portfolio.State, req TradeRequest) error {
	for _, pos := range state.Longs {
		if pos.Symbol == req.Symbol && pos.Shares >= req.Shares {
			return nil
		}
	}
	return v.reject(req, ReasonInsufficientShares)
}

func (v *Validator) validateCover(state portfolio.State, req TradeRequest) error {
	for _, sp := range state.Shorts {
		if sp.Symbol == req.Symbol && sp.Shares >= req.Shares {
			return nil
		}
	}
	return v.reject(req, ReasonInsufficientShares)
}

func (v *Validator) reject(req TradeRequest, reason string) error {
	v.log.Debug().
		Str("symbol", req.Symbol).
		Str("action", string(req.Action)).
		Str("reason", reason).
		Msg("Trade rejected")
	return &domain.RiskRejectedError{Reason: reason}
}

// stateNetWorth marks a snapshot the same way the portfolio book does:
// cash + margin + longs - shorts, entry price when a mark is missing.
func stateNetWorth(state portfolio.State, marks map[string]float64) float64 {
	nw := state.Cash + state.MarginBalance
	for _, pos := range state.Longs {
		nw += pos.MarketValue(markOr(marks, pos.Symbol, pos.AvgCost))
	}
	for _, sp := range state.Shorts {
		nw -= sp.MarketValue(markOr(marks, sp.Symbol, sp.AvgShortPrice))
	}
	return nw
}

func grossExposure(state portfolio.State, marks map[string]float64) float64 {
	gross := 0.0
	for _, pos := range state.Longs {
		gross += pos.MarketValue(markOr(marks, pos.Symbol, pos.AvgCost))
	}
	for _, sp := range state.Shorts {
		gross += sp.MarketValue(markOr(marks, sp.Symbol, sp.AvgShortPrice))
	}
	return gross
}

func positionValue(state portfolio.State, symbol string, marks map[string]float64) float64 {
	for _, pos := range state.Longs {
		if pos.Symbol == symbol {
			return pos.MarketValue(markOr(marks, symbol, pos.AvgCost))
		}
	}
	return 0
}

func isHeld(state portfolio.State, symbol string) bool {
	for _, pos := range state.Longs {
		if pos.Symbol == symbol {
			return true
		}
	}
	for _, sp := range state.Shorts {
		if sp.Symbol == symbol {
			return true
		}
	}
	return false
}

func heldSymbols(state portfolio.State) []string {
	out := make([]string, 0, len(state.Longs)+len(state.Shorts))
	for _, pos := range state.Longs {
		out = append(out, pos.Symbol)
	}
	for _, sp := range state.Shorts {
		out = append(out, sp.Symbol)
	}
	return out
}

func markOr(marks map[string]float64, symbol string, fallback float64) float64 {
	if m, ok := marks[symbol]; ok && m > 0 {
		return m
	}
	return fallback
}
