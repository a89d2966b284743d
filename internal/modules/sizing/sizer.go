// Package sizing computes how many shares to buy for a candidate position.
// Six policies share one output shape; all floor fractional shares and cap
// the resulting position at a quarter of portfolio value.
package sizing

import (
	"fmt"
	"math"

	"github.com/aristath/hindsight/internal/domain"
)

// Method identifies a sizing policy.
type Method string

const (
	MethodFixedDollar  Method = "fixed_dollar"
	MethodFixedPercent Method = "fixed_percent"
	MethodKelly        Method = "kelly"
	MethodVolatility   Method = "volatility"
	MethodRiskParity   Method = "risk_parity"
	MethodMarginAware  Method = "margin_aware"
)

// maxPositionPercent is the hard cap on any single position.
const maxPositionPercent = 0.25

// Size is the result of sizing one position.
type Size struct {
	Symbol      string             `json:"symbol,omitempty"`
	Shares      int                `json:"shares"`
	Value       float64            `json:"value"`
	Percent     float64            `json:"percent"`
	Method      Method             `json:"method"`
	Diagnostics map[string]float64 `json:"diagnostics,omitempty"`
}

// KellyParams feed the Kelly criterion policy. Fraction scales the full
// Kelly bet (0.5 for half-Kelly).
type KellyParams struct {
	WinProbability float64
	AvgWin         float64
	AvgLoss        float64
	Fraction       float64
	Price          float64
	PortfolioValue float64
}

// VolatilityParams feed the ATR stop-distance policy.
type VolatilityParams struct {
	Price          float64
	PortfolioValue float64
	ATR            float64
	ATRMultiplier  float64
	RiskPercent    float64
}

// Asset is one candidate in a risk-parity allocation.
type Asset struct {
	Symbol string
	Price  float64
	Sigma  float64 // daily return volatility
}

// Sizer evaluates the sizing policies.
type Sizer struct {
	maxPercent float64
}

func NewSizer() *Sizer {
	return &Sizer{maxPercent: maxPositionPercent}
}

// FixedDollar sizes a position worth amount, bounded by portfolio value.
func (s *Sizer) FixedDollar(amount, price, portfolioValue float64) (*Size, error) {
	if err := validatePricePortfolio(price, portfolioValue); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %.2f", domain.ErrInvalidParameter, amount)
	}

	budget := math.Min(amount, portfolioValue)
	diag := map[string]float64{"requested_amount": amount, "budget": budget}
	shares := s.cap(floorShares(budget/price), price, portfolioValue, diag)
	return newSize(MethodFixedDollar, "", shares, price, portfolioValue, diag), nil
}

// FixedPercent sizes a position at a fraction of portfolio value.
func (s *Sizer) FixedPercent(percent, price, portfolioValue float64) (*Size, error) {
	if err := validatePricePortfolio(price, portfolioValue); err != nil {
		return nil, err
	}
	if percent <= 0 || percent > 1 {
		return nil, fmt.Errorf("%w: percent must be in (0, 1], got %.4f", domain.ErrInvalidParameter, percent)
	}

	diag := map[string]float64{"requested_percent": percent}
	shares := s.cap(floorShares(portfolioValue*percent/price), price, portfolioValue, diag)
	return newSize(MethodFixedPercent, "", shares, price, portfolioValue, diag), nil
}

// Kelly sizes by the Kelly criterion: f* = (pW·b − pL) / b with b the
// win/loss payoff ratio. A non-positive edge sizes to zero shares.
func (s *Sizer) Kelly(p KellyParams) (*Size, error) {
	if err := validatePricePortfolio(p.Price, p.PortfolioValue); err != nil {
		return nil, err
	}
	if p.WinProbability <= 0 || p.WinProbability >= 1 {
		return nil, fmt.Errorf("%w: win probability must be in (0, 1), got %.4f", domain.ErrInvalidParameter, p.WinProbability)
	}
	if p.AvgWin <= 0 || p.AvgLoss <= 0 {
		return nil, fmt.Errorf("%w: average win and loss must be positive", domain.ErrInvalidParameter)
	}
	if p.Fraction <= 0 || p.Fraction > 1 {
		return nil, fmt.Errorf("%w: kelly fraction must be in (0, 1], got %.4f", domain.ErrInvalidParameter, p.Fraction)
	}

	b := p.AvgWin / p.AvgLoss
	fStar := (p.WinProbability*b - (1 - p.WinProbability)) / b
	diag := map[string]float64{"kelly_f": fStar, "payoff_ratio": b}

	if fStar <= 0 {
		diag["fraction"] = 0
		return newSize(MethodKelly, "", 0, p.Price, p.PortfolioValue, diag), nil
	}

	fraction := math.Min(fStar*p.Fraction, maxPositionPercent)
	diag["fraction"] = fraction
	shares := s.cap(floorShares(p.PortfolioValue*fraction/p.Price), p.Price, p.PortfolioValue, diag)
	return newSize(MethodKelly, "", shares, p.Price, p.PortfolioValue, diag), nil
}

// Volatility sizes so that a stop at atrMultiplier ATRs below the entry
// risks riskPercent of the portfolio.
func (s *Sizer) Volatility(p VolatilityParams) (*Size, error) {
	if err := validatePricePortfolio(p.Price, p.PortfolioValue); err != nil {
		return nil, err
	}
	if p.ATR <= 0 {
		return nil, fmt.Errorf("%w: ATR must be positive, got %.4f", domain.ErrInvalidParameter, p.ATR)
	}
	if p.ATRMultiplier <= 0 {
		return nil, fmt.Errorf("%w: ATR multiplier must be positive, got %.2f", domain.ErrInvalidParameter, p.ATRMultiplier)
	}
	if p.RiskPercent <= 0 || p.RiskPercent > 0.10 {
		return nil, fmt.Errorf("%w: risk percent must be in (0, 0.10], got %.4f", domain.ErrInvalidParameter, p.RiskPercent)
	}

	stopDistance := p.ATRMultiplier * p.ATR
	riskCapital := p.PortfolioValue * p.RiskPercent
	diag := map[string]float64{
		"atr":             p.ATR,
		"stop_distance":   stopDistance,
		"risk_capital":    riskCapital,
		"stop_loss_price": p.Price - stopDistance,
	}
	shares := s.cap(floorShares(riskCapital/stopDistance), p.Price, p.PortfolioValue, diag)
	return newSize(MethodVolatility, "", shares, p.Price, p.PortfolioValue, diag), nil
}

// RiskParity allocates across assets with weights proportional to inverse
// volatility. Reported weights always sum to 1; each resulting position
// still honors the global cap.
func (s *Sizer) RiskParity(assets []Asset, portfolioValue float64) ([]Size, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("%w: at least one asset is required", domain.ErrInvalidParameter)
	}
	if portfolioValue <= 0 {
		return nil, fmt.Errorf("%w: portfolio value must be positive, got %.2f", domain.ErrInvalidParameter, portfolioValue)
	}

	invSum := 0.0
	for _, a := range assets {
		if a.Price <= 0 {
			return nil, fmt.Errorf("%w: %s price must be positive, got %.2f", domain.ErrInvalidParameter, a.Symbol, a.Price)
		}
		if a.Sigma <= 0 {
			return nil, fmt.Errorf("%w: %s volatility must be positive, got %.4f", domain.ErrInvalidParameter, a.Symbol, a.Sigma)
		}
		invSum += 1 / a.Sigma
	}

	sizes := make([]Size, 0, len(assets))
	for _, a := range assets {
		weight := (1 / a.Sigma) / invSum
		diag := map[string]float64{"sigma": a.Sigma, "weight": weight}
		shares := s.cap(floorShares(portfolioValue*weight/a.Price), a.Price, portfolioValue, diag)
		sz := newSize(MethodRiskParity, a.Symbol, shares, a.Price, portfolioValue, diag)
		sizes = append(sizes, *sz)
	}
	return sizes, nil
}

// MarginAware sizes to the smaller of the margin capacity of available cash
// and the portfolio's leverage budget.
func (s *Sizer) MarginAware(price, availableCash, portfolioValue, marginRequirement, maxLeverage float64) (*Size, error) {
	if err := validatePricePortfolio(price, portfolioValue); err != nil {
		return nil, err
	}
	if availableCash < 0 {
		return nil, fmt.Errorf("%w: available cash cannot be negative, got %.2f", domain.ErrInvalidParameter, availableCash)
	}
	if marginRequirement <= 0 {
		return nil, fmt.Errorf("%w: margin requirement must be positive, got %.2f", domain.ErrInvalidParameter, marginRequirement)
	}
	if maxLeverage <= 0 {
		return nil, fmt.Errorf("%w: max leverage must be positive, got %.2f", domain.ErrInvalidParameter, maxLeverage)
	}

	marginCapacity := availableCash / marginRequirement
	leverageCapacity := portfolioValue * maxLeverage
	maxValue := math.Min(marginCapacity, leverageCapacity)
	diag := map[string]float64{
		"margin_capacity":   marginCapacity,
		"leverage_capacity": leverageCapacity,
		"max_value":         maxValue,
	}
	shares := s.cap(floorShares(maxValue/price), price, portfolioValue, diag)
	return newSize(MethodMarginAware, "", shares, price, portfolioValue, diag), nil
}

// cap enforces the position-percent ceiling, marking the diagnostics when
// it binds.
func (s *Sizer) cap(shares int, price, portfolioValue float64, diag map[string]float64) int {
	maxValue := s.maxPercent * portfolioValue
	if float64(shares)*price <= maxValue {
		return shares
	}
	diag["capped"] = 1
	return floorShares(maxValue / price)
}

func validatePricePortfolio(price, portfolioValue float64) error {
	if price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %.2f", domain.ErrInvalidParameter, price)
	}
	if portfolioValue <= 0 {
		return fmt.Errorf("%w: portfolio value must be positive, got %.2f", domain.ErrInvalidParameter, portfolioValue)
	}
	return nil
}

func floorShares(v float64) int {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Floor(v))
}

func newSize(method Method, symbol string, shares int, price, portfolioValue float64, diag map[string]float64) *Size {
	value := float64(shares) * price
	return &Size{
		Symbol:      symbol,
		Shares:      shares,
		Value:       value,
		Percent:     value / portfolioValue,
		Method:      method,
		Diagnostics: diag,
	}
}
