// Package domain provides core domain models and types shared across modules.
package domain

import "time"

// SignalAction represents a strategy decision for one symbol on one bar.
type SignalAction string

const (
	SignalBuy  SignalAction = "BUY"
	SignalHold SignalAction = "HOLD"
	SignalSell SignalAction = "SELL"
)

// TradeAction represents the executed side of a journaled trade.
type TradeAction string

const (
	TradeActionBuy               TradeAction = "BUY"
	TradeActionSell              TradeAction = "SELL"
	TradeActionShort             TradeAction = "SHORT"
	TradeActionCover             TradeAction = "COVER"
	TradeActionForcedLiquidation TradeAction = "FORCED_LIQUIDATION"
)

// RiskLevel classifies a security's risk profile. It never feeds the
// composite score, only the classification attached to a recommendation.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskVeryHigh RiskLevel = "VERY_HIGH"
)

// Reliability tags a candlestick pattern's historical dependability.
type Reliability string

const (
	ReliabilityLow    Reliability = "LOW"
	ReliabilityMedium Reliability = "MEDIUM"
	ReliabilityHigh   Reliability = "HIGH"
)

// Bar is one daily OHLCV record. Bars are immutable and ordered by date.
type Bar struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// DateKey returns the bar's calendar date as YYYY-MM-DD in UTC.
// Used as the canonical map key in day-synchronized loops.
func (b Bar) DateKey() string {
	return b.Date.UTC().Format("2006-01-02")
}

// Quote is the latest known price for a symbol together with the time it
// was fetched. The embedded bar carries the session OHLCV.
type Quote struct {
	Bar
	FetchedAt time.Time `json:"fetched_at"`
}

// Fundamentals is a per-symbol snapshot. Every field may be absent; a nil
// pointer means the provider did not report the metric. Missing metrics
// degrade scoring to the neutral midpoint rather than failing it.
type Fundamentals struct {
	Symbol           string     `json:"symbol"`
	AsOf             time.Time  `json:"as_of"`
	Sector           string     `json:"sector,omitempty"`
	Industry         string     `json:"industry,omitempty"`
	MarketCap        *float64   `json:"market_cap,omitempty"`
	PERatio          *float64   `json:"pe_ratio,omitempty"`
	PBRatio          *float64   `json:"pb_ratio,omitempty"`
	ROE              *float64   `json:"roe,omitempty"`
	ROA              *float64   `json:"roa,omitempty"`
	GrossMargin      *float64   `json:"gross_margin,omitempty"`
	OperatingMargin  *float64   `json:"operating_margin,omitempty"`
	NetMargin        *float64   `json:"net_margin,omitempty"`
	DebtToEquity     *float64   `json:"debt_to_equity,omitempty"`
	CurrentRatio     *float64   `json:"current_ratio,omitempty"`
	QuickRatio       *float64   `json:"quick_ratio,omitempty"`
	RevenueGrowth    *float64   `json:"revenue_growth,omitempty"`
	EarningsGrowth   *float64   `json:"earnings_growth,omitempty"`
	FreeCashFlow     *float64   `json:"free_cash_flow,omitempty"`
	DividendPerShare *float64   `json:"dividend_per_share,omitempty"`
	PayoutRatio      *float64   `json:"payout_ratio,omitempty"`
	InterestCoverage *float64   `json:"interest_coverage,omitempty"`
	AnalystTarget    *float64   `json:"analyst_target,omitempty"`
	AnalystRating    *string    `json:"analyst_rating,omitempty"`
	IndustryPE       *float64   `json:"industry_pe,omitempty"`
	FetchedAt        *time.Time `json:"fetched_at,omitempty"`
}

// Signal is a strategy's decision for one symbol on one bar, with optional
// per-strategy metadata preserved as an opaque map.
type Signal struct {
	Action     SignalAction   `json:"action"`
	Confidence float64        `json:"confidence"` // [0,1]
	Reasoning  []string       `json:"reasoning,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Trade is one journaled fill. The trade log is append-only: positions
// mutate, but every mutation is recorded here first.
type Trade struct {
	Date         time.Time   `json:"date"`
	PortfolioID  string      `json:"portfolio_id"`
	Symbol       string      `json:"symbol"`
	Action       TradeAction `json:"action"`
	Shares       float64     `json:"shares"`
	FillPrice    float64     `json:"fill_price"`
	Commission   float64     `json:"commission"`
	Slippage     float64     `json:"slippage"`
	StrategyName string      `json:"strategy_name,omitempty"`
	Reasoning    string      `json:"reasoning,omitempty"`
}

// Position is an open long holding. Shares are whole and non-negative;
// a position at zero shares is removed from its portfolio.
type Position struct {
	Symbol     string    `json:"symbol"`
	Shares     int       `json:"shares"`
	AvgCost    float64   `json:"avg_cost"`
	OpenedAt   time.Time `json:"opened_at"`
	StopLoss   *float64  `json:"stop_loss,omitempty"`
	TakeProfit *float64  `json:"take_profit,omitempty"`
}

// MarketValue marks the position at the given price.
func (p Position) MarketValue(mark float64) float64 {
	return float64(p.Shares) * mark
}

// UnrealizedPnL is the open profit at the given mark.
func (p Position) UnrealizedPnL(mark float64) float64 {
	return (mark - p.AvgCost) * float64(p.Shares)
}

// ShortPosition is an open short. Shares are tracked as a positive
// magnitude; margin posted and borrow interest accrued ride along.
type ShortPosition struct {
	Symbol          string    `json:"symbol"`
	Shares          int       `json:"shares"`
	AvgShortPrice   float64   `json:"avg_short_price"`
	OpenedAt        time.Time `json:"opened_at"`
	MarginPosted    float64   `json:"margin_posted"`
	AccruedInterest float64   `json:"accrued_interest"`
}

// MarketValue marks the short's notional at the given price.
func (s ShortPosition) MarketValue(mark float64) float64 {
	return float64(s.Shares) * mark
}

// UnrealizedPnL is the open profit at the given mark, before interest.
func (s ShortPosition) UnrealizedPnL(mark float64) float64 {
	return (s.AvgShortPrice - mark) * float64(s.Shares)
}

// EquityPoint is one sample of portfolio net worth over time.
type EquityPoint struct {
	Date     time.Time `json:"date"`
	NetWorth float64   `json:"net_worth"`
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// Day normalizes a timestamp to UTC midnight. Bars and calendar loops
// compare dates at day granularity only.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
