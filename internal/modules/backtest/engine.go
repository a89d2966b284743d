// Package backtest replays strategies against historical bars. Three engines
// share the fill model: the single-symbol Engine, the day-synchronized
// PortfolioEngine with portfolio-wide risk checks, and the MarginEngine that
// adds short selling with margin posting and borrow-interest accrual.
//
// Replay is look-ahead free: at bar i a strategy sees bars[0..i] only, and
// fills happen at bar i's close adjusted for slippage. Runs are
// deterministic; identical inputs produce byte-identical trade logs.
package backtest

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/performance"
)

// Config drives a single-symbol run.
type Config struct {
	InitialCapital float64 `json:"initial_capital"`
	CommissionRate float64 `json:"commission_rate"`
	SlippageRate   float64 `json:"slippage_rate"`
	RiskFreeRate   float64 `json:"risk_free_rate"`
}

// Result is the output of a single-symbol run.
type Result struct {
	Symbol          string               `json:"symbol"`
	Strategy        string               `json:"strategy"`
	InitialCapital  float64              `json:"initial_capital"`
	FinalValue      float64              `json:"final_value"`
	ReturnPct       float64              `json:"return_pct"`
	TotalCommission float64              `json:"total_commission"`
	MaxDrawdown     float64              `json:"max_drawdown"`
	Days            int                  `json:"days"`
	Trades          []domain.Trade       `json:"trades"`
	TradePnL        []float64            `json:"trade_pnl"`
	EquityCurve     []domain.EquityPoint `json:"equity_curve"`
	Metrics         performance.Summary  `json:"metrics"`
}

// Engine replays one symbol's bars through a strategy. Long only: a SELL
// signal without an open position produces no trade.
type Engine struct {
	cfg Config
	log zerolog.Logger
}

func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	return &Engine{
		cfg: cfg,
		log: log.With().Str("service", "backtest").Logger(),
	}
}

// Run replays the bars in order. Cancellation is honored between bar
// iterations only, so a cancelled run never leaves a partial fill.
func (e *Engine) Run(ctx context.Context, strategy domain.Strategy, symbol string, bars []domain.Bar) (*Result, error) {
	if strategy == nil {
		return nil, fmt.Errorf("%w: strategy is required", domain.ErrInvalidInput)
	}
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no bars for %s", domain.ErrInvalidInput, symbol)
	}
	if e.cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("%w: initial capital must be positive, got %.2f",
			domain.ErrInvalidInput, e.cfg.InitialCapital)
	}

	cash := e.cfg.InitialCapital
	shares := 0
	avgCost := 0.0
	totalCommission := 0.0

	trades := make([]domain.Trade, 0)
	tradePnL := make([]float64, 0)
	curve := make([]domain.EquityPoint, 0, len(bars))

	for i := range bars {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("backtest of %s stopped at bar %d: %w", symbol, i, domain.ErrCancelled)
		default:
		}

		bar := bars[i]
		// Capacity-capped so a strategy cannot reach past the decision bar.
		window := bars[: i+1 : i+1]
		sig := strategy.Analyze(symbol, window, bar.Close)

		switch sig.Action {
		case domain.SignalBuy:
			// Adding to an open position spends whatever cash remains.
			fill := bar.Close * (1 + e.cfg.SlippageRate)
			qty := affordableShares(cash, fill, e.cfg.CommissionRate)
			if qty > 0 {
				commission := fill * float64(qty) * e.cfg.CommissionRate
				cash -= fill*float64(qty) + commission
				totalCommission += commission
				avgCost = (avgCost*float64(shares) + fill*float64(qty)) / float64(shares+qty)
				shares += qty
				trades = append(trades, domain.Trade{
					Date:         domain.Day(bar.Date),
					Symbol:       symbol,
					Action:       domain.TradeActionBuy,
					Shares:       float64(qty),
					FillPrice:    fill,
					Commission:   commission,
					Slippage:     e.cfg.SlippageRate,
					StrategyName: strategy.Name(),
					Reasoning:    joinReasoning(sig.Reasoning),
				})
			}

		case domain.SignalSell:
			// No shorting here; selling flat is a no-op.
			if shares > 0 {
				fill := bar.Close * (1 - e.cfg.SlippageRate)
				commission := fill * float64(shares) * e.cfg.CommissionRate
				cash += fill*float64(shares) - commission
				totalCommission += commission
				tradePnL = append(tradePnL, (fill-avgCost)*float64(shares)-commission)
				trades = append(trades, domain.Trade{
					Date:         domain.Day(bar.Date),
					Symbol:       symbol,
					Action:       domain.TradeActionSell,
					Shares:       float64(shares),
					FillPrice:    fill,
					Commission:   commission,
					Slippage:     e.cfg.SlippageRate,
					StrategyName: strategy.Name(),
					Reasoning:    joinReasoning(sig.Reasoning),
				})
				shares = 0
				avgCost = 0
			}
		}

		// Every bar marks to the close, trade or not.
		curve = append(curve, domain.EquityPoint{
			Date:     domain.Day(bar.Date),
			NetWorth: cash + float64(shares)*bar.Close,
		})
	}

	finalValue := curve[len(curve)-1].NetWorth
	days := calendarDays(bars)
	dailyReturns := performance.DailyReturns(curve)

	metrics := performance.Compute(performance.Input{
		InitialCapital: e.cfg.InitialCapital,
		FinalValue:     finalValue,
		Days:           days,
		DailyReturns:   dailyReturns,
		EquityCurve:    curve,
		TradePnL:       tradePnL,
		RiskFreeRate:   e.cfg.RiskFreeRate,
	})

	e.log.Debug().
		Str("symbol", symbol).
		Str("strategy", strategy.Name()).
		Int("bars", len(bars)).
		Int("trades", len(trades)).
		Float64("final_value", finalValue).
		Msg("Backtest complete")

	return &Result{
		Symbol:          symbol,
		Strategy:        strategy.Name(),
		InitialCapital:  e.cfg.InitialCapital,
		FinalValue:      finalValue,
		ReturnPct:       metrics.TotalReturn,
		TotalCommission: totalCommission,
		MaxDrawdown:     metrics.MaxDrawdown,
		Days:            days,
		Trades:          trades,
		TradePnL:        tradePnL,
		EquityCurve:     curve,
		Metrics:         metrics,
	}, nil
}

// affordableShares is the largest whole share count whose cost, commission
// included, fits the available cash.
func affordableShares(cash, fill, commissionRate float64) int {
	if fill <= 0 {
		return 0
	}
	qty := math.Floor(cash / (fill * (1 + commissionRate)))
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0
	}
	return int(qty)
}

// calendarDays spans first to last bar inclusive, at least 1.
func calendarDays(bars []domain.Bar) int {
	if len(bars) < 2 {
		return 1
	}
	first := domain.Day(bars[0].Date)
	last := domain.Day(bars[len(bars)-1].Date)
	days := int(last.Sub(first).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

func joinReasoning(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "; ")
}
