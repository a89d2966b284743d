package backtest

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/performance"
	"github.com/aristath/hindsight/internal/modules/portfolio"
)

// MarginResult extends the single-symbol result with short-side accounting.
type MarginResult struct {
	Result
	MarginCalls  []MarginCall `json:"margin_calls"`
	Liquidations int          `json:"liquidations"`
	InterestPaid float64      `json:"interest_paid"`
}

// MarginEngine replays one symbol long and short. A BUY covers an open
// short before going long; a SELL exits the long and then opens a short
// sized by postable margin. Margin maintenance runs every bar and calls
// unresolved by the next bar liquidate at a penalty fill.
type MarginEngine struct {
	cfg      Config
	shortCfg config.ShortConfig
	log      zerolog.Logger
}

func NewMarginEngine(cfg Config, shortCfg config.ShortConfig, log zerolog.Logger) *MarginEngine {
	return &MarginEngine{
		cfg:      cfg,
		shortCfg: shortCfg,
		log:      log.With().Str("service", "backtest_margin").Logger(),
	}
}

// Run replays the bars in order. The sequencing within a bar is fixed:
// interest accrual, forced liquidations for overdue calls, the strategy
// signal, then the margin check at the close.
func (e *MarginEngine) Run(ctx context.Context, strategy domain.Strategy, symbol string, bars []domain.Bar) (*MarginResult, error) {
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

	book := portfolio.New("backtest", "", "USD", e.cfg.InitialCapital, domain.Day(bars[0].Date))
	ledger := NewMarginLedger(book, e.shortCfg, config.TradingConfig{
		CommissionRate: e.cfg.CommissionRate,
		SlippageRate:   e.cfg.SlippageRate,
	})
	ledger.StrategyName = strategy.Name()

	curve := make([]domain.EquityPoint, 0, len(bars))

	for i := range bars {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("backtest of %s stopped at bar %d: %w", symbol, i, domain.ErrCancelled)
		default:
		}

		bar := bars[i]
		date := domain.Day(bar.Date)
		marks := map[string]float64{symbol: bar.Close}

		ledger.AccrueTo(date)

		// Calls issued on an earlier bar and still unresolved liquidate now.
		for _, call := range ledger.Overdue(date) {
			ledger.Reasoning = fmt.Sprintf("margin call from %s unresolved", call.Date.Format("2006-01-02"))
			if _, err := ledger.ForceLiquidate(call.Symbol, bar.Close, date); err != nil {
				e.log.Warn().Err(err).Str("symbol", call.Symbol).Msg("Forced liquidation failed")
			}
		}

		window := bars[: i+1 : i+1]
		sig := strategy.Analyze(symbol, window, bar.Close)

		switch sig.Action {
		case domain.SignalBuy:
			if _, short := book.Short(symbol); short {
				ledger.Reasoning = joinReasoning(sig.Reasoning)
				if _, err := ledger.ExitShort(symbol, nil, bar.Close, date); err != nil {
					e.log.Warn().Err(err).Str("symbol", symbol).Msg("Cover failed")
				}
			} else {
				fill := bar.Close * (1 + e.cfg.SlippageRate)
				if qty := affordableShares(book.Cash, fill, e.cfg.CommissionRate); qty > 0 {
					ledger.Reasoning = joinReasoning(sig.Reasoning)
					if _, err := ledger.Buy(symbol, qty, bar.Close, date); err != nil {
						e.log.Warn().Err(err).Str("symbol", symbol).Msg("Buy failed")
					}
				}
			}

		case domain.SignalSell:
			if _, long := book.Long(symbol); long {
				ledger.Reasoning = joinReasoning(sig.Reasoning)
				if _, err := ledger.Sell(symbol, nil, bar.Close, date); err != nil {
					e.log.Warn().Err(err).Str("symbol", symbol).Msg("Sell failed")
				}
			} else if _, short := book.Short(symbol); !short {
				fill := bar.Close * (1 - e.cfg.SlippageRate)
				if qty := shortableShares(book.Cash, fill, e.shortCfg.MarginRequirement, e.cfg.CommissionRate); qty > 0 {
					ledger.Reasoning = joinReasoning(sig.Reasoning)
					if _, err := ledger.EnterShort(symbol, qty, bar.Close, date); err != nil {
						e.log.Warn().Err(err).Str("symbol", symbol).Msg("Short entry failed")
					}
				}
			}
		}

		ledger.CheckMargin(marks, date)

		// Equity marks to the close net of interest owed but not yet paid.
		curve = append(curve, domain.EquityPoint{
			Date:     date,
			NetWorth: book.NetWorth(marks) - ledger.AccruedInterest(),
		})
	}

	finalValue := curve[len(curve)-1].NetWorth
	days := calendarDays(bars)

	metrics := performance.Compute(performance.Input{
		InitialCapital: e.cfg.InitialCapital,
		FinalValue:     finalValue,
		Days:           days,
		DailyReturns:   performance.DailyReturns(curve),
		EquityCurve:    curve,
		TradePnL:       ledger.TradePnL(),
		RiskFreeRate:   e.cfg.RiskFreeRate,
	})

	e.log.Debug().
		Str("symbol", symbol).
		Str("strategy", strategy.Name()).
		Int("bars", len(bars)).
		Int("trades", len(ledger.Trades())).
		Int("margin_calls", len(ledger.Calls())).
		Int("liquidations", ledger.Liquidations()).
		Float64("final_value", finalValue).
		Msg("Margin backtest complete")

	return &MarginResult{
		Result: Result{
			Symbol:          symbol,
			Strategy:        strategy.Name(),
			InitialCapital:  e.cfg.InitialCapital,
			FinalValue:      finalValue,
			ReturnPct:       metrics.TotalReturn,
			TotalCommission: ledger.TotalCommission(),
			MaxDrawdown:     metrics.MaxDrawdown,
			Days:            days,
			Trades:          ledger.Trades(),
			TradePnL:        ledger.TradePnL(),
			EquityCurve:     curve,
			Metrics:         metrics,
		},
		MarginCalls:  ledger.Calls(),
		Liquidations: ledger.Liquidations(),
		InterestPaid: ledger.InterestPaid(),
	}, nil
}

// shortableShares is the largest whole share count whose posted margin and
// commission fit the available cash.
func shortableShares(cash, fill, marginRequirement, commissionRate float64) int {
	if fill <= 0 || marginRequirement < 1 {
		return 0
	}
	qty := math.Floor(cash / (fill * (marginRequirement + commissionRate)))
	if qty <= 0 || math.IsNaN(qty) || math.IsInf(qty, 0) {
		return 0
	}
	return int(qty)
}
