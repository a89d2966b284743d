package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/performance"
	"github.com/aristath/hindsight/internal/modules/portfolio"
	"github.com/aristath/hindsight/internal/modules/risk"
	"github.com/aristath/hindsight/internal/modules/sizing"
)

var (
	ErrEmptyMarketData = fmt.Errorf("%w: market data map is empty", domain.ErrInvalidInput)
	ErrNoStrategies    = fmt.Errorf("%w: no strategies registered", domain.ErrInvalidInput)
	ErrEmptyDateRange  = fmt.Errorf("%w: no bar dates fall inside the requested range", domain.ErrInvalidInput)
)

// defaultRebalanceThreshold triggers a rebalance when any position drifts
// this far from its target weight.
const defaultRebalanceThreshold = 0.05

// PortfolioConfig drives a multi-symbol run. Limits feed the pre-trade
// validator; RebalanceThreshold defaults to 5% drift when zero.
type PortfolioConfig struct {
	InitialCapital     float64                `json:"initial_capital"`
	CommissionRate     float64                `json:"commission_rate"`
	SlippageRate       float64                `json:"slippage_rate"`
	RiskFreeRate       float64                `json:"risk_free_rate"`
	RebalanceThreshold float64                `json:"rebalance_threshold"`
	Limits             config.PortfolioConfig `json:"limits"`
}

// Period is the realized date span of a run.
type Period struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	TradingDays int       `json:"trading_days"`
}

// SignalStats counts strategy signals and their fate. HOLD signals count as
// generated but never as executed or rejected.
type SignalStats struct {
	Generated        int            `json:"generated"`
	Executed         int            `json:"executed"`
	Rejected         int            `json:"rejected"`
	RejectionReasons map[string]int `json:"rejection_reasons"`
}

// RebalanceLeg is one delta inside a rebalance event.
type RebalanceLeg struct {
	Symbol   string             `json:"symbol"`
	Action   domain.TradeAction `json:"action"`
	Shares   int                `json:"shares"`
	Executed bool               `json:"executed"`
	Reason   string             `json:"reason,omitempty"`
}

// RebalanceEvent records one weekly or drift-triggered rebalance.
type RebalanceEvent struct {
	Date    time.Time      `json:"date"`
	Trigger string         `json:"trigger"` // "weekly" or "threshold"
	Legs    []RebalanceLeg `json:"legs"`
}

// SectorExposure is the long exposure per sector as a fraction of net
// worth on one date.
type SectorExposure struct {
	Date      time.Time          `json:"date"`
	Exposures map[string]float64 `json:"exposures"`
}

// PortfolioResult is the output of a multi-symbol run.
type PortfolioResult struct {
	Period          Period               `json:"period"`
	InitialCapital  float64              `json:"initial_capital"`
	FinalValue      float64              `json:"final_value"`
	TotalCommission float64              `json:"total_commission"`
	Metrics         performance.Summary  `json:"metrics"`
	Trades          []domain.Trade       `json:"trades"`
	SignalsStats    SignalStats          `json:"signals_stats"`
	PortfolioValues []domain.EquityPoint `json:"portfolio_values"`
	Returns         []float64            `json:"returns"`
	Rebalances      []RebalanceEvent     `json:"rebalances"`
	SectorExposures []SectorExposure     `json:"sector_exposures"`
}

type registration struct {
	symbol   string
	strategy domain.Strategy
	sector   string
}

// PortfolioEngine replays several symbols against one shared book. The
// outer loop walks calendar dates; within a date symbols run in
// registration order, so identical inputs replay identically.
type PortfolioEngine struct {
	cfg           PortfolioConfig
	registrations []registration
	index         map[string]int
	sizer         *sizing.Sizer
	validator     *risk.Validator
	log           zerolog.Logger
}

func NewPortfolioEngine(cfg PortfolioConfig, log zerolog.Logger) *PortfolioEngine {
	if cfg.RebalanceThreshold <= 0 {
		cfg.RebalanceThreshold = defaultRebalanceThreshold
	}
	return &PortfolioEngine{
		cfg:       cfg,
		index:     make(map[string]int),
		sizer:     sizing.NewSizer(),
		validator: risk.NewValidator(cfg.Limits, log),
		log:       log.With().Str("service", "backtest_portfolio").Logger(),
	}
}

// Register adds a symbol with its strategy and sector. Registering a
// symbol twice replaces the strategy in place, keeping the original slot
// in the iteration order.
func (e *PortfolioEngine) Register(symbol string, strategy domain.Strategy, sector string) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if strategy == nil {
		return fmt.Errorf("%w: strategy is required", domain.ErrInvalidInput)
	}
	if i, ok := e.index[symbol]; ok {
		e.registrations[i] = registration{symbol: symbol, strategy: strategy, sector: sector}
		return nil
	}
	e.index[symbol] = len(e.registrations)
	e.registrations = append(e.registrations, registration{symbol: symbol, strategy: strategy, sector: sector})
	return nil
}

// Run replays the registered strategies over [start, end]. A strategy only
// sees bars strictly before the decision date; fills use the decision
// date's close.
func (e *PortfolioEngine) Run(ctx context.Context, data map[string][]domain.Bar, start, end time.Time) (*PortfolioResult, error) {
	if len(e.registrations) == 0 {
		return nil, ErrNoStrategies
	}
	if len(data) == 0 {
		return nil, ErrEmptyMarketData
	}
	if e.cfg.InitialCapital <= 0 {
		return nil, fmt.Errorf("%w: initial capital must be positive, got %.2f",
			domain.ErrInvalidInput, e.cfg.InitialCapital)
	}

	dates := tradingDates(data, start, end)
	if len(dates) == 0 {
		return nil, ErrEmptyDateRange
	}

	sectors := make(map[string]string, len(e.registrations))
	for _, reg := range e.registrations {
		if reg.sector != "" {
			sectors[reg.symbol] = reg.sector
		}
	}

	book := portfolio.New("backtest", "", "USD", e.cfg.InitialCapital, dates[0])
	ledger := NewMarginLedger(book, config.ShortConfig{}, config.TradingConfig{
		CommissionRate: e.cfg.CommissionRate,
		SlippageRate:   e.cfg.SlippageRate,
	})

	stats := SignalStats{RejectionReasons: make(map[string]int)}
	curve := make([]domain.EquityPoint, 0, len(dates))
	rebalances := make([]RebalanceEvent, 0)
	sectorSeries := make([]SectorExposure, 0, len(dates))

	cursors := make(map[string]int, len(data))
	marks := make(map[string]float64)

	for di, date := range dates {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("portfolio backtest stopped at %s: %w",
				date.Format("2006-01-02"), domain.ErrCancelled)
		default:
		}

		todays := e.advanceCursors(data, cursors, date, marks)

		for _, reg := range e.registrations {
			bar, ok := todays[reg.symbol]
			if !ok {
				continue
			}
			bars := data[reg.symbol]
			cut := cursors[reg.symbol]
			if cut == 0 {
				// No history strictly before this date yet.
				continue
			}
			history := bars[:cut:cut]

			ledger.StrategyName = reg.strategy.Name()
			sig := reg.strategy.Analyze(reg.symbol, history, bar.Close)
			stats.Generated++

			switch sig.Action {
			case domain.SignalBuy:
				e.tryBuy(ledger, book, reg, bar.Close, date, marks, sectors, joinReasoning(sig.Reasoning), &stats)
			case domain.SignalSell:
				e.trySell(ledger, book, reg.symbol, nil, bar.Close, date, joinReasoning(sig.Reasoning), &stats)
			}
		}

		nw := book.NetWorth(marks)
		curve = append(curve, domain.EquityPoint{Date: date, NetWorth: nw})
		sectorSeries = append(sectorSeries, SectorExposure{
			Date:      date,
			Exposures: sectorExposures(book.Snapshot(), sectors, marks, nw),
		})

		if trigger := e.rebalanceTrigger(book, marks, dates, di); trigger != "" {
			if ev := e.rebalance(ledger, book, marks, sectors, date, trigger); len(ev.Legs) > 0 {
				rebalances = append(rebalances, ev)
			}
		}
	}

	finalValue := curve[len(curve)-1].NetWorth
	returns := performance.DailyReturns(curve)

	metrics := performance.Compute(performance.Input{
		InitialCapital: e.cfg.InitialCapital,
		FinalValue:     finalValue,
		Days:           spanDays(dates),
		DailyReturns:   returns,
		EquityCurve:    curve,
		TradePnL:       ledger.TradePnL(),
		RiskFreeRate:   e.cfg.RiskFreeRate,
	})

	e.log.Debug().
		Int("symbols", len(e.registrations)).
		Int("trading_days", len(dates)).
		Int("trades", len(ledger.Trades())).
		Int("rejected", stats.Rejected).
		Float64("final_value", finalValue).
		Msg("Portfolio backtest complete")

	return &PortfolioResult{
		Period:          Period{Start: dates[0], End: dates[len(dates)-1], TradingDays: len(dates)},
		InitialCapital:  e.cfg.InitialCapital,
		FinalValue:      finalValue,
		TotalCommission: ledger.TotalCommission(),
		Metrics:         metrics,
		Trades:          ledger.Trades(),
		SignalsStats:    stats,
		PortfolioValues: curve,
		Returns:         returns,
		Rebalances:      rebalances,
		SectorExposures: sectorSeries,
	}, nil
}

// tryBuy sizes a BUY at the fixed-percent target, validates it and commits
// if approved. Rejections become counters, never errors.
func (e *PortfolioEngine) tryBuy(ledger *MarginLedger, book *portfolio.Portfolio, reg registration, price float64, date time.Time, marks map[string]float64, sectors map[string]string, reasoning string, stats *SignalStats) {
	fill := price * (1 + e.cfg.SlippageRate)
	nw := book.NetWorth(marks)
	if nw <= 0 {
		return
	}

	target := e.cfg.Limits.MaxPositionSize
	if target <= 0 {
		target = 1
	}
	size, err := e.sizer.FixedPercent(target, fill, nw)
	if err != nil || size.Shares == 0 {
		return
	}

	qty := size.Shares
	if affordable := affordableShares(book.Cash, fill, e.cfg.CommissionRate); qty > affordable {
		qty = affordable
	}
	if qty == 0 {
		return
	}

	commission := fill * float64(qty) * e.cfg.CommissionRate
	if err := e.validate(book, risk.TradeRequest{
		Symbol:     reg.symbol,
		Action:     domain.TradeActionBuy,
		Shares:     qty,
		Price:      fill,
		Commission: commission,
		Sector:     reg.sector,
		Marks:      marks,
		Sectors:    sectors,
	}, stats); err != nil {
		return
	}

	ledger.Reasoning = reasoning
	if _, err := ledger.Buy(reg.symbol, qty, price, date); err != nil {
		e.log.Warn().Err(err).Str("symbol", reg.symbol).Msg("Buy failed after approval")
		return
	}
	stats.Executed++
}

// trySell closes part or all of a long. Selling flat is a no-op, not a
// rejection.
func (e *PortfolioEngine) trySell(ledger *MarginLedger, book *portfolio.Portfolio, symbol string, shares *int, price float64, date time.Time, reasoning string, stats *SignalStats) {
	pos, held := book.Long(symbol)
	if !held {
		return
	}
	qty := pos.Shares
	if shares != nil {
		qty = *shares
	}
	if qty <= 0 {
		return
	}

	ledger.Reasoning = reasoning
	if _, err := ledger.Sell(symbol, &qty, price, date); err != nil {
		e.log.Warn().Err(err).Str("symbol", symbol).Msg("Sell failed")
		return
	}
	stats.Executed++
}

// validate runs the pre-trade checks, folding rejections into the stats
// and propagating genuine errors as log noise only.
func (e *PortfolioEngine) validate(book *portfolio.Portfolio, req risk.TradeRequest, stats *SignalStats) error {
	err := e.validator.Validate(book.Snapshot(), req)
	if err == nil {
		return nil
	}
	var rej *domain.RiskRejectedError
	if errors.As(err, &rej) {
		stats.Rejected++
		stats.RejectionReasons[rej.Reason]++
	} else {
		e.log.Warn().Err(err).Str("symbol", req.Symbol).Msg("Validation error")
	}
	return err
}

// rebalanceTrigger fires on the last trading date of each calendar week,
// or whenever any position drifts past the threshold from its target
// weight.
func (e *PortfolioEngine) rebalanceTrigger(book *portfolio.Portfolio, marks map[string]float64, dates []time.Time, di int) string {
	date := dates[di]
	weekEnd := di == len(dates)-1
	if !weekEnd {
		y1, w1 := date.ISOWeek()
		y2, w2 := dates[di+1].ISOWeek()
		weekEnd = y1 != y2 || w1 != w2
	}
	if weekEnd {
		return "weekly"
	}

	nw := book.NetWorth(marks)
	if nw <= 0 {
		return ""
	}
	target := e.cfg.Limits.MaxPositionSize
	if target <= 0 {
		return ""
	}
	for _, pos := range book.Longs() {
		weight := pos.MarketValue(markOrFallback(marks, pos.Symbol, pos.AvgCost)) / nw
		if math.Abs(weight-target) > e.cfg.RebalanceThreshold {
			return "threshold"
		}
	}
	return ""
}

// rebalance brings every long back toward the fixed-percent target. Sells
// run before buys so freed cash can fund them; every leg goes through the
// validated commit path.
func (e *PortfolioEngine) rebalance(ledger *MarginLedger, book *portfolio.Portfolio, marks map[string]float64, sectors map[string]string, date time.Time, trigger string) RebalanceEvent {
	ev := RebalanceEvent{Date: date, Trigger: trigger}
	ledger.StrategyName = "rebalance"
	nw := book.NetWorth(marks)
	target := e.cfg.Limits.MaxPositionSize
	if nw <= 0 || target <= 0 {
		return ev
	}

	type delta struct {
		symbol string
		shares int // negative sells
		price  float64
	}
	var deltas []delta
	for _, pos := range book.Longs() {
		price := markOrFallback(marks, pos.Symbol, pos.AvgCost)
		weight := float64(pos.Shares) * price / nw
		if math.Abs(weight-target) <= e.cfg.RebalanceThreshold {
			continue
		}
		want := int(math.Floor(nw * target / price))
		if want == pos.Shares {
			continue
		}
		deltas = append(deltas, delta{symbol: pos.Symbol, shares: want - pos.Shares, price: price})
	}
	sort.Slice(deltas, func(i, j int) bool {
		if (deltas[i].shares < 0) != (deltas[j].shares < 0) {
			return deltas[i].shares < 0
		}
		return deltas[i].symbol < deltas[j].symbol
	})

	for _, d := range deltas {
		leg := RebalanceLeg{Symbol: d.symbol, Shares: abs(d.shares)}
		ledger.Reasoning = fmt.Sprintf("%s rebalance toward %.0f%% target", trigger, target*100)
		if d.shares < 0 {
			leg.Action = domain.TradeActionSell
			qty := -d.shares
			if _, err := ledger.Sell(d.symbol, &qty, d.price, date); err != nil {
				leg.Reason = err.Error()
			} else {
				leg.Executed = true
			}
		} else {
			leg.Action = domain.TradeActionBuy
			fill := d.price * (1 + e.cfg.SlippageRate)
			commission := fill * float64(d.shares) * e.cfg.CommissionRate
			err := e.validator.Validate(book.Snapshot(), risk.TradeRequest{
				Symbol:     d.symbol,
				Action:     domain.TradeActionBuy,
				Shares:     d.shares,
				Price:      fill,
				Commission: commission,
				Sector:     sectors[d.symbol],
				Marks:      marks,
				Sectors:    sectors,
			})
			if err == nil {
				_, err = ledger.Buy(d.symbol, d.shares, d.price, date)
			}
			if err != nil {
				leg.Reason = rejectionOrError(err)
			} else {
				leg.Executed = true
			}
		}
		ev.Legs = append(ev.Legs, leg)
	}
	return ev
}

// advanceCursors moves each symbol's history cursor past all bars strictly
// before date, returning the bars trading on that date and refreshing the
// marks with their closes.
func (e *PortfolioEngine) advanceCursors(data map[string][]domain.Bar, cursors map[string]int, date time.Time, marks map[string]float64) map[string]domain.Bar {
	todays := make(map[string]domain.Bar)
	for _, reg := range e.registrations {
		bars, ok := data[reg.symbol]
		if !ok {
			continue
		}
		i := cursors[reg.symbol]
		for i < len(bars) && domain.Day(bars[i].Date).Before(date) {
			i++
		}
		cursors[reg.symbol] = i
		if i < len(bars) && domain.Day(bars[i].Date).Equal(date) {
			todays[reg.symbol] = bars[i]
			marks[reg.symbol] = bars[i].Close
		}
	}
	return todays
}

// tradingDates is the sorted union of all bar dates inside [start, end].
func tradingDates(data map[string][]domain.Bar, start, end time.Time) []time.Time {
	startDay := domain.Day(start)
	endDay := domain.Day(end)
	seen := make(map[time.Time]struct{})
	for _, bars := range data {
		for _, bar := range bars {
			day := domain.Day(bar.Date)
			if day.Before(startDay) || day.After(endDay) {
				continue
			}
			seen[day] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for day := range seen {
		dates = append(dates, day)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func sectorExposures(state portfolio.State, sectors map[string]string, marks map[string]float64, netWorth float64) map[string]float64 {
	out := make(map[string]float64)
	if netWorth <= 0 {
		return out
	}
	for _, pos := range state.Longs {
		sector := sectors[pos.Symbol]
		if sector == "" {
			sector = "unknown"
		}
		out[sector] += pos.MarketValue(markOrFallback(marks, pos.Symbol, pos.AvgCost)) / netWorth
	}
	return out
}

func spanDays(dates []time.Time) int {
	if len(dates) < 2 {
		return 1
	}
	days := int(dates[len(dates)-1].Sub(dates[0]).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

func rejectionOrError(err error) string {
	var rej *domain.RiskRejectedError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return err.Error()
}

func markOrFallback(marks map[string]float64, symbol string, fallback float64) float64 {
	if m, ok := marks[symbol]; ok && m > 0 {
		return m
	}
	return fallback
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
