package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/portfolio"
	hstesting "github.com/aristath/hindsight/internal/testing"
)

// scripted is a test strategy driven by a closure.
type scripted struct {
	name string
	fn   func(symbol string, window []domain.Bar, price float64) domain.Signal
}

func (s *scripted) Name() string     { return s.name }
func (s *scripted) Describe() string { return "scripted test strategy" }
func (s *scripted) Analyze(symbol string, window []domain.Bar, price float64) domain.Signal {
	return s.fn(symbol, window, price)
}
func (s *scripted) SetParams(map[string]float64) error { return nil }
func (s *scripted) Params() map[string]float64         { return map[string]float64{} }

func buyOnce() *scripted {
	return &scripted{name: "buy_once", fn: func(_ string, window []domain.Bar, _ float64) domain.Signal {
		if len(window) == 1 {
			return domain.Signal{Action: domain.SignalBuy, Confidence: 1}
		}
		return domain.Signal{Action: domain.SignalHold}
	}}
}

func alwaysBuy() *scripted {
	return &scripted{name: "always_buy", fn: func(string, []domain.Bar, float64) domain.Signal {
		return domain.Signal{Action: domain.SignalBuy, Confidence: 1}
	}}
}

func testConfig() Config {
	return Config{
		InitialCapital: 10_000,
		CommissionRate: 0.001,
		SlippageRate:   0.0005,
	}
}

func TestEngineBuyAndHold(t *testing.T) {
	e := NewEngine(testConfig(), zerolog.Nop())
	bars := hstesting.BarsFromCloses("AAPL", []float64{100, 101, 102})

	res, err := e.Run(context.Background(), buyOnce(), "AAPL", bars)
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	trade := res.Trades[0]
	assert.Equal(t, domain.TradeActionBuy, trade.Action)
	assert.InDelta(t, 100.05, trade.FillPrice, 1e-9) // close * (1 + slippage)
	assert.Equal(t, 99.0, trade.Shares)

	assert.Greater(t, res.FinalValue, res.InitialCapital)
	assert.Greater(t, res.Metrics.TotalReturn, 0.0)

	require.Len(t, res.EquityCurve, 3)
	assert.Greater(t, res.EquityCurve[1].NetWorth, res.EquityCurve[0].NetWorth)
	assert.Greater(t, res.EquityCurve[2].NetWorth, res.EquityCurve[1].NetWorth)
}

func TestEngineSellWhileFlatIsNoop(t *testing.T) {
	e := NewEngine(testConfig(), zerolog.Nop())
	bars := hstesting.BarsFromCloses("AAPL", []float64{100, 99, 98})

	sell := &scripted{name: "always_sell", fn: func(string, []domain.Bar, float64) domain.Signal {
		return domain.Signal{Action: domain.SignalSell}
	}}
	res, err := e.Run(context.Background(), sell, "AAPL", bars)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, res.InitialCapital, res.FinalValue)
}

func TestEngineDeterministicReplay(t *testing.T) {
	e := NewEngine(testConfig(), zerolog.Nop())
	bars := hstesting.OscillatingBars("AAPL", 60, 100, 5)

	sig := func(_ string, window []domain.Bar, price float64) domain.Signal {
		if len(window)%7 == 0 {
			return domain.Signal{Action: domain.SignalBuy}
		}
		if len(window)%11 == 0 {
			return domain.Signal{Action: domain.SignalSell}
		}
		return domain.Signal{Action: domain.SignalHold}
	}

	a, err := e.Run(context.Background(), &scripted{name: "s", fn: sig}, "AAPL", bars)
	require.NoError(t, err)
	b, err := e.Run(context.Background(), &scripted{name: "s", fn: sig}, "AAPL", bars)
	require.NoError(t, err)

	assert.Equal(t, a.Trades, b.Trades)
	assert.Equal(t, a.EquityCurve, b.EquityCurve)
	assert.Equal(t, a.FinalValue, b.FinalValue)
}

func TestEngineWindowNeverReachesFutureBars(t *testing.T) {
	e := NewEngine(testConfig(), zerolog.Nop())
	bars := hstesting.TrendingBars("AAPL", 20, 100, 1)

	probe := &scripted{name: "probe", fn: func(_ string, window []domain.Bar, _ float64) domain.Signal {
		assert.Equal(t, len(window), cap(window))
		return domain.Signal{Action: domain.SignalHold}
	}}
	_, err := e.Run(context.Background(), probe, "AAPL", bars)
	require.NoError(t, err)
}

func TestEngineInputValidation(t *testing.T) {
	e := NewEngine(testConfig(), zerolog.Nop())
	bars := hstesting.TrendingBars("AAPL", 5, 100, 1)

	_, err := e.Run(context.Background(), nil, "AAPL", bars)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.Run(context.Background(), buyOnce(), "", bars)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = e.Run(context.Background(), buyOnce(), "AAPL", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	bad := NewEngine(Config{InitialCapital: 0}, zerolog.Nop())
	_, err = bad.Run(context.Background(), buyOnce(), "AAPL", bars)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestEngineCancellation(t *testing.T) {
	e := NewEngine(testConfig(), zerolog.Nop())
	bars := hstesting.TrendingBars("AAPL", 10, 100, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, buyOnce(), "AAPL", bars)
	assert.ErrorIs(t, err, domain.ErrCancelled)
}

func shortTestConfig() config.ShortConfig {
	return config.ShortConfig{
		MarginRequirement:       1.5,
		ShortInterestRate:       0.03,
		MaintenanceMarginBuffer: 0.25,
		LiquidationPenalty:      0.01,
	}
}

func TestMarginLedgerShortRoundTrip(t *testing.T) {
	open := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	book := portfolio.New("p", "", "USD", 30_000, open)
	ledger := NewMarginLedger(book, shortTestConfig(), config.TradingConfig{CommissionRate: 0.001})

	_, err := ledger.EnterShort("AAPL", 100, 150, open)
	require.NoError(t, err)
	assert.InDelta(t, 22_500, book.MarginBalance, 1e-9) // 100 * 150 * 1.5

	cover := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)
	trade, err := ledger.ExitShort("AAPL", nil, 140, cover)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeActionCover, trade.Action)

	// 30 days of borrow interest on 15,000 notional at 3% annual.
	wantInterest := 15_000 * 0.03 / 365 * 30
	assert.InDelta(t, wantInterest, ledger.InterestPaid(), 1e-6)
	assert.InDelta(t, 36.99, ledger.InterestPaid(), 0.01)

	assert.Zero(t, book.MarginBalance)
	assert.Empty(t, book.Shorts())

	// 1,000 gross on the price move, minus two commissions and interest.
	wantCash := 30_000 + 1_000 - 15.0 - 14.0 - wantInterest
	assert.InDelta(t, wantCash, book.Cash, 1e-6)

	require.Len(t, ledger.Trades(), 2)
	assert.Equal(t, domain.TradeActionShort, ledger.Trades()[0].Action)
	assert.Equal(t, domain.TradeActionCover, ledger.Trades()[1].Action)
}

func TestMarginLedgerPartialCover(t *testing.T) {
	open := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	book := portfolio.New("p", "", "USD", 50_000, open)
	ledger := NewMarginLedger(book, shortTestConfig(), config.TradingConfig{})

	_, err := ledger.EnterShort("AAPL", 100, 100, open)
	require.NoError(t, err)

	half := 50
	_, err = ledger.ExitShort("AAPL", &half, 90, open.AddDate(0, 0, 10))
	require.NoError(t, err)

	sp, ok := book.Short("AAPL")
	require.True(t, ok)
	assert.Equal(t, 50, sp.Shares)
	assert.InDelta(t, 7_500, sp.MarginPosted, 1e-9) // half of the posted 15,000

	// Half the accrued interest settled with the cover.
	fullAccrual := 10_000 * 0.03 / 365 * 10
	assert.InDelta(t, fullAccrual/2, ledger.InterestPaid(), 1e-9)
	assert.InDelta(t, fullAccrual/2, sp.AccruedInterest, 1e-9)
}

func TestMarginLedgerOverCoverRejected(t *testing.T) {
	open := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	book := portfolio.New("p", "", "USD", 50_000, open)
	ledger := NewMarginLedger(book, shortTestConfig(), config.TradingConfig{})

	_, err := ledger.EnterShort("AAPL", 100, 100, open)
	require.NoError(t, err)

	tooMany := 150
	_, err = ledger.ExitShort("AAPL", &tooMany, 90, open)
	assert.ErrorIs(t, err, domain.ErrInsufficientShares)
}

func TestMarginLedgerMarginCallAndLiquidation(t *testing.T) {
	d1 := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	d3 := d1.AddDate(0, 0, 2)

	book := portfolio.New("p", "", "USD", 20_000, d1)
	ledger := NewMarginLedger(book, shortTestConfig(), config.TradingConfig{})

	_, err := ledger.EnterShort("AAPL", 100, 100, d1)
	require.NoError(t, err)

	// Posted 15,000; at mark 115 net margin 13,500 sits under the
	// 14,375 maintenance line.
	calls := ledger.CheckMargin(map[string]float64{"AAPL": 115}, d2)
	require.Len(t, calls, 1)
	assert.Equal(t, "add_margin_or_liquidate", calls[0].ActionRequired)
	assert.InDelta(t, 13_500, calls[0].NetMargin, 1e-9)
	assert.InDelta(t, 14_375, calls[0].RequiredMargin, 1e-9)

	// Still breached next bar: no second call, but the first is overdue.
	assert.Empty(t, ledger.CheckMargin(map[string]float64{"AAPL": 115}, d3))
	overdue := ledger.Overdue(d3)
	require.Len(t, overdue, 1)

	trade, err := ledger.ForceLiquidate("AAPL", 115, d3)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeActionForcedLiquidation, trade.Action)
	assert.InDelta(t, 115*1.01, trade.FillPrice, 1e-9) // penalty fill
	assert.Equal(t, 1, ledger.Liquidations())
	assert.Empty(t, book.Shorts())
	assert.Empty(t, ledger.Overdue(d3.AddDate(0, 0, 1)))
}

func TestMarginLedgerHealthyPositionClearsPendingCall(t *testing.T) {
	d1 := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)
	book := portfolio.New("p", "", "USD", 20_000, d1)
	ledger := NewMarginLedger(book, shortTestConfig(), config.TradingConfig{})

	_, err := ledger.EnterShort("AAPL", 100, 100, d1)
	require.NoError(t, err)

	require.Len(t, ledger.CheckMargin(map[string]float64{"AAPL": 115}, d1.AddDate(0, 0, 1)), 1)

	// Price falls back below the breach point; the pending call clears.
	assert.Empty(t, ledger.CheckMargin(map[string]float64{"AAPL": 100}, d1.AddDate(0, 0, 2)))
	assert.Empty(t, ledger.Overdue(d1.AddDate(0, 0, 3)))
}

func TestMarginEngineShortsOnSellSignal(t *testing.T) {
	e := NewMarginEngine(Config{InitialCapital: 20_000}, shortTestConfig(), zerolog.Nop())

	// Sell on the first bar, cover on the last.
	sig := func(_ string, window []domain.Bar, _ float64) domain.Signal {
		switch len(window) {
		case 1:
			return domain.Signal{Action: domain.SignalSell}
		case 10:
			return domain.Signal{Action: domain.SignalBuy}
		}
		return domain.Signal{Action: domain.SignalHold}
	}
	bars := hstesting.BarsFromCloses("AAPL", []float64{100, 99, 98, 97, 96, 95, 94, 93, 92, 91})

	res, err := e.Run(context.Background(), &scripted{name: "short_rider", fn: sig}, "AAPL", bars)
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, domain.TradeActionShort, res.Trades[0].Action)
	assert.Equal(t, domain.TradeActionCover, res.Trades[1].Action)
	assert.Greater(t, res.FinalValue, res.InitialCapital)
	assert.Greater(t, res.InterestPaid, 0.0)
	assert.Empty(t, res.MarginCalls)
}

func TestMarginEngineLiquidatesRunawayShort(t *testing.T) {
	e := NewMarginEngine(Config{InitialCapital: 20_000}, shortTestConfig(), zerolog.Nop())

	sig := func(_ string, window []domain.Bar, _ float64) domain.Signal {
		if len(window) == 1 {
			return domain.Signal{Action: domain.SignalSell}
		}
		return domain.Signal{Action: domain.SignalHold}
	}
	// The squeeze breaches maintenance and never recovers.
	bars := hstesting.BarsFromCloses("AAPL", []float64{100, 120, 125, 130, 135})

	res, err := e.Run(context.Background(), &scripted{name: "squeezed", fn: sig}, "AAPL", bars)
	require.NoError(t, err)

	require.NotEmpty(t, res.MarginCalls)
	assert.Equal(t, 1, res.Liquidations)
	last := res.Trades[len(res.Trades)-1]
	assert.Equal(t, domain.TradeActionForcedLiquidation, last.Action)
	assert.Less(t, res.FinalValue, res.InitialCapital)
}

func portfolioTestConfig() PortfolioConfig {
	return PortfolioConfig{
		InitialCapital: 100_000,
		CommissionRate: 0.001,
		SlippageRate:   0.0005,
		Limits: config.PortfolioConfig{
			MaxPositionSize:     0.25,
			MaxSectorAllocation: 1.0,
			MaxLeverage:         1.0,
		},
	}
}

func TestPortfolioEngineSentinelErrors(t *testing.T) {
	e := NewPortfolioEngine(portfolioTestConfig(), zerolog.Nop())
	start := hstesting.DefaultStart
	end := start.AddDate(0, 0, 30)

	_, err := e.Run(context.Background(), map[string][]domain.Bar{"AAPL": hstesting.TrendingBars("AAPL", 5, 100, 1)}, start, end)
	assert.ErrorIs(t, err, ErrNoStrategies)

	require.NoError(t, e.Register("AAPL", alwaysBuy(), "tech"))
	_, err = e.Run(context.Background(), map[string][]domain.Bar{}, start, end)
	assert.ErrorIs(t, err, ErrEmptyMarketData)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// Bars exist but all fall outside the window.
	_, err = e.Run(context.Background(),
		map[string][]domain.Bar{"AAPL": hstesting.TrendingBars("AAPL", 5, 100, 1)},
		end.AddDate(1, 0, 0), end.AddDate(1, 0, 10))
	assert.ErrorIs(t, err, ErrEmptyDateRange)
}

func TestPortfolioEngineBuysAndMarksDaily(t *testing.T) {
	e := NewPortfolioEngine(portfolioTestConfig(), zerolog.Nop())
	require.NoError(t, e.Register("AAPL", alwaysBuy(), "tech"))
	require.NoError(t, e.Register("XOM", alwaysBuy(), "energy"))

	data := map[string][]domain.Bar{
		"AAPL": hstesting.TrendingBars("AAPL", 10, 100, 1),
		"XOM":  hstesting.TrendingBars("XOM", 10, 50, 0.5),
	}
	start := hstesting.DefaultStart
	end := start.AddDate(0, 0, 30)

	res, err := e.Run(context.Background(), data, start, end)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Period.TradingDays)
	assert.Len(t, res.PortfolioValues, 10)
	assert.Len(t, res.SectorExposures, 10)
	assert.Len(t, res.Returns, 9)
	assert.NotEmpty(t, res.Trades)
	assert.Greater(t, res.SignalsStats.Generated, 0)
	assert.Greater(t, res.SignalsStats.Executed, 0)

	// The first date has no prior history for any symbol, so no trades.
	firstDay := res.PortfolioValues[0].Date
	for _, trade := range res.Trades {
		assert.False(t, trade.Date.Before(firstDay.AddDate(0, 0, 1)),
			"trade on %s predates available history", trade.Date)
	}

	// Sector exposure reflects both sectors once both positions opened.
	final := res.SectorExposures[len(res.SectorExposures)-1].Exposures
	assert.Contains(t, final, "tech")
	assert.Contains(t, final, "energy")
}

func TestPortfolioEngineMaxPositionsCap(t *testing.T) {
	cfg := portfolioTestConfig()
	cfg.Limits.MaxPositions = 2
	e := NewPortfolioEngine(cfg, zerolog.Nop())
	require.NoError(t, e.Register("AAPL", alwaysBuy(), "tech"))
	require.NoError(t, e.Register("MSFT", alwaysBuy(), "tech"))
	require.NoError(t, e.Register("XOM", alwaysBuy(), "energy"))

	data := map[string][]domain.Bar{
		"AAPL": hstesting.TrendingBars("AAPL", 10, 100, 0.5),
		"MSFT": hstesting.TrendingBars("MSFT", 10, 200, 1),
		"XOM":  hstesting.TrendingBars("XOM", 10, 50, 0.25),
	}
	start := hstesting.DefaultStart
	res, err := e.Run(context.Background(), data, start, start.AddDate(0, 0, 30))
	require.NoError(t, err)

	assert.Greater(t, res.SignalsStats.RejectionReasons["max_positions"], 0)
	for _, trade := range res.Trades {
		assert.NotEqual(t, "XOM", trade.Symbol, "third symbol must never open")
	}
}

func TestPortfolioEngineRejectionsAreCountedNotFatal(t *testing.T) {
	cfg := portfolioTestConfig()
	cfg.Limits.MaxSectorAllocation = 0.30
	e := NewPortfolioEngine(cfg, zerolog.Nop())
	require.NoError(t, e.Register("AAPL", alwaysBuy(), "tech"))
	require.NoError(t, e.Register("MSFT", alwaysBuy(), "tech"))

	data := map[string][]domain.Bar{
		"AAPL": hstesting.TrendingBars("AAPL", 15, 100, 0.5),
		"MSFT": hstesting.TrendingBars("MSFT", 15, 200, 1),
	}
	start := hstesting.DefaultStart
	res, err := e.Run(context.Background(), data, start, start.AddDate(0, 0, 40))
	require.NoError(t, err)

	assert.Greater(t, res.SignalsStats.Rejected, 0)
	total := 0
	for _, n := range res.SignalsStats.RejectionReasons {
		total += n
	}
	assert.Equal(t, res.SignalsStats.Rejected, total)
}

func TestPortfolioEngineDeterministicReplay(t *testing.T) {
	build := func() *PortfolioEngine {
		e := NewPortfolioEngine(portfolioTestConfig(), zerolog.Nop())
		require.NoError(t, e.Register("AAPL", alwaysBuy(), "tech"))
		require.NoError(t, e.Register("XOM", alwaysBuy(), "energy"))
		return e
	}
	data := map[string][]domain.Bar{
		"AAPL": hstesting.OscillatingBars("AAPL", 25, 100, 4),
		"XOM":  hstesting.OscillatingBars("XOM", 25, 50, 2),
	}
	start := hstesting.DefaultStart
	end := start.AddDate(0, 0, 60)

	a, err := build().Run(context.Background(), data, start, end)
	require.NoError(t, err)
	b, err := build().Run(context.Background(), data, start, end)
	require.NoError(t, err)

	assert.Equal(t, a.Trades, b.Trades)
	assert.Equal(t, a.PortfolioValues, b.PortfolioValues)
	assert.Equal(t, a.SignalsStats, b.SignalsStats)
}

func TestPortfolioEngineCancellation(t *testing.T) {
	e := NewPortfolioEngine(portfolioTestConfig(), zerolog.Nop())
	require.NoError(t, e.Register("AAPL", alwaysBuy(), "tech"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, map[string][]domain.Bar{"AAPL": hstesting.TrendingBars("AAPL", 5, 100, 1)},
		hstesting.DefaultStart, hstesting.DefaultStart.AddDate(0, 0, 10))
	assert.ErrorIs(t, err, domain.ErrCancelled)
}
