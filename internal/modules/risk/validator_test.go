package risk

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/portfolio"
)

func testLimits() config.PortfolioConfig {
	return config.PortfolioConfig{
		MaxPositionSize:      0.15,
		MaxSectorAllocation:  0.30,
		CorrelationThreshold: 0.70,
		MaxLeverage:          1.0,
		MaxPositions:         0,
	}
}

func newTestValidator(limits config.PortfolioConfig) *Validator {
	return NewValidator(limits, zerolog.New(nil).Level(zerolog.Disabled))
}

func stateWith(cash float64, longs ...domain.Position) portfolio.State {
	return portfolio.State{
		ID:    "test",
		Cash:  cash,
		Longs: longs,
	}
}

func buyReq(symbol string, shares int, price float64) TradeRequest {
	return TradeRequest{
		Symbol: symbol,
		Action: domain.TradeActionBuy,
		Shares: shares,
		Price:  price,
	}
}

func TestValidateBuyApproved(t *testing.T) {
	v := newTestValidator(testLimits())
	err := v.Validate(stateWith(100000), buyReq("AAPL", 100, 100))
	assert.NoError(t, err)
}

func TestValidateInput(t *testing.T) {
	v := newTestValidator(testLimits())
	st := stateWith(100000)

	assert.ErrorIs(t, v.Validate(st, buyReq("", 100, 100)), domain.ErrInvalidInput)
	assert.ErrorIs(t, v.Validate(st, buyReq("AAPL", 0, 100)), domain.ErrInvalidInput)
	assert.ErrorIs(t, v.Validate(st, buyReq("AAPL", 100, 0)), domain.ErrInvalidInput)
}

func TestValidateRejectsInsufficientFunds(t *testing.T) {
	v := newTestValidator(testLimits())
	err := v.Validate(stateWith(5000), buyReq("AAPL", 100, 100))
	require.Error(t, err)
	assert.Equal(t, ReasonInsufficientFunds, domain.RejectionReason(err))
}

func TestValidateRejectsMaxPositionSize(t *testing.T) {
	v := newTestValidator(testLimits())
	// 20k into a 100k portfolio breaches the 15% cap.
	err := v.Validate(stateWith(100000), buyReq("AAPL", 200, 100))
	require.Error(t, err)
	assert.Equal(t, ReasonMaxPositionSize, domain.RejectionReason(err))
}

func TestValidatePositionSizeCountsExistingHolding(t *testing.T) {
	v := newTestValidator(testLimits())
	st := stateWith(90000, domain.Position{Symbol: "AAPL", Shares: 100, AvgCost: 100, OpenedAt: time.Now()})

	// Existing 10k + new 8k = 18% of the 100k book.
	err := v.Validate(st, buyReq("AAPL", 80, 100))
	require.Error(t, err)
	assert.Equal(t, ReasonMaxPositionSize, domain.RejectionReason(err))
}

func TestValidateRejectsSectorConcentration(t *testing.T) {
	v := newTestValidator(testLimits())
	st := stateWith(75000,
		domain.Position{Symbol: "AAPL", Shares: 140, AvgCost: 100, OpenedAt: time.Now()},
		domain.Position{Symbol: "MSFT", Shares: 110, AvgCost: 100, OpenedAt: time.Now()},
	)
	req := buyReq("GOOG", 100, 100)
	req.Sector = "Technology"
	req.Sectors = map[string]string{"AAPL": "Technology", "MSFT": "Technology"}

	// 14k + 11k held plus 10k new = 35% of the 100k book.
	err := v.Validate(st, req)
	require.Error(t, err)
	assert.Equal(t, ReasonMaxSectorAllocation, domain.RejectionReason(err))
}

func TestValidateRejectsCorrelation(t *testing.T) {
	returns := map[string][]float64{
		"AAPL": make([]float64, 40),
		"MSFT": make([]float64, 40),
	}
	// Perfectly correlated synthetic series.
	for i := 0; i < 40; i++ {
		r := 0.01
		if i%2 == 0 {
			r = -0.01
		}
		returns["AAPL"][i] = r
		returns["MSFT"][i] = r
	}
	corr, err := NewCorrelationMatrix(returns)
	require.NoError(t, err)

	v := newTestValidator(testLimits())
	st := stateWith(95000, domain.Position{Symbol: "AAPL", Shares: 50, AvgCost: 100, OpenedAt: time.Now()})
	req := buyReq("MSFT", 50, 100)
	req.Correlations = corr

	err = v.Validate(st, req)
	require.Error(t, err)
	assert.Equal(t, ReasonCorrelationThreshold, domain.RejectionReason(err))

	// Adding to the existing AAPL holding is grandfathered.
	add := buyReq("AAPL", 10, 100)
	add.Correlations = corr
	assert.NoError(t, v.Validate(st, add))
}

func TestValidateRejectsMaxPositions(t *testing.T) {
	limits := testLimits()
	limits.MaxPositions = 2
	v := newTestValidator(limits)
	st := stateWith(80000,
		domain.Position{Symbol: "AAPL", Shares: 100, AvgCost: 100, OpenedAt: time.Now()},
		domain.Position{Symbol: "MSFT", Shares: 100, AvgCost: 100, OpenedAt: time.Now()},
	)

	err := v.Validate(st, buyReq("GOOG", 10, 100))
	require.Error(t, err)
	assert.Equal(t, ReasonMaxPositions, domain.RejectionReason(err))

	// Adding to an already-open position is not a new slot.
	assert.NoError(t, v.Validate(st, buyReq("AAPL", 10, 100)))
}

func TestValidateShortMargin(t *testing.T) {
	v := newTestValidator(testLimits())
	req := TradeRequest{
		Symbol:            "AAPL",
		Action:            domain.TradeActionShort,
		Shares:            100,
		Price:             100,
		MarginRequirement: 1.5,
	}

	// 100 * 100 * 1.5 = 15000 margin needed.
	err := v.Validate(stateWith(10000), req)
	require.Error(t, err)
	assert.Equal(t, ReasonInsufficientMargin, domain.RejectionReason(err))

	limits := testLimits()
	limits.MaxPositionSize = 0.25
	limits.MaxLeverage = 2.0
	v = newTestValidator(limits)
	assert.NoError(t, v.Validate(stateWith(50000), req))
}

func TestValidateSellRequiresShares(t *testing.T) {
	v := newTestValidator(testLimits())
	st := stateWith(1000, domain.Position{Symbol: "AAPL", Shares: 50, AvgCost: 100, OpenedAt: time.Now()})

	sell := TradeRequest{Symbol: "AAPL", Action: domain.TradeActionSell, Shares: 50, Price: 110}
	assert.NoError(t, v.Validate(st, sell))

	sell.Shares = 60
	err := v.Validate(st, sell)
	require.Error(t, err)
	assert.Equal(t, ReasonInsufficientShares, domain.RejectionReason(err))
}

func TestValidateRejectsLeverage(t *testing.T) {
	limits := testLimits()
	limits.MaxPositionSize = 1.0 // isolate the leverage check
	limits.MaxLeverage = 0.5
	v := newTestValidator(limits)

	// 40k already deployed in a 100k book; 15k more breaches the 0.5 cap.
	st := stateWith(60000, domain.Position{Symbol: "AAPL", Shares: 400, AvgCost: 100, OpenedAt: time.Now()})
	err := v.Validate(st, buyReq("AAPL", 150, 100))
	require.Error(t, err)
	assert.Equal(t, ReasonMaxLeverage, domain.RejectionReason(err))
}
