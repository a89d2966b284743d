package strategies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/domain"
	hstesting "github.com/aristath/hindsight/internal/testing"
)

func TestRegistryCreatesBuiltins(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"buy_and_hold", "sma_cross", "rsi_reversion", "macd_momentum", "bollinger_bands"}, r.Names())

	for _, name := range r.Names() {
		s, err := r.Create(name, nil)
		require.NoError(t, err, name)
		assert.Equal(t, name, s.Name())
		assert.NotEmpty(t, s.Describe())
	}
}

func TestRegistryScoreDriven(t *testing.T) {
	r := NewRegistry()
	r.RegisterScoreDriven(func(string, []domain.Bar, float64) (float64, error) {
		return 80, nil
	})

	assert.Contains(t, r.Names(), "score_driven")
	s, err := r.Create("score_driven", nil)
	require.NoError(t, err)

	bars := hstesting.TrendingBars("AAPL", 5, 100, 1)
	sig := s.Analyze("AAPL", bars, bars[4].Close)
	assert.Equal(t, domain.SignalBuy, sig.Action)
}

func TestScoreDrivenThresholds(t *testing.T) {
	score := 50.0
	s, err := NewScoreDriven(func(string, []domain.Bar, float64) (float64, error) {
		return score, nil
	}, nil)
	require.NoError(t, err)

	bars := hstesting.TrendingBars("AAPL", 5, 100, 1)

	assert.Equal(t, domain.SignalHold, s.Analyze("AAPL", bars, 104).Action)

	score = 75
	sig := s.Analyze("AAPL", bars, 104)
	assert.Equal(t, domain.SignalBuy, sig.Action)
	assert.GreaterOrEqual(t, sig.Confidence, 0.5)

	score = 30
	assert.Equal(t, domain.SignalSell, s.Analyze("AAPL", bars, 104).Action)
}

func TestScoreDrivenParamValidation(t *testing.T) {
	fn := func(string, []domain.Bar, float64) (float64, error) { return 50, nil }

	_, err := NewScoreDriven(nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = NewScoreDriven(fn, map[string]float64{"buy_threshold": 30, "sell_threshold": 40})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = NewScoreDriven(fn, map[string]float64{"buy_threshold": 120})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestRegistryUnknownStrategy(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("nope", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = r.Factory("nope")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestBuyAndHold(t *testing.T) {
	s := NewBuyAndHold()
	bars := hstesting.TrendingBars("AAPL", 10, 100, 1)

	first := s.Analyze("AAPL", bars[:1], bars[0].Close)
	assert.Equal(t, domain.SignalBuy, first.Action)

	later := s.Analyze("AAPL", bars[:5], bars[4].Close)
	assert.Equal(t, domain.SignalHold, later.Action)
}

func TestSMACrossSignals(t *testing.T) {
	s, err := NewSMACross(map[string]float64{"fast": 3, "slow": 6})
	require.NoError(t, err)

	// Downtrend then sharp recovery: the fast average crosses up.
	closes := []float64{110, 108, 106, 104, 102, 100, 98, 96, 101, 107, 113}
	bars := hstesting.BarsFromCloses("AAPL", closes)

	var sawBuy bool
	for i := int(s.Params()["slow"]); i < len(bars); i++ {
		sig := s.Analyze("AAPL", bars[:i+1], bars[i].Close)
		if sig.Action == domain.SignalBuy {
			sawBuy = true
		}
	}
	assert.True(t, sawBuy, "expected a BUY crossover in the recovery leg")
}

func TestSMACrossInsufficientHistory(t *testing.T) {
	s, err := NewSMACross(nil)
	require.NoError(t, err)
	bars := hstesting.TrendingBars("AAPL", 5, 100, 1)
	sig := s.Analyze("AAPL", bars, bars[4].Close)
	assert.Equal(t, domain.SignalHold, sig.Action)
}

func TestSMACrossParamValidation(t *testing.T) {
	_, err := NewSMACross(map[string]float64{"fast": 30, "slow": 10})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = NewSMACross(map[string]float64{"bogus": 1})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	s, err := NewSMACross(nil)
	require.NoError(t, err)
	require.NoError(t, s.SetParams(map[string]float64{"fast": 5, "slow": 20}))
	assert.Equal(t, 5.0, s.Params()["fast"])

	// Params returns a copy, not the live map.
	s.Params()["fast"] = 99
	assert.Equal(t, 5.0, s.Params()["fast"])
}

func TestRSIReversionSignals(t *testing.T) {
	s, err := NewRSIReversion(map[string]float64{"period": 5})
	require.NoError(t, err)

	t.Run("oversold buys", func(t *testing.T) {
		bars := hstesting.TrendingBars("AAPL", 20, 100, -2)
		sig := s.Analyze("AAPL", bars, bars[len(bars)-1].Close)
		assert.Equal(t, domain.SignalBuy, sig.Action)
		assert.Greater(t, sig.Confidence, 0.5)
	})

	t.Run("overbought sells", func(t *testing.T) {
		bars := hstesting.TrendingBars("AAPL", 20, 100, 2)
		sig := s.Analyze("AAPL", bars, bars[len(bars)-1].Close)
		assert.Equal(t, domain.SignalSell, sig.Action)
	})

	t.Run("short window holds", func(t *testing.T) {
		bars := hstesting.TrendingBars("AAPL", 3, 100, 1)
		sig := s.Analyze("AAPL", bars, bars[2].Close)
		assert.Equal(t, domain.SignalHold, sig.Action)
	})
}

func TestRSIReversionParamValidation(t *testing.T) {
	_, err := NewRSIReversion(map[string]float64{"oversold": 80, "overbought": 70})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)

	_, err = NewRSIReversion(map[string]float64{"period": 1})
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestMACDMomentumCross(t *testing.T) {
	s, err := NewMACDMomentum(map[string]float64{"fast": 3, "slow": 7, "signal": 3})
	require.NoError(t, err)

	// Long slide then a strong rally forces a histogram sign flip.
	closesSeries := make([]float64, 0, 40)
	for i := 0; i < 25; i++ {
		closesSeries = append(closesSeries, 150-float64(i))
	}
	for i := 0; i < 15; i++ {
		closesSeries = append(closesSeries, 126+float64(i)*3)
	}
	bars := hstesting.BarsFromCloses("AAPL", closesSeries)

	var sawBuy bool
	for i := 15; i < len(bars); i++ {
		sig := s.Analyze("AAPL", bars[:i+1], bars[i].Close)
		if sig.Action == domain.SignalBuy {
			sawBuy = true
			break
		}
	}
	assert.True(t, sawBuy, "expected a MACD buy cross in the rally")
}

func TestBollingerBandsSignals(t *testing.T) {
	s, err := NewBollingerBands(map[string]float64{"period": 10})
	require.NoError(t, err)

	// Flat series, then a collapse far below the lower band.
	closesSeries := make([]float64, 0, 15)
	for i := 0; i < 14; i++ {
		closesSeries = append(closesSeries, 100+float64(i%2)) // mild noise keeps the bands open
	}
	closesSeries = append(closesSeries, 80)
	bars := hstesting.BarsFromCloses("AAPL", closesSeries)

	sig := s.Analyze("AAPL", bars, 80)
	assert.Equal(t, domain.SignalBuy, sig.Action)

	// And a spike far above the upper band sells.
	closesSeries[len(closesSeries)-1] = 120
	bars = hstesting.BarsFromCloses("AAPL", closesSeries)
	sig = s.Analyze("AAPL", bars, 120)
	assert.Equal(t, domain.SignalSell, sig.Action)
}

func TestAnalyzeNeverSeesFutureBars(t *testing.T) {
	// Analyze only receives the window slice, so reading beyond it panics.
	// This pins the no-look-ahead contract at the interface boundary.
	bars := hstesting.TrendingBars("AAPL", 40, 100, 1)
	s, err := NewSMACross(map[string]float64{"fast": 3, "slow": 6})
	require.NoError(t, err)

	window := bars[:10:10] // full slice capacity ends at the decision bar
	sig := s.Analyze("AAPL", window, window[9].Close)
	assert.NotNil(t, sig)
	assert.Len(t, window, 10)
}
