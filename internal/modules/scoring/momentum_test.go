package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	testingpkg "github.com/aristath/hindsight/internal/testing"
)

func TestScoreMomentumShortHistoryNeutral(t *testing.T) {
	bars := testingpkg.TrendingBars("MOM", 30, 100, 1)
	assert.InDelta(t, 50.0, scoreMomentum(bars, nil).clipped(), 1e-9)
}

func TestScoreMomentumFlatNeutral(t *testing.T) {
	bars := testingpkg.BarsFromCloses("MOM", constantSlice(80, 100))
	tally := scoreMomentum(bars, nil)
	assert.InDelta(t, 50.0, tally.clipped(), 1e-9)
	assert.Empty(t, tally.pos)
	assert.Empty(t, tally.neg)
}

func TestScoreMomentumSteadyUptrend(t *testing.T) {
	// Closes 100, 100.5, ... so the 10-day gain lands at 3.2% and the
	// 50-day trend at 14.9%, with calm realized volatility.
	bars := testingpkg.TrendingBars("MOM", 120, 100, 0.5)
	tally := scoreMomentum(bars, nil)
	assert.InDelta(t, 64.0, tally.clipped(), 1e-9)
	assert.NotEmpty(t, tally.pos)
	assert.Empty(t, tally.neg)
}

func TestScoreMomentumSteadyDowntrend(t *testing.T) {
	bars := testingpkg.TrendingBars("MOM", 120, 160, -0.5)
	// -4 short, -7 mid, +3 calm volatility.
	assert.InDelta(t, 42.0, scoreMomentum(bars, nil).clipped(), 1e-9)
}

func TestScoreMomentumVolatilityPenalty(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100
		if i%2 == 1 {
			closes[i] = 105
		}
	}
	bars := testingpkg.BarsFromCloses("MOM", closes)

	// Returns cancel over any 10- and 50-day span; only the volatility
	// penalty fires.
	tally := scoreMomentum(bars, nil)
	assert.InDelta(t, 44.0, tally.clipped(), 1e-9)
	assert.Len(t, tally.neg, 1)
}

func TestScoreMomentumRelativeStrength(t *testing.T) {
	own := testingpkg.BarsFromCloses("MOM", constantSlice(80, 100))

	falling := testingpkg.TrendingBars("SPY", 80, 160, -0.5)
	tally := scoreMomentum(own, falling)
	assert.InDelta(t, 56.0, tally.clipped(), 1e-9)
	assert.Contains(t, tally.pos[0], "outpacing the market")

	rising := testingpkg.TrendingBars("SPY", 80, 100, 0.5)
	tally = scoreMomentum(own, rising)
	assert.InDelta(t, 44.0, tally.clipped(), 1e-9)
	assert.Contains(t, tally.neg[0], "lagging the market")
}

func TestScoreMomentumLongHorizon(t *testing.T) {
	bars := testingpkg.TrendingBars("MOM", 300, 100, 0.5)
	// +4 short, +3 mid, +5 long, +3 calm volatility.
	assert.InDelta(t, 65.0, scoreMomentum(bars, nil).clipped(), 1e-9)
}

func TestScoreMomentumReversalSetup(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		switch {
		case i < 10:
			closes[i] = 100
		case i < 50:
			closes[i] = 100 - 0.375*float64(i-9)
		default:
			closes[i] = 85 + 0.5*float64(i-49)
		}
	}
	bars := testingpkg.BarsFromCloses("MOM", closes)

	tally := scoreMomentum(bars, nil)
	assert.Contains(t, tally.pos, "bottoming out after a drawdown")
}
