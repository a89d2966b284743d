package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/domain"
	hstesting "github.com/aristath/hindsight/internal/testing"
)

func sineReturns(n int, phase float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.01 * math.Sin(float64(i)*0.4+phase)
	}
	return out
}

func TestCorrelationMatrixProperties(t *testing.T) {
	returns := map[string][]float64{
		"AAPL": sineReturns(60, 0),
		"MSFT": sineReturns(60, 0),       // identical to AAPL
		"GLD":  sineReturns(60, math.Pi), // inverted
	}
	corr, err := NewCorrelationMatrix(returns)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "GLD", "MSFT"}, corr.Symbols())

	// Diagonal is 1.
	for _, sym := range corr.Symbols() {
		r, ok := corr.Pair(sym, sym)
		require.True(t, ok)
		assert.InDelta(t, 1.0, r, 1e-9)
	}

	// Symmetric.
	ab, _ := corr.Pair("AAPL", "MSFT")
	ba, _ := corr.Pair("MSFT", "AAPL")
	assert.Equal(t, ab, ba)

	// Identical series correlate at +1, inverted at -1.
	assert.InDelta(t, 1.0, ab, 1e-6)
	inv, _ := corr.Pair("AAPL", "GLD")
	assert.InDelta(t, -1.0, inv, 1e-6)
}

func TestCorrelationMatrixUnknownSymbol(t *testing.T) {
	corr, err := NewCorrelationMatrix(map[string][]float64{"AAPL": sineReturns(40, 0)})
	require.NoError(t, err)

	_, ok := corr.Pair("AAPL", "TSLA")
	assert.False(t, ok)
}

func TestCorrelationMatrixShortOverlapStaysUnknown(t *testing.T) {
	corr, err := NewCorrelationMatrix(map[string][]float64{
		"AAPL": sineReturns(40, 0),
		"MSFT": sineReturns(5, 0), // below the sample floor
	})
	require.NoError(t, err)

	r, ok := corr.Pair("AAPL", "MSFT")
	require.True(t, ok)
	assert.Equal(t, 0.0, r)
}

func TestCorrelationMatrixEmptyInput(t *testing.T) {
	_, err := NewCorrelationMatrix(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestMaxAgainst(t *testing.T) {
	corr, err := NewCorrelationMatrix(map[string][]float64{
		"AAPL": sineReturns(60, 0),
		"MSFT": sineReturns(60, 0),
		"GLD":  sineReturns(60, math.Pi),
	})
	require.NoError(t, err)

	r, against := corr.MaxAgainst("AAPL", []string{"MSFT", "GLD"})
	assert.InDelta(t, 1.0, r, 1e-6)
	assert.Equal(t, "MSFT", against)

	// The symbol itself is skipped.
	r, against = corr.MaxAgainst("AAPL", []string{"AAPL"})
	assert.Equal(t, 0.0, r)
	assert.Equal(t, "", against)
}

func TestReturnsFromBars(t *testing.T) {
	bars := hstesting.BarsFromCloses("AAPL", []float64{100, 110, 99})
	returns := ReturnsFromBars(bars)
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)

	assert.Nil(t, ReturnsFromBars(bars[:1]))
}
