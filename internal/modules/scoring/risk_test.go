package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/indicators"
	testingpkg "github.com/aristath/hindsight/internal/testing"
)

func alternatingBars(n int, lo, hi float64) []domain.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = lo
		if i%2 == 1 {
			closes[i] = hi
		}
	}
	return testingpkg.BarsFromCloses("RISK", closes)
}

func TestClassifyRiskQuietLargeCap(t *testing.T) {
	level, factors := classifyRisk(flatBars(80, 100), testingpkg.FundamentalsFixture("RISK"), nil)
	assert.Equal(t, domain.RiskLow, level)
	assert.Empty(t, factors)
}

func TestClassifyRiskModerateVolatility(t *testing.T) {
	// Alternating ±2% closes land sigma between the two volatility cutoffs.
	level, factors := classifyRisk(alternatingBars(80, 100, 102), nil, nil)
	assert.Equal(t, domain.RiskMedium, level)
	assert.Contains(t, factors, "moderate realized volatility")
}

func TestClassifyRiskThinLiquidity(t *testing.T) {
	bars := flatBars(80, 2)
	for i := range bars {
		bars[i].Volume = 100
	}
	level, factors := classifyRisk(bars, nil, nil)
	assert.Equal(t, domain.RiskMedium, level)
	assert.Contains(t, factors, "thin liquidity")
}

func TestClassifyRiskStackedFactors(t *testing.T) {
	bars := alternatingBars(80, 100, 105)
	f := &domain.Fundamentals{Symbol: "RISK", DebtToEquity: testingpkg.F64(2.5)}

	n := len(bars)
	v := &indicators.Vector{
		Symbol: "RISK", N: n,
		RSI14:      constLine(n, 85),
		BBUpper:    constLine(n, 104),
		BBMiddle:   constLine(n, 100),
		BBLower:    constLine(n, 96),
		FirstValid: map[string]int{"rsi14": 0, "bbands": 0},
	}

	// High volatility (2) + leverage (1) + RSI extreme (1) + band break (1).
	level, factors := classifyRisk(bars, f, v)
	assert.Equal(t, domain.RiskVeryHigh, level)
	assert.Len(t, factors, 4)
}

func TestClassifyRiskHighTier(t *testing.T) {
	// Volatility (2) plus leverage (1) lands in the HIGH band.
	f := &domain.Fundamentals{Symbol: "RISK", DebtToEquity: testingpkg.F64(2.0)}
	level, _ := classifyRisk(alternatingBars(80, 100, 105), f, nil)
	assert.Equal(t, domain.RiskHigh, level)
}
