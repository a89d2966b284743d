package scoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/indicators"
	testingpkg "github.com/aristath/hindsight/internal/testing"
)

// flatBars builds bars with constant close and volume so that neither the
// volume nor the support/resistance checks contribute.
func flatBars(n int, close float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Symbol: "TECH",
			Date:   testingpkg.DefaultStart.AddDate(0, 0, i),
			Open:   close,
			High:   close,
			Low:    close,
			Close:  close,
			Volume: 1e6,
		}
	}
	return bars
}

func constLine(n int, v float64) []float64 {
	line := make([]float64, n)
	for i := range line {
		line[i] = v
	}
	return line
}

func TestScoreTechnicalBullishStack(t *testing.T) {
	n := 30
	v := &indicators.Vector{
		Symbol: "TECH", N: n,
		SMA20:  constLine(n, 105),
		SMA50:  constLine(n, 100),
		SMA200: constLine(n, 95),
		FirstValid: map[string]int{
			"sma20": 0, "sma50": 0, "sma200": 0,
		},
	}

	tally := scoreTechnical(flatBars(n, 110), v, nil, 110)
	assert.InDelta(t, 60.0, tally.clipped(), 1e-9)
	assert.Contains(t, tally.pos, "bullish moving-average stack (price > 20 > 50 > 200)")
}

func TestScoreTechnicalBearishStack(t *testing.T) {
	n := 30
	v := &indicators.Vector{
		Symbol: "TECH", N: n,
		SMA20:  constLine(n, 95),
		SMA50:  constLine(n, 100),
		SMA200: constLine(n, 105),
		FirstValid: map[string]int{
			"sma20": 0, "sma50": 0, "sma200": 0,
		},
	}

	tally := scoreTechnical(flatBars(n, 90), v, nil, 90)
	assert.InDelta(t, 40.0, tally.clipped(), 1e-9)
	assert.Contains(t, tally.neg, "bearish moving-average stack (price < 20 < 50 < 200)")
}

func TestScoreTechnicalMixedStackPartialCredit(t *testing.T) {
	n := 30
	v := &indicators.Vector{
		Symbol: "TECH", N: n,
		SMA20:  constLine(n, 101),
		SMA50:  constLine(n, 99),
		SMA200: constLine(n, 102),
		FirstValid: map[string]int{
			"sma20": 0, "sma50": 0, "sma200": 0,
		},
	}

	// Above the 50-day but below the 200-day nets out.
	tally := scoreTechnical(flatBars(n, 100), v, nil, 100)
	assert.InDelta(t, 50.0, tally.clipped(), 1e-9)
	assert.Contains(t, tally.pos, "price above 50-day average")
	assert.Contains(t, tally.neg, "price below 200-day average")
}

func TestScoreTechnicalGoldenCross(t *testing.T) {
	n := 50
	sma50 := constLine(n, 99)
	for i := n - 2; i < n; i++ {
		sma50[i] = 101
	}
	v := &indicators.Vector{
		Symbol: "TECH", N: n,
		SMA50:  sma50,
		SMA200: constLine(n, 100),
		FirstValid: map[string]int{
			"sma50": 0, "sma200": 0,
		},
	}

	tally := scoreTechnical(flatBars(n, 102), v, nil, 102)
	// Partial stack (+3 +3) plus the cross (+8).
	assert.InDelta(t, 64.0, tally.clipped(), 1e-9)
	assert.Contains(t, tally.pos, "golden cross (50-day crossed above 200-day)")
}

func TestScoreTechnicalDeathCross(t *testing.T) {
	n := 50
	sma50 := constLine(n, 101)
	for i := n - 2; i < n; i++ {
		sma50[i] = 99
	}
	v := &indicators.Vector{
		Symbol: "TECH", N: n,
		SMA50:  sma50,
		SMA200: constLine(n, 100),
		FirstValid: map[string]int{
			"sma50": 0, "sma200": 0,
		},
	}

	tally := scoreTechnical(flatBars(n, 98), v, nil, 98)
	assert.InDelta(t, 36.0, tally.clipped(), 1e-9)
	assert.Contains(t, tally.neg, "death cross (50-day crossed below 200-day)")
}

func TestScoreTechnicalRSIZones(t *testing.T) {
	cases := []struct {
		rsi   float64
		delta float64
	}{
		{75, -7},
		{25, 7},
		{40, 2},
		{60, -2},
		{50, 0},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("rsi_%.0f", tc.rsi), func(t *testing.T) {
			n := 10
			v := &indicators.Vector{
				Symbol: "TECH", N: n,
				RSI14:      constLine(n, tc.rsi),
				FirstValid: map[string]int{"rsi14": 0},
			}
			tally := scoreTechnical(flatBars(n, 100), v, nil, 100)
			assert.InDelta(t, 50+tc.delta, tally.clipped(), 1e-9)
		})
	}
}

func TestScoreTechnicalMACDFreshCross(t *testing.T) {
	n := 50
	macd := constLine(n, -1)
	for i := n - 2; i < n; i++ {
		macd[i] = 1
	}
	v := &indicators.Vector{
		Symbol: "TECH", N: n,
		MACD:       macd,
		MACDSignal: constLine(n, 0),
		FirstValid: map[string]int{"macd": 0},
	}

	tally := scoreTechnical(flatBars(n, 100), v, nil, 100)
	assert.InDelta(t, 56.0, tally.clipped(), 1e-9)
	assert.Contains(t, tally.pos, "fresh MACD bullish cross")
}

func TestScoreTechnicalMACDStaleAboveSignal(t *testing.T) {
	n := 50
	v := &indicators.Vector{
		Symbol: "TECH", N: n,
		MACD:       constLine(n, 1),
		MACDSignal: constLine(n, 0),
		FirstValid: map[string]int{"macd": 0},
	}

	tally := scoreTechnical(flatBars(n, 100), v, nil, 100)
	assert.InDelta(t, 53.0, tally.clipped(), 1e-9)
	assert.Contains(t, tally.pos, "MACD above signal line")
}

func TestScoreTechnicalBollingerTouches(t *testing.T) {
	n := 10
	v := &indicators.Vector{
		Symbol: "TECH", N: n,
		BBUpper:    constLine(n, 105),
		BBMiddle:   constLine(n, 100),
		BBLower:    constLine(n, 95),
		FirstValid: map[string]int{"bbands": 0},
	}

	lower := scoreTechnical(flatBars(n, 94), v, nil, 94)
	assert.InDelta(t, 55.0, lower.clipped(), 1e-9)

	upper := scoreTechnical(flatBars(n, 106), v, nil, 106)
	assert.InDelta(t, 45.0, upper.clipped(), 1e-9)
}

func TestScoreTechnicalPatternAdjustmentClamped(t *testing.T) {
	hit := func(value int, rel domain.Reliability) indicators.PatternHit {
		return indicators.PatternHit{Symbol: "TECH", Name: "hammer", Value: value, Reliability: rel}
	}

	bulls := make([]indicators.PatternHit, 10)
	for i := range bulls {
		bulls[i] = hit(100, domain.ReliabilityHigh)
	}
	tally := scoreTechnical(flatBars(10, 100), nil, bulls, 100)
	assert.InDelta(t, 55.0, tally.clipped(), 1e-9)
	assert.Contains(t, tally.pos, "bullish candlestick patterns (5.0)")

	bears := make([]indicators.PatternHit, 10)
	for i := range bears {
		bears[i] = hit(-100, domain.ReliabilityHigh)
	}
	tally = scoreTechnical(flatBars(10, 100), nil, bears, 100)
	assert.InDelta(t, 45.0, tally.clipped(), 1e-9)

	single := []indicators.PatternHit{hit(100, domain.ReliabilityLow)}
	tally = scoreTechnical(flatBars(10, 100), nil, single, 100)
	assert.InDelta(t, 51.0, tally.clipped(), 1e-9)
}

func TestScoreTechnicalVolumeExpansion(t *testing.T) {
	build := func(rising bool) []domain.Bar {
		bars := make([]domain.Bar, 45)
		for i := range bars {
			close := 100 + 0.5*float64(i)
			if !rising {
				close = 122 - 0.5*float64(i)
			}
			vol := 1e6
			if i >= 35 {
				vol = 2e6
			}
			bars[i] = domain.Bar{
				Symbol: "TECH",
				Date:   testingpkg.DefaultStart.AddDate(0, 0, i),
				Open:   close, High: close, Low: close, Close: close,
				Volume: vol,
			}
		}
		return bars
	}

	up := build(true)
	tally := scoreTechnical(up, nil, nil, up[len(up)-1].Close)
	assert.InDelta(t, 53.0, tally.clipped(), 1e-9)
	assert.Contains(t, tally.pos, "volume expanding into strength")

	down := build(false)
	tally = scoreTechnical(down, nil, nil, down[len(down)-1].Close)
	assert.InDelta(t, 47.0, tally.clipped(), 1e-9)
	assert.Contains(t, tally.neg, "volume expanding into weakness")
}

func TestScoreTechnicalSupportResistance(t *testing.T) {
	build := func(lastClose float64) []domain.Bar {
		bars := make([]domain.Bar, 60)
		for i := range bars {
			bars[i] = domain.Bar{
				Symbol: "TECH",
				Date:   testingpkg.DefaultStart.AddDate(0, 0, i),
				Open:   100, High: 110, Low: 90, Close: 100,
				Volume: 1e6,
			}
		}
		bars[59].Close = lastClose
		return bars
	}

	near := scoreTechnical(build(109), nil, nil, 109)
	assert.InDelta(t, 47.0, near.clipped(), 1e-9)
	assert.Contains(t, near.neg, "pressing 60-day resistance")

	held := scoreTechnical(build(91), nil, nil, 91)
	assert.InDelta(t, 53.0, held.clipped(), 1e-9)
	assert.Contains(t, held.pos, "holding 60-day support")
}
