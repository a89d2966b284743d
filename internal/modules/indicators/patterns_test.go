package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/domain"
	testingpkg "github.com/aristath/hindsight/internal/testing"
)

func patternBar(day int, o, h, l, c float64) domain.Bar {
	return domain.Bar{
		Symbol: "TEST",
		Date:   testingpkg.DefaultStart.AddDate(0, 0, day),
		Open:   o,
		High:   h,
		Low:    l,
		Close:  c,
		Volume: 1_000_000,
	}
}

// decliningBars builds n gentle bear bars starting at the given close.
func decliningBars(n int, startClose, step float64) []domain.Bar {
	bars := make([]domain.Bar, 0, n)
	c := startClose
	for i := 0; i < n; i++ {
		o := c + step
		bars = append(bars, patternBar(i, o, o+0.1, c-0.1, c))
		c -= step
	}
	return bars
}

// risingBars builds n gentle bull bars starting at the given close.
func risingBars(n int, startClose, step float64) []domain.Bar {
	bars := make([]domain.Bar, 0, n)
	c := startClose
	for i := 0; i < n; i++ {
		o := c - step
		bars = append(bars, patternBar(i, o, c+0.1, o-0.1, c))
		c += step
	}
	return bars
}

func findHit(hits []PatternHit, name string) *PatternHit {
	for i := range hits {
		if hits[i].Name == name {
			return &hits[i]
		}
	}
	return nil
}

func TestPatternTableComplete(t *testing.T) {
	assert.Len(t, patternDefs, 63)

	seen := make(map[string]bool)
	for _, def := range patternDefs {
		assert.False(t, seen[def.name], "duplicate pattern %s", def.name)
		seen[def.name] = true

		assert.Contains(t, []domain.Reliability{
			domain.ReliabilityLow, domain.ReliabilityMedium, domain.ReliabilityHigh,
		}, def.reliability, "pattern %s", def.name)
		assert.Greater(t, def.span, 0, "pattern %s", def.name)
		assert.GreaterOrEqual(t, def.minBars, def.span, "pattern %s", def.name)
		assert.NotNil(t, def.detect, "pattern %s", def.name)
	}

	assert.Len(t, PatternNames(), 63)
}

func TestPatternReliabilityLookup(t *testing.T) {
	rel, ok := PatternReliability("Engulfing")
	require.True(t, ok)
	assert.Equal(t, domain.ReliabilityHigh, rel)

	rel, ok = PatternReliability("Doji")
	require.True(t, ok)
	assert.Equal(t, domain.ReliabilityLow, rel)

	_, ok = PatternReliability("NotAPattern")
	assert.False(t, ok)
}

func TestDetectDojiSingleBar(t *testing.T) {
	bars := []domain.Bar{patternBar(0, 100, 101, 99, 100.05)}

	hits := DetectPatterns("TEST", bars, 0)

	require.Len(t, hits, 1)
	assert.Equal(t, "Doji", hits[0].Name)
	assert.Equal(t, 100, hits[0].Value)
	assert.Equal(t, domain.ReliabilityLow, hits[0].Reliability)
	assert.Equal(t, domain.Day(bars[0].Date), hits[0].Date)
}

func TestDetectBullishEngulfing(t *testing.T) {
	bars := decliningBars(6, 100, 0.5)
	bars = append(bars,
		patternBar(6, 97.5, 97.6, 96.4, 96.5),
		patternBar(7, 96.3, 97.9, 96.2, 97.8),
	)

	hits := DetectPatterns("TEST", bars, 0)

	hit := findHit(hits, "Engulfing")
	require.NotNil(t, hit, "expected a bullish engulfing hit")
	assert.Equal(t, 100, hit.Value)
	assert.Equal(t, domain.ReliabilityHigh, hit.Reliability)
	assert.Equal(t, domain.Day(bars[7].Date), hit.Date)

	// Levels come from the two-bar pattern range: high 97.9, low 96.2.
	assert.InDelta(t, 97.9, hit.ConfirmationPrice, 1e-9)
	assert.InDelta(t, 99.6, hit.TargetPrice, 1e-9)
	assert.InDelta(t, 96.2, hit.InvalidationPrice, 1e-9)
}

func TestDetectHammerAfterDecline(t *testing.T) {
	bars := decliningBars(7, 100, 0.8)
	bars = append(bars, patternBar(7, 95.0, 95.44, 93.5, 95.4))

	hits := DetectPatterns("TEST", bars, 0)

	hit := findHit(hits, "Hammer")
	require.NotNil(t, hit, "expected a hammer hit")
	assert.Equal(t, 100, hit.Value)
	assert.Equal(t, domain.ReliabilityHigh, hit.Reliability)

	// Same shape in an uptrend must not read as a hammer.
	assert.Nil(t, findHit(hits, "HangingMan"))
}

func TestDetectThreeWhiteSoldiers(t *testing.T) {
	bars := decliningBars(6, 100, 1.0)
	bars = append(bars,
		patternBar(6, 94.8, 97.4, 94.7, 97.3),
		patternBar(7, 96.5, 99.1, 96.4, 99.0),
		patternBar(8, 98.2, 100.8, 98.1, 100.7),
	)

	hits := DetectPatterns("TEST", bars, 0)

	hit := findHit(hits, "ThreeWhiteSoldiers")
	require.NotNil(t, hit, "expected three white soldiers")
	assert.Equal(t, 100, hit.Value)
	assert.Equal(t, domain.ReliabilityHigh, hit.Reliability)
	assert.Equal(t, domain.Day(bars[8].Date), hit.Date)
}

func TestDetectShootingStar(t *testing.T) {
	bars := risingBars(7, 100, 1.0)
	bars = append(bars, patternBar(7, 106.5, 108.5, 106.4, 107.0))

	hits := DetectPatterns("TEST", bars, 0)

	hit := findHit(hits, "ShootingStar")
	require.NotNil(t, hit, "expected a shooting star")
	assert.Equal(t, -100, hit.Value)
	assert.Equal(t, domain.ReliabilityHigh, hit.Reliability)

	// Bearish levels hang off the signal bar's low.
	assert.InDelta(t, 106.4, hit.ConfirmationPrice, 1e-9)
	assert.InDelta(t, 104.3, hit.TargetPrice, 1e-9)
	assert.InDelta(t, 108.5, hit.InvalidationPrice, 1e-9)
}

func TestDetectTweezerBottom(t *testing.T) {
	bars := decliningBars(6, 100, 0.8)
	bars = append(bars,
		patternBar(6, 95.0, 95.1, 94.0, 94.2),
		patternBar(7, 94.3, 95.3, 94.05, 95.2),
	)

	hits := DetectPatterns("TEST", bars, 0)

	hit := findHit(hits, "TweezerBottom")
	require.NotNil(t, hit, "expected a tweezer bottom")
	assert.Equal(t, 100, hit.Value)
}

func TestDetectFromIndexSkipsHistory(t *testing.T) {
	bars := decliningBars(6, 100, 0.5)
	bars = append(bars,
		patternBar(6, 97.5, 97.6, 96.4, 96.5),
		patternBar(7, 96.3, 97.9, 96.2, 97.8),
		patternBar(8, 97.8, 98.0, 97.7, 97.9),
	)

	// Scanning only the final bar must not resurface the engulfing at bar 7.
	hits := DetectPatterns("TEST", bars, len(bars)-1)
	for _, hit := range hits {
		assert.Equal(t, domain.Day(bars[8].Date), hit.Date)
	}
}

func TestCandlePrimitives(t *testing.T) {
	cs := newCandles([]domain.Bar{patternBar(0, 10, 12, 9, 11)})

	assert.InDelta(t, 1.0, cs.body(0), 1e-9)
	assert.InDelta(t, 1.0, cs.upper(0), 1e-9)
	assert.InDelta(t, 1.0, cs.lower(0), 1e-9)
	assert.InDelta(t, 11.0, cs.top(0), 1e-9)
	assert.InDelta(t, 10.0, cs.bot(0), 1e-9)
	assert.True(t, cs.bull(0))
	assert.False(t, cs.bear(0))
	assert.False(t, cs.doji(0))
}
