package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/domain"
	testingpkg "github.com/aristath/hindsight/internal/testing"
)

func constantCloses(n int, v float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = v
	}
	return closes
}

func rampCloses(n int, start, step float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}
	return closes
}

func TestLookbackPerIndicator(t *testing.T) {
	cases := []struct {
		spec Spec
		want int
	}{
		{Spec{ID: SMA, Params: []float64{20}}, 19},
		{Spec{ID: SMA, Params: []float64{200}}, 199},
		{Spec{ID: EMA, Params: []float64{26}}, 25},
		{Spec{ID: RSI, Params: []float64{14}}, 14},
		{Spec{ID: MACD, Params: []float64{12, 26, 9}}, 33},
		{Spec{ID: BBands, Params: []float64{20, 2}}, 19},
		{Spec{ID: ATR, Params: []float64{14}}, 14},
		{Spec{ID: OBV}, 0},
		{Spec{ID: ADX, Params: []float64{14}}, 27},
	}

	for _, tc := range cases {
		got, err := lookback(tc.spec)
		require.NoError(t, err, "spec %v", tc.spec)
		assert.Equal(t, tc.want, got, "spec %v", tc.spec)
	}
}

func TestLookbackRejectsBadSpecs(t *testing.T) {
	bad := []Spec{
		{ID: "wavelet", Params: []float64{3}},
		{ID: SMA},
		{ID: SMA, Params: []float64{0}},
		{ID: SMA, Params: []float64{-5}},
		{ID: RSI, Params: []float64{14.5}},
		{ID: MACD, Params: []float64{12, 26}},
		{ID: BBands, Params: []float64{20}},
	}

	for _, spec := range bad {
		_, err := lookback(spec)
		assert.ErrorIs(t, err, domain.ErrInvalidParameter, "spec %v", spec)
	}
}

func TestComputeSeriesInsufficientMarker(t *testing.T) {
	spec := Spec{ID: SMA, Params: []float64{20}}

	// One bar short of the minimum yields the explicit marker.
	short := testingpkg.BarsFromCloses("AAPL", constantCloses(19, 100))
	s, err := computeSeries("AAPL", spec, short)
	require.NoError(t, err)
	assert.True(t, s.Insufficient)
	assert.Equal(t, -1, s.FirstValid)
	assert.Empty(t, s.Lines)

	_, ok := s.At("value", 0)
	assert.False(t, ok)

	// Exactly enough bars produces a single valid value.
	exact := testingpkg.BarsFromCloses("AAPL", constantCloses(20, 100))
	s, err = computeSeries("AAPL", spec, exact)
	require.NoError(t, err)
	assert.False(t, s.Insufficient)
	assert.Equal(t, 19, s.FirstValid)

	v, ok := s.At("value", 19)
	require.True(t, ok)
	assert.InDelta(t, 100, v, 1e-9)
}

func TestComputeSeriesSMAOnRamp(t *testing.T) {
	bars := testingpkg.BarsFromCloses("AAPL", rampCloses(30, 1, 1))

	s, err := computeSeries("AAPL", Spec{ID: SMA, Params: []float64{20}}, bars)
	require.NoError(t, err)
	require.False(t, s.Insufficient)

	// Mean of 1..20 at the first valid index.
	v, ok := s.At("value", 19)
	require.True(t, ok)
	assert.InDelta(t, 10.5, v, 1e-9)

	// Values before the warmup are not readable.
	_, ok = s.At("value", 18)
	assert.False(t, ok)

	last, ok := s.Last("value")
	require.True(t, ok)
	assert.InDelta(t, 20.5, last, 1e-9)
}

func TestComputeSeriesFlatMarket(t *testing.T) {
	bars := testingpkg.BarsFromCloses("AAPL", constantCloses(60, 100))

	ema, err := computeSeries("AAPL", Spec{ID: EMA, Params: []float64{26}}, bars)
	require.NoError(t, err)
	v, ok := ema.Last("value")
	require.True(t, ok)
	assert.InDelta(t, 100, v, 1e-9)

	macd, err := computeSeries("AAPL", Spec{ID: MACD, Params: []float64{12, 26, 9}}, bars)
	require.NoError(t, err)
	require.False(t, macd.Insufficient)
	assert.Equal(t, 33, macd.FirstValid)
	for _, line := range []string{"macd", "signal", "histogram"} {
		v, ok := macd.Last(line)
		require.True(t, ok, line)
		assert.InDelta(t, 0, v, 1e-9, line)
	}

	bb, err := computeSeries("AAPL", Spec{ID: BBands, Params: []float64{20, 2}}, bars)
	require.NoError(t, err)
	for _, line := range []string{"upper", "middle", "lower"} {
		v, ok := bb.Last(line)
		require.True(t, ok, line)
		assert.InDelta(t, 100, v, 1e-9, line)
	}

	// Fixture bars keep a constant high-low spread, so true range is flat.
	atr, err := computeSeries("AAPL", Spec{ID: ATR, Params: []float64{14}}, bars)
	require.NoError(t, err)
	v, ok = atr.Last("value")
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-9)
}

func TestComputeSeriesTrendingMarket(t *testing.T) {
	bars := testingpkg.BarsFromCloses("AAPL", rampCloses(80, 100, 1))

	rsi, err := computeSeries("AAPL", Spec{ID: RSI, Params: []float64{14}}, bars)
	require.NoError(t, err)
	v, ok := rsi.Last("value")
	require.True(t, ok)
	assert.InDelta(t, 100, v, 1e-6, "all-gain series pins RSI at the top")

	obv, err := computeSeries("AAPL", Spec{ID: OBV}, bars)
	require.NoError(t, err)
	require.False(t, obv.Insufficient)
	line := obv.Line("value")
	require.Len(t, line, 80)
	assert.Greater(t, line[79], line[0], "rising closes accumulate volume")

	adx, err := computeSeries("AAPL", Spec{ID: ADX, Params: []float64{14}}, bars)
	require.NoError(t, err)
	v, ok = adx.Last("value")
	require.True(t, ok)
	assert.Greater(t, v, 90.0, "one-way trend maxes out ADX")
}

func TestFingerprintKey(t *testing.T) {
	asOf := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	fp := Fingerprint{Symbol: "AAPL", Spec: Spec{ID: SMA, Params: []float64{20}}, AsOf: asOf}
	assert.Equal(t, "AAPL|sma|20|2024-03-15", fp.Key())

	macd := Fingerprint{Symbol: "MSFT", Spec: Spec{ID: MACD, Params: []float64{12, 26, 9}}, AsOf: asOf}
	assert.Equal(t, "MSFT|macd|12,26,9|2024-03-15", macd.Key())

	// Any component change produces a different key.
	other := fp
	other.AsOf = asOf.AddDate(0, 0, 1)
	assert.NotEqual(t, fp.Key(), other.Key())

	other = fp
	other.Spec.Params = []float64{50}
	assert.NotEqual(t, fp.Key(), other.Key())
}

func TestStandardSpecs(t *testing.T) {
	specs := StandardSpecs()
	assert.Len(t, specs, 12)

	for _, spec := range specs {
		_, err := lookback(spec)
		assert.NoError(t, err, "spec %v", spec)
	}
}
