package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/domain"
	testingpkg "github.com/aristath/hindsight/internal/testing"
	"github.com/aristath/hindsight/pkg/logger"
)

func newMemoryService() *Service {
	return NewService(NewCache(64, nil, logger.Nop()), nil, logger.Nop())
}

func newPersistentService(t *testing.T) (*Service, *Repository, func()) {
	db, cleanup := testingpkg.NewTestDB(t, "cache")
	repo := NewRepository(db, logger.Nop())
	svc := NewService(NewCache(64, repo, logger.Nop()), repo, logger.Nop())
	return svc, repo, cleanup
}

func TestServiceComputeVector(t *testing.T) {
	svc := newMemoryService()
	bars := testingpkg.TrendingBars("AAPL", 250, 100, 0.5)

	v, err := svc.ComputeVector("AAPL", bars)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", v.Symbol)
	assert.Equal(t, 250, v.N)
	assert.True(t, v.AsOf.Equal(domain.Day(bars[249].Date)))

	require.Len(t, v.SMA20, 250)
	require.Len(t, v.SMA50, 250)
	require.Len(t, v.SMA200, 250)
	require.Len(t, v.RSI14, 250)
	require.Len(t, v.MACD, 250)
	require.Len(t, v.BBUpper, 250)
	require.Len(t, v.ATR14, 250)
	require.Len(t, v.OBV, 250)
	require.Len(t, v.ADX14, 250)

	assert.Equal(t, 19, v.FirstValid["sma20"])
	assert.Equal(t, 27, v.FirstValid["adx14"])

	// Trailing SMA20 of a 0.5-per-bar ramp from 100.
	assert.True(t, v.Valid("sma20", 249))
	assert.InDelta(t, 219.75, v.SMA20[249], 1e-9)

	// The warmup region is flagged invalid even though the slice is full length.
	assert.False(t, v.Valid("sma20", 5))
}

func TestServiceComputeVectorShortHistory(t *testing.T) {
	svc := newMemoryService()
	bars := testingpkg.TrendingBars("AAPL", 30, 100, 0.5)

	v, err := svc.ComputeVector("AAPL", bars)
	require.NoError(t, err)

	// Long-period indicators are simply absent, not zero-padded.
	assert.Len(t, v.SMA20, 30)
	assert.Nil(t, v.SMA200)
	_, ok := v.FirstValid["sma200"]
	assert.False(t, ok)

	// ADX(14) warms up over 27 bars, so 30 bars just clear it.
	require.NotNil(t, v.ADX14)
	assert.Equal(t, 27, v.FirstValid["adx14"])
	assert.False(t, v.Valid("adx14", 26))
	assert.True(t, v.Valid("adx14", 27))
}

func TestServiceGetSeriesValidation(t *testing.T) {
	svc := newMemoryService()
	bars := testingpkg.TrendingBars("AAPL", 50, 100, 0.5)

	_, err := svc.GetSeries("", Spec{ID: SMA, Params: []float64{20}}, bars)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.GetSeries("AAPL", Spec{ID: "wavelet"}, bars)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestServiceGetSeriesReusesCache(t *testing.T) {
	svc := newMemoryService()
	bars := testingpkg.TrendingBars("AAPL", 50, 100, 0.5)
	spec := Spec{ID: RSI, Params: []float64{14}}

	_, err := svc.GetSeries("AAPL", spec, bars)
	require.NoError(t, err)
	_, err = svc.GetSeries("AAPL", spec, bars)
	require.NoError(t, err)

	stats := svc.Stats()
	assert.GreaterOrEqual(t, stats["cache_hits"].(uint64), uint64(1))
	assert.Equal(t, 1, stats["cache_size"].(int))
}

func TestServiceScanPatternsPersists(t *testing.T) {
	svc, _, cleanup := newPersistentService(t)
	defer cleanup()

	bars := decliningBars(6, 100, 0.5)
	bars = append(bars,
		patternBar(6, 97.5, 97.6, 96.4, 96.5),
		patternBar(7, 96.3, 97.9, 96.2, 97.8),
	)

	hits, err := svc.ScanPatterns("TEST", bars, 0)
	require.NoError(t, err)
	require.NotNil(t, findHit(hits, "Engulfing"))

	stored, err := svc.StoredPatterns("TEST", testingpkg.DefaultStart, testingpkg.DefaultStart.AddDate(0, 0, 30))
	require.NoError(t, err)
	require.NotNil(t, findHit(stored, "Engulfing"))
}

func TestServiceScanPatternsLookbackWindow(t *testing.T) {
	svc := newMemoryService()

	bars := decliningBars(6, 100, 0.5)
	bars = append(bars,
		patternBar(6, 97.5, 97.6, 96.4, 96.5),
		patternBar(7, 96.3, 97.9, 96.2, 97.8),
		patternBar(8, 97.8, 98.0, 97.7, 97.9),
	)

	hits, err := svc.ScanPatterns("TEST", bars, 1)
	require.NoError(t, err)
	for _, hit := range hits {
		assert.True(t, hit.Date.Equal(domain.Day(bars[8].Date)), "hit %s outside scan window", hit.Name)
	}

	_, err = svc.ScanPatterns("", bars, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestServiceMaintenance(t *testing.T) {
	svc, repo, cleanup := newPersistentService(t)
	defer cleanup()

	fp := testFingerprint("AAPL")
	require.NoError(t, repo.PutSeries(fp.Key(), testSeries("AAPL")))

	purged, err := svc.Maintenance()
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)

	// Memory-only services are a no-op.
	mem := newMemoryService()
	purged, err = mem.Maintenance()
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)
}

func TestServiceStatsReportsPatternCount(t *testing.T) {
	svc := newMemoryService()
	assert.Equal(t, 63, svc.Stats()["patterns"])
}
