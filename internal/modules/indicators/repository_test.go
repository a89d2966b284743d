package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/domain"
	testingpkg "github.com/aristath/hindsight/internal/testing"
	"github.com/aristath/hindsight/pkg/logger"
)

func TestRepositorySeriesRoundtrip(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "cache")
	defer cleanup()
	repo := NewRepository(db, logger.Nop())

	fp := testFingerprint("AAPL")
	stored := testSeries("AAPL")
	require.NoError(t, repo.PutSeries(fp.Key(), stored))

	loaded, err := repo.GetSeries(fp.Key())
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, stored.Symbol, loaded.Symbol)
	assert.Equal(t, stored.ID, loaded.ID)
	assert.Equal(t, stored.Params, loaded.Params)
	assert.Equal(t, stored.N, loaded.N)
	assert.Equal(t, stored.FirstValid, loaded.FirstValid)
	assert.Equal(t, stored.Lines["value"], loaded.Lines["value"])
	assert.False(t, loaded.Insufficient)
}

func TestRepositorySeriesMissReturnsNil(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "cache")
	defer cleanup()
	repo := NewRepository(db, logger.Nop())

	loaded, err := repo.GetSeries("AAPL|sma|20|2024-01-02")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRepositoryInsufficientMarkerRoundtrip(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "cache")
	defer cleanup()
	repo := NewRepository(db, logger.Nop())

	fp := testFingerprint("THIN")
	marker := &Series{Symbol: "THIN", ID: SMA, Params: []float64{20}, FirstValid: -1, Insufficient: true}
	require.NoError(t, repo.PutSeries(fp.Key(), marker))

	loaded, err := repo.GetSeries(fp.Key())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Insufficient)
	assert.Equal(t, -1, loaded.FirstValid)
}

func TestRepositoryPurgeExpired(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "cache")
	defer cleanup()
	repo := NewRepository(db, logger.Nop())

	fp := testFingerprint("AAPL")
	require.NoError(t, repo.PutSeries(fp.Key(), testSeries("AAPL")))

	// Nothing has expired yet.
	purged, err := repo.PurgeExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)

	// Force the row into the past.
	_, err = db.Conn().Exec(`UPDATE indicator_cache SET expires_at = ?`, time.Now().Add(-time.Hour).Unix())
	require.NoError(t, err)

	// An expired row is invisible to reads even before the purge runs.
	loaded, err := repo.GetSeries(fp.Key())
	require.NoError(t, err)
	assert.Nil(t, loaded)

	purged, err = repo.PurgeExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}

func TestRepositoryPatternHits(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "cache")
	defer cleanup()
	repo := NewRepository(db, logger.Nop())

	d1 := testingpkg.DefaultStart
	d2 := d1.AddDate(0, 0, 3)
	hits := []PatternHit{
		{
			Symbol: "AAPL", Date: d1, Name: "Engulfing", Value: 100,
			Reliability:       domain.ReliabilityHigh,
			ConfirmationPrice: 101.5, TargetPrice: 103.0, InvalidationPrice: 99.0,
		},
		{
			Symbol: "AAPL", Date: d2, Name: "ShootingStar", Value: -100,
			Reliability:       domain.ReliabilityHigh,
			ConfirmationPrice: 105.0, TargetPrice: 102.5, InvalidationPrice: 107.5,
		},
		{
			Symbol: "MSFT", Date: d1, Name: "Doji", Value: 100,
			Reliability: domain.ReliabilityLow,
		},
	}
	require.NoError(t, repo.SavePatternHits(hits))

	// Saving again replaces rather than duplicates.
	require.NoError(t, repo.SavePatternHits(hits[:1]))

	loaded, err := repo.GetPatternHits("AAPL", d1, d2)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, "Engulfing", loaded[0].Name)
	assert.Equal(t, 100, loaded[0].Value)
	assert.Equal(t, domain.ReliabilityHigh, loaded[0].Reliability)
	assert.InDelta(t, 103.0, loaded[0].TargetPrice, 1e-9)
	assert.True(t, loaded[0].Date.Equal(domain.Day(d1)))

	assert.Equal(t, "ShootingStar", loaded[1].Name)
	assert.Equal(t, -100, loaded[1].Value)

	// Window filtering excludes the later hit.
	loaded, err = repo.GetPatternHits("AAPL", d1, d1)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "Engulfing", loaded[0].Name)
}
