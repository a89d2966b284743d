package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/domain"
	testingpkg "github.com/aristath/hindsight/internal/testing"
	"github.com/aristath/hindsight/pkg/logger"
)

func TestFundamentalsRepositoryRoundtrip(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "market")
	defer cleanup()

	repo := NewFundamentalsRepository(db, logger.Nop())

	got, err := repo.Get("AAPL")
	require.NoError(t, err)
	assert.Nil(t, got, "missing snapshot returns nil")

	fixture := testingpkg.FundamentalsFixture("AAPL")
	require.NoError(t, repo.Upsert(*fixture))

	got, err = repo.Get("AAPL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, fixture.Sector, got.Sector)
	require.NotNil(t, got.PERatio)
	assert.InDelta(t, *fixture.PERatio, *got.PERatio, 1e-9)
	require.NotNil(t, got.AnalystTarget)
	assert.InDelta(t, *fixture.AnalystTarget, *got.AnalystTarget, 1e-9)
	assert.NotNil(t, got.FetchedAt, "Upsert stamps fetched_at")
}

func TestFundamentalsRepositoryNilFieldsStayNil(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "market")
	defer cleanup()

	repo := NewFundamentalsRepository(db, logger.Nop())

	sparse := domain.Fundamentals{
		Symbol: "TINY",
		AsOf:   testingpkg.DefaultStart,
		Sector: "Industrials",
	}
	require.NoError(t, repo.Upsert(sparse))

	got, err := repo.Get("TINY")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.PERatio)
	assert.Nil(t, got.DebtToEquity)
	assert.Nil(t, got.AnalystRating)
	assert.Equal(t, "Industrials", got.Sector)
}

func TestFundamentalsRepositorySectors(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "market")
	defer cleanup()

	repo := NewFundamentalsRepository(db, logger.Nop())

	require.NoError(t, repo.Upsert(domain.Fundamentals{Symbol: "AAPL", AsOf: testingpkg.DefaultStart, Sector: "Technology"}))
	require.NoError(t, repo.Upsert(domain.Fundamentals{Symbol: "JPM", AsOf: testingpkg.DefaultStart, Sector: "Financials"}))
	require.NoError(t, repo.Upsert(domain.Fundamentals{Symbol: "MYST", AsOf: testingpkg.DefaultStart}))

	sectors, err := repo.Sectors()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"AAPL": "Technology",
		"JPM":  "Financials",
	}, sectors)
}
