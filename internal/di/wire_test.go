package di

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hindsight/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: t.TempDir(),
		Data: config.DataConfig{
			Providers:      []string{"stooq"},
			RateLimits:     map[string]float64{"stooq": 1},
			QuoteTTL:       3600,
			RequestTimeout: 10,
			MaxRateWait:    5,
			CacheSize:      64,
		},
		Portfolio: config.PortfolioConfig{
			InitialCapital:       10000,
			MaxPositionSize:      0.15,
			MaxSectorAllocation:  0.30,
			CorrelationThreshold: 0.70,
			MaxLeverage:          1.0,
		},
		Trading:   config.TradingConfig{CommissionRate: 0.001, SlippageRate: 0.0005},
		Scoring:   config.ScoringConfig{WeightFundamental: 0.4, WeightTechnical: 0.3, WeightMomentum: 0.2, WeightSentiment: 0.1, BuyThreshold: 70, SellThreshold: 40},
		Optimizer: config.OptimizerConfig{Parallelism: 1, TrainWindow: 252, TestWindow: 63},
	}
}

func TestWireBuildsContainer(t *testing.T) {
	c, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.DataService)
	require.NotNil(t, c.RunQueue)
	require.NotNil(t, c.Scheduler)
	require.NotNil(t, c.Maintenance)
	require.Nil(t, c.Backups) // no R2 credentials configured

	for name, db := range c.Databases() {
		require.NotNilf(t, db, "database %s", name)
	}
	require.Len(t, c.Modules(), 8)
}

func TestWireRegistersScoreDrivenStrategy(t *testing.T) {
	c, err := Wire(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	s, err := c.StrategyRegistry.Create("score_driven", nil)
	require.NoError(t, err)
	require.Equal(t, "score_driven", s.Name())
}
