package di

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/clients/alphavantage"
	"github.com/aristath/hindsight/internal/clients/stooq"
	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/events"
	"github.com/aristath/hindsight/internal/modules/backtest"
	"github.com/aristath/hindsight/internal/modules/comparison"
	"github.com/aristath/hindsight/internal/modules/indicators"
	"github.com/aristath/hindsight/internal/modules/marketdata"
	"github.com/aristath/hindsight/internal/modules/portfolio"
	"github.com/aristath/hindsight/internal/modules/risk"
	"github.com/aristath/hindsight/internal/modules/scoring"
	"github.com/aristath/hindsight/internal/modules/strategies"
	"github.com/aristath/hindsight/internal/reliability"
	"github.com/aristath/hindsight/internal/work"
)

// runQueueWorkers bounds concurrent backtest/optimization runs. Grid
// searches parallelize internally, so the queue itself stays narrow.
const runQueueWorkers = 2

// InitializeServices constructs the business logic layer on the
// repositories.
func InitializeServices(c *Container, cfg *config.Config, log zerolog.Logger) error {
	c.Bus = events.NewBus(log)

	providers := []domain.MarketDataProvider{
		alphavantage.NewClient(cfg.Data.AlphaVantage.APIKey, cfg.Data.AlphaVantage.BaseURL, log),
		stooq.NewClient("", "", log),
	}
	c.DataService = marketdata.NewService(cfg.Data, providers, c.BarRepo, c.FundamentalsRepo, log)

	c.IndicatorCache = indicators.NewCache(cfg.Data.CacheSize, c.IndicatorRepo, log)
	c.IndicatorService = indicators.NewService(c.IndicatorCache, c.IndicatorRepo, log)

	c.ScoringService = scoring.NewService(cfg.Scoring, log)

	c.StrategyRegistry = strategies.NewRegistry()
	c.StrategyRegistry.RegisterScoreDriven(scoreFunc(c.IndicatorService, c.ScoringService))

	c.PortfolioManager = portfolio.NewManager(c.PortfolioRepo, log)
	c.RiskValidator = risk.NewValidator(cfg.Portfolio, log)

	replay := backtest.Config{
		InitialCapital: cfg.Portfolio.InitialCapital,
		CommissionRate: cfg.Trading.CommissionRate,
		SlippageRate:   cfg.Trading.SlippageRate,
		RiskFreeRate:   cfg.Optimizer.RiskFreeRate,
	}
	c.Comparator = comparison.NewComparator(replay, log)
	c.SignalTracker = comparison.NewTracker(c.SignalRepo, &trackerBars{svc: c.DataService}, log)

	c.RunQueue = work.NewQueue(c.RunRepo, c.Bus, runQueueWorkers, log)
	work.NewRunners(c.DataService, c.StrategyRegistry, cfg, log).RegisterAll(c.RunQueue)

	c.Maintenance = reliability.NewMaintenanceService(c.Databases(), c.DataService, log)
	if cfg.Backup.AccountID != "" {
		r2, err := reliability.NewR2Client(cfg.Backup, log)
		if err != nil {
			return err
		}
		c.R2Client = r2
		c.Backups = reliability.NewBackupService(c.Databases(), cfg.DataDir, r2, cfg.Backup.RetentionDays, c.Bus, log)
	}

	return nil
}

// trackerBars adapts the market data facade to the signal tracker, which
// grades outcomes outside any request context.
type trackerBars struct {
	svc *marketdata.Service
}

func (t *trackerBars) GetBars(symbol string, start, end time.Time) ([]domain.Bar, error) {
	return t.svc.GetBars(context.Background(), symbol, start, end)
}

// scoreFunc bridges the scoring engine into the strategy registry. The
// strategy sees only the composite score; fundamentals are omitted so
// replays stay deterministic on bar data alone.
func scoreFunc(ind *indicators.Service, scorer *scoring.Service) strategies.ScoreFunc {
	return func(symbol string, window []domain.Bar, currentPrice float64) (float64, error) {
		vector, err := ind.ComputeVector(symbol, window)
		if err != nil {
			return 0, err
		}
		patterns, err := ind.ScanPatterns(symbol, window, 5)
		if err != nil {
			return 0, err
		}
		rec, err := scorer.Score(scoring.Bundle{
			Symbol:       symbol,
			Bars:         window,
			CurrentPrice: currentPrice,
			Vector:       vector,
			Patterns:     patterns,
		})
		if err != nil {
			return 0, err
		}
		return rec.CompositeScore, nil
	}
}
