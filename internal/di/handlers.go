package di

import (
	"github.com/rs/zerolog"

	backtesthandlers "github.com/aristath/hindsight/internal/modules/backtest/handlers"
	comparisonhandlers "github.com/aristath/hindsight/internal/modules/comparison/handlers"
	indicatorhandlers "github.com/aristath/hindsight/internal/modules/indicators/handlers"
	marketdatahandlers "github.com/aristath/hindsight/internal/modules/marketdata/handlers"
	optimizationhandlers "github.com/aristath/hindsight/internal/modules/optimization/handlers"
	portfoliohandlers "github.com/aristath/hindsight/internal/modules/portfolio/handlers"
	riskhandlers "github.com/aristath/hindsight/internal/modules/risk/handlers"
	scoringhandlers "github.com/aristath/hindsight/internal/modules/scoring/handlers"
)

// InitializeHandlers constructs the HTTP layer over the services.
func InitializeHandlers(c *Container, log zerolog.Logger) {
	c.MarketDataHandlers = marketdatahandlers.NewMarketDataHandlers(c.DataService, log)
	c.IndicatorHandlers = indicatorhandlers.NewIndicatorHandlers(c.DataService, c.IndicatorService, log)
	c.ScoringHandlers = scoringhandlers.NewScoringHandlers(c.DataService, c.IndicatorService, c.ScoringService, log)
	c.BacktestHandlers = backtesthandlers.NewHandler(c.RunQueue, log)
	c.OptimizationHandlers = optimizationhandlers.NewHandler(c.RunQueue, log)
	c.ComparisonHandlers = comparisonhandlers.NewHandler(c.Comparator, c.SignalTracker, c.DataService, c.StrategyRegistry, log)
	c.PortfolioHandlers = portfoliohandlers.NewHandler(c.PortfolioManager, log)
	c.RiskHandlers = riskhandlers.NewHandler(c.RiskValidator, c.PortfolioManager, log)
}
