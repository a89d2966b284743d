package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/modules/comparison"
	"github.com/aristath/hindsight/internal/modules/indicators"
	"github.com/aristath/hindsight/internal/modules/marketdata"
	"github.com/aristath/hindsight/internal/modules/portfolio"
	"github.com/aristath/hindsight/internal/work"
)

// InitializeRepositories constructs the data access layer on the open
// databases.
func InitializeRepositories(c *Container, log zerolog.Logger) {
	c.BarRepo = marketdata.NewBarRepository(c.MarketDB, log)
	c.FundamentalsRepo = marketdata.NewFundamentalsRepository(c.MarketDB, log)
	c.IndicatorRepo = indicators.NewRepository(c.CacheDB, log)
	c.PortfolioRepo = portfolio.NewRepository(c.LedgerDB, log)
	c.SignalRepo = comparison.NewSignalRepository(c.ResultsDB, log)
	c.RunRepo = work.NewRunRepository(c.ResultsDB, log)
}
