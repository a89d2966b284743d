// Package di wires the application: databases, repositories, services,
// background jobs and HTTP handlers, in that order. Wire is the single
// entry point; the returned Container owns every shared instance.
package di

import (
	"github.com/aristath/hindsight/internal/database"
	"github.com/aristath/hindsight/internal/events"
	backtesthandlers "github.com/aristath/hindsight/internal/modules/backtest/handlers"
	"github.com/aristath/hindsight/internal/modules/comparison"
	comparisonhandlers "github.com/aristath/hindsight/internal/modules/comparison/handlers"
	"github.com/aristath/hindsight/internal/modules/indicators"
	indicatorhandlers "github.com/aristath/hindsight/internal/modules/indicators/handlers"
	"github.com/aristath/hindsight/internal/modules/marketdata"
	marketdatahandlers "github.com/aristath/hindsight/internal/modules/marketdata/handlers"
	optimizationhandlers "github.com/aristath/hindsight/internal/modules/optimization/handlers"
	"github.com/aristath/hindsight/internal/modules/portfolio"
	portfoliohandlers "github.com/aristath/hindsight/internal/modules/portfolio/handlers"
	"github.com/aristath/hindsight/internal/modules/risk"
	riskhandlers "github.com/aristath/hindsight/internal/modules/risk/handlers"
	"github.com/aristath/hindsight/internal/modules/scoring"
	scoringhandlers "github.com/aristath/hindsight/internal/modules/scoring/handlers"
	"github.com/aristath/hindsight/internal/modules/strategies"
	"github.com/aristath/hindsight/internal/reliability"
	"github.com/aristath/hindsight/internal/scheduler"
	"github.com/aristath/hindsight/internal/server"
	"github.com/aristath/hindsight/internal/work"
)

// Container holds every shared dependency. Created by Wire and handed to
// the entrypoint, which mounts the handlers and starts the runtime pieces.
type Container struct {
	// Databases
	MarketDB  *database.DB // bars, fundamentals, patterns, sync state
	CacheDB   *database.DB // persisted indicator vectors
	LedgerDB  *database.DB // portfolios, positions, trade journal, snapshots
	ResultsDB *database.DB // run records, strategy signals, outcomes

	// Event bus
	Bus *events.Bus

	// Repositories
	BarRepo          *marketdata.BarRepository
	FundamentalsRepo *marketdata.FundamentalsRepository
	IndicatorRepo    *indicators.Repository
	PortfolioRepo    *portfolio.Repository
	SignalRepo       *comparison.SignalRepository
	RunRepo          *work.RunRepository

	// Services
	DataService      *marketdata.Service
	IndicatorCache   *indicators.Cache
	IndicatorService *indicators.Service
	ScoringService   *scoring.Service
	StrategyRegistry *strategies.Registry
	PortfolioManager *portfolio.Manager
	RiskValidator    *risk.Validator
	Comparator       *comparison.Comparator
	SignalTracker    *comparison.Tracker
	RunQueue         *work.Queue

	// Reliability
	R2Client    *reliability.R2Client // nil when backups are not configured
	Backups     *reliability.BackupService
	Maintenance *reliability.MaintenanceService

	// Scheduler
	Scheduler *scheduler.Scheduler

	// Handlers
	MarketDataHandlers   *marketdatahandlers.MarketDataHandlers
	IndicatorHandlers    *indicatorhandlers.IndicatorHandlers
	ScoringHandlers      *scoringhandlers.ScoringHandlers
	BacktestHandlers     *backtesthandlers.Handler
	OptimizationHandlers *optimizationhandlers.Handler
	ComparisonHandlers   *comparisonhandlers.Handler
	PortfolioHandlers    *portfoliohandlers.Handler
	RiskHandlers         *riskhandlers.Handler
}

// Modules returns the route registrars in mount order.
func (c *Container) Modules() []server.RouteRegistrar {
	return []server.RouteRegistrar{
		c.MarketDataHandlers,
		c.IndicatorHandlers,
		c.ScoringHandlers,
		c.BacktestHandlers,
		c.OptimizationHandlers,
		c.ComparisonHandlers,
		c.PortfolioHandlers,
		c.RiskHandlers,
	}
}

// Databases returns the open databases keyed by name, for health checks,
// maintenance and backups.
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"market":  c.MarketDB,
		"cache":   c.CacheDB,
		"ledger":  c.LedgerDB,
		"results": c.ResultsDB,
	}
}

// Close releases every database connection.
func (c *Container) Close() {
	for _, db := range []*database.DB{c.ResultsDB, c.LedgerDB, c.CacheDB, c.MarketDB} {
		if db != nil {
			db.Close()
		}
	}
}
