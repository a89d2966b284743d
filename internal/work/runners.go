package work

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/backtest"
	"github.com/aristath/hindsight/internal/modules/optimization"
	"github.com/aristath/hindsight/internal/modules/strategies"
)

// BarSource loads the bars a run replays. Satisfied by the market data
// service.
type BarSource interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// SingleRunRequest queues a single-symbol backtest. Margin runs use the
// same shape and allow short entries.
type SingleRunRequest struct {
	Symbol   string             `json:"symbol"`
	Strategy string             `json:"strategy"`
	Params   map[string]float64 `json:"params,omitempty"`
	Start    string             `json:"start"`
	End      string             `json:"end"`
}

// PortfolioLeg is one symbol/strategy registration in a portfolio run.
type PortfolioLeg struct {
	Symbol   string             `json:"symbol"`
	Strategy string             `json:"strategy"`
	Sector   string             `json:"sector,omitempty"`
	Params   map[string]float64 `json:"params,omitempty"`
}

// PortfolioRunRequest queues a multi-symbol backtest.
type PortfolioRunRequest struct {
	Legs  []PortfolioLeg `json:"legs"`
	Start string         `json:"start"`
	End   string         `json:"end"`
}

// OptimizationRunRequest queues a grid search or walk-forward analysis.
type OptimizationRunRequest struct {
	Symbol   string               `json:"symbol"`
	Strategy string               `json:"strategy"`
	Grid     map[string][]float64 `json:"grid"`
	Metric   string               `json:"metric"`
	Start    string               `json:"start"`
	End      string               `json:"end"`
}

// Runners wires the engines behind the queue. One instance registers a
// runner per kind.
type Runners struct {
	bars     BarSource
	registry *strategies.Registry
	cfg      *config.Config
	log      zerolog.Logger
}

func NewRunners(bars BarSource, registry *strategies.Registry, cfg *config.Config, log zerolog.Logger) *Runners {
	return &Runners{
		bars:     bars,
		registry: registry,
		cfg:      cfg,
		log:      log.With().Str("component", "runners").Logger(),
	}
}

// RegisterAll binds every run kind to its runner.
func (r *Runners) RegisterAll(q *Queue) {
	q.Register(KindBacktestSingle, r.runSingle)
	q.Register(KindBacktestMargin, r.runMargin)
	q.Register(KindBacktestPortfolio, r.runPortfolio)
	q.Register(KindGridSearch, r.runGrid)
	q.Register(KindWalkForward, r.runWalkForward)
}

func (r *Runners) runSingle(ctx context.Context, raw json.RawMessage) (any, error) {
	req, strategy, bars, err := r.prepareSingle(ctx, raw)
	if err != nil {
		return nil, err
	}
	Progress(ctx, "replaying", 0.5)
	engine := backtest.NewEngine(r.backtestConfig(), r.log)
	return engine.Run(ctx, strategy, req.Symbol, bars)
}

func (r *Runners) runMargin(ctx context.Context, raw json.RawMessage) (any, error) {
	req, strategy, bars, err := r.prepareSingle(ctx, raw)
	if err != nil {
		return nil, err
	}
	Progress(ctx, "replaying", 0.5)
	engine := backtest.NewMarginEngine(r.backtestConfig(), r.cfg.Short, r.log)
	return engine.Run(ctx, strategy, req.Symbol, bars)
}

func (r *Runners) prepareSingle(ctx context.Context, raw json.RawMessage) (*SingleRunRequest, domain.Strategy, []domain.Bar, error) {
	var req SingleRunRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: decoding run request: %v", domain.ErrInvalidInput, err)
	}
	start, end, err := window(req.Start, req.End)
	if err != nil {
		return nil, nil, nil, err
	}
	strategy, err := r.registry.Create(req.Strategy, req.Params)
	if err != nil {
		return nil, nil, nil, err
	}
	Progress(ctx, "loading_bars", 0.1)
	bars, err := r.bars.GetBars(ctx, req.Symbol, start, end)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading bars for %s: %w", req.Symbol, err)
	}
	return &req, strategy, bars, nil
}

func (r *Runners) runPortfolio(ctx context.Context, raw json.RawMessage) (any, error) {
	var req PortfolioRunRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: decoding run request: %v", domain.ErrInvalidInput, err)
	}
	if len(req.Legs) == 0 {
		return nil, fmt.Errorf("%w: at least one leg is required", domain.ErrInvalidInput)
	}
	start, end, err := window(req.Start, req.End)
	if err != nil {
		return nil, err
	}

	engine := backtest.NewPortfolioEngine(backtest.PortfolioConfig{
		InitialCapital: r.cfg.Portfolio.InitialCapital,
		CommissionRate: r.cfg.Trading.CommissionRate,
		SlippageRate:   r.cfg.Trading.SlippageRate,
		RiskFreeRate:   r.cfg.Optimizer.RiskFreeRate,
		Limits:         r.cfg.Portfolio,
	}, r.log)

	data := make(map[string][]domain.Bar, len(req.Legs))
	for _, leg := range req.Legs {
		strategy, err := r.registry.Create(leg.Strategy, leg.Params)
		if err != nil {
			return nil, err
		}
		if err := engine.Register(leg.Symbol, strategy, leg.Sector); err != nil {
			return nil, err
		}
		bars, err := r.bars.GetBars(ctx, leg.Symbol, start, end)
		if err != nil {
			return nil, fmt.Errorf("loading bars for %s: %w", leg.Symbol, err)
		}
		data[leg.Symbol] = bars
	}

	Progress(ctx, "replaying", 0.5)
	return engine.Run(ctx, data, start, end)
}

func (r *Runners) runGrid(ctx context.Context, raw json.RawMessage) (any, error) {
	req, factory, bars, err := r.prepareOptimization(ctx, raw)
	if err != nil {
		return nil, err
	}
	Progress(ctx, "searching", 0.5)
	opt := optimization.NewOptimizer(r.cfg.Optimizer, r.backtestConfig(), r.log)
	return opt.Optimize(ctx, factory, req.Grid, req.Symbol, bars, req.Metric)
}

func (r *Runners) runWalkForward(ctx context.Context, raw json.RawMessage) (any, error) {
	req, factory, bars, err := r.prepareOptimization(ctx, raw)
	if err != nil {
		return nil, err
	}
	Progress(ctx, "searching", 0.5)
	opt := optimization.NewOptimizer(r.cfg.Optimizer, r.backtestConfig(), r.log)
	return opt.WalkForward(ctx, factory, req.Grid, req.Symbol, bars, req.Metric)
}

func (r *Runners) prepareOptimization(ctx context.Context, raw json.RawMessage) (*OptimizationRunRequest, optimization.Factory, []domain.Bar, error) {
	var req OptimizationRunRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: decoding run request: %v", domain.ErrInvalidInput, err)
	}
	start, end, err := window(req.Start, req.End)
	if err != nil {
		return nil, nil, nil, err
	}
	factory, err := r.registry.Factory(req.Strategy)
	if err != nil {
		return nil, nil, nil, err
	}
	Progress(ctx, "loading_bars", 0.1)
	bars, err := r.bars.GetBars(ctx, req.Symbol, start, end)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading bars for %s: %w", req.Symbol, err)
	}
	return &req, optimization.Factory(factory), bars, nil
}

func (r *Runners) backtestConfig() backtest.Config {
	return backtest.Config{
		InitialCapital: r.cfg.Portfolio.InitialCapital,
		CommissionRate: r.cfg.Trading.CommissionRate,
		SlippageRate:   r.cfg.Trading.SlippageRate,
		RiskFreeRate:   r.cfg.Optimizer.RiskFreeRate,
	}
}

func window(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := domain.ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid start date %q", domain.ErrInvalidInput, startStr)
	}
	end, err := domain.ParseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: invalid end date %q", domain.ErrInvalidInput, endStr)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end date before start date", domain.ErrInvalidInput)
	}
	return start, end, nil
}
