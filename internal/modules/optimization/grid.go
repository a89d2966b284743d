// Package optimization searches strategy parameter space. Grid search fans
// the Cartesian product of the parameter grid across a bounded worker pool;
// walk-forward rolls an optimize-then-test window over the bars and reports
// the overfitting ratio between in-sample and out-of-sample scores.
package optimization

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/backtest"
	"github.com/aristath/hindsight/internal/modules/performance"
)

// Factory builds a strategy from one parameter combination.
type Factory func(params map[string]float64) (domain.Strategy, error)

// Grid maps parameter names to candidate values.
type Grid map[string][]float64

// Combinations enumerates the Cartesian product in a fixed order: keys
// sorted, values cycling fastest on the last key.
func (g Grid) Combinations() []map[string]float64 {
	keys := make([]string, 0, len(g))
	for k, vs := range g {
		if len(vs) == 0 {
			return nil
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	total := 1
	for _, k := range keys {
		total *= len(g[k])
	}

	combos := make([]map[string]float64, 0, total)
	odometer := make([]int, len(keys))
	for {
		combo := make(map[string]float64, len(keys))
		for i, k := range keys {
			combo[k] = g[k][odometer[i]]
		}
		combos = append(combos, combo)

		i := len(keys) - 1
		for i >= 0 {
			odometer[i]++
			if odometer[i] < len(g[keys[i]]) {
				break
			}
			odometer[i] = 0
			i--
		}
		if i < 0 {
			return combos
		}
	}
}

// GridResult is one evaluated combination.
type GridResult struct {
	Parameters map[string]float64 `json:"parameters"`
	Score      float64            `json:"score"`
	Result     *backtest.Result   `json:"result,omitempty"`
}

// Report is the outcome of a grid search, sorted best first.
type Report struct {
	Symbol         string             `json:"symbol"`
	Metric         string             `json:"metric"`
	BestParameters map[string]float64 `json:"best_parameters"`
	BestScore      float64            `json:"best_score"`
	WorstScore     float64            `json:"worst_score"`
	AvgScore       float64            `json:"avg_score"`
	Iterations     int                `json:"iterations"`
	AllResults     []GridResult       `json:"all_results"`
}

// Optimizer runs grid searches with bounded parallelism.
type Optimizer struct {
	cfg   config.OptimizerConfig
	btCfg backtest.Config
	log   zerolog.Logger
}

func NewOptimizer(cfg config.OptimizerConfig, btCfg backtest.Config, log zerolog.Logger) *Optimizer {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &Optimizer{
		cfg:   cfg,
		btCfg: btCfg,
		log:   log.With().Str("service", "optimization").Logger(),
	}
}

// Optimize evaluates every grid combination against the bars and ranks by
// the named metric. The fan-out is bounded by the configured parallelism;
// all workers join before the report is built, so the output order never
// depends on scheduling.
func (o *Optimizer) Optimize(ctx context.Context, factory Factory, grid Grid, symbol string, bars []domain.Bar, metric string) (*Report, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: strategy factory is required", domain.ErrInvalidInput)
	}
	combos := grid.Combinations()
	if len(combos) == 0 {
		return nil, fmt.Errorf("%w: parameter grid is empty", domain.ErrInvalidInput)
	}
	if !ValidMetric(metric) {
		return nil, fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidInput, metric)
	}

	results := make([]GridResult, len(combos))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(o.cfg.Parallelism)

	for i, combo := range combos {
		eg.Go(func() error {
			strategy, err := factory(combo)
			if err != nil {
				return fmt.Errorf("building strategy for %v: %w", combo, err)
			}
			engine := backtest.NewEngine(o.btCfg, o.log)
			res, err := engine.Run(ctx, strategy, symbol, bars)
			if err != nil {
				return err
			}
			results[i] = GridResult{
				Parameters: combo,
				Score:      MetricScore(res.Metrics, metric),
				Result:     res,
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Best first. Drawdowns are negative percentages, so descending by
	// value puts the least negative first for max_drawdown too. Stable so
	// score ties keep enumeration order.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	sum := 0.0
	for _, r := range results {
		sum += r.Score
	}

	report := &Report{
		Symbol:         symbol,
		Metric:         metric,
		BestParameters: results[0].Parameters,
		BestScore:      results[0].Score,
		WorstScore:     results[len(results)-1].Score,
		AvgScore:       sum / float64(len(results)),
		Iterations:     len(results),
		AllResults:     results,
	}

	o.log.Debug().
		Str("symbol", symbol).
		Str("metric", metric).
		Int("iterations", report.Iterations).
		Float64("best_score", report.BestScore).
		Msg("Grid search complete")
	return report, nil
}

// Metric names accepted by Optimize and WalkForward.
const (
	MetricTotalReturn      = "total_return"
	MetricAnnualizedReturn = "annualized_return"
	MetricSharpeRatio      = "sharpe_ratio"
	MetricSortinoRatio     = "sortino_ratio"
	MetricMaxDrawdown      = "max_drawdown"
	MetricWinRate          = "win_rate"
	MetricProfitFactor     = "profit_factor"
	MetricExpectancy       = "expectancy"
)

// ValidMetric reports whether the name is one of the rankable metrics.
func ValidMetric(metric string) bool {
	switch metric {
	case MetricTotalReturn, MetricAnnualizedReturn, MetricSharpeRatio, MetricSortinoRatio,
		MetricMaxDrawdown, MetricWinRate, MetricProfitFactor, MetricExpectancy:
		return true
	}
	return false
}

// Metrics lists every rankable metric name.
func Metrics() []string {
	return []string{
		MetricTotalReturn, MetricAnnualizedReturn, MetricSharpeRatio, MetricSortinoRatio,
		MetricMaxDrawdown, MetricWinRate, MetricProfitFactor, MetricExpectancy,
	}
}

// MetricScore extracts the named metric from a summary. Unknown names
// score 0; validate with ValidMetric first.
func MetricScore(m performance.Summary, metric string) float64 {
	switch metric {
	case MetricTotalReturn:
		return m.TotalReturn
	case MetricAnnualizedReturn:
		return m.AnnualizedReturn
	case MetricSharpeRatio:
		return m.SharpeRatio
	case MetricSortinoRatio:
		return m.SortinoRatio
	case MetricMaxDrawdown:
		return m.MaxDrawdown
	case MetricWinRate:
		return m.WinRate
	case MetricProfitFactor:
		return m.ProfitFactor
	case MetricExpectancy:
		return m.Expectancy
	}
	return 0
}
