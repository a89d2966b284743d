// Package comparison ranks strategies against each other and tracks how
// often their signals were right after the fact. The comparator replays
// every named strategy over the same bars and sorts by a chosen metric;
// the accuracy tracker journals BUY/SELL signals and grades them once the
// lookahead window has passed.
package comparison

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/backtest"
	"github.com/aristath/hindsight/internal/modules/optimization"
	"github.com/aristath/hindsight/internal/modules/performance"
)

// Ranking is one strategy's placement in a comparison.
type Ranking struct {
	Rank     int                 `json:"rank"`
	Strategy string              `json:"strategy"`
	Score    float64             `json:"score"`
	Metrics  performance.Summary `json:"metrics"`
	Result   *backtest.Result    `json:"result,omitempty"`
}

// ComparisonReport ranks every compared strategy, best first.
type ComparisonReport struct {
	Symbol   string    `json:"symbol"`
	Metric   string    `json:"metric"`
	Rankings []Ranking `json:"rankings"`
}

// Comparator replays named strategies over identical bars so their metrics
// are directly comparable.
type Comparator struct {
	cfg backtest.Config
	log zerolog.Logger
}

func NewComparator(cfg backtest.Config, log zerolog.Logger) *Comparator {
	return &Comparator{
		cfg: cfg,
		log: log.With().Str("service", "comparison").Logger(),
	}
}

// Compare runs every strategy over the bars and ranks by the metric.
// Strategies run in name order, so the report is deterministic; score ties
// keep that order.
func (c *Comparator) Compare(ctx context.Context, strategies map[string]domain.Strategy, symbol string, bars []domain.Bar, metric string) (*ComparisonReport, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("%w: at least one strategy is required", domain.ErrInvalidInput)
	}
	if !optimization.ValidMetric(metric) {
		return nil, fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidInput, metric)
	}

	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	rankings := make([]Ranking, 0, len(names))
	for _, name := range names {
		engine := backtest.NewEngine(c.cfg, c.log)
		res, err := engine.Run(ctx, strategies[name], symbol, bars)
		if err != nil {
			return nil, fmt.Errorf("comparing %s: %w", name, err)
		}
		rankings = append(rankings, Ranking{
			Strategy: name,
			Score:    optimization.MetricScore(res.Metrics, metric),
			Metrics:  res.Metrics,
			Result:   res,
		})
	}

	sort.SliceStable(rankings, func(i, j int) bool { return rankings[i].Score > rankings[j].Score })
	for i := range rankings {
		rankings[i].Rank = i + 1
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("metric", metric).
		Int("strategies", len(rankings)).
		Str("winner", rankings[0].Strategy).
		Msg("Comparison complete")

	return &ComparisonReport{Symbol: symbol, Metric: metric, Rankings: rankings}, nil
}

// WriteCSV emits the comparison table with one row per strategy in rank
// order.
func (r *ComparisonReport) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"Strategy Name", "Total Return", "Sharpe Ratio", "Sortino Ratio",
		"Max Drawdown", "Win Rate", "Profit Factor", "Total Trades",
	}); err != nil {
		return fmt.Errorf("writing comparison header: %w", err)
	}

	for _, rk := range r.Rankings {
		m := rk.Metrics
		row := []string{
			rk.Strategy,
			formatPct(m.TotalReturn),
			formatNum(m.SharpeRatio),
			formatNum(m.SortinoRatio),
			formatPct(m.MaxDrawdown),
			formatPct(m.WinRate),
			formatNum(m.ProfitFactor),
			strconv.Itoa(m.TotalTrades),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing comparison row for %s: %w", rk.Strategy, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteTradesCSV emits a trade log, one fill per row in journal order.
func WriteTradesCSV(w io.Writer, trades []domain.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"Date", "Symbol", "Action", "Shares", "Fill Price", "Commission", "Strategy", "Reasoning",
	}); err != nil {
		return fmt.Errorf("writing trade log header: %w", err)
	}

	for _, tr := range trades {
		row := []string{
			tr.Date.Format("2006-01-02"),
			tr.Symbol,
			string(tr.Action),
			strconv.FormatFloat(tr.Shares, 'f', -1, 64),
			formatNum(tr.FillPrice),
			formatNum(tr.Commission),
			tr.StrategyName,
			tr.Reasoning,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing trade row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Outputs round to two decimals; the underlying report keeps full
// precision.
func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatPct(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}
