package optimization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/backtest"
)

// Window is one train/test roll of a walk-forward run.
type Window struct {
	Index          int                `json:"index"`
	TrainStart     time.Time          `json:"train_start"`
	TrainEnd       time.Time          `json:"train_end"`
	TestStart      time.Time          `json:"test_start"`
	TestEnd        time.Time          `json:"test_end"`
	BestParameters map[string]float64 `json:"best_parameters"`
	TrainScore     float64            `json:"train_score"`
	TestScore      float64            `json:"test_score"`
}

// WalkForwardReport aggregates the rolled windows. An overfitting ratio
// below 0.8 suggests the in-sample fit does not carry out of sample; the
// ratio is reported, never enforced.
type WalkForwardReport struct {
	Symbol           string   `json:"symbol"`
	Metric           string   `json:"metric"`
	TrainWindow      int      `json:"train_window"`
	TestWindow       int      `json:"test_window"`
	Windows          []Window `json:"windows"`
	AvgTrainScore    float64  `json:"avg_train_score"`
	AvgTestScore     float64  `json:"avg_test_score"`
	OverfittingRatio float64  `json:"overfitting_ratio"`
}

// WalkForward optimizes on each training slice and measures the winning
// parameters on the immediately following test slice. The step equals the
// test window, so test slices never overlap. A window whose optimization
// fails on thin data is skipped; anything else aborts the run.
func (o *Optimizer) WalkForward(ctx context.Context, factory Factory, grid Grid, symbol string, bars []domain.Bar, metric string) (*WalkForwardReport, error) {
	train := o.cfg.TrainWindow
	test := o.cfg.TestWindow
	if train <= 0 || test <= 0 {
		return nil, fmt.Errorf("%w: train and test windows must be positive, got %d/%d",
			domain.ErrInvalidParameter, train, test)
	}
	if len(bars) < train+test {
		return nil, fmt.Errorf("%w: need %d bars for one walk-forward window, have %d",
			domain.ErrInsufficientData, train+test, len(bars))
	}
	if !ValidMetric(metric) {
		return nil, fmt.Errorf("%w: unknown metric %q", domain.ErrInvalidInput, metric)
	}

	report := &WalkForwardReport{
		Symbol:      symbol,
		Metric:      metric,
		TrainWindow: train,
		TestWindow:  test,
	}

	sumTrain, sumTest := 0.0, 0.0
	for t := 0; t+train+test <= len(bars); t += test {
		trainBars := bars[t : t+train : t+train]
		testBars := bars[t+train : t+train+test : t+train+test]

		trained, err := o.Optimize(ctx, factory, grid, symbol, trainBars, metric)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientData) {
				o.log.Warn().Err(err).Int("offset", t).Msg("Skipping walk-forward window")
				continue
			}
			return nil, err
		}

		strategy, err := factory(trained.BestParameters)
		if err != nil {
			return nil, fmt.Errorf("building strategy for %v: %w", trained.BestParameters, err)
		}
		engine := backtest.NewEngine(o.btCfg, o.log)
		res, err := engine.Run(ctx, strategy, symbol, testBars)
		if err != nil {
			return nil, err
		}

		w := Window{
			Index:          len(report.Windows),
			TrainStart:     domain.Day(trainBars[0].Date),
			TrainEnd:       domain.Day(trainBars[len(trainBars)-1].Date),
			TestStart:      domain.Day(testBars[0].Date),
			TestEnd:        domain.Day(testBars[len(testBars)-1].Date),
			BestParameters: trained.BestParameters,
			TrainScore:     trained.BestScore,
			TestScore:      MetricScore(res.Metrics, metric),
		}
		report.Windows = append(report.Windows, w)
		sumTrain += w.TrainScore
		sumTest += w.TestScore
	}

	if n := float64(len(report.Windows)); n > 0 {
		report.AvgTrainScore = sumTrain / n
		report.AvgTestScore = sumTest / n
		report.OverfittingRatio = overfittingRatio(report.AvgTestScore, report.AvgTrainScore)
	}

	o.log.Debug().
		Str("symbol", symbol).
		Str("metric", metric).
		Int("windows", len(report.Windows)).
		Float64("overfitting_ratio", report.OverfittingRatio).
		Msg("Walk-forward complete")
	return report, nil
}

// overfittingRatio is avgTest/avgTrain clamped to [0, 2] for reporting so
// tiny or negative train averages cannot explode the headline number.
func overfittingRatio(avgTest, avgTrain float64) float64 {
	if avgTrain == 0 {
		return 0
	}
	ratio := avgTest / avgTrain
	if ratio < 0 {
		return 0
	}
	if ratio > 2 {
		return 2
	}
	return ratio
}
