// Package performance computes backtest performance metrics. Every function
// is pure: identical inputs yield identical outputs, with no hidden state.
// Values are stored at full precision; rounding happens at presentation.
package performance

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/hindsight/internal/domain"
)

// TradingDaysPerYear annualizes daily return statistics.
const TradingDaysPerYear = 252

// Input bundles everything the metric set consumes. TradePnL holds the
// realized profit of each closing trade in execution order.
type Input struct {
	InitialCapital float64
	FinalValue     float64
	Days           int
	DailyReturns   []float64
	EquityCurve    []domain.EquityPoint
	TradePnL       []float64
	RiskFreeRate   float64 // annual, e.g. 0.02
}

// Summary is the full metric set for one backtest run.
type Summary struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	Volatility       float64 `json:"volatility"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	Expectancy       float64 `json:"expectancy"`
	RewardRisk       float64 `json:"reward_risk"`
	TotalTrades      int     `json:"total_trades"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
}

// Compute evaluates the whole metric set over one input.
func Compute(in Input) Summary {
	wins, losses := splitPnL(in.TradePnL)
	return Summary{
		TotalReturn:      TotalReturn(in.InitialCapital, in.FinalValue),
		AnnualizedReturn: AnnualizedReturn(in.InitialCapital, in.FinalValue, in.Days),
		SharpeRatio:      SharpeRatio(in.DailyReturns, in.RiskFreeRate),
		SortinoRatio:     SortinoRatio(in.DailyReturns, in.RiskFreeRate),
		MaxDrawdown:      MaxDrawdown(in.EquityCurve),
		Volatility:       AnnualizedVolatility(in.DailyReturns),
		WinRate:          WinRate(in.TradePnL),
		ProfitFactor:     ProfitFactor(in.TradePnL),
		Expectancy:       Expectancy(in.TradePnL),
		RewardRisk:       RewardRisk(in.TradePnL),
		TotalTrades:      len(in.TradePnL),
		Wins:             len(wins),
		Losses:           len(losses),
	}
}

// TotalReturn is the simple percentage return over the whole run.
func TotalReturn(initial, final float64) float64 {
	if initial <= 0 {
		return 0
	}
	return (final - initial) / initial * 100
}

// AnnualizedReturn compounds the total return to a 365-day year.
func AnnualizedReturn(initial, final float64, days int) float64 {
	if initial <= 0 || final <= 0 || days <= 0 {
		return 0
	}
	return (math.Pow(final/initial, 365/float64(days)) - 1) * 100
}

// SharpeRatio is the annualized excess return per unit of volatility.
// Standard deviation is the sample estimate; zero deviation yields 0.
func SharpeRatio(dailyReturns []float64, riskFreeRate float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	mean := stat.Mean(dailyReturns, nil)
	sd := stat.StdDev(dailyReturns, nil)
	if sd == 0 {
		return 0
	}
	return (mean - riskFreeRate/TradingDaysPerYear) / sd * math.Sqrt(TradingDaysPerYear)
}

// SortinoRatio is the Sharpe variant that penalizes only downside moves.
// The downside deviation uses negative returns alone; zero deviation
// (no losing days) yields 0.
func SortinoRatio(dailyReturns []float64, riskFreeRate float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	var downside []float64
	for _, r := range dailyReturns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return 0
	}
	dd := stat.StdDev(downside, nil)
	if dd == 0 {
		return 0
	}
	mean := stat.Mean(dailyReturns, nil)
	return (mean - riskFreeRate/TradingDaysPerYear) / dd * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawdown is the deepest excursion below the running equity peak,
// reported as a negative percentage. A monotone non-decreasing curve
// returns 0.
func MaxDrawdown(curve []domain.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	maxDD := 0.0
	peak := curve[0].NetWorth
	for _, pt := range curve {
		if pt.NetWorth > peak {
			peak = pt.NetWorth
		}
		if peak > 0 {
			dd := (pt.NetWorth - peak) / peak * 100
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// AnnualizedVolatility is the sample standard deviation of daily returns
// scaled to a trading year, as a percentage.
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	return stat.StdDev(dailyReturns, nil) * math.Sqrt(TradingDaysPerYear) * 100
}

// WinRate is the percentage of closing trades with positive profit.
// An empty trade list returns 0, not NaN.
func WinRate(tradePnL []float64) float64 {
	if len(tradePnL) == 0 {
		return 0
	}
	wins, _ := splitPnL(tradePnL)
	return float64(len(wins)) / float64(len(tradePnL)) * 100
}

// ProfitFactor is gross profit over gross loss. With no losing trades the
// ratio is reported as 0, not infinity.
func ProfitFactor(tradePnL []float64) float64 {
	wins, losses := splitPnL(tradePnL)
	if len(losses) == 0 {
		return 0
	}
	grossLoss := math.Abs(sum(losses))
	if grossLoss == 0 {
		return 0
	}
	return sum(wins) / grossLoss
}

// Expectancy is the average profit per trade weighted by win and loss rates.
func Expectancy(tradePnL []float64) float64 {
	if len(tradePnL) == 0 {
		return 0
	}
	wins, losses := splitPnL(tradePnL)
	winRate := float64(len(wins)) / float64(len(tradePnL))
	lossRate := float64(len(losses)) / float64(len(tradePnL))
	return winRate*avg(wins) - lossRate*math.Abs(avg(losses))
}

// RewardRisk is the average win over the average loss magnitude.
func RewardRisk(tradePnL []float64) float64 {
	wins, losses := splitPnL(tradePnL)
	if len(wins) == 0 || len(losses) == 0 {
		return 0
	}
	avgLoss := math.Abs(avg(losses))
	if avgLoss == 0 {
		return 0
	}
	return avg(wins) / avgLoss
}

// DailyReturns converts an equity curve into day-over-day returns.
func DailyReturns(curve []domain.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].NetWorth
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (curve[i].NetWorth-prev)/prev)
	}
	return out
}

// splitPnL separates winning from losing trades. Break-even trades count
// toward neither side.
func splitPnL(tradePnL []float64) (wins, losses []float64) {
	for _, pnl := range tradePnL {
		switch {
		case pnl > 0:
			wins = append(wins, pnl)
		case pnl < 0:
			losses = append(losses, pnl)
		}
	}
	return wins, losses
}

func sum(vs []float64) float64 {
	total := 0.0
	for _, v := range vs {
		total += v
	}
	return total
}

func avg(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	return sum(vs) / float64(len(vs))
}
