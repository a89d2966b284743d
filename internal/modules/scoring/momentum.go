package scoring

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/hindsight/internal/domain"
)

// scoreMomentum rates recent, intermediate and long-horizon returns, realized
// volatility, relative strength against a benchmark, and reversal setups.
func scoreMomentum(bars, benchmark []domain.Bar) *tally {
	t := newTally()
	n := len(bars)
	if n < 51 {
		return t
	}

	closes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
	}
	last := n - 1

	short := closes[last]/closes[last-10] - 1
	mid := closes[last-10]/closes[last-50] - 1

	switch {
	case short >= 0.05:
		t.add(8, fmt.Sprintf("strong 10-day gain %.1f%%", short*100))
	case short >= 0.02:
		t.add(4, fmt.Sprintf("10-day gain %.1f%%", short*100))
	case short <= -0.05:
		t.add(-8, fmt.Sprintf("sharp 10-day loss %.1f%%", short*100))
	case short <= -0.02:
		t.add(-4, fmt.Sprintf("10-day loss %.1f%%", short*100))
	}

	switch {
	case mid >= 0.10:
		t.add(7, fmt.Sprintf("strong 50-day trend %.1f%%", mid*100))
	case mid >= 0.04:
		t.add(3, fmt.Sprintf("50-day trend %.1f%%", mid*100))
	case mid <= -0.10:
		t.add(-7, fmt.Sprintf("weak 50-day trend %.1f%%", mid*100))
	case mid <= -0.04:
		t.add(-3, fmt.Sprintf("50-day drift %.1f%%", mid*100))
	}

	if last >= 252 {
		long := closes[last-50]/closes[last-252] - 1
		switch {
		case long >= 0.20:
			t.add(5, fmt.Sprintf("long-term uptrend %.0f%%", long*100))
		case long >= 0.08:
			t.add(2, fmt.Sprintf("long-term gain %.0f%%", long*100))
		case long <= -0.20:
			t.add(-5, fmt.Sprintf("long-term downtrend %.0f%%", long*100))
		case long <= -0.08:
			t.add(-2, fmt.Sprintf("long-term loss %.0f%%", long*100))
		}
	}

	if sigma := dailyVolatility(closes, 30); sigma > 0 {
		switch {
		case sigma < 0.01:
			t.add(3, fmt.Sprintf("calm price action (daily sigma %.1f%%)", sigma*100))
		case sigma > 0.04:
			t.add(-6, fmt.Sprintf("violent price swings (daily sigma %.1f%%)", sigma*100))
		case sigma > 0.025:
			t.add(-3, fmt.Sprintf("choppy price action (daily sigma %.1f%%)", sigma*100))
		}
	}

	if len(benchmark) >= 64 && n >= 64 {
		own := closes[last]/closes[last-63] - 1
		bench := benchmark[len(benchmark)-1].Close/benchmark[len(benchmark)-64].Close - 1
		switch edge := own - bench; {
		case edge >= 0.05:
			t.add(6, fmt.Sprintf("outpacing the market by %.1f%%", edge*100))
		case edge >= 0:
			t.add(2, "keeping pace with the market")
		case edge <= -0.05:
			t.add(-6, fmt.Sprintf("lagging the market by %.1f%%", -edge*100))
		default:
			t.add(-2, "slightly behind the market")
		}
	}

	if short >= 0.03 && mid <= -0.10 {
		t.add(3, "bottoming out after a drawdown")
	} else if short <= -0.03 && mid >= 0.10 {
		t.add(-3, "rolling over after a run-up")
	}

	return t
}

// dailyVolatility is the sample standard deviation of log returns over the
// trailing window bars.
func dailyVolatility(closes []float64, window int) float64 {
	n := len(closes)
	if n < window+1 {
		return 0
	}
	returns := make([]float64, 0, window)
	for i := n - window; i < n; i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			return 0
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	return stat.StdDev(returns, nil)
}
