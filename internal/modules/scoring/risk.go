package scoring

import (
	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/indicators"
)

// minDollarVolume is the 20-day average dollar volume under which a symbol
// counts as thinly traded.
const minDollarVolume = 1_000_000

// classifyRisk grades the position's risk tier from volatility, balance-sheet
// leverage, technical extremes and liquidity. Classification only; the result
// never feeds the composite score.
func classifyRisk(bars []domain.Bar, f *domain.Fundamentals, v *indicators.Vector) (domain.RiskLevel, []string) {
	points := 0
	var factors []string

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	switch sigma := dailyVolatility(closes, 30); {
	case sigma >= 0.03:
		points += 2
		factors = append(factors, "high realized volatility")
	case sigma >= 0.015:
		points++
		factors = append(factors, "moderate realized volatility")
	}

	if f != nil && f.DebtToEquity != nil && *f.DebtToEquity > 1.5 {
		points++
		factors = append(factors, "elevated balance-sheet leverage")
	}

	if v != nil && v.N > 0 {
		i := v.N - 1
		if v.Valid("rsi14", i) && (v.RSI14[i] > 80 || v.RSI14[i] < 20) {
			points++
			factors = append(factors, "RSI at an extreme")
		}
		if v.Valid("bbands", i) && len(bars) > 0 {
			price := bars[len(bars)-1].Close
			if price > v.BBUpper[i] || price < v.BBLower[i] {
				points++
				factors = append(factors, "price outside Bollinger bands")
			}
		}
	}

	if n := len(bars); n >= 20 {
		sum := 0.0
		for _, b := range bars[n-20:] {
			sum += b.Close * b.Volume
		}
		if sum/20 < minDollarVolume {
			points += 2
			factors = append(factors, "thin liquidity")
		}
	}

	switch {
	case points == 0:
		return domain.RiskLow, factors
	case points <= 2:
		return domain.RiskMedium, factors
	case points <= 4:
		return domain.RiskHigh, factors
	default:
		return domain.RiskVeryHigh, factors
	}
}
