package scoring

import (
	"github.com/aristath/hindsight/internal/domain"
)

// computeTarget blends up to three projections into a twelve-month target:
// the analyst consensus target, mean reversion toward the industry earnings
// multiple, and continuation of the trailing 50-day move. Absent components
// drop out and the remaining weights renormalize. The expected return is
// clamped so the target never strays beyond twice or below zero times the
// current price.
func computeTarget(price float64, f *domain.Fundamentals, bars []domain.Bar) (target, expectedPct float64) {
	if price <= 0 {
		return 0, 0
	}

	var weighted, weights float64

	if f != nil && f.AnalystTarget != nil && *f.AnalystTarget > 0 {
		weighted += 0.5 * *f.AnalystTarget
		weights += 0.5
	}

	if f != nil && f.PERatio != nil && *f.PERatio > 0 && f.IndustryPE != nil && *f.IndustryPE > 0 {
		// The price that would land the P/E on the industry multiple,
		// with the implied move capped at half the current price.
		fair := price * (*f.IndustryPE / *f.PERatio)
		fair = clip(fair, price*0.5, price*1.5)
		weighted += 0.3 * fair
		weights += 0.3
	}

	if n := len(bars); n >= 51 {
		trailing := bars[n-1].Close/bars[n-51].Close - 1
		continuation := price * (1 + clip(trailing, -0.5, 0.5))
		weighted += 0.2 * continuation
		weights += 0.2
	}

	if weights == 0 {
		return price, 0
	}

	expectedPct = clip((weighted/weights/price-1)*100, -100, 100)
	target = price * (1 + expectedPct/100)
	return target, expectedPct
}
