package scoring

import (
	"fmt"
	"strings"

	"github.com/aristath/hindsight/internal/domain"
)

// scoreSentiment rates analyst consensus, company size, volume behavior and
// sector mood. The weakest-weighted factor, but the one that captures inputs
// price history cannot.
func scoreSentiment(f *domain.Fundamentals, bars []domain.Bar, sector float64) *tally {
	t := newTally()

	if f != nil && f.AnalystRating != nil {
		scoreAnalystRating(t, *f.AnalystRating)
	}
	if f != nil && f.MarketCap != nil {
		scoreMarketCapTier(t, *f.MarketCap)
	}
	scoreVolumePattern(t, bars)

	switch s := clip(sector, -1, 1); {
	case s > 0:
		t.add(10*s, fmt.Sprintf("sector tailwind (%.2f)", s))
	case s < 0:
		t.add(10*s, fmt.Sprintf("sector headwind (%.2f)", s))
	}

	return t
}

func scoreAnalystRating(t *tally, rating string) {
	r := strings.ToLower(strings.TrimSpace(rating))
	switch {
	case strings.Contains(r, "strong buy"):
		t.add(15, "analysts at strong buy")
	case strings.Contains(r, "strong sell"):
		t.add(-15, "analysts at strong sell")
	case strings.Contains(r, "buy"), strings.Contains(r, "outperform"), strings.Contains(r, "overweight"):
		t.add(10, "analysts at buy")
	case strings.Contains(r, "underperform"), strings.Contains(r, "underweight"), strings.Contains(r, "sell"):
		t.add(-10, "analysts at sell")
	}
}

func scoreMarketCapTier(t *tally, cap float64) {
	switch {
	case cap >= 200e9:
		t.add(5, "mega-cap stability")
	case cap >= 10e9:
		t.add(3, "large-cap stability")
	case cap >= 2e9:
		// Mid caps are the neutral band.
	case cap >= 300e6:
		t.add(-3, "small-cap risk premium")
	case cap > 0:
		t.add(-5, "micro-cap risk premium")
	}
}

// scoreVolumePattern compares the last week of volume to the 60-day norm.
func scoreVolumePattern(t *tally, bars []domain.Bar) {
	n := len(bars)
	if n < 60 {
		return
	}
	recent := avgVolume(bars[n-5:])
	base := avgVolume(bars[n-60:])
	if base <= 0 {
		return
	}
	ratio := recent / base
	switch {
	case ratio > 1.5 && bars[n-1].Close > bars[n-5].Close:
		t.add(5, "heavy volume on the way up (accumulation)")
	case ratio > 1.5:
		t.add(-5, "heavy volume on the way down (distribution)")
	case ratio < 0.5:
		t.add(-2, "volume drying up")
	}
}
