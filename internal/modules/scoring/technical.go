package scoring

import (
	"fmt"

	"github.com/aristath/hindsight/internal/domain"
	"github.com/aristath/hindsight/internal/modules/indicators"
)

// scoreTechnical rates moving-average structure, oscillator zones, band
// position, trend, volume behavior and nearby support/resistance. Candlestick
// pattern hits contribute a small reliability-weighted adjustment.
func scoreTechnical(bars []domain.Bar, v *indicators.Vector, patterns []indicators.PatternHit, price float64) *tally {
	t := newTally()
	last := len(bars) - 1
	if last < 0 {
		return t
	}

	if v != nil {
		scoreMAStack(t, v, price)
		scoreCross(t, v)
		scoreRSIZone(t, v)
		scoreMACDZone(t, v)
		scoreBollinger(t, v, price)
		scoreTrend(t, v)
	}

	scoreVolumeTrend(t, bars)
	scoreSupportResistance(t, bars, price)
	scorePatterns(t, patterns)

	return t
}

func scoreMAStack(t *tally, v *indicators.Vector, price float64) {
	i := v.N - 1
	s20ok := v.Valid("sma20", i)
	s50ok := v.Valid("sma50", i)
	s200ok := v.Valid("sma200", i)

	if s20ok && s50ok && s200ok {
		s20, s50, s200 := v.SMA20[i], v.SMA50[i], v.SMA200[i]
		if price > s20 && s20 > s50 && s50 > s200 {
			t.add(10, "bullish moving-average stack (price > 20 > 50 > 200)")
			return
		}
		if price < s20 && s20 < s50 && s50 < s200 {
			t.add(-10, "bearish moving-average stack (price < 20 < 50 < 200)")
			return
		}
	}
	if s50ok {
		if price > v.SMA50[i] {
			t.add(3, "price above 50-day average")
		} else {
			t.add(-3, "price below 50-day average")
		}
	}
	if s200ok {
		if price > v.SMA200[i] {
			t.add(3, "price above 200-day average")
		} else {
			t.add(-3, "price below 200-day average")
		}
	}
}

// scoreCross looks for a 50/200 crossover within the last ten bars.
func scoreCross(t *tally, v *indicators.Vector) {
	i := v.N - 1
	for j := i; j > i-10 && j > 0; j-- {
		if !v.Valid("sma50", j) || !v.Valid("sma200", j) ||
			!v.Valid("sma50", j-1) || !v.Valid("sma200", j-1) {
			return
		}
		prev := v.SMA50[j-1] - v.SMA200[j-1]
		cur := v.SMA50[j] - v.SMA200[j]
		if prev <= 0 && cur > 0 {
			t.add(8, "golden cross (50-day crossed above 200-day)")
			return
		}
		if prev >= 0 && cur < 0 {
			t.add(-8, "death cross (50-day crossed below 200-day)")
			return
		}
	}
}

func scoreRSIZone(t *tally, v *indicators.Vector) {
	i := v.N - 1
	if !v.Valid("rsi14", i) {
		return
	}
	switch rsi := v.RSI14[i]; {
	case rsi > 70:
		t.add(-7, fmt.Sprintf("overbought RSI %.0f", rsi))
	case rsi < 30:
		t.add(7, fmt.Sprintf("oversold RSI %.0f", rsi))
	case rsi < 45:
		t.add(2, fmt.Sprintf("RSI %.0f with room to run", rsi))
	case rsi > 55:
		t.add(-2, fmt.Sprintf("RSI %.0f already elevated", rsi))
	}
}

func scoreMACDZone(t *tally, v *indicators.Vector) {
	i := v.N - 1
	if !v.Valid("macd", i) {
		return
	}
	diff := v.MACD[i] - v.MACDSignal[i]

	crossed := false
	for j := i; j > i-5 && j > 0 && v.Valid("macd", j-1); j-- {
		prev := v.MACD[j-1] - v.MACDSignal[j-1]
		cur := v.MACD[j] - v.MACDSignal[j]
		if (prev <= 0 && cur > 0) || (prev >= 0 && cur < 0) {
			crossed = true
			break
		}
	}

	switch {
	case diff > 0 && crossed:
		t.add(6, "fresh MACD bullish cross")
	case diff > 0:
		t.add(3, "MACD above signal line")
	case diff < 0 && crossed:
		t.add(-6, "fresh MACD bearish cross")
	case diff < 0:
		t.add(-3, "MACD below signal line")
	}
}

func scoreBollinger(t *tally, v *indicators.Vector, price float64) {
	i := v.N - 1
	if !v.Valid("bbands", i) {
		return
	}
	if price <= v.BBLower[i] {
		t.add(5, "price at lower Bollinger band")
	} else if price >= v.BBUpper[i] {
		t.add(-5, "price at upper Bollinger band")
	}
}

func scoreTrend(t *tally, v *indicators.Vector) {
	i := v.N - 1
	if !v.Valid("sma20", i) || i < 10 || !v.Valid("sma20", i-10) {
		return
	}
	if v.SMA20[i] > v.SMA20[i-10] {
		t.add(4, "20-day average trending up")
	} else if v.SMA20[i] < v.SMA20[i-10] {
		t.add(-4, "20-day average trending down")
	}
}

func scoreVolumeTrend(t *tally, bars []domain.Bar) {
	last := len(bars) - 1
	if len(bars) < 40 {
		return
	}
	recent := avgVolume(bars[last-9 : last+1])
	base := avgVolume(bars[last-39 : last-9])
	if base <= 0 || recent <= 1.25*base {
		return
	}
	if bars[last].Close > bars[last-9].Close {
		t.add(3, "volume expanding into strength")
	} else {
		t.add(-3, "volume expanding into weakness")
	}
}

func avgVolume(bars []domain.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range bars {
		sum += b.Volume
	}
	return sum / float64(len(bars))
}

// scoreSupportResistance compares price to the 60-day extremes.
func scoreSupportResistance(t *tally, bars []domain.Bar, price float64) {
	n := len(bars)
	if n < 60 || price <= 0 {
		return
	}
	window := bars[n-60:]
	support, resistance := window[0].Low, window[0].High
	for _, b := range window[1:] {
		if b.Low < support {
			support = b.Low
		}
		if b.High > resistance {
			resistance = b.High
		}
	}
	if (resistance-price)/price <= 0.02 {
		t.add(-3, "pressing 60-day resistance")
	}
	if (price-support)/price <= 0.02 {
		t.add(3, "holding 60-day support")
	}
}

// scorePatterns folds recent candlestick hits into a bounded adjustment.
func scorePatterns(t *tally, patterns []indicators.PatternHit) {
	if len(patterns) == 0 {
		return
	}
	adj := 0.0
	for _, hit := range patterns {
		weight := 1.0
		switch hit.Reliability {
		case domain.ReliabilityMedium:
			weight = 2
		case domain.ReliabilityHigh:
			weight = 3
		}
		adj += float64(hit.Value) / 100 * weight
	}
	adj = clip(adj, -5, 5)
	if adj > 0 {
		t.add(adj, fmt.Sprintf("bullish candlestick patterns (%.1f)", adj))
	} else if adj < 0 {
		t.add(adj, fmt.Sprintf("bearish candlestick patterns (%.1f)", adj))
	}
}
