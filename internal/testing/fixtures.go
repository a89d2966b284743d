package testing

import (
	"math"
	"time"

	"github.com/aristath/hindsight/internal/domain"
)

// DefaultStart is the first bar date used by fixture series.
var DefaultStart = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// F64 returns a pointer to v, for optional fundamentals fields.
func F64(v float64) *float64 {
	return &v
}

// Str returns a pointer to s.
func Str(s string) *string {
	return &s
}

// BarsFromCloses builds one daily bar per close, starting at DefaultStart.
// Open/high/low are derived deterministically from the close so OHLC stays
// internally consistent.
func BarsFromCloses(symbol string, closes []float64) []domain.Bar {
	return BarsFromClosesAt(symbol, DefaultStart, closes)
}

// BarsFromClosesAt is BarsFromCloses with an explicit start date.
func BarsFromClosesAt(symbol string, start time.Time, closes []float64) []domain.Bar {
	bars := make([]domain.Bar, 0, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		high := math.Max(open, c) * 1.005
		low := math.Min(open, c) * 0.995
		bars = append(bars, domain.Bar{
			Symbol: symbol,
			Date:   domain.Day(start.AddDate(0, 0, i)),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  c,
			Volume: 1_000_000 + float64(i%7)*50_000,
		})
	}
	return bars
}

// TrendingBars builds n bars whose closes move linearly from base by step
// per bar. Positive step trends up, negative trends down.
func TrendingBars(symbol string, n int, base, step float64) []domain.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = base + float64(i)*step
	}
	return BarsFromCloses(symbol, closes)
}

// OscillatingBars builds n bars whose closes follow a sine wave around base.
// Deterministic, so tests that assert byte-identical replays can use it.
func OscillatingBars(symbol string, n int, base, amplitude float64) []domain.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = base + amplitude*math.Sin(float64(i)*0.35)
	}
	return BarsFromCloses(symbol, closes)
}

// FundamentalsFixture returns a healthy large-cap fundamentals snapshot.
func FundamentalsFixture(symbol string) *domain.Fundamentals {
	return &domain.Fundamentals{
		Symbol:           symbol,
		AsOf:             DefaultStart,
		Sector:           "Technology",
		Industry:         "Software",
		MarketCap:        F64(500e9),
		PERatio:          F64(22),
		PBRatio:          F64(4.5),
		ROE:              F64(0.28),
		ROA:              F64(0.14),
		GrossMargin:      F64(0.62),
		OperatingMargin:  F64(0.30),
		NetMargin:        F64(0.24),
		DebtToEquity:     F64(0.45),
		CurrentRatio:     F64(1.8),
		QuickRatio:       F64(1.4),
		RevenueGrowth:    F64(0.12),
		EarningsGrowth:   F64(0.15),
		FreeCashFlow:     F64(80e9),
		DividendPerShare: F64(1.2),
		PayoutRatio:      F64(0.20),
		InterestCoverage: F64(18),
		AnalystTarget:    F64(120),
		AnalystRating:    Str("Buy"),
		IndustryPE:       F64(25),
	}
}
