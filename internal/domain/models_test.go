package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarDateKey(t *testing.T) {
	bar := Bar{Date: time.Date(2024, 3, 1, 18, 30, 0, 0, time.FixedZone("EST", -5*3600))}
	assert.Equal(t, "2024-03-01", bar.DateKey())
}

func TestPositionValuation(t *testing.T) {
	pos := Position{Symbol: "AAPL", Shares: 10, AvgCost: 100}

	assert.InDelta(t, 1100.0, pos.MarketValue(110), 1e-9)
	assert.InDelta(t, 100.0, pos.UnrealizedPnL(110), 1e-9)
	assert.InDelta(t, -50.0, pos.UnrealizedPnL(95), 1e-9)
}

func TestShortPositionValuation(t *testing.T) {
	short := ShortPosition{Symbol: "TSLA", Shares: 5, AvgShortPrice: 200}

	assert.InDelta(t, 900.0, short.MarketValue(180), 1e-9)
	assert.InDelta(t, 100.0, short.UnrealizedPnL(180), 1e-9)
	assert.InDelta(t, -50.0, short.UnrealizedPnL(210), 1e-9)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("03/01/2024")
	assert.Error(t, err)
}

func TestDayNormalizesToUTCMidnight(t *testing.T) {
	ts := time.Date(2024, 3, 1, 23, 45, 12, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Day(ts))
}
