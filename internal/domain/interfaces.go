package domain

import (
	"context"
	"time"
)

// MarketDataProvider is the adapter contract one upstream data vendor
// implements. Providers report transient errors (rate limiting, temporary
// outages) as ErrRateLimited / ErrDataUnavailable wraps so the facade can
// rotate to the next provider; permanent errors (unknown symbol) wrap
// ErrInvalidInput and short-circuit the chain.
type MarketDataProvider interface {
	// Name returns the provider identifier used in config, rate limits
	// and attribution.
	Name() string

	// FetchDailyBars returns daily bars for [start, end] inclusive,
	// strictly ascending by date.
	FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)

	// FetchFundamentals returns the provider's latest fundamentals snapshot.
	FetchFundamentals(ctx context.Context, symbol string) (*Fundamentals, error)

	// FetchQuote returns the latest available bar for the symbol.
	FetchQuote(ctx context.Context, symbol string) (*Quote, error)
}

// BarReader is the read surface consumed by scoring and backtesting.
// It decouples those modules from the marketdata facade implementation.
type BarReader interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
}

// FundamentalsReader provides fundamentals snapshots to the scoring engine.
type FundamentalsReader interface {
	GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error)
}

// Strategy is the capability set every trading strategy implements. Analyze
// must be pure with respect to its inputs: the window it receives ends at
// the decision bar and never includes future bars.
type Strategy interface {
	Name() string
	Describe() string
	Analyze(symbol string, window []Bar, currentPrice float64) Signal
	SetParams(params map[string]float64) error
	Params() map[string]float64
}
