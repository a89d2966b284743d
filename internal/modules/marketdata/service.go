// Package marketdata implements the data access facade: rate-limited,
// cache-backed reads of daily bars, fundamentals and quotes with ordered
// provider fallback.
//
// Read path for bars: the local store is authoritative while fresh (synced
// since the last UTC close); otherwise the facade fetches from the provider
// chain, persists, and serves from the store. Transient provider errors
// rotate to the next provider; unknown-symbol errors short-circuit.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/hindsight/internal/config"
	"github.com/aristath/hindsight/internal/domain"
)

// fundamentalsTTL is how long a stored fundamentals snapshot stays fresh.
const fundamentalsTTL = 24 * time.Hour

// refetchOverlapDays is re-fetched before the last stored bar on incremental
// syncs so late corrections from the provider are picked up.
const refetchOverlapDays = 5

// bulkQuoteWorkers bounds concurrent quote fetches in BulkQuotes.
const bulkQuoteWorkers = 4

// Service is the data access facade. All reads of external market data go
// through it.
type Service struct {
	cfg       config.DataConfig
	providers []domain.MarketDataProvider
	bars      *BarRepository
	funds     *FundamentalsRepository
	quotes    *quoteCache
	limiter   *ProviderLimiter
	breakers  *BreakerSet
	log       zerolog.Logger

	now func() time.Time
}

// NewService creates the facade. Providers are attempted in the order
// declared by cfg.Providers; implementations not named there are appended
// after the configured ones.
func NewService(
	cfg config.DataConfig,
	providers []domain.MarketDataProvider,
	bars *BarRepository,
	funds *FundamentalsRepository,
	log zerolog.Logger,
) *Service {
	byName := make(map[string]domain.MarketDataProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	ordered := make([]domain.MarketDataProvider, 0, len(providers))
	seen := make(map[string]bool, len(providers))
	for _, name := range cfg.Providers {
		p, ok := byName[name]
		if !ok {
			log.Warn().Str("provider", name).Msg("Configured provider has no implementation")
			continue
		}
		ordered = append(ordered, p)
		seen[name] = true
	}
	for _, p := range providers {
		if !seen[p.Name()] {
			ordered = append(ordered, p)
		}
	}

	return &Service{
		cfg:       cfg,
		providers: ordered,
		bars:      bars,
		funds:     funds,
		quotes:    newQuoteCache(time.Duration(cfg.QuoteTTL) * time.Second),
		limiter:   NewProviderLimiter(cfg.RateLimits, time.Duration(cfg.MaxRateWait)*time.Second),
		breakers:  NewBreakerSet(),
		log:       log.With().Str("service", "marketdata").Logger(),
		now:       time.Now,
	}
}

// Providers returns the provider names in fallback order.
func (s *Service) Providers() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// GetBars returns daily bars for [start, end] inclusive, strictly ascending
// by date with no duplicates. The local store serves fresh windows; stale or
// uncovered windows are fetched through the provider chain first.
func (s *Service) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol: %w", domain.ErrInvalidInput)
	}
	start, end = domain.Day(start), domain.Day(end)
	if start.After(end) {
		return nil, fmt.Errorf("start %s after end %s: %w",
			start.Format("2006-01-02"), end.Format("2006-01-02"), domain.ErrInvalidInput)
	}

	state, err := s.bars.GetSyncState(symbol)
	if err != nil {
		return nil, err
	}

	if s.windowFresh(state, start, end) {
		return s.bars.GetBars(symbol, start, end)
	}

	fetchStart := start
	if state != nil && !state.FirstBarDate.IsZero() && !state.LastBarDate.IsZero() && !start.Before(state.FirstBarDate) {
		// Front is covered; only the tail is stale. Re-fetch a small overlap
		// so provider-side corrections are picked up.
		fetchStart = state.LastBarDate.AddDate(0, 0, -refetchOverlapDays)
		if fetchStart.Before(start) {
			fetchStart = start
		}
	}

	fetched, providerName, fetchErr := s.fetchBars(ctx, symbol, fetchStart, end)
	if fetchErr != nil {
		if errors.Is(fetchErr, domain.ErrInvalidInput) || errors.Is(fetchErr, domain.ErrCancelled) {
			return nil, fetchErr
		}
		// Every provider failed. Serve stale local data when we have any.
		stale, readErr := s.bars.GetBars(symbol, start, end)
		if readErr == nil && len(stale) > 0 {
			s.log.Warn().Str("symbol", symbol).Err(fetchErr).
				Msg("All providers failed, serving stale bars")
			return stale, nil
		}
		return nil, fetchErr
	}

	if err := s.bars.UpsertBars(symbol, fetched, providerName); err != nil {
		return nil, err
	}
	if err := s.recordSync(state, symbol, fetchStart, fetched, providerName); err != nil {
		return nil, err
	}

	return s.bars.GetBars(symbol, start, end)
}

// fetchBars fetches daily bars through the provider chain. The returned
// slice is normalized: strictly ascending by date, one bar per calendar day,
// dates at UTC midnight. A provider that reports zero bars counts as a
// transient failure and rotates.
func (s *Service) fetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, string, error) {
	result, name, err := s.tryProviders(ctx, symbol, func(p domain.MarketDataProvider) (interface{}, error) {
		bars, err := p.FetchDailyBars(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("no bars for %s: %w", symbol, domain.ErrDataUnavailable)
		}
		return bars, nil
	})
	if err != nil {
		return nil, "", err
	}
	return normalizeBars(symbol, result.([]domain.Bar)), name, nil
}

// normalizeBars collapses duplicate dates (the provider's last bar for a day
// wins) and sorts ascending.
func normalizeBars(symbol string, bars []domain.Bar) []domain.Bar {
	byDate := make(map[string]domain.Bar, len(bars))
	for _, b := range bars {
		b.Symbol = symbol
		b.Date = domain.Day(b.Date)
		byDate[b.DateKey()] = b
	}
	out := make([]domain.Bar, 0, len(byDate))
	for _, b := range byDate {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// windowFresh reports whether the local store can serve [start, end] without
// touching a provider. The front is covered when we have synced from start
// or earlier; the tail is covered when the window ends before the last sync
// day, or we already synced since the last UTC close.
func (s *Service) windowFresh(state *SyncState, start, end time.Time) bool {
	if state == nil || state.FirstBarDate.IsZero() || state.LastSyncedAt.IsZero() {
		return false
	}
	if start.Before(state.FirstBarDate) {
		return false
	}
	if sameUTCDay(state.LastSyncedAt, s.now()) {
		return true
	}
	return end.Before(domain.Day(state.LastSyncedAt))
}

// recordSync updates sync bookkeeping after a successful provider fetch.
// FirstBarDate tracks the earliest requested sync start, not the earliest
// bar, so symbols listed after the requested start do not re-fetch forever.
func (s *Service) recordSync(state *SyncState, symbol string, fetchStart time.Time, fetched []domain.Bar, provider string) error {
	next := SyncState{
		Symbol:       symbol,
		FirstBarDate: fetchStart,
		LastSyncedAt: s.now().UTC(),
		Provider:     provider,
	}
	if state != nil {
		if !state.FirstBarDate.IsZero() && state.FirstBarDate.Before(next.FirstBarDate) {
			next.FirstBarDate = state.FirstBarDate
		}
		next.LastBarDate = state.LastBarDate
	}
	if len(fetched) > 0 {
		last := domain.Day(fetched[len(fetched)-1].Date)
		if next.LastBarDate.Before(last) {
			next.LastBarDate = last
		}
	}
	return s.bars.SetSyncState(next)
}

// GetQuote returns the latest quote for a symbol, served from the TTL cache
// when fresh.
func (s *Service) GetQuote(ctx context.Context, symbol string) (*domain.Quote, error) {
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol: %w", domain.ErrInvalidInput)
	}

	if q, ok := s.quotes.get(symbol, s.now()); ok {
		return q, nil
	}

	result, _, err := s.tryProviders(ctx, symbol, func(p domain.MarketDataProvider) (interface{}, error) {
		return p.FetchQuote(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}

	quote := result.(*domain.Quote)
	s.quotes.put(symbol, *quote, s.now())
	return quote, nil
}

// BulkQuotes fetches quotes for many symbols with bounded concurrency.
// Symbols that fail are omitted from the result; the call errors only on
// cancellation.
func (s *Service) BulkQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	quotes := make(map[string]domain.Quote, len(symbols))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkQuoteWorkers)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			q, err := s.GetQuote(ctx, symbol)
			if err != nil {
				if errors.Is(err, domain.ErrCancelled) || ctx.Err() != nil {
					return err
				}
				s.log.Debug().Str("symbol", symbol).Err(err).Msg("Bulk quote fetch skipped symbol")
				return nil
			}
			mu.Lock()
			quotes[symbol] = *q
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}

// GetFundamentals returns the fundamentals snapshot for a symbol, refreshing
// through the provider chain once the stored snapshot is older than a day.
func (s *Service) GetFundamentals(ctx context.Context, symbol string) (*domain.Fundamentals, error) {
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol: %w", domain.ErrInvalidInput)
	}

	stored, err := s.funds.Get(symbol)
	if err != nil {
		return nil, err
	}
	if stored != nil && stored.FetchedAt != nil && s.now().Sub(*stored.FetchedAt) < fundamentalsTTL {
		return stored, nil
	}

	result, _, fetchErr := s.tryProviders(ctx, symbol, func(p domain.MarketDataProvider) (interface{}, error) {
		return p.FetchFundamentals(ctx, symbol)
	})
	if fetchErr != nil {
		if stored != nil && !errors.Is(fetchErr, domain.ErrCancelled) {
			s.log.Warn().Str("symbol", symbol).Err(fetchErr).
				Msg("All providers failed, serving stale fundamentals")
			return stored, nil
		}
		return nil, fetchErr
	}

	fetched := result.(*domain.Fundamentals)
	fetchedAt := s.now().UTC()
	fetched.FetchedAt = &fetchedAt
	if fetched.AsOf.IsZero() {
		fetched.AsOf = domain.Day(fetchedAt)
	}
	if err := s.funds.Upsert(*fetched); err != nil {
		return nil, err
	}
	return fetched, nil
}

// Sectors exposes the stored symbol→sector map for risk checks.
func (s *Service) Sectors() (map[string]string, error) {
	return s.funds.Sectors()
}

// tryProviders walks the provider chain in priority order. Transient errors
// (rate starvation, unavailable, open breaker) rotate to the next provider;
// unknown-symbol errors and cancellation return immediately. When every
// provider fails the returned error wraps ErrDataUnavailable.
func (s *Service) tryProviders(ctx context.Context, symbol string, fetch func(domain.MarketDataProvider) (interface{}, error)) (interface{}, string, error) {
	var lastErr error

	for _, p := range s.providers {
		name := p.Name()

		if err := s.limiter.Acquire(ctx, name); err != nil {
			if errors.Is(err, domain.ErrCancelled) {
				return nil, "", err
			}
			s.log.Debug().Str("provider", name).Err(err).Msg("Rate limit starvation, rotating")
			lastErr = err
			continue
		}

		result, err := s.breakers.Execute(name, func() (interface{}, error) {
			return fetch(p)
		})
		if err == nil {
			return result, name, nil
		}
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrCancelled) {
			return nil, "", err
		}
		if ctx.Err() != nil {
			return nil, "", fmt.Errorf("provider chain: %w", domain.ErrCancelled)
		}

		s.log.Warn().Str("provider", name).Str("symbol", symbol).Err(err).Msg("Provider failed, rotating")
		lastErr = err
	}

	if lastErr == nil {
		return nil, "", fmt.Errorf("no providers configured: %w", domain.ErrDataUnavailable)
	}
	if errors.Is(lastErr, domain.ErrDataUnavailable) {
		return nil, "", fmt.Errorf("all providers failed for %s: %w", symbol, lastErr)
	}
	return nil, "", fmt.Errorf("all providers failed for %s: %w: %w", symbol, domain.ErrDataUnavailable, lastErr)
}

// Stats reports facade health for the system endpoints.
func (s *Service) Stats() map[string]interface{} {
	providers := make([]map[string]interface{}, 0, len(s.providers))
	for _, p := range s.providers {
		name := p.Name()
		providers = append(providers, map[string]interface{}{
			"name":    name,
			"breaker": s.breakers.State(name),
			"tokens":  s.limiter.Tokens(name),
		})
	}
	return map[string]interface{}{
		"providers":     providers,
		"quotes_cached": s.quotes.size(),
	}
}

// PurgeQuotes drops expired quote cache entries. Called by the cache
// maintenance job.
func (s *Service) PurgeQuotes() int {
	return s.quotes.purge(s.now())
}

func sameUTCDay(a, b time.Time) bool {
	return domain.Day(a).Equal(domain.Day(b))
}
