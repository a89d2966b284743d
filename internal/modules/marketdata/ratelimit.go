package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aristath/hindsight/internal/domain"
)

// ProviderLimiter enforces per-provider token-bucket rate limits.
// One bucket per provider, shared across all workers.
type ProviderLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rates    map[string]float64
	maxWait  time.Duration
}

// NewProviderLimiter creates a limiter set from a provider→requests-per-second
// map. maxWait bounds how long a caller may be parked waiting for a token
// before the attempt is abandoned as rate-limit starvation.
func NewProviderLimiter(rates map[string]float64, maxWait time.Duration) *ProviderLimiter {
	return &ProviderLimiter{
		limiters: make(map[string]*rate.Limiter),
		rates:    rates,
		maxWait:  maxWait,
	}
}

// limiterFor returns or creates the bucket for a provider.
func (l *ProviderLimiter) limiterFor(provider string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[provider]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := l.limiters[provider]; exists {
		return limiter
	}

	rps, ok := l.rates[provider]
	if !ok || rps <= 0 {
		rps = 1.0
	}
	limiter = rate.NewLimiter(rate.Limit(rps), 1)
	l.limiters[provider] = limiter
	return limiter
}

// Acquire blocks until a token for the provider is available, the wait would
// exceed maxWait, or the context is cancelled. A wait beyond maxWait returns
// a rate-limited error so the caller can rotate to the next provider.
func (l *ProviderLimiter) Acquire(ctx context.Context, provider string) error {
	res := l.limiterFor(provider).Reserve()
	if !res.OK() {
		return fmt.Errorf("provider %s: %w", provider, domain.ErrRateLimited)
	}

	delay := res.Delay()
	if delay > l.maxWait {
		res.Cancel()
		return fmt.Errorf("provider %s: token wait %s exceeds %s: %w",
			provider, delay.Round(time.Millisecond), l.maxWait, domain.ErrRateLimited)
	}
	if delay == 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		res.Cancel()
		return fmt.Errorf("provider %s token wait: %w", provider, domain.ErrCancelled)
	case <-timer.C:
		return nil
	}
}

// Tokens reports the currently available tokens for a provider.
func (l *ProviderLimiter) Tokens(provider string) float64 {
	return l.limiterFor(provider).Tokens()
}
