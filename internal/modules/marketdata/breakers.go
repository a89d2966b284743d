package marketdata

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/hindsight/internal/domain"
)

// BreakerSet holds one circuit breaker per provider so a provider that keeps
// failing is skipped quickly instead of burning its rate-limit tokens.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerSet creates an empty breaker set; breakers are created on first use.
func NewBreakerSet() *BreakerSet {
	return &BreakerSet{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (s *BreakerSet) breakerFor(provider string) *gobreaker.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cb, ok := s.breakers[provider]; ok {
		return cb
	}

	st := gobreaker.Settings{Name: "provider:" + provider}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	// Unknown-symbol errors mean the provider is healthy and the request is
	// bad; they must not trip the breaker.
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, domain.ErrInvalidInput)
	}

	cb := gobreaker.NewCircuitBreaker(st)
	s.breakers[provider] = cb
	return cb
}

// Execute runs fn through the provider's breaker. An open breaker is reported
// as a transient data-unavailable error so the facade rotates providers.
func (s *BreakerSet) Execute(provider string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := s.breakerFor(provider).Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("provider %s circuit open: %w", provider, domain.ErrDataUnavailable)
	}
	return result, err
}

// State reports the breaker state for a provider ("closed", "half-open", "open").
func (s *BreakerSet) State(provider string) string {
	return s.breakerFor(provider).State().String()
}
