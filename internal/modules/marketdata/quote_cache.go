package marketdata

import (
	"sync"
	"time"

	"github.com/aristath/hindsight/internal/domain"
)

// quoteCache is an in-memory TTL cache for real-time quotes. Expired entries
// are treated as misses and reaped by Purge during cache maintenance.
type quoteCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cachedQuote
}

type cachedQuote struct {
	quote    domain.Quote
	storedAt time.Time
}

func newQuoteCache(ttl time.Duration) *quoteCache {
	return &quoteCache{
		ttl:     ttl,
		entries: make(map[string]cachedQuote),
	}
}

func (c *quoteCache) get(symbol string, now time.Time) (*domain.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[symbol]
	if !ok || now.Sub(entry.storedAt) >= c.ttl {
		return nil, false
	}
	q := entry.quote
	return &q, true
}

func (c *quoteCache) put(symbol string, q domain.Quote, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[symbol] = cachedQuote{quote: q, storedAt: now}
}

// purge removes expired entries and returns how many were dropped.
func (c *quoteCache) purge(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for symbol, entry := range c.entries {
		if now.Sub(entry.storedAt) >= c.ttl {
			delete(c.entries, symbol)
			dropped++
		}
	}
	return dropped
}

func (c *quoteCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
