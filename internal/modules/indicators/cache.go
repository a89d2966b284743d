package indicators

import (
	"container/list"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes computed series. Lookups hit a bounded in-memory LRU first,
// then the persistent tier, then compute. A singleflight group guarantees at
// most one concurrent computation per fingerprint; followers block on the
// leader and share its result or error.
type Cache struct {
	capacity int
	repo     *Repository
	group    singleflight.Group
	log      zerolog.Logger

	mu     sync.Mutex
	ll     *list.List
	items  map[string]*list.Element
	hits   uint64
	misses uint64
}

type cacheItem struct {
	key    string
	series *Series
}

// NewCache creates a cache with the given LRU capacity. repo may be nil to
// run memory-only (backtests construct throwaway caches this way).
func NewCache(capacity int, repo *Repository, log zerolog.Logger) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		repo:     repo,
		log:      log.With().Str("service", "indicator_cache").Logger(),
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

// GetOrCompute returns the series for a fingerprint, computing it at most
// once across concurrent callers.
func (c *Cache) GetOrCompute(fp Fingerprint, compute func() (*Series, error)) (*Series, error) {
	key := fp.Key()

	if s, ok := c.lookup(key); ok {
		return s, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A previous leader may have filled the LRU while we queued.
		if s, ok := c.lookup(key); ok {
			return s, nil
		}

		if c.repo != nil {
			s, err := c.repo.GetSeries(key)
			if err != nil {
				c.log.Warn().Str("fingerprint", key).Err(err).Msg("Persistent cache read failed")
			} else if s != nil {
				c.store(key, s)
				return s, nil
			}
		}

		s, err := compute()
		if err != nil {
			return nil, err
		}
		c.store(key, s)

		if c.repo != nil {
			if err := c.repo.PutSeries(key, s); err != nil {
				c.log.Warn().Str("fingerprint", key).Err(err).Msg("Persistent cache write failed")
			}
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Series), nil
}

func (c *Cache) lookup(key string) (*Series, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return el.Value.(*cacheItem).series, true
}

func (c *Cache) store(key string, s *Series) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*cacheItem).series = s
		return
	}

	el := c.ll.PushFront(&cacheItem{key: key, series: s})
	c.items[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheItem).key)
	}
}

// Stats reports hit/miss counters and current size.
func (c *Cache) Stats() (hits, misses uint64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.ll.Len()
}

// Purge empties the in-memory tier. The persistent tier is untouched.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}
