package indicators

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/domain"
)

// Service is the indicator access point used by scoring, strategies and the
// HTTP layer. Reads go through the in-memory cache; the repository tier is
// optional so backtests can run without touching disk.
type Service struct {
	cache *Cache
	repo  *Repository
	log   zerolog.Logger
}

func NewService(cache *Cache, repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		cache: cache,
		repo:  repo,
		log:   log.With().Str("service", "indicators").Logger(),
	}
}

// GetSeries computes or retrieves one indicator series over the given bars.
// The fingerprint ties the result to the last bar's date, so the same request
// later the same day is a cache hit.
func (s *Service) GetSeries(symbol string, spec Spec, bars []domain.Bar) (*Series, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if _, err := lookback(spec); err != nil {
		return nil, err
	}

	var asOf time.Time
	if len(bars) > 0 {
		asOf = domain.Day(bars[len(bars)-1].Date)
	}
	fp := Fingerprint{Symbol: symbol, Spec: spec, AsOf: asOf}

	return s.cache.GetOrCompute(fp, func() (*Series, error) {
		return computeSeries(symbol, spec, bars)
	})
}

// ComputeVector runs the standard indicator set over the bars and bundles the
// results. Indicators without enough history are simply absent from the
// bundle; callers check the relevant line before using it.
func (s *Service) ComputeVector(symbol string, bars []domain.Bar) (*Vector, error) {
	v := &Vector{
		Symbol:     symbol,
		N:          len(bars),
		FirstValid: make(map[string]int),
	}
	if len(bars) > 0 {
		v.AsOf = domain.Day(bars[len(bars)-1].Date)
	}

	for _, spec := range StandardSpecs() {
		series, err := s.GetSeries(symbol, spec, bars)
		if err != nil {
			return nil, err
		}
		v.absorb(spec, series)
	}
	return v, nil
}

// ScanPatterns detects candlestick patterns over the trailing lookbackBars
// bars (all bars when zero) and persists the hits when a repository is
// configured. Persistence failures are logged, not returned; detection output
// is already complete.
func (s *Service) ScanPatterns(symbol string, bars []domain.Bar, lookbackBars int) ([]PatternHit, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}

	from := 0
	if lookbackBars > 0 && len(bars) > lookbackBars {
		from = len(bars) - lookbackBars
	}
	hits := DetectPatterns(symbol, bars, from)

	if s.repo != nil && len(hits) > 0 {
		if err := s.repo.SavePatternHits(hits); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to persist pattern hits")
		}
	}
	return hits, nil
}

// StoredPatterns returns previously persisted hits for a symbol and window.
func (s *Service) StoredPatterns(symbol string, start, end time.Time) ([]PatternHit, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.GetPatternHits(symbol, start, end)
}

// Maintenance drops expired persisted series. Meant to run on a schedule.
func (s *Service) Maintenance() (int64, error) {
	if s.repo == nil {
		return 0, nil
	}
	purged, err := s.repo.PurgeExpired()
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.log.Info().Int64("purged", purged).Msg("Purged expired indicator series")
	}
	return purged, nil
}

// Stats reports cache effectiveness counters.
func (s *Service) Stats() map[string]interface{} {
	hits, misses, size := s.cache.Stats()
	return map[string]interface{}{
		"cache_hits":   hits,
		"cache_misses": misses,
		"cache_size":   size,
		"patterns":     len(patternDefs),
	}
}
