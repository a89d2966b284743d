package marketdata

import (
	"context"
	"time"

	"github.com/aristath/hindsight/internal/domain"
)

// syncLookbackDays is how much daily history the watchlist sync keeps warm.
// Roughly 400 calendar days covers the 252 trading bars full analysis needs.
const syncLookbackDays = 400

// SyncSummary reports the outcome of one watchlist sync run.
type SyncSummary struct {
	Symbols      int           `json:"symbols"`
	BarsSynced   int           `json:"bars_synced"`
	Fundamentals int           `json:"fundamentals_synced"`
	Failed       []string      `json:"failed,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// SyncWatchlist refreshes bars and fundamentals for every watchlist symbol.
// Failures are collected per symbol; the run continues unless cancelled.
func (s *Service) SyncWatchlist(ctx context.Context) (SyncSummary, error) {
	started := s.now()
	today := domain.Day(started)
	from := today.AddDate(0, 0, -syncLookbackDays)

	summary := SyncSummary{Symbols: len(s.cfg.Watchlist)}
	for _, symbol := range s.cfg.Watchlist {
		if ctx.Err() != nil {
			summary.Duration = s.now().Sub(started)
			return summary, domain.ErrCancelled
		}

		bars, err := s.GetBars(ctx, symbol, from, today)
		if err != nil {
			s.log.Warn().Str("symbol", symbol).Err(err).Msg("Watchlist bar sync failed")
			summary.Failed = append(summary.Failed, symbol)
			continue
		}
		summary.BarsSynced += len(bars)

		if _, err := s.GetFundamentals(ctx, symbol); err != nil {
			s.log.Debug().Str("symbol", symbol).Err(err).Msg("Watchlist fundamentals sync failed")
		} else {
			summary.Fundamentals++
		}
	}

	summary.Duration = s.now().Sub(started)
	s.log.Info().
		Int("symbols", summary.Symbols).
		Int("bars", summary.BarsSynced).
		Int("fundamentals", summary.Fundamentals).
		Int("failed", len(summary.Failed)).
		Dur("duration", summary.Duration).
		Msg("Watchlist sync complete")
	return summary, nil
}
