package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/database"
)

// QuotePurger drops expired quotes from the in-memory cache. Satisfied by
// the market data service.
type QuotePurger interface {
	PurgeQuotes() int
}

// MaintenanceService runs the periodic database housekeeping: WAL
// checkpoints, integrity checks and vacuuming.
type MaintenanceService struct {
	databases map[string]*database.DB
	quotes    QuotePurger
	log       zerolog.Logger
}

func NewMaintenanceService(databases map[string]*database.DB, quotes QuotePurger, log zerolog.Logger) *MaintenanceService {
	return &MaintenanceService{
		databases: databases,
		quotes:    quotes,
		log:       log.With().Str("service", "maintenance").Logger(),
	}
}

// CheckpointAll truncates every database's WAL. Cheap enough to run hourly.
func (s *MaintenanceService) CheckpointAll() error {
	var firstErr error
	for name, db := range s.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("WAL checkpoint failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("checkpointing %s: %w", name, err)
			}
		}
	}
	return firstErr
}

// DailyMaintenance runs the full housekeeping pass: quote purge, integrity
// checks and WAL truncation.
func (s *MaintenanceService) DailyMaintenance(ctx context.Context) error {
	started := time.Now()

	if s.quotes != nil {
		purged := s.quotes.PurgeQuotes()
		if purged > 0 {
			s.log.Debug().Int("purged", purged).Msg("Expired quotes purged")
		}
	}

	for name, db := range s.databases {
		if err := db.QuickCheck(ctx); err != nil {
			return fmt.Errorf("integrity check on %s: %w", name, err)
		}
	}

	if err := s.CheckpointAll(); err != nil {
		return err
	}

	s.log.Info().Dur("elapsed", time.Since(started)).Msg("Daily maintenance complete")
	return nil
}

// WeeklyVacuum rebuilds every database file to reclaim space. Heavy; runs
// in the Sunday maintenance window.
func (s *MaintenanceService) WeeklyVacuum() error {
	for name, db := range s.databases {
		started := time.Now()
		if err := db.Vacuum(); err != nil {
			return fmt.Errorf("vacuuming %s: %w", name, err)
		}
		s.log.Info().Str("database", name).Dur("elapsed", time.Since(started)).Msg("Vacuum complete")
	}
	return nil
}
