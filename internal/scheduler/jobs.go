package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/events"
	"github.com/aristath/hindsight/internal/modules/marketdata"
)

// jobTimeout bounds every scheduled run; a stuck provider call must not
// block the next tick.
const jobTimeout = 10 * time.Minute

// WatchlistSyncer refreshes watchlist bars. Satisfied by the market data
// service.
type WatchlistSyncer interface {
	SyncWatchlist(ctx context.Context) (marketdata.SyncSummary, error)
}

// BarSyncJob keeps the watchlist's daily bars warm.
type BarSyncJob struct {
	syncer WatchlistSyncer
	bus    *events.Bus
	log    zerolog.Logger
}

func NewBarSyncJob(syncer WatchlistSyncer, bus *events.Bus, log zerolog.Logger) *BarSyncJob {
	return &BarSyncJob{syncer: syncer, bus: bus, log: log.With().Str("job", "bar_sync").Logger()}
}

func (j *BarSyncJob) Name() string { return "bar_sync" }

func (j *BarSyncJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	summary, err := j.syncer.SyncWatchlist(ctx)
	if err != nil {
		return err
	}
	if j.bus != nil && summary.BarsSynced > 0 {
		j.bus.Publish(events.BarsSynced, map[string]any{
			"symbols": summary.Symbols,
			"bars":    summary.BarsSynced,
			"failed":  len(summary.Failed),
		})
	}
	return nil
}

// SignalEvaluator grades journaled signals whose lookahead window has
// closed. Satisfied by the accuracy tracker.
type SignalEvaluator interface {
	EvaluateDue(asOf time.Time) (int, error)
}

// SignalEvaluationJob grades pending strategy signals once their window
// closes.
type SignalEvaluationJob struct {
	tracker SignalEvaluator
	bus     *events.Bus
	log     zerolog.Logger
}

func NewSignalEvaluationJob(tracker SignalEvaluator, bus *events.Bus, log zerolog.Logger) *SignalEvaluationJob {
	return &SignalEvaluationJob{tracker: tracker, bus: bus, log: log.With().Str("job", "signal_evaluation").Logger()}
}

func (j *SignalEvaluationJob) Name() string { return "signal_evaluation" }

func (j *SignalEvaluationJob) Run() error {
	graded, err := j.tracker.EvaluateDue(time.Now().UTC())
	if err != nil {
		return err
	}
	if graded > 0 {
		j.log.Info().Int("graded", graded).Msg("Signals evaluated")
		if j.bus != nil {
			j.bus.Publish(events.SignalsEvaluated, map[string]any{"graded": graded})
		}
	}
	return nil
}

// Maintainer is the database housekeeping surface the jobs drive.
type Maintainer interface {
	CheckpointAll() error
	DailyMaintenance(ctx context.Context) error
	WeeklyVacuum() error
}

// CheckpointJob truncates the WALs. Hourly.
type CheckpointJob struct {
	maintenance Maintainer
}

func NewCheckpointJob(m Maintainer) *CheckpointJob { return &CheckpointJob{maintenance: m} }

func (j *CheckpointJob) Name() string { return "wal_checkpoint" }
func (j *CheckpointJob) Run() error   { return j.maintenance.CheckpointAll() }

// MaintenanceJob runs the daily housekeeping pass.
type MaintenanceJob struct {
	maintenance Maintainer
}

func NewMaintenanceJob(m Maintainer) *MaintenanceJob { return &MaintenanceJob{maintenance: m} }

func (j *MaintenanceJob) Name() string { return "daily_maintenance" }

func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	return j.maintenance.DailyMaintenance(ctx)
}

// VacuumJob rebuilds the database files. Weekly, in the Sunday window.
type VacuumJob struct {
	maintenance Maintainer
}

func NewVacuumJob(m Maintainer) *VacuumJob { return &VacuumJob{maintenance: m} }

func (j *VacuumJob) Name() string { return "weekly_vacuum" }
func (j *VacuumJob) Run() error   { return j.maintenance.WeeklyVacuum() }

// BackupRunner uploads a fresh backup archive. Satisfied by the backup
// service.
type BackupRunner interface {
	CreateAndUpload(ctx context.Context) error
}

// BackupJob snapshots the databases and ships them to R2.
type BackupJob struct {
	backups BackupRunner
	log     zerolog.Logger
}

func NewBackupJob(backups BackupRunner, log zerolog.Logger) *BackupJob {
	return &BackupJob{backups: backups, log: log.With().Str("job", "backup").Logger()}
}

func (j *BackupJob) Name() string { return "r2_backup" }

func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	return j.backups.CreateAndUpload(ctx)
}
