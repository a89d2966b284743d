package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/hindsight/internal/scheduler"
)

// Job schedules, all UTC. Bar sync runs after the US close; evaluation
// and maintenance run overnight, spaced so they never overlap the backup.
const (
	scheduleBarSync    = "30 21 * * 1-5"
	scheduleEvaluation = "0 1 * * *"
	scheduleDaily      = "15 2 * * *"
	scheduleBackup     = "0 3 * * *"
	scheduleCheckpoint = "@hourly"
	scheduleVacuum     = "@weekly"
)

// RegisterJobs creates the scheduler and binds the recurring jobs.
func RegisterJobs(c *Container, log zerolog.Logger) error {
	c.Scheduler = scheduler.New(log)

	jobs := []struct {
		schedule string
		job      scheduler.Job
	}{
		{scheduleBarSync, scheduler.NewBarSyncJob(c.DataService, c.Bus, log)},
		{scheduleEvaluation, scheduler.NewSignalEvaluationJob(c.SignalTracker, c.Bus, log)},
		{scheduleCheckpoint, scheduler.NewCheckpointJob(c.Maintenance)},
		{scheduleDaily, scheduler.NewMaintenanceJob(c.Maintenance)},
		{scheduleVacuum, scheduler.NewVacuumJob(c.Maintenance)},
	}
	if c.Backups != nil {
		jobs = append(jobs, struct {
			schedule string
			job      scheduler.Job
		}{scheduleBackup, scheduler.NewBackupJob(c.Backups, log)})
	}

	for _, j := range jobs {
		if err := c.Scheduler.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.job.Name(), err)
		}
	}
	return nil
}
