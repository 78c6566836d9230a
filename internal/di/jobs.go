package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-analytics/internal/marketdata"
	"github.com/aristath/portfolio-analytics/internal/reliability"
	"github.com/aristath/portfolio-analytics/internal/scheduler"
)

// RegisterJobs creates the background jobs and registers them on a new
// scheduler. The scheduler is not started.
func RegisterJobs(container *Container, log zerolog.Logger) error {
	cfg := container.Config
	sched := scheduler.New(log)
	jobs := &JobInstances{}

	jobs.CacheCleanup = marketdata.NewCleanupJob(container.Store, log)
	if err := sched.AddJob(cfg.Cache.CleanupSchedule, jobs.CacheCleanup); err != nil {
		return fmt.Errorf("failed to register cache cleanup job: %w", err)
	}

	if container.Backup != nil {
		jobs.CacheBackup = reliability.NewCacheBackupJob(container.Backup)
		if err := sched.AddJob(cfg.Backup.Schedule, jobs.CacheBackup); err != nil {
			return fmt.Errorf("failed to register cache backup job: %w", err)
		}
	}

	container.Scheduler = sched
	container.Jobs = jobs
	return nil
}
