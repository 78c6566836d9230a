// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/portfolio-analytics/internal/clients/yahoo"
	"github.com/aristath/portfolio-analytics/internal/config"
	"github.com/aristath/portfolio-analytics/internal/database"
	"github.com/aristath/portfolio-analytics/internal/marketdata"
	"github.com/aristath/portfolio-analytics/internal/modules/indicators"
	"github.com/aristath/portfolio-analytics/internal/modules/optimization"
	"github.com/aristath/portfolio-analytics/internal/modules/returns"
	"github.com/aristath/portfolio-analytics/internal/reliability"
	"github.com/aristath/portfolio-analytics/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire() and passed to the server and CLI.
type Container struct {
	Config *config.Config

	// CacheDB is nil when the memory cache backend is configured
	CacheDB *database.DB
	Store   marketdata.Store

	YahooClient *yahoo.Client
	MarketData  *marketdata.Cache

	Pipeline     *returns.Pipeline
	Indicators   *indicators.Engine
	Optimization *optimization.Service

	// Backup is nil when no backup bucket is configured
	Backup *reliability.CacheBackupService

	Scheduler *scheduler.Scheduler
	Jobs      *JobInstances
}

// JobInstances holds the registered background jobs for manual triggering
type JobInstances struct {
	CacheCleanup *marketdata.CleanupJob
	CacheBackup  *reliability.CacheBackupJob // nil when backups are disabled
}

// All returns the non-nil jobs keyed by name
func (j *JobInstances) All() map[string]scheduler.Job {
	jobs := map[string]scheduler.Job{}
	if j == nil {
		return jobs
	}
	if j.CacheCleanup != nil {
		jobs[j.CacheCleanup.Name()] = j.CacheCleanup
	}
	if j.CacheBackup != nil {
		jobs[j.CacheBackup.Name()] = j.CacheBackup
	}
	return jobs
}

// Close releases the cache database, if any
func (c *Container) Close() error {
	if c.CacheDB != nil {
		return c.CacheDB.Close()
	}
	return nil
}
