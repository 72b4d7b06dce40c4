package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/clientdata"
	"github.com/aristath/eqtrak/internal/config"
	"github.com/aristath/eqtrak/internal/modules/marketdata"
	"github.com/aristath/eqtrak/internal/reliability"
	"github.com/aristath/eqtrak/internal/scheduler"
)

const (
	cacheCleanupSchedule  = "0 30 3 * * *" // daily at 03:30
	databaseCheckSchedule = "0 0 4 * * *"  // daily at 04:00
	walCheckSchedule      = "@every 1h"
	backupSchedule        = "0 0 2 * * *" // daily at 02:00
	maintenanceSchedule   = "0 0 3 * * 0" // Sundays at 03:00
)

// RegisterJobs creates the background jobs and schedules them. The price
// sync is only scheduled when a quote provider is configured and a
// schedule is set.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	sched := scheduler.New(log)
	jobs := &JobInstances{
		PriceSync:     marketdata.NewSyncJob(container.MarketDataService, log),
		CacheCleanup:  clientdata.NewEvictionJob(container.ClientDataRepo, clientdata.StaleQuoteRetention, log),
		DatabaseCheck: scheduler.NewCheckCoreDatabasesJob(log, container.MainDB, container.CacheDB),
		WALCheckpoint: scheduler.NewCheckWALCheckpointsJob(log, container.MainDB, container.CacheDB),
		Backup:        reliability.NewBackupJob(container.BackupService, cfg.BackupRetentionDays, log),
		// Only the cache churns enough to be worth compacting.
		Maintenance: reliability.NewMaintenanceJob(cfg.DataDir, log, container.CacheDB),
	}

	schedules := []struct {
		spec string
		job  scheduler.Job
	}{
		{cacheCleanupSchedule, jobs.CacheCleanup},
		{databaseCheckSchedule, jobs.DatabaseCheck},
		{walCheckSchedule, jobs.WALCheckpoint},
		{backupSchedule, jobs.Backup},
		{maintenanceSchedule, jobs.Maintenance},
	}
	if cfg.MarketData.Enabled() && cfg.MarketData.SyncSchedule != "" {
		schedules = append(schedules, struct {
			spec string
			job  scheduler.Job
		}{cfg.MarketData.SyncSchedule, jobs.PriceSync})
		jobs.PriceSyncEnabled = true
	}

	for _, s := range schedules {
		if err := sched.AddJob(s.spec, s.job); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", s.job.Name(), err)
		}
	}

	container.Scheduler = sched
	container.Jobs = jobs
	return jobs, nil
}
