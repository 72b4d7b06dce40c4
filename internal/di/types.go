// Package di provides dependency injection type definitions.
//
// The Container holds every application dependency and is the single source
// of truth for service instances. It is handed to the server and the CLI.
package di

import (
	"github.com/aristath/eqtrak/internal/clientdata"
	"github.com/aristath/eqtrak/internal/config"
	"github.com/aristath/eqtrak/internal/database"
	"github.com/aristath/eqtrak/internal/events"
	"github.com/aristath/eqtrak/internal/modules/features"
	"github.com/aristath/eqtrak/internal/modules/ledger"
	"github.com/aristath/eqtrak/internal/modules/marketdata"
	"github.com/aristath/eqtrak/internal/modules/metrics"
	"github.com/aristath/eqtrak/internal/modules/performance"
	"github.com/aristath/eqtrak/internal/modules/portfolio"
	"github.com/aristath/eqtrak/internal/reliability"
	"github.com/aristath/eqtrak/internal/scheduler"
)

// Container holds all dependencies for the application.
type Container struct {
	Config *config.Config

	// Databases
	MainDB  *database.DB // Portfolios, ledger, metric catalog and values, feature settings
	CacheDB *database.DB // Market price cache

	// Repositories
	PortfolioRepo  *portfolio.Repository
	LedgerRepo     *ledger.Repository
	DefinitionRepo *metrics.DefinitionRepository
	ValueRepo      *metrics.ValueRepository
	SettingsRepo   *features.SettingsRepository
	ClientDataRepo *clientdata.Repository

	// Services
	EventBus           *events.Bus
	FeatureGate        *features.Gate
	Registry           *metrics.Registry
	Engine             *metrics.Engine
	MetricsService     *metrics.Service
	MarketDataService  *marketdata.Service
	PerformanceService *performance.Service
	BackupService      *reliability.BackupService

	// Background jobs
	Scheduler *scheduler.Scheduler
	Jobs      *JobInstances
}

// JobInstances holds the registered jobs for manual triggering.
type JobInstances struct {
	PriceSync        scheduler.Job
	CacheCleanup     scheduler.Job
	DatabaseCheck    scheduler.Job
	WALCheckpoint    scheduler.Job
	Backup           scheduler.Job
	Maintenance      scheduler.Job
	PriceSyncEnabled bool
}

// Close releases the databases. It is safe on a partially built container.
func (c *Container) Close() {
	if c.MainDB != nil {
		c.MainDB.Close()
	}
	if c.CacheDB != nil {
		c.CacheDB.Close()
	}
}
