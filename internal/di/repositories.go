package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/clientdata"
	"github.com/aristath/eqtrak/internal/events"
	"github.com/aristath/eqtrak/internal/modules/features"
	"github.com/aristath/eqtrak/internal/modules/ledger"
	"github.com/aristath/eqtrak/internal/modules/metrics"
	"github.com/aristath/eqtrak/internal/modules/portfolio"
)

// InitializeRepositories creates the data access layer
func InitializeRepositories(container *Container, log zerolog.Logger) {
	conn := container.MainDB.Conn()

	container.EventBus = events.NewBus(log)
	container.PortfolioRepo = portfolio.NewRepository(conn, log)
	container.LedgerRepo = ledger.NewRepository(conn, log)
	container.DefinitionRepo = metrics.NewDefinitionRepository(conn, log)
	container.ValueRepo = metrics.NewValueRepository(conn, container.EventBus, log)
	container.SettingsRepo = features.NewSettingsRepository(conn, log)
	container.ClientDataRepo = clientdata.NewRepository(container.CacheDB.Conn())
}
