package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/clients/alphavantage"
	"github.com/aristath/eqtrak/internal/config"
	"github.com/aristath/eqtrak/internal/database"
	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/modules/features"
	"github.com/aristath/eqtrak/internal/modules/marketdata"
	"github.com/aristath/eqtrak/internal/modules/metrics"
	"github.com/aristath/eqtrak/internal/modules/performance"
	"github.com/aristath/eqtrak/internal/reliability"
)

// InitializeServices creates the business logic layer and installs the
// system metric catalog.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.FeatureGate = features.NewGate(cfg, container.SettingsRepo, container.EventBus, log)
	container.Registry = metrics.NewRegistry(container.DefinitionRepo, container.ValueRepo, log)

	// The market data service needs the metric service to record prices and
	// the engine needs the market data service to fetch them, so the service
	// is wired through a late-bound provider.
	market := &lateMarket{}
	var quoter marketdata.Quoter
	if cfg.MarketData.Enabled() {
		quoter = alphavantage.NewClient(cfg.MarketData.APIKey, log,
			alphavantage.WithBaseURL(cfg.MarketData.BaseURL),
			alphavantage.WithRequestsPerMinute(cfg.MarketData.RequestsPerMinute))
	} else {
		log.Warn().Msg("ALPHA_VANTAGE_API_KEY not set, market prices must be entered manually")
	}

	container.Engine = metrics.NewEngine(metrics.EngineConfig{
		Definitions:          container.DefinitionRepo,
		Values:               container.ValueRepo,
		Entities:             container.PortfolioRepo,
		Ledger:               container.LedgerRepo,
		Market:               market,
		PersistFetchedPrices: cfg.MarketData.PersistFetchedPrices,
	}, performance.Providers(container.LedgerRepo), log)

	container.MetricsService = metrics.NewService(
		container.Registry,
		container.ValueRepo,
		container.Engine,
		container.FeatureGate,
		container.EventBus,
		log,
	)

	container.MarketDataService = marketdata.NewService(
		quoter,
		container.ClientDataRepo,
		container.PortfolioRepo,
		container.MetricsService,
		container.ValueRepo,
		container.EventBus,
		marketdata.Config{CacheTTL: cfg.MarketData.CacheTTL},
		log,
	)
	market.service = container.MarketDataService

	container.PerformanceService = performance.NewService(container.MetricsService, container.PortfolioRepo, log)
	container.BackupService = reliability.NewBackupService(
		[]*database.DB{container.MainDB, container.CacheDB}, cfg.BackupDir(), log)

	if _, err := container.MetricsService.Bootstrap(context.Background()); err != nil {
		return fmt.Errorf("failed to install system metric catalog: %w", err)
	}
	return nil
}

// lateMarket forwards to the market data service once it exists.
type lateMarket struct {
	service *marketdata.Service
}

func (m *lateMarket) LatestPrice(ctx context.Context, ticker string) (domain.PriceQuote, error) {
	if m.service == nil {
		return domain.PriceQuote{}, marketdata.ErrDisabled
	}
	return m.service.LatestPrice(ctx, ticker)
}
