package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/eqtrak/internal/config"
	"github.com/aristath/eqtrak/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:            t.TempDir(),
		LogLevel:           "info",
		Port:               8001,
		PerformanceEnabled: true,
		MarketData: config.MarketDataConfig{
			RequestsPerMinute: 5,
			CacheTTL:          10 * time.Minute,
			SyncSchedule:      "@every 15m",
		},
	}
}

func TestWire_BuildsContainerWithoutQuoteProvider(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.FileExists(t, filepath.Join(cfg.DataDir, "eqtrak.db"))
	assert.FileExists(t, filepath.Join(cfg.DataDir, "cache.db"))

	assert.NotNil(t, container.MetricsService)
	assert.NotNil(t, container.PerformanceService)
	assert.False(t, container.MarketDataService.Enabled())

	// Price sync is not scheduled without an API key.
	assert.False(t, container.Jobs.PriceSyncEnabled)
	assert.Equal(t, 5, container.Scheduler.JobCount())

	defs, err := container.MetricsService.ListActiveMetrics(context.Background(), domain.ScopePosition, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, defs)
}

func TestWire_SchedulesPriceSyncWithAPIKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.MarketData.APIKey = "demo"

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.True(t, container.MarketDataService.Enabled())
	assert.True(t, container.Jobs.PriceSyncEnabled)
	assert.Equal(t, 6, container.Scheduler.JobCount())
}

func TestWire_BootstrapIsIdempotentAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)

	first, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	before, err := first.MetricsService.ListActiveMetrics(context.Background(), domain.ScopePortfolio, "alice")
	require.NoError(t, err)
	first.Close()

	second, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer second.Close()
	after, err := second.MetricsService.ListActiveMetrics(context.Background(), domain.ScopePortfolio, "alice")
	require.NoError(t, err)

	assert.Len(t, after, len(before))
}

func TestWire_FailsOnUnwritableDataDir(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.DataDir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.DataDir = filepath.Join(blocker, "nested")

	_, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}
