package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/aristath/eqtrak/internal/config"
	"github.com/aristath/eqtrak/internal/di"
	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/modules/metrics"
	"github.com/aristath/eqtrak/internal/modules/performance"
	testingpkg "github.com/aristath/eqtrak/internal/testing"
)

type env struct {
	cfg       *config.Config
	portfolio domain.Portfolio
	position  domain.Position
}

func newEnv(t *testing.T) *env {
	t.Helper()
	cfg := &config.Config{
		DataDir:            t.TempDir(),
		LogLevel:           "info",
		Port:               8001,
		PerformanceEnabled: true,
		MarketData: config.MarketDataConfig{
			RequestsPerMinute: 5,
			CacheTTL:          10 * time.Minute,
		},
	}

	// Seed the data directory the way a running server would.
	container, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	conn := container.MainDB.Conn()
	pf := testingpkg.InsertPortfolio(t, conn, "alice", "Main")
	pos := testingpkg.InsertPosition(t, conn, pf.ID, "AAPL")
	testingpkg.InsertTransaction(t, conn, pos.ID, domain.TransactionBuy, "10", "100", "0", 0)
	container.Close()

	return &env{cfg: cfg, portfolio: pf, position: pos}
}

func (e *env) run(args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr, func() (*config.Config, error) {
		return e.cfg, nil
	})
	return stdout.String(), err
}

func TestRun_Usage(t *testing.T) {
	e := newEnv(t)

	_, err := e.run()
	assert.ErrorIs(t, err, errUsage)

	_, err = e.run("frobnicate")
	assert.ErrorIs(t, err, errUsage)

	_, err = e.run("--format", "xml", "list")
	assert.ErrorContains(t, err, "unknown format")
}

func TestRun_ListAsYAML(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("-o", "yaml", "--scope", "position", "list")
	require.NoError(t, err)

	var defs []definitionView
	require.NoError(t, yaml.Unmarshal([]byte(out), &defs))
	require.NotEmpty(t, defs)
	for _, d := range defs {
		assert.Equal(t, string(domain.ScopePosition), d.Scope)
		assert.True(t, d.IsSystem)
	}
}

func TestRun_ListTable(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, metrics.SystemID(metrics.KeyMarketPrice))
}

func TestRun_Compute(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("-o", "yaml", "--user", "alice", "--position", e.position.ID,
		"compute", metrics.SystemID(metrics.KeyCostBasis))
	require.NoError(t, err)

	var results []resultView
	require.NoError(t, yaml.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, string(metrics.StatusOK), results[0].Status)
	assert.Equal(t, "1000", results[0].Value)

	// Market price is stored: nothing recorded means no value, no fetch.
	out, err = e.run("--user", "alice", "--position", e.position.ID,
		"compute", metrics.SystemID(metrics.KeyMarketPrice))
	require.NoError(t, err)
	assert.Contains(t, out, string(metrics.StatusNoValue))
	assert.Contains(t, out, metrics.ReasonNoStoredValue)

	// Current value falls back to the quote provider, which is not configured.
	out, err = e.run("--user", "alice", "--position", e.position.ID,
		"compute", metrics.SystemID(metrics.KeyCurrentValue))
	require.NoError(t, err)
	assert.Contains(t, out, string(metrics.StatusNoValue))
	assert.Contains(t, out, metrics.ReasonExternalUnavailable)
}

func TestRun_ComputeRequiresTarget(t *testing.T) {
	e := newEnv(t)

	_, err := e.run("compute", metrics.SystemID(metrics.KeyCostBasis))
	assert.Error(t, err)

	_, err = e.run("compute")
	assert.ErrorContains(t, err, "exactly one metric id")
}

func TestRun_Performance(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("--user", "alice", "performance", e.portfolio.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Main ("+e.portfolio.ID+")")
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "cost_basis")
	assert.Contains(t, out, "twr_pct")

	_, err = e.run("--user", "bob", "performance", e.portfolio.ID)
	assert.ErrorIs(t, err, performance.ErrPortfolioNotFound)
}

func TestRun_Maintenance(t *testing.T) {
	e := newEnv(t)

	out, err := e.run("clear-computed")
	require.NoError(t, err)
	assert.Contains(t, out, "computed values")

	out, err = e.run("bootstrap")
	require.NoError(t, err)
	assert.Contains(t, out, "system metrics")

	_, err = e.run("sync-prices")
	assert.ErrorContains(t, err, "ALPHA_VANTAGE_API_KEY")
}
