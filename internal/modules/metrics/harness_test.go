package metrics

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/eqtrak/internal/config"
	"github.com/aristath/eqtrak/internal/database"
	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/events"
	"github.com/aristath/eqtrak/internal/modules/features"
	"github.com/aristath/eqtrak/internal/modules/ledger"
	"github.com/aristath/eqtrak/internal/modules/portfolio"
	testingpkg "github.com/aristath/eqtrak/internal/testing"
)

var testToday = time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC)

// countingLedger counts ledger reads so tests can observe memoization.
type countingLedger struct {
	domain.TransactionLedger
	completedCalls int
}

func (c *countingLedger) CompletedTransactions(ctx context.Context, positionID string) ([]domain.Transaction, error) {
	c.completedCalls++
	return c.TransactionLedger.CompletedTransactions(ctx, positionID)
}

type harness struct {
	t          *testing.T
	ctx        context.Context
	db         *sql.DB
	bus        *events.Bus
	portfolios *portfolio.Repository
	ledger     *countingLedger
	values     *ValueRepository
	defs       *DefinitionRepository
	registry   *Registry
	market     *testingpkg.MockMarketDataProvider
	gate       *features.Gate
	engine     *Engine
	service    *Service
}

type harnessOption func(*EngineConfig)

func withoutMarket() harnessOption {
	return func(c *EngineConfig) { c.Market = nil }
}

func withoutPersistedPrices() harnessOption {
	return func(c *EngineConfig) { c.PersistFetchedPrices = false }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	db, _ := testingpkg.NewTestDB(t, database.NameMain)
	conn := db.Conn()
	log := zerolog.Nop()

	h := &harness{
		t:          t,
		ctx:        context.Background(),
		db:         conn,
		bus:        events.NewBus(log),
		portfolios: portfolio.NewRepository(conn, log),
		ledger:     &countingLedger{TransactionLedger: ledger.NewRepository(conn, log)},
		defs:       NewDefinitionRepository(conn, log),
		market:     testingpkg.NewMockMarketDataProvider(),
	}
	h.values = NewValueRepository(conn, h.bus, log)
	h.registry = NewRegistry(h.defs, h.values, log)
	_, err := h.registry.Bootstrap(h.ctx)
	require.NoError(t, err)

	cfg := EngineConfig{
		Definitions:          h.defs,
		Values:               h.values,
		Entities:             h.portfolios,
		Ledger:               h.ledger,
		Market:               h.market,
		PersistFetchedPrices: true,
		Clock:                func() time.Time { return testToday },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.engine = NewEngine(cfg, nil, log)

	h.gate = features.NewGate(&config.Config{PerformanceEnabled: true},
		features.NewSettingsRepository(conn, log), h.bus, log)
	h.service = NewService(h.registry, h.values, h.engine, h.gate, h.bus, log)
	return h
}

func (h *harness) def(key string) *Definition {
	h.t.Helper()
	def, err := h.defs.GetByID(h.ctx, SystemID(key))
	require.NoError(h.t, err)
	require.NotNil(h.t, def, key)
	return def
}

func (h *harness) compute(key string, target domain.Target) Result {
	h.t.Helper()
	r, err := h.engine.Compute(h.ctx, h.def(key), target, AllFamiliesEnabled)
	require.NoError(h.t, err)
	return r
}

func (h *harness) portfolio() domain.Portfolio {
	return testingpkg.InsertPortfolio(h.t, h.db, "user-1", "Main")
}

func (h *harness) position(portfolioID, ticker string) domain.Position {
	return testingpkg.InsertPosition(h.t, h.db, portfolioID, ticker)
}

func (h *harness) trade(positionID string, txType domain.TransactionType, qty, price, fees string, day int) domain.Transaction {
	return testingpkg.InsertTransaction(h.t, h.db, positionID, txType, qty, price, fees, day)
}

func (h *harness) store(key string, target domain.Target, amount string) *Value {
	h.t.Helper()
	d := decimal.RequireFromString(amount)
	v, err := h.values.Upsert(h.ctx, h.def(key), ValueInput{
		Date:    testToday,
		Numeric: &d,
		Target:  RefFor(target),
	})
	require.NoError(h.t, err)
	return v
}

func (h *harness) countValues(metricKey string, target domain.Target) int {
	h.t.Helper()
	n, err := h.values.Count(h.ctx, SystemID(metricKey), target)
	require.NoError(h.t, err)
	return n
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// requireNumber asserts r is OK with the given numeric value.
func requireNumber(t *testing.T, want string, r Result) {
	t.Helper()
	require.Equal(t, StatusOK, r.Status, "reason: %s", r.Reason)
	got, ok := r.Decimal()
	require.True(t, ok)
	require.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// familyView is a fixed FeatureView for tests.
type familyView map[string]bool

func (v familyView) Enabled(family string) bool {
	enabled, ok := v[family]
	return !ok || enabled
}

func (h *harness) totalValueRows() int {
	h.t.Helper()
	var n int
	require.NoError(h.t, h.db.QueryRowContext(h.ctx, "SELECT COUNT(*) FROM metric_values").Scan(&n))
	return n
}
