package performance

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/eqtrak/internal/config"
	"github.com/aristath/eqtrak/internal/database"
	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/events"
	"github.com/aristath/eqtrak/internal/modules/features"
	"github.com/aristath/eqtrak/internal/modules/ledger"
	"github.com/aristath/eqtrak/internal/modules/metrics"
	"github.com/aristath/eqtrak/internal/modules/portfolio"
	testingpkg "github.com/aristath/eqtrak/internal/testing"
)

type stack struct {
	ctx     context.Context
	service *Service
	metrics *metrics.Service
	gate    *features.Gate
	db      *sql.DB
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db, _ := testingpkg.NewTestDB(t, database.NameMain)
	conn := db.Conn()
	log := zerolog.Nop()
	bus := events.NewBus(log)
	ctx := context.Background()

	portfolios := portfolio.NewRepository(conn, log)
	txs := ledger.NewRepository(conn, log)
	defs := metrics.NewDefinitionRepository(conn, log)
	values := metrics.NewValueRepository(conn, bus, log)
	registry := metrics.NewRegistry(defs, values, log)
	_, err := registry.Bootstrap(ctx)
	require.NoError(t, err)

	engine := metrics.NewEngine(metrics.EngineConfig{
		Definitions: defs,
		Values:      values,
		Entities:    portfolios,
		Ledger:      txs,
		Clock:       func() time.Time { return testingpkg.FixtureTime },
	}, Providers(txs), log)
	gate := features.NewGate(&config.Config{PerformanceEnabled: true}, features.NewSettingsRepository(conn, log), bus, log)
	svc := metrics.NewService(registry, values, engine, gate, bus, log)

	return &stack{
		ctx:     ctx,
		service: NewService(svc, portfolios, log),
		metrics: svc,
		gate:    gate,
		db:      conn,
	}
}

func (s *stack) record(t *testing.T, key string, target domain.Target, amount string) {
	t.Helper()
	d := decimal.RequireFromString(amount)
	_, err := s.metrics.RecordValue(s.ctx, metrics.SystemID(key), "user-1", metrics.ValueInput{
		Date:    testingpkg.FixtureTime,
		Numeric: &d,
		Target:  metrics.RefFor(target),
	})
	require.NoError(t, err)
}

func TestSummarize_PortfolioWithGainsAndCash(t *testing.T) {
	s := newStack(t)

	pf := testingpkg.InsertPortfolio(t, s.db, "user-1", "Main")
	aapl := testingpkg.InsertPosition(t, s.db, pf.ID, "AAPL")
	msft := testingpkg.InsertPosition(t, s.db, pf.ID, "MSFT")

	testingpkg.InsertTransaction(t, s.db, aapl.ID, domain.TransactionBuy, "10", "100", "0", 0)
	testingpkg.InsertTransaction(t, s.db, msft.ID, domain.TransactionBuy, "5", "200", "0", 1)
	s.record(t, metrics.KeyMarketPrice, domain.PositionTarget(aapl.ID), "120")
	s.record(t, metrics.KeyMarketPrice, domain.PositionTarget(msft.ID), "180")
	s.record(t, metrics.KeyCashBalance, domain.PortfolioTarget(pf.ID), "500")

	summary, err := s.service.Summarize(s.ctx, pf.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Main", summary.Name)

	// 500 cash + 1200 + 900 against 500 + 1000 + 1000 of cost.
	requireAmount(t, "2600", summary.TotalValue)
	requireAmount(t, "100", summary.ReturnAbs)
	requireAmount(t, "4", summary.ReturnPct)
	// First trade is on the evaluation date: 2100 value on 2000 cost, not annualised.
	requireAmount(t, "5", summary.TWR)

	require.Len(t, summary.Positions, 2)
	byTicker := map[string]PositionSummary{}
	for _, p := range summary.Positions {
		byTicker[p.Ticker] = p
	}
	requireAmount(t, "200", byTicker["AAPL"].GainAbs)
	requireAmount(t, "20", byTicker["AAPL"].GainPct)
	requireAmount(t, "-100", byTicker["MSFT"].GainAbs)
	requireAmount(t, "-10", byTicker["MSFT"].GainPct)
}

func TestSummarize_SuppressedWhenPerformanceOff(t *testing.T) {
	s := newStack(t)
	pf := testingpkg.InsertPortfolio(t, s.db, "user-1", "Main")
	testingpkg.InsertPosition(t, s.db, pf.ID, "AAPL")

	require.NoError(t, s.gate.SetUserEnabled(s.ctx, features.FamilyPerformance, "user-1", false))

	summary, err := s.service.Summarize(s.ctx, pf.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, metrics.StatusSuppressed, summary.ReturnAbs.Status)
	assert.Equal(t, metrics.StatusSuppressed, summary.TWR.Status)
	assert.Equal(t, metrics.StatusSuppressed, summary.Positions[0].GainAbs.Status)
	assert.Equal(t, metrics.StatusOK, summary.TotalValue.Status)
}

type mockCalculator struct {
	mock.Mock
}

func (m *mockCalculator) ComputeValue(ctx context.Context, metricID string, target domain.Target, userID string) (metrics.Result, error) {
	args := m.Called(ctx, metricID, target, userID)
	return args.Get(0).(metrics.Result), args.Error(1)
}

type stubEntities struct {
	domain.EntityResolver
	portfolio *domain.Portfolio
	positions []domain.Position
}

func (s stubEntities) GetPortfolio(context.Context, string) (*domain.Portfolio, error) {
	return s.portfolio, nil
}

func (s stubEntities) ActivePositions(context.Context, string) ([]domain.Position, error) {
	return s.positions, nil
}

func TestSummarize_MissingPortfolio(t *testing.T) {
	svc := NewService(&mockCalculator{}, stubEntities{}, zerolog.Nop())

	_, err := svc.Summarize(context.Background(), "nope", "user-1")
	assert.ErrorIs(t, err, ErrPortfolioNotFound)
}

func TestSummarize_OtherUsersPortfolioIsNotFound(t *testing.T) {
	calc := &mockCalculator{}
	svc := NewService(calc, stubEntities{portfolio: &domain.Portfolio{ID: "pf", UserID: "user-2"}}, zerolog.Nop())

	_, err := svc.Summarize(context.Background(), "pf", "user-1")
	assert.ErrorIs(t, err, ErrPortfolioNotFound)
	calc.AssertNotCalled(t, "ComputeValue", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSummarize_PropagatesComputeErrors(t *testing.T) {
	calc := &mockCalculator{}
	calc.On("ComputeValue", mock.Anything, mock.Anything, mock.Anything, "user-1").
		Return(metrics.Result{}, errors.New("disk on fire"))

	svc := NewService(calc, stubEntities{portfolio: &domain.Portfolio{ID: "pf", UserID: "user-1"}}, zerolog.Nop())
	_, err := svc.Summarize(context.Background(), "pf", "user-1")
	assert.EqualError(t, err, "disk on fire")
}

func TestSummarize_AsksForEveryMetric(t *testing.T) {
	calc := &mockCalculator{}
	calc.On("ComputeValue", mock.Anything, mock.Anything, mock.Anything, "user-1").
		Return(metrics.Number(decimal.NewFromInt(1)), nil)

	svc := NewService(calc, stubEntities{
		portfolio: &domain.Portfolio{ID: "pf", UserID: "user-1", Name: "Main"},
		positions: []domain.Position{{ID: "p1", Ticker: "AAPL"}, {ID: "p2", Ticker: "MSFT"}},
	}, zerolog.Nop())

	summary, err := svc.Summarize(context.Background(), "pf", "user-1")
	require.NoError(t, err)
	assert.Len(t, summary.Positions, 2)
	calc.AssertNumberOfCalls(t, "ComputeValue", 4+2*4)
	calc.AssertCalled(t, "ComputeValue", mock.Anything, metrics.SystemID(metrics.KeyPortfolioTWR),
		domain.PortfolioTarget("pf"), "user-1")
	calc.AssertCalled(t, "ComputeValue", mock.Anything, metrics.SystemID(metrics.KeyPositionGainAbs),
		domain.PositionTarget("p2"), "user-1")
}
