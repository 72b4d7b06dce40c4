// Package performance provides the absolute gain/loss metrics and a
// per-portfolio performance summary.
package performance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/eqtrak/internal/modules/metrics"
)

// PositionGainProvider computes Position Gain/Loss (Absolute):
// current value minus cost basis.
type PositionGainProvider struct{}

// NewPositionGainProvider creates a new position gain provider
func NewPositionGainProvider() *PositionGainProvider {
	return &PositionGainProvider{}
}

// MetricID returns the id of the metric this provider serves
func (p *PositionGainProvider) MetricID() string {
	return metrics.SystemID(metrics.KeyPositionGainAbs)
}

// Compute returns current value minus cost basis. A zero cost basis is NoValue.
func (p *PositionGainProvider) Compute(_ context.Context, in metrics.Inputs) (metrics.Result, error) {
	cost, current, status := metrics.PositionGainInputs(in)
	if !status.OK() {
		return status, nil
	}
	return metrics.Number(current.Sub(cost)), nil
}

// PortfolioReturnProvider computes Portfolio Return (Absolute): total value
// minus the cost of every active position plus cash.
type PortfolioReturnProvider struct{}

// NewPortfolioReturnProvider creates a new portfolio return provider
func NewPortfolioReturnProvider() *PortfolioReturnProvider {
	return &PortfolioReturnProvider{}
}

// MetricID returns the id of the metric this provider serves
func (p *PortfolioReturnProvider) MetricID() string {
	return metrics.SystemID(metrics.KeyPortfolioReturnAbs)
}

// Compute returns total value minus total cost.
func (p *PortfolioReturnProvider) Compute(_ context.Context, in metrics.Inputs) (metrics.Result, error) {
	value, ok := in.Value(metrics.KeyTotalValue).Decimal()
	if !ok {
		return metrics.NoValue(metrics.ReasonMissingInput), nil
	}
	return metrics.Number(value.Sub(metrics.PortfolioCost(in))), nil
}

// TransactionGainProvider computes Transaction Gain/Loss (Absolute) for sales.
type TransactionGainProvider struct{}

// NewTransactionGainProvider creates a new transaction gain provider
func NewTransactionGainProvider() *TransactionGainProvider {
	return &TransactionGainProvider{}
}

// MetricID returns the id of the metric this provider serves
func (p *TransactionGainProvider) MetricID() string {
	return metrics.SystemID(metrics.KeyTxGainAbs)
}

// Compute returns net proceeds minus the prorated cost basis. Non-sales are NotApplicable.
func (p *TransactionGainProvider) Compute(_ context.Context, in metrics.Inputs) (metrics.Result, error) {
	proceeds, prorated, status := metrics.SaleBasis(in)
	if !status.OK() {
		return status, nil
	}
	return metrics.Number(proceeds.Sub(prorated)), nil
}

// FirstTradeSource finds when a portfolio started trading.
type FirstTradeSource interface {
	FirstCompletedTradeDate(ctx context.Context, portfolioID string) (time.Time, bool, error)
}

var (
	one         = decimal.NewFromInt(1)
	hundred     = decimal.NewFromInt(100)
	daysPerYear = decimal.NewFromInt(365)
)

// TWRProvider computes Portfolio TWR. It has no valuation history to chain
// sub-period returns from, so it takes the simple return of the summed
// position cost basis to the summed current value and annualises it over
// the days since the portfolio's first completed trade.
type TWRProvider struct {
	trades FirstTradeSource
}

// NewTWRProvider creates a new time-weighted return provider
func NewTWRProvider(trades FirstTradeSource) *TWRProvider {
	return &TWRProvider{trades: trades}
}

// MetricID returns the id of the metric this provider serves
func (p *TWRProvider) MetricID() string {
	return metrics.SystemID(metrics.KeyPortfolioTWR)
}

// Compute returns (value/cost - 1) x 365/days x 100, or (value/cost - 1) x 100
// when the first trade is not in the past. No trades, or a zero cost or
// value, is NoValue.
func (p *TWRProvider) Compute(ctx context.Context, in metrics.Inputs) (metrics.Result, error) {
	start, ok, err := p.trades.FirstCompletedTradeDate(ctx, in.Target.ID)
	if err != nil {
		return metrics.Result{}, err
	}
	if !ok {
		return metrics.NoValue("portfolio has no completed transactions"), nil
	}

	cost := sum(in.Rollup(metrics.KeyCostBasis))
	value := sum(in.Rollup(metrics.KeyCurrentValue))
	if cost.IsZero() || value.IsZero() {
		return metrics.NoValue(metrics.ReasonZeroDenominator), nil
	}

	ret := value.Div(cost).Sub(one)
	if days := daysBetween(start, in.Today); days > 0 {
		ret = ret.Mul(daysPerYear).Div(decimal.NewFromInt(days))
	}
	return metrics.Number(ret.Mul(hundred)), nil
}

func sum(results []metrics.Result) decimal.Decimal {
	total := decimal.Zero
	for _, r := range results {
		total = total.Add(r.DecimalOrZero())
	}
	return total
}

// daysBetween counts whole calendar days from start to end in UTC.
func daysBetween(start, end time.Time) int64 {
	y, m, d := start.UTC().Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	y, m, d = end.UTC().Date()
	to := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int64(to.Sub(from).Hours()) / 24
}

// Providers returns every provider of this package.
func Providers(trades FirstTradeSource) []metrics.Provider {
	return []metrics.Provider{
		NewPositionGainProvider(),
		NewPortfolioReturnProvider(),
		NewTransactionGainProvider(),
		NewTWRProvider(trades),
	}
}
