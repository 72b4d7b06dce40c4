package metrics

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/eqtrak/internal/domain"
)

// Formula names a computation rule. The set is closed: every formula has an
// entry in the formula table, checked at init.
type Formula string

const (
	FormulaTotalShares         Formula = "TOTAL_SHARES"
	FormulaAveragePrice        Formula = "AVERAGE_PRICE"
	FormulaCostBasis           Formula = "COST_BASIS"
	FormulaCurrentValue        Formula = "CURRENT_VALUE"
	FormulaPositionGainPct     Formula = "POSITION_GAIN_PCT"
	FormulaPortfolioTotalValue Formula = "PORTFOLIO_TOTAL_VALUE"
	FormulaPortfolioReturnPct  Formula = "PORTFOLIO_RETURN_PCT"
	FormulaTransactionImpact   Formula = "TRANSACTION_IMPACT"
	FormulaFeePercentage       Formula = "FEE_PERCENTAGE"
	FormulaTransactionGainPct  Formula = "TRANSACTION_GAIN_PCT"
	// FormulaExternal delegates to the Provider registered for the metric id.
	FormulaExternal Formula = "EXTERNAL"
)

// AllFormulas lists every formula tag.
var AllFormulas = []Formula{
	FormulaTotalShares,
	FormulaAveragePrice,
	FormulaCostBasis,
	FormulaCurrentValue,
	FormulaPositionGainPct,
	FormulaPortfolioTotalValue,
	FormulaPortfolioReturnPct,
	FormulaTransactionImpact,
	FormulaFeePercentage,
	FormulaTransactionGainPct,
	FormulaExternal,
}

// Valid reports whether f is a known formula.
func (f Formula) Valid() bool {
	_, ok := formulaTable[f]
	return ok
}

// fact is an input a formula reads directly instead of through a dependency.
type fact int

const (
	factPositionTransactions fact = iota + 1
	factTransaction
	factMarketQuote
)

type formulaSpec struct {
	fn    func(in Inputs) Result
	facts []fact
}

var hundred = decimal.NewFromInt(100)

// formulaTable maps each formula to its pure implementation. FormulaExternal
// has no function; the engine dispatches it to a Provider.
var formulaTable = map[Formula]formulaSpec{
	FormulaTotalShares:         {fn: totalShares, facts: []fact{factPositionTransactions}},
	FormulaAveragePrice:        {fn: averagePrice, facts: []fact{factPositionTransactions}},
	FormulaCostBasis:           {fn: costBasis},
	FormulaCurrentValue:        {fn: currentValue, facts: []fact{factMarketQuote}},
	FormulaPositionGainPct:     {fn: positionGainPct},
	FormulaPortfolioTotalValue: {fn: portfolioTotalValue},
	FormulaPortfolioReturnPct:  {fn: portfolioReturnPct},
	FormulaTransactionImpact:   {fn: transactionImpact, facts: []fact{factTransaction}},
	FormulaFeePercentage:       {fn: feePercentage, facts: []fact{factTransaction}},
	FormulaTransactionGainPct:  {fn: transactionGainPct, facts: []fact{factTransaction}},
	FormulaExternal:            {facts: []fact{factTransaction}},
}

func init() {
	if err := checkFormulaTable(AllFormulas, formulaTable); err != nil {
		panic(err)
	}
}

func checkFormulaTable(all []Formula, table map[Formula]formulaSpec) error {
	for _, f := range all {
		spec, ok := table[f]
		if !ok {
			return fmt.Errorf("formula %s has no implementation", f)
		}
		if spec.fn == nil && f != FormulaExternal {
			return fmt.Errorf("formula %s has a nil implementation", f)
		}
	}
	if len(table) != len(all) {
		return fmt.Errorf("formula table has %d entries for %d formulas", len(table), len(all))
	}
	return nil
}

// Inputs is everything a formula may read: resolved dependency results and
// directly loaded facts about the target.
type Inputs struct {
	Target domain.Target
	// Today is the evaluation date (UTC).
	Today time.Time
	// Values holds same-scope and parent-scope dependency results keyed by metric id.
	Values map[string]Result
	// Rollups holds per-position results of position dependencies of a portfolio metric.
	Rollups map[string][]Result
	// Transactions are the completed transactions of a position target.
	Transactions []domain.Transaction
	// Transaction is the transaction of a transaction target, nil if it does not exist.
	Transaction *domain.Transaction
	// Quote is a provider price fetched because no market price was stored.
	Quote *domain.PriceQuote
	// QuoteErr is set when the provider was asked and failed.
	QuoteErr error
}

// Value returns the result of the system dependency key.
func (in Inputs) Value(key string) Result {
	if r, ok := in.Values[SystemID(key)]; ok {
		return r
	}
	return NoValue(ReasonMissingInput)
}

// Rollup returns the per-position results of the system dependency key.
func (in Inputs) Rollup(key string) []Result {
	return in.Rollups[SystemID(key)]
}

func totalShares(in Inputs) Result {
	total := decimal.Zero
	for _, tx := range in.Transactions {
		total = total.Add(tx.SharesImpact())
	}
	return Number(total)
}

func averagePrice(in Inputs) Result {
	shares, ok := in.Value(KeyTotalShares).Decimal()
	if !ok || shares.IsZero() {
		return Number(decimal.Zero)
	}

	cost := decimal.Zero
	quantity := decimal.Zero
	for _, tx := range in.Transactions {
		if tx.Type != domain.TransactionBuy {
			continue
		}
		cost = cost.Add(tx.TotalWithFees())
		quantity = quantity.Add(tx.Quantity)
	}
	if quantity.IsZero() {
		return Number(decimal.Zero)
	}
	return Number(cost.Div(quantity))
}

func costBasis(in Inputs) Result {
	shares, ok := in.Value(KeyTotalShares).Decimal()
	if !ok {
		return NoValue(ReasonMissingInput)
	}
	avg, ok := in.Value(KeyAveragePrice).Decimal()
	if !ok {
		return NoValue(ReasonMissingInput)
	}
	return Number(shares.Mul(avg))
}

// MarketPrice returns the stored market price, falling back to the fetched quote.
func MarketPrice(in Inputs) (decimal.Decimal, Result) {
	if price, ok := in.Value(KeyMarketPrice).Decimal(); ok {
		return price, Result{Status: StatusOK}
	}
	if in.Quote != nil {
		return in.Quote.Price, Result{Status: StatusOK}
	}
	if in.QuoteErr != nil {
		return decimal.Zero, NoValue(ReasonExternalUnavailable)
	}
	return decimal.Zero, NoValue(ReasonMissingInput)
}

func currentValue(in Inputs) Result {
	shares, ok := in.Value(KeyTotalShares).Decimal()
	if !ok {
		return NoValue(ReasonMissingInput)
	}
	price, status := MarketPrice(in)
	if !status.OK() {
		return status
	}
	return Number(shares.Mul(price))
}

// PositionGainInputs returns cost basis and current value of a position, or
// NoValue when either is missing or the cost basis is zero.
func PositionGainInputs(in Inputs) (cost, current decimal.Decimal, status Result) {
	cost, ok := in.Value(KeyCostBasis).Decimal()
	if !ok {
		return cost, current, NoValue(ReasonMissingInput)
	}
	current, ok = in.Value(KeyCurrentValue).Decimal()
	if !ok {
		return cost, current, NoValue(ReasonMissingInput)
	}
	if cost.IsZero() {
		return cost, current, NoValue(ReasonZeroDenominator)
	}
	return cost, current, Result{Status: StatusOK}
}

func positionGainPct(in Inputs) Result {
	cost, current, status := PositionGainInputs(in)
	if !status.OK() {
		return status
	}
	return Number(current.Sub(cost).Div(cost).Mul(hundred).RoundBank(2))
}

func portfolioTotalValue(in Inputs) Result {
	total := in.Value(KeyCashBalance).DecimalOrZero()
	for _, r := range in.Rollup(KeyCurrentValue) {
		total = total.Add(r.DecimalOrZero())
	}
	return Number(total)
}

// PortfolioCost is the total cost of a portfolio: the cost basis of every
// active position (missing counts as zero) plus cash.
func PortfolioCost(in Inputs) decimal.Decimal {
	cost := in.Value(KeyCashBalance).DecimalOrZero()
	for _, r := range in.Rollup(KeyCostBasis) {
		cost = cost.Add(r.DecimalOrZero())
	}
	return cost
}

func portfolioReturnPct(in Inputs) Result {
	value, ok := in.Value(KeyTotalValue).Decimal()
	if !ok {
		return NoValue(ReasonMissingInput)
	}
	cost := PortfolioCost(in)
	if cost.IsZero() {
		return Number(decimal.Zero)
	}
	return Number(value.Sub(cost).Div(cost).Mul(hundred))
}

func transactionImpact(in Inputs) Result {
	if in.Transaction == nil {
		return NoValue(ReasonTargetNotFound)
	}
	return Number(in.Transaction.Impact())
}

func feePercentage(in Inputs) Result {
	if in.Transaction == nil {
		return NoValue(ReasonTargetNotFound)
	}
	notional := in.Transaction.TotalAmount()
	if notional.IsZero() {
		return NoValue(ReasonZeroDenominator)
	}
	return Number(in.Transaction.Fees.Div(notional).Mul(hundred))
}

// SaleBasis returns the net proceeds of a SELL and the cost basis of the
// position prorated to the quantity sold. Non-SELL transactions are
// NotApplicable; zero or missing position shares are NoValue.
func SaleBasis(in Inputs) (proceeds, prorated decimal.Decimal, status Result) {
	tx := in.Transaction
	if tx == nil {
		return proceeds, prorated, NoValue(ReasonTargetNotFound)
	}
	if tx.Type != domain.TransactionSell {
		return proceeds, prorated, NotApplicable("only SELL transactions realise a gain")
	}
	shares, ok := in.Value(KeyTotalShares).Decimal()
	if !ok || shares.IsZero() {
		return proceeds, prorated, NoValue(ReasonMissingInput)
	}
	cost, ok := in.Value(KeyCostBasis).Decimal()
	if !ok {
		return proceeds, prorated, NoValue(ReasonMissingInput)
	}
	prorated = cost.Mul(tx.Quantity).Div(shares)
	return tx.Proceeds(), prorated, Result{Status: StatusOK}
}

func transactionGainPct(in Inputs) Result {
	proceeds, prorated, status := SaleBasis(in)
	if !status.OK() {
		return status
	}
	// A sale out of a zero-cost position reports no percentage change.
	if !prorated.IsPositive() {
		return Number(decimal.Zero)
	}
	return Number(proceeds.Sub(prorated).Div(prorated).Mul(hundred))
}
