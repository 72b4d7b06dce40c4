package metrics

import (
	"github.com/google/uuid"

	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/modules/features"
)

// FamilyPerformance is the feature family of gain/loss and return metrics.
const FamilyPerformance = features.FamilyPerformance

// System metric keys. IDs are derived from them, so they never change.
const (
	KeyTotalShares        = "total_shares"
	KeyAveragePrice       = "average_purchase_price"
	KeyCostBasis          = "cost_basis"
	KeyMarketPrice        = "market_price"
	KeyCurrentValue       = "current_value"
	KeyPositionGainPct    = "position_gain_loss_pct"
	KeyPositionGainAbs    = "position_gain_loss_abs"
	KeyPositionNotes      = "position_notes"
	KeyCashBalance        = "cash_balance"
	KeyTotalValue         = "total_portfolio_value"
	KeyPortfolioReturnPct = "portfolio_return_pct"
	KeyPortfolioReturnAbs = "portfolio_return_abs"
	KeyPortfolioTWR       = "portfolio_twr"
	KeyTransactionImpact  = "transaction_impact"
	KeyFeePercentage      = "fee_percentage"
	KeyTxGainPct          = "transaction_gain_loss_pct"
	KeyTxGainAbs          = "transaction_gain_loss_abs"
)

var systemNamespace = uuid.MustParse("5b0f3c52-8f5e-4b7e-9a55-2f1f4a7f8c10")

// SystemID returns the stable id of a system metric key.
func SystemID(key string) string {
	return uuid.NewSHA1(systemNamespace, []byte("metric:"+key)).String()
}

type catalogEntry struct {
	key          string
	name         string
	description  string
	scope        domain.ScopeType
	kind         ValueKind
	formula      Formula
	family       string
	deps         []string
	writeThrough bool
}

var systemCatalog = []catalogEntry{
	// Position
	{key: KeyTotalShares, name: "Total Shares", scope: domain.ScopePosition, kind: KindShares,
		formula:     FormulaTotalShares,
		description: "Signed sum of completed buy and sell quantities"},
	{key: KeyAveragePrice, name: "Average Purchase Price", scope: domain.ScopePosition, kind: KindPrice,
		formula: FormulaAveragePrice, deps: []string{KeyTotalShares},
		description: "Buy cost including fees divided by shares bought"},
	{key: KeyCostBasis, name: "Cost Basis", scope: domain.ScopePosition, kind: KindCurrency,
		formula: FormulaCostBasis, deps: []string{KeyTotalShares, KeyAveragePrice},
		description: "Shares held times average purchase price"},
	{key: KeyMarketPrice, name: "Market Price", scope: domain.ScopePosition, kind: KindPrice,
		description: "Latest market price of the position's ticker"},
	{key: KeyCurrentValue, name: "Current Value", scope: domain.ScopePosition, kind: KindCurrency,
		formula: FormulaCurrentValue, deps: []string{KeyTotalShares, KeyMarketPrice},
		description: "Shares held times market price"},
	{key: KeyPositionGainPct, name: "Position Gain/Loss (%)", scope: domain.ScopePosition, kind: KindPercentage,
		formula: FormulaPositionGainPct, family: FamilyPerformance, writeThrough: true,
		deps:        []string{KeyCostBasis, KeyCurrentValue},
		description: "Unrealised gain or loss relative to cost basis"},
	{key: KeyPositionGainAbs, name: "Position Gain/Loss (Absolute)", scope: domain.ScopePosition, kind: KindCurrency,
		formula: FormulaExternal, family: FamilyPerformance,
		deps:        []string{KeyCostBasis, KeyCurrentValue},
		description: "Current value minus cost basis"},
	{key: KeyPositionNotes, name: "Notes", scope: domain.ScopePosition, kind: KindMemo,
		description: "Free-text notes about the position"},

	// Portfolio
	{key: KeyCashBalance, name: "Cash Balance", scope: domain.ScopePortfolio, kind: KindCurrency,
		description: "Uninvested cash held in the portfolio"},
	{key: KeyTotalValue, name: "Total Portfolio Value", scope: domain.ScopePortfolio, kind: KindCurrency,
		formula: FormulaPortfolioTotalValue, deps: []string{KeyCashBalance, KeyCurrentValue},
		description: "Cash plus the current value of every active position"},
	{key: KeyPortfolioReturnPct, name: "Portfolio Return (%)", scope: domain.ScopePortfolio, kind: KindPercentage,
		formula: FormulaPortfolioReturnPct, family: FamilyPerformance, writeThrough: true,
		deps:        []string{KeyTotalValue, KeyCashBalance, KeyCostBasis},
		description: "Total value relative to total cost including cash"},
	{key: KeyPortfolioReturnAbs, name: "Portfolio Return (Absolute)", scope: domain.ScopePortfolio, kind: KindCurrency,
		formula: FormulaExternal, family: FamilyPerformance,
		deps:        []string{KeyTotalValue, KeyCashBalance, KeyCostBasis},
		description: "Total value minus total cost including cash"},
	{key: KeyPortfolioTWR, name: "Portfolio TWR", scope: domain.ScopePortfolio, kind: KindPercentage,
		formula: FormulaExternal, family: FamilyPerformance,
		deps:        []string{KeyCostBasis, KeyCurrentValue},
		description: "Return of cost basis to current value, annualised over the days since the first trade"},

	// Transaction
	{key: KeyTransactionImpact, name: "Transaction Impact", scope: domain.ScopeTransaction, kind: KindCurrency,
		formula:     FormulaTransactionImpact,
		description: "Signed cash footprint of the transaction including fees"},
	{key: KeyFeePercentage, name: "Fee Percentage", scope: domain.ScopeTransaction, kind: KindPercentage,
		formula:     FormulaFeePercentage,
		description: "Fees relative to the traded amount"},
	{key: KeyTxGainPct, name: "Transaction Gain/Loss (%)", scope: domain.ScopeTransaction, kind: KindPercentage,
		formula: FormulaTransactionGainPct, family: FamilyPerformance, writeThrough: true,
		deps:        []string{KeyCostBasis, KeyTotalShares},
		description: "Realised gain of a sale against the prorated cost basis"},
	{key: KeyTxGainAbs, name: "Transaction Gain/Loss (Absolute)", scope: domain.ScopeTransaction, kind: KindCurrency,
		formula: FormulaExternal, family: FamilyPerformance,
		deps:        []string{KeyCostBasis, KeyTotalShares},
		description: "Sale proceeds minus the prorated cost basis"},
}

// SystemCatalog returns the fixed set of system definitions in display order.
func SystemCatalog() []Definition {
	defs := make([]Definition, 0, len(systemCatalog))
	for i, e := range systemCatalog {
		deps := make([]string, 0, len(e.deps))
		for _, key := range e.deps {
			deps = append(deps, SystemID(key))
		}
		defs = append(defs, Definition{
			ID:           SystemID(e.key),
			Name:         e.name,
			Description:  e.description,
			Scope:        e.scope,
			Kind:         e.kind,
			Formula:      e.formula,
			Family:       e.family,
			Dependencies: deps,
			DisplayOrder: (i + 1) * 10,
			IsSystem:     true,
			IsActive:     true,
			IsDerived:    e.formula != "",
			WriteThrough: e.writeThrough,
		})
	}
	return defs
}
