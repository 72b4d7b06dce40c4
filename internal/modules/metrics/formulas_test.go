package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/eqtrak/internal/domain"
)

func values(pairs ...interface{}) map[string]Result {
	out := make(map[string]Result, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		key := pairs[i].(string)
		switch v := pairs[i+1].(type) {
		case string:
			out[SystemID(key)] = Number(dec(v))
		case Result:
			out[SystemID(key)] = v
		}
	}
	return out
}

func tx(txType domain.TransactionType, qty, price, fees string) domain.Transaction {
	return domain.Transaction{
		Type:     txType,
		Status:   domain.StatusCompleted,
		Quantity: dec(qty),
		Price:    dec(price),
		Fees:     dec(fees),
	}
}

func TestCheckFormulaTable(t *testing.T) {
	require.NoError(t, checkFormulaTable(AllFormulas, formulaTable))

	missing := make(map[Formula]formulaSpec, len(formulaTable))
	for f, spec := range formulaTable {
		if f != FormulaCostBasis {
			missing[f] = spec
		}
	}
	assert.Error(t, checkFormulaTable(AllFormulas, missing))

	nilFn := make(map[Formula]formulaSpec, len(formulaTable))
	for f, spec := range formulaTable {
		nilFn[f] = spec
	}
	nilFn[FormulaTotalShares] = formulaSpec{}
	assert.Error(t, checkFormulaTable(AllFormulas, nilFn))
}

func TestTotalShares(t *testing.T) {
	in := Inputs{Transactions: []domain.Transaction{
		tx(domain.TransactionBuy, "100", "10", "0"),
		tx(domain.TransactionSell, "30", "12", "0"),
		tx(domain.TransactionDividend, "0", "0", "0"),
	}}
	requireNumber(t, "70", totalShares(in))
	requireNumber(t, "0", totalShares(Inputs{}))
}

func TestAveragePrice(t *testing.T) {
	buys := []domain.Transaction{
		tx(domain.TransactionBuy, "100", "10", "5"),
		tx(domain.TransactionBuy, "50", "20", "5"),
		tx(domain.TransactionSell, "50", "30", "0"),
	}

	requireNumber(t, "13.4", averagePrice(Inputs{
		Values:       values(KeyTotalShares, "100"),
		Transactions: buys,
	}))
	requireNumber(t, "0", averagePrice(Inputs{
		Values:       values(KeyTotalShares, "0"),
		Transactions: buys,
	}))
	requireNumber(t, "0", averagePrice(Inputs{Transactions: buys}))
}

func TestMarketPrice(t *testing.T) {
	price, status := MarketPrice(Inputs{Values: values(KeyMarketPrice, "12")})
	require.True(t, status.OK())
	assert.True(t, dec("12").Equal(price))

	price, status = MarketPrice(Inputs{Quote: &domain.PriceQuote{Price: dec("13")}})
	require.True(t, status.OK())
	assert.True(t, dec("13").Equal(price))

	_, status = MarketPrice(Inputs{QuoteErr: errors.New("rate limited")})
	assert.Equal(t, StatusNoValue, status.Status)
	assert.Equal(t, ReasonExternalUnavailable, status.Reason)

	_, status = MarketPrice(Inputs{})
	assert.Equal(t, ReasonMissingInput, status.Reason)
}

func TestPositionGainPct(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]Result
		want   string
		status Status
	}{
		{"gain rounds to two places", values(KeyCostBasis, "3", KeyCurrentValue, "4"), "33.33", StatusOK},
		{"half rounds down to even", values(KeyCostBasis, "1000", KeyCurrentValue, "1123.45"), "12.34", StatusOK},
		{"half rounds up to even", values(KeyCostBasis, "1000", KeyCurrentValue, "1123.55"), "12.36", StatusOK},
		{"loss", values(KeyCostBasis, "1000", KeyCurrentValue, "800"), "-20", StatusOK},
		{"zero cost", values(KeyCostBasis, "0", KeyCurrentValue, "10"), "", StatusNoValue},
		{"no current value", values(KeyCostBasis, "10", KeyCurrentValue, NoValue(ReasonMissingInput)), "", StatusNoValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := positionGainPct(Inputs{Values: tt.values})
			if tt.status == StatusOK {
				requireNumber(t, tt.want, r)
				return
			}
			assert.Equal(t, tt.status, r.Status)
		})
	}
}

func TestPortfolioFormulas(t *testing.T) {
	in := Inputs{
		Values: values(KeyCashBalance, "500", KeyTotalValue, "2500"),
		Rollups: map[string][]Result{
			SystemID(KeyCurrentValue): {Number(dec("1200")), NoValue(ReasonMissingInput), Number(dec("800"))},
			SystemID(KeyCostBasis):    {Number(dec("1000")), Number(dec("500"))},
		},
	}

	requireNumber(t, "2500", portfolioTotalValue(in))
	assert.True(t, dec("2000").Equal(PortfolioCost(in)))
	requireNumber(t, "25", portfolioReturnPct(in))

	requireNumber(t, "0", portfolioTotalValue(Inputs{}))
	requireNumber(t, "0", portfolioReturnPct(Inputs{Values: values(KeyTotalValue, "0")}))
	assert.Equal(t, StatusNoValue, portfolioReturnPct(Inputs{}).Status)
}

func TestTransactionFormulas(t *testing.T) {
	buy := tx(domain.TransactionBuy, "10", "100", "5")
	sell := tx(domain.TransactionSell, "10", "100", "5")
	free := tx(domain.TransactionBuy, "0", "100", "5")

	requireNumber(t, "1005", transactionImpact(Inputs{Transaction: &buy}))
	requireNumber(t, "-1005", transactionImpact(Inputs{Transaction: &sell}))
	assert.Equal(t, ReasonTargetNotFound, transactionImpact(Inputs{}).Reason)

	requireNumber(t, "0.5", feePercentage(Inputs{Transaction: &buy}))
	assert.Equal(t, ReasonZeroDenominator, feePercentage(Inputs{Transaction: &free}).Reason)
}

func TestTransactionGainPct(t *testing.T) {
	sell := tx(domain.TransactionSell, "25", "18", "0")
	buy := tx(domain.TransactionBuy, "25", "16", "0")
	position := values(KeyTotalShares, "100", KeyCostBasis, "1200")

	requireNumber(t, "50", transactionGainPct(Inputs{Transaction: &sell, Values: position}))

	r := transactionGainPct(Inputs{Transaction: &buy, Values: position})
	assert.Equal(t, StatusNotApplicable, r.Status)

	r = transactionGainPct(Inputs{Transaction: &sell, Values: values(KeyTotalShares, "0", KeyCostBasis, "0")})
	assert.Equal(t, StatusNoValue, r.Status)

	proceeds, prorated, status := SaleBasis(Inputs{Transaction: &sell, Values: position})
	require.True(t, status.OK())
	assert.True(t, dec("450").Equal(proceeds))
	assert.True(t, dec("300").Equal(prorated))
}

func TestTransactionGainPct_SellFeesReduceProceeds(t *testing.T) {
	sell := tx(domain.TransactionSell, "25", "18", "30")
	position := values(KeyTotalShares, "100", KeyCostBasis, "1200")

	proceeds, prorated, status := SaleBasis(Inputs{Transaction: &sell, Values: position})
	require.True(t, status.OK())
	assert.True(t, dec("420").Equal(proceeds))
	assert.True(t, dec("300").Equal(prorated))

	requireNumber(t, "40", transactionGainPct(Inputs{Transaction: &sell, Values: position}))
}

func TestTransactionGainPct_ZeroCostPosition(t *testing.T) {
	sell := tx(domain.TransactionSell, "10", "5", "0")
	position := values(KeyTotalShares, "100", KeyCostBasis, "0")

	requireNumber(t, "0", transactionGainPct(Inputs{Transaction: &sell, Values: position}))
}
