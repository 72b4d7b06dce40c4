package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/eqtrak/internal/database"
	"github.com/aristath/eqtrak/internal/domain"
	testingpkg "github.com/aristath/eqtrak/internal/testing"
)

func setup(t *testing.T) (*Repository, domain.Position) {
	t.Helper()
	db, _ := testingpkg.NewTestDB(t, database.NameMain)
	pf := testingpkg.InsertPortfolio(t, db.Conn(), "user-1", "Main")
	pos := testingpkg.InsertPosition(t, db.Conn(), pf.ID, "MSFT")
	return NewRepository(db.Conn(), zerolog.Nop()), pos
}

func newTx(positionID string, txType domain.TransactionType, qty, price string, day int) NewTransaction {
	return NewTransaction{
		PositionID: positionID,
		Type:       txType,
		Quantity:   decimal.RequireFromString(qty),
		Price:      decimal.RequireFromString(price),
		Date:       time.Date(2024, 1, day, 15, 30, 0, 0, time.UTC),
	}
}

func TestRecord_DefaultsAndRoundTrip(t *testing.T) {
	repo, pos := setup(t)
	ctx := context.Background()

	in := newTx(pos.ID, domain.TransactionBuy, "10", "100.25", 2)
	in.Fees = decimal.RequireFromString("1.5")
	in.Currency = "eur"

	tx, err := repo.Record(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, tx.Status)
	assert.Equal(t, "EUR", tx.Currency)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), tx.Date)

	got, err := repo.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, got.Price.Equal(decimal.RequireFromString("100.25")))
	assert.True(t, got.Fees.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, tx.Date, got.Date)
}

func TestRecord_Validation(t *testing.T) {
	repo, pos := setup(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*NewTransaction)
	}{
		{"zero quantity", func(n *NewTransaction) { n.Quantity = decimal.Zero }},
		{"negative price", func(n *NewTransaction) { n.Price = decimal.NewFromInt(-1) }},
		{"negative fees", func(n *NewTransaction) { n.Fees = decimal.NewFromInt(-1) }},
		{"unknown type", func(n *NewTransaction) { n.Type = "GIFT" }},
		{"unknown status", func(n *NewTransaction) { n.Status = "LOST" }},
		{"missing date", func(n *NewTransaction) { n.Date = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newTx(pos.ID, domain.TransactionBuy, "1", "1", 1)
			tt.mutate(&in)
			_, err := repo.Record(ctx, in)
			assert.Error(t, err)
		})
	}

	_, err := repo.Record(ctx, newTx("missing", domain.TransactionBuy, "1", "1", 1))
	assert.ErrorIs(t, err, ErrPositionNotFound)
}

func TestCompletedTransactions_FiltersAndOrders(t *testing.T) {
	repo, pos := setup(t)
	ctx := context.Background()

	sell, err := repo.Record(ctx, newTx(pos.ID, domain.TransactionSell, "4", "150", 10))
	require.NoError(t, err)
	buy, err := repo.Record(ctx, newTx(pos.ID, domain.TransactionBuy, "10", "100", 1))
	require.NoError(t, err)

	pending := newTx(pos.ID, domain.TransactionBuy, "5", "90", 5)
	pending.Status = domain.StatusPending
	pend, err := repo.Record(ctx, pending)
	require.NoError(t, err)

	txs, err := repo.CompletedTransactions(ctx, pos.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, buy.ID, txs[0].ID)
	assert.Equal(t, sell.ID, txs[1].ID)

	require.NoError(t, repo.SetStatus(ctx, pend.ID, domain.StatusCompleted))
	txs, err = repo.CompletedTransactions(ctx, pos.ID)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, pend.ID, txs[1].ID)

	all, err := repo.ListForPosition(ctx, pos.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, sell.ID, all[0].ID)
}

func TestSetStatus_Errors(t *testing.T) {
	repo, _ := setup(t)

	assert.ErrorIs(t, repo.SetStatus(context.Background(), "nope", domain.StatusCancelled), ErrTransactionNotFound)
	assert.Error(t, repo.SetStatus(context.Background(), "nope", "DONE"))
}

func TestGetTransaction_Missing(t *testing.T) {
	repo, _ := setup(t)

	tx, err := repo.GetTransaction(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, tx)
}

func TestFirstCompletedTradeDate(t *testing.T) {
	repo, pos := setup(t)
	ctx := context.Background()

	_, found, err := repo.FirstCompletedTradeDate(ctx, pos.PortfolioID)
	require.NoError(t, err)
	assert.False(t, found)

	pending := newTx(pos.ID, domain.TransactionBuy, "5", "90", 1)
	pending.Status = domain.StatusPending
	_, err = repo.Record(ctx, pending)
	require.NoError(t, err)
	_, err = repo.Record(ctx, newTx(pos.ID, domain.TransactionSell, "2", "120", 7))
	require.NoError(t, err)
	_, err = repo.Record(ctx, newTx(pos.ID, domain.TransactionBuy, "10", "100", 3))
	require.NoError(t, err)

	first, found, err := repo.FirstCompletedTradeDate(ctx, pos.PortfolioID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), first)

	_, found, err = repo.FirstCompletedTradeDate(ctx, "other-portfolio")
	require.NoError(t, err)
	assert.False(t, found)
}
