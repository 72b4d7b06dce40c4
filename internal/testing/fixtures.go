package testing

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aristath/eqtrak/internal/domain"
)

// FixtureTime is the fixed clock used by fixtures.
var FixtureTime = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

// InsertPortfolio writes a portfolio row directly and returns it.
func InsertPortfolio(t *testing.T, db *sql.DB, userID, name string) domain.Portfolio {
	t.Helper()

	p := domain.Portfolio{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Currency:  "USD",
		IsActive:  true,
		CreatedAt: FixtureTime,
		UpdatedAt: FixtureTime,
	}
	_, err := db.Exec(`
		INSERT INTO portfolios (id, user_id, name, description, currency, is_active, created_at, updated_at)
		VALUES (?, ?, ?, '', ?, 1, ?, ?)
	`, p.ID, p.UserID, p.Name, p.Currency, FixtureTime.Unix(), FixtureTime.Unix())
	if err != nil {
		t.Fatalf("Failed to insert portfolio fixture: %v", err)
	}
	return p
}

// InsertPosition writes an active position row directly and returns it.
func InsertPosition(t *testing.T, db *sql.DB, portfolioID, ticker string) domain.Position {
	t.Helper()

	p := domain.Position{
		ID:           uuid.NewString(),
		PortfolioID:  portfolioID,
		Ticker:       ticker,
		PositionType: domain.PositionTypeStock,
		IsActive:     true,
		CreatedAt:    FixtureTime,
		UpdatedAt:    FixtureTime,
	}
	_, err := db.Exec(`
		INSERT INTO positions (id, portfolio_id, ticker, position_type, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`, p.ID, p.PortfolioID, p.Ticker, string(p.PositionType), FixtureTime.Unix(), FixtureTime.Unix())
	if err != nil {
		t.Fatalf("Failed to insert position fixture: %v", err)
	}
	return p
}

// InsertTransaction writes a COMPLETED transaction dated daysAfter days after FixtureTime.
func InsertTransaction(t *testing.T, db *sql.DB, positionID string, txType domain.TransactionType, qty, price, fees string, daysAfter int) domain.Transaction {
	t.Helper()

	tx := domain.Transaction{
		ID:         uuid.NewString(),
		PositionID: positionID,
		Type:       txType,
		Status:     domain.StatusCompleted,
		Currency:   "USD",
		Quantity:   decimal.RequireFromString(qty),
		Price:      decimal.RequireFromString(price),
		Fees:       decimal.RequireFromString(fees),
		Date:       FixtureTime.AddDate(0, 0, daysAfter),
		CreatedAt:  FixtureTime,
	}
	_, err := db.Exec(`
		INSERT INTO transactions (id, position_id, transaction_type, status, quantity, price, fees, currency, trade_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?)
	`, tx.ID, tx.PositionID, string(tx.Type), string(tx.Status),
		tx.Quantity.String(), tx.Price.String(), tx.Fees.String(), tx.Currency,
		tx.Date.Format("2006-01-02"), FixtureTime.Unix())
	if err != nil {
		t.Fatalf("Failed to insert transaction fixture: %v", err)
	}
	return tx
}
