// Package ledger records the append-only transaction history of positions.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/eqtrak/internal/domain"
)

const dateLayout = "2006-01-02"

var (
	// ErrPositionNotFound is returned when recording against a missing position.
	ErrPositionNotFound = errors.New("position not found")
	// ErrTransactionNotFound is returned when a transaction id does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// NewTransaction is the input of Record.
type NewTransaction struct {
	Date       time.Time
	PositionID string
	Type       domain.TransactionType
	Status     domain.TransactionStatus // defaults to COMPLETED
	Currency   string
	Notes      string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Fees       decimal.Decimal
}

// Validate checks the ledger-level rules of a new transaction.
func (n NewTransaction) Validate() error {
	if strings.TrimSpace(n.PositionID) == "" {
		return fmt.Errorf("position_id is required")
	}
	switch n.Type {
	case domain.TransactionBuy, domain.TransactionSell, domain.TransactionDividend,
		domain.TransactionSplit, domain.TransactionMerger:
	default:
		return fmt.Errorf("unknown transaction type %q", n.Type)
	}
	switch n.Status {
	case "", domain.StatusPending, domain.StatusCompleted, domain.StatusCancelled, domain.StatusFailed:
	default:
		return fmt.Errorf("unknown transaction status %q", n.Status)
	}
	if !n.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive")
	}
	if n.Price.IsNegative() {
		return fmt.Errorf("price must not be negative")
	}
	if n.Fees.IsNegative() {
		return fmt.Errorf("fees must not be negative")
	}
	if n.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	return nil
}

// Repository handles transaction database operations.
// It implements domain.TransactionLedger.
type Repository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

var _ domain.TransactionLedger = (*Repository)(nil)

// Record appends a transaction to a position's ledger.
func (r *Repository) Record(ctx context.Context, in NewTransaction) (*domain.Transaction, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM positions WHERE id = ?`, in.PositionID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check position: %w", err)
	}
	if exists == 0 {
		return nil, ErrPositionNotFound
	}

	status := in.Status
	if status == "" {
		status = domain.StatusCompleted
	}
	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = "USD"
	}

	tx := &domain.Transaction{
		ID:         uuid.NewString(),
		PositionID: in.PositionID,
		Type:       in.Type,
		Status:     status,
		Currency:   currency,
		Notes:      in.Notes,
		Quantity:   in.Quantity,
		Price:      in.Price,
		Fees:       in.Fees,
		Date:       truncateDay(in.Date),
		CreatedAt:  r.now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, position_id, transaction_type, status, quantity, price, fees, currency, trade_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.PositionID, string(tx.Type), string(tx.Status),
		tx.Quantity.String(), tx.Price.String(), tx.Fees.String(), tx.Currency,
		tx.Date.Format(dateLayout), tx.Notes, tx.CreatedAt.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	r.log.Info().
		Str("transaction_id", tx.ID).
		Str("position_id", tx.PositionID).
		Str("type", string(tx.Type)).
		Str("quantity", tx.Quantity.String()).
		Msg("Transaction recorded")
	return tx, nil
}

// SetStatus moves a transaction to a new settlement state.
func (r *Repository) SetStatus(ctx context.Context, id string, status domain.TransactionStatus) error {
	switch status {
	case domain.StatusPending, domain.StatusCompleted, domain.StatusCancelled, domain.StatusFailed:
	default:
		return fmt.Errorf("unknown transaction status %q", status)
	}
	result, err := r.db.ExecContext(ctx, `UPDATE transactions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// GetTransaction returns a transaction by id, or nil when it does not exist.
func (r *Repository) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// CompletedTransactions returns COMPLETED transactions of a position ordered
// by trade date, then by recording time.
func (r *Repository) CompletedTransactions(ctx context.Context, positionID string) ([]domain.Transaction, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE position_id = ? AND status = ?
		ORDER BY trade_date, created_at, id`, positionID, string(domain.StatusCompleted))
}

// FirstCompletedTradeDate returns the date of the earliest COMPLETED
// transaction across the positions of a portfolio. The bool is false when
// the portfolio has none.
func (r *Repository) FirstCompletedTradeDate(ctx context.Context, portfolioID string) (time.Time, bool, error) {
	var first sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT MIN(t.trade_date)
		FROM transactions t
		JOIN positions p ON p.id = t.position_id
		WHERE p.portfolio_id = ? AND t.status = ?
	`, portfolioID, string(domain.StatusCompleted)).Scan(&first)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to find first trade of portfolio %s: %w", portfolioID, err)
	}
	if !first.Valid {
		return time.Time{}, false, nil
	}

	date, err := time.Parse(dateLayout, first.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid trade date %q: %w", first.String, err)
	}
	return date, true, nil
}

// ListForPosition returns every transaction of a position regardless of status, newest first.
func (r *Repository) ListForPosition(ctx context.Context, positionID string) ([]domain.Transaction, error) {
	return r.query(ctx, `SELECT `+transactionColumns+` FROM transactions
		WHERE position_id = ?
		ORDER BY trade_date DESC, created_at DESC, id`, positionID)
}

const transactionColumns = `id, position_id, transaction_type, status, quantity, price, fees, currency, trade_date, COALESCE(notes, ''), created_at`

func (r *Repository) query(ctx context.Context, query string, args ...interface{}) ([]domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return txs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx                    domain.Transaction
		txType, status        string
		quantity, price, fees string
		tradeDate             string
		createdAt             int64
	)
	err := row.Scan(&tx.ID, &tx.PositionID, &txType, &status, &quantity, &price, &fees,
		&tx.Currency, &tradeDate, &tx.Notes, &createdAt)
	if err != nil {
		return nil, err
	}

	tx.Type = domain.TransactionType(txType)
	tx.Status = domain.TransactionStatus(status)
	if tx.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	if tx.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if tx.Fees, err = decimal.NewFromString(fees); err != nil {
		return nil, fmt.Errorf("invalid fees %q: %w", fees, err)
	}
	if tx.Date, err = time.Parse(dateLayout, tradeDate); err != nil {
		return nil, fmt.Errorf("invalid trade date %q: %w", tradeDate, err)
	}
	tx.CreatedAt = unixAny(createdAt)
	return &tx, nil
}

// unixAny accepts both second and nanosecond timestamps.
func unixAny(v int64) time.Time {
	if v > 1e12 {
		return time.Unix(0, v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
