// Package portfolio stores portfolios and the positions they hold.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/domain"
)

// Repository handles portfolio and position database operations.
// It implements domain.EntityResolver for the metric engine.
type Repository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

var _ domain.EntityResolver = (*Repository)(nil)

// CreatePortfolio inserts a new portfolio for userID.
func (r *Repository) CreatePortfolio(ctx context.Context, userID, name, description, currency string) (*domain.Portfolio, error) {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return nil, fmt.Errorf("portfolio requires user and name")
	}
	if currency == "" {
		currency = "USD"
	}

	now := r.now().UTC().Truncate(time.Second)
	p := &domain.Portfolio{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: description,
		Currency:    strings.ToUpper(currency),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO portfolios (id, user_id, name, description, currency, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`, p.ID, p.UserID, p.Name, p.Description, p.Currency, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert portfolio: %w", err)
	}

	r.log.Info().Str("portfolio_id", p.ID).Str("user_id", userID).Msg("Portfolio created")
	return p, nil
}

// GetPortfolio returns a portfolio by id, or nil when it does not exist.
func (r *Repository) GetPortfolio(ctx context.Context, id string) (*domain.Portfolio, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, COALESCE(description, ''), currency, is_active, created_at, updated_at
		FROM portfolios WHERE id = ?
	`, id)

	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return p, nil
}

// ListPortfolios returns the portfolios owned by userID, oldest first.
func (r *Repository) ListPortfolios(ctx context.Context, userID string) ([]domain.Portfolio, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, COALESCE(description, ''), currency, is_active, created_at, updated_at
		FROM portfolios WHERE user_id = ?
		ORDER BY created_at, name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return portfolios, nil
}

// DeletePortfolio removes a portfolio. Positions, transactions and metric
// values cascade with it.
func (r *Repository) DeletePortfolio(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM portfolios WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete portfolio: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	r.log.Info().Str("portfolio_id", id).Msg("Portfolio deleted")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(row rowScanner) (*domain.Portfolio, error) {
	var (
		p                  domain.Portfolio
		isActive           int
		createdAt, updated int64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Currency, &isActive, &createdAt, &updated); err != nil {
		return nil, err
	}
	p.IsActive = isActive != 0
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}
