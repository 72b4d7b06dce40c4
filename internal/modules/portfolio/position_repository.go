package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/eqtrak/internal/domain"
)

const positionColumns = `id, portfolio_id, ticker, position_type, is_active, created_at, updated_at`

// CreatePosition opens a new active position in portfolioID.
func (r *Repository) CreatePosition(ctx context.Context, portfolioID, ticker string, positionType domain.PositionType) (*domain.Position, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("position requires a ticker")
	}
	switch positionType {
	case "":
		positionType = domain.PositionTypeStock
	case domain.PositionTypeStock, domain.PositionTypeETF, domain.PositionTypeCrypto:
	default:
		return nil, fmt.Errorf("unknown position type %q", positionType)
	}

	parent, err := r.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, ErrNotFound
	}

	now := r.now().UTC().Truncate(time.Second)
	p := &domain.Position{
		ID:           uuid.NewString(),
		PortfolioID:  portfolioID,
		Ticker:       ticker,
		PositionType: positionType,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO positions (id, portfolio_id, ticker, position_type, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`, p.ID, p.PortfolioID, p.Ticker, string(p.PositionType), now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert position: %w", err)
	}

	r.log.Info().
		Str("position_id", p.ID).
		Str("portfolio_id", portfolioID).
		Str("ticker", ticker).
		Msg("Position created")
	return p, nil
}

// GetPosition returns a position by id, or nil when it does not exist.
func (r *Repository) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)

	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return p, nil
}

// ActivePositions returns the active positions of a portfolio ordered by ticker.
func (r *Repository) ActivePositions(ctx context.Context, portfolioID string) ([]domain.Position, error) {
	return r.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions
		WHERE portfolio_id = ? AND is_active = 1
		ORDER BY ticker, id`, portfolioID)
}

// ActivePositionsAll returns every active position in the system.
func (r *Repository) ActivePositionsAll(ctx context.Context) ([]domain.Position, error) {
	return r.queryPositions(ctx, `SELECT `+positionColumns+` FROM positions
		WHERE is_active = 1
		ORDER BY portfolio_id, ticker, id`)
}

// ClosePosition marks a position inactive. Its history is kept.
func (r *Repository) ClosePosition(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE positions SET is_active = 0, updated_at = ? WHERE id = ?
	`, r.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	r.log.Info().Str("position_id", id).Msg("Position closed")
	return nil
}

func (r *Repository) queryPositions(ctx context.Context, query string, args ...interface{}) ([]domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var (
		p                  domain.Position
		positionType       string
		isActive           int
		createdAt, updated int64
	)
	if err := row.Scan(&p.ID, &p.PortfolioID, &p.Ticker, &positionType, &isActive, &createdAt, &updated); err != nil {
		return nil, err
	}
	p.PositionType = domain.PositionType(positionType)
	p.IsActive = isActive != 0
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return &p, nil
}
