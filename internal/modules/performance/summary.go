package performance

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/modules/metrics"
)

// ErrPortfolioNotFound is returned when the summarized portfolio does not exist.
var ErrPortfolioNotFound = errors.New("portfolio not found")

// Calculator is the part of the metric service the summary needs.
type Calculator interface {
	ComputeValue(ctx context.Context, metricID string, target domain.Target, userID string) (metrics.Result, error)
}

// PositionSummary is the performance of one position.
type PositionSummary struct {
	PositionID   string         `json:"position_id"`
	Ticker       string         `json:"ticker"`
	CostBasis    metrics.Result `json:"cost_basis"`
	CurrentValue metrics.Result `json:"current_value"`
	GainPct      metrics.Result `json:"gain_loss_pct"`
	GainAbs      metrics.Result `json:"gain_loss_abs"`
}

// Summary is the performance of a portfolio and its active positions.
type Summary struct {
	PortfolioID string            `json:"portfolio_id"`
	Name        string            `json:"name"`
	TotalValue  metrics.Result    `json:"total_value"`
	ReturnPct   metrics.Result    `json:"return_pct"`
	ReturnAbs   metrics.Result    `json:"return_abs"`
	TWR         metrics.Result    `json:"twr_pct"`
	Positions   []PositionSummary `json:"positions"`
}

// Service builds performance summaries.
type Service struct {
	calc     Calculator
	entities domain.EntityResolver
	log      zerolog.Logger
}

// NewService creates a new performance service
func NewService(calc Calculator, entities domain.EntityResolver, log zerolog.Logger) *Service {
	return &Service{
		calc:     calc,
		entities: entities,
		log:      log.With().Str("service", "performance").Logger(),
	}
}

// Summarize computes the portfolio-level and per-position performance
// metrics as seen by userID. Metrics of a disabled family come back
// SUPPRESSED rather than being omitted.
func (s *Service) Summarize(ctx context.Context, portfolioID, userID string) (*Summary, error) {
	pf, err := s.entities.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	// Someone else's portfolio looks the same as a missing one.
	if pf == nil || pf.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrPortfolioNotFound, portfolioID)
	}

	target := domain.PortfolioTarget(pf.ID)
	summary := &Summary{PortfolioID: pf.ID, Name: pf.Name, Positions: []PositionSummary{}}
	for key, dst := range map[string]*metrics.Result{
		metrics.KeyTotalValue:         &summary.TotalValue,
		metrics.KeyPortfolioReturnPct: &summary.ReturnPct,
		metrics.KeyPortfolioReturnAbs: &summary.ReturnAbs,
		metrics.KeyPortfolioTWR:       &summary.TWR,
	} {
		if *dst, err = s.calc.ComputeValue(ctx, metrics.SystemID(key), target, userID); err != nil {
			return nil, err
		}
	}

	positions, err := s.entities.ActivePositions(ctx, pf.ID)
	if err != nil {
		return nil, err
	}
	for _, pos := range positions {
		ps := PositionSummary{PositionID: pos.ID, Ticker: pos.Ticker}
		target := domain.PositionTarget(pos.ID)
		for key, dst := range map[string]*metrics.Result{
			metrics.KeyCostBasis:       &ps.CostBasis,
			metrics.KeyCurrentValue:    &ps.CurrentValue,
			metrics.KeyPositionGainPct: &ps.GainPct,
			metrics.KeyPositionGainAbs: &ps.GainAbs,
		} {
			if *dst, err = s.calc.ComputeValue(ctx, metrics.SystemID(key), target, userID); err != nil {
				return nil, err
			}
		}
		summary.Positions = append(summary.Positions, ps)
	}

	s.log.Debug().Str("portfolio_id", pf.ID).Int("positions", len(positions)).Msg("Performance summarized")
	return summary, nil
}
