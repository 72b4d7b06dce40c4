package metrics

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

	"github.com/aristath/eqtrak/internal/database"
	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/events"
)

const dateLayout = "2006-01-02"

const valueColumns = `id, metric_id, portfolio_id, position_id, transaction_id, value_date, scenario,
	numeric_value, text_value, provenance, confidence, is_forecast, COALESCE(notes, ''), created_at, updated_at`

// ValueRepository stores metric observations.
type ValueRepository struct {
	db  *sql.DB
	bus *events.Bus
	now func() time.Time
	log zerolog.Logger
}

// NewValueRepository creates a new value repository
func NewValueRepository(db *sql.DB, bus *events.Bus, log zerolog.Logger) *ValueRepository {
	return &ValueRepository{
		db:  db,
		bus: bus,
		now: time.Now,
		log: log.With().Str("repo", "metric_values").Logger(),
	}
}

// validateInput checks every write-time invariant of in against def and
// returns the resolved target.
func validateInput(def *Definition, in ValueInput) (domain.Target, error) {
	target, err := in.Target.Target()
	if err != nil {
		return domain.Target{}, err
	}
	if !ValidateScope(def, target) {
		return domain.Target{}, fmt.Errorf("%w: metric %s is %s-scoped, target is %s",
			ErrScopeMismatch, def.Name, def.Scope, target.Scope)
	}

	if def.Kind.IsMemo() {
		if in.Text == nil {
			return domain.Target{}, invalid("memo metric %s requires a text payload", def.Name)
		}
		if in.Numeric != nil {
			return domain.Target{}, invalid("memo metric %s must not carry a numeric payload", def.Name)
		}
	} else {
		if in.Numeric == nil {
			return domain.Target{}, invalid("metric %s requires a numeric payload", def.Name)
		}
		if in.Text != nil {
			return domain.Target{}, invalid("metric %s must not carry a text payload", def.Name)
		}
	}

	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		return domain.Target{}, invalid("confidence must be between 0 and 1")
	}
	if !in.Scenario.Valid() {
		return domain.Target{}, invalid("unknown scenario %q", in.Scenario)
	}
	if !in.IsForecast && in.Scenario != ScenarioNone {
		return domain.Target{}, invalid("scenario requires a forecast value")
	}
	if in.Date.IsZero() {
		return domain.Target{}, invalid("value date is required")
	}
	return target, nil
}

// Upsert writes a value on its natural key (metric, target, date, scenario),
// replacing any previous payload. Nothing is written if validation fails.
func (r *ValueRepository) Upsert(ctx context.Context, def *Definition, in ValueInput) (*Value, error) {
	target, err := validateInput(def, in)
	if err != nil {
		return nil, err
	}

	if in.IsForecast && in.Scenario == ScenarioNone {
		in.Scenario = ScenarioBase
	}
	provenance := strings.TrimSpace(in.Provenance)
	if provenance == "" {
		provenance = ProvenanceUser
	}
	valueDate := in.Date.UTC().Format(dateLayout)
	now := r.now().UTC()

	var numeric, text, confidence interface{}
	if in.Numeric != nil {
		numeric = in.Numeric.String()
	}
	if in.Text != nil {
		text = *in.Text
	}
	if in.Confidence != nil {
		confidence = *in.Confidence
	}
	ref := RefFor(target)

	var stored *Value
	err = database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metric_values (
				id, metric_id, portfolio_id, position_id, transaction_id, target_key,
				value_date, scenario, numeric_value, text_value, provenance, confidence,
				is_forecast, notes, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(metric_id, target_key, value_date, scenario) DO UPDATE SET
				numeric_value = excluded.numeric_value,
				text_value = excluded.text_value,
				provenance = excluded.provenance,
				confidence = excluded.confidence,
				is_forecast = excluded.is_forecast,
				notes = excluded.notes,
				updated_at = excluded.updated_at
		`, uuid.NewString(), def.ID, nullString(ref.PortfolioID), nullString(ref.PositionID),
			nullString(ref.TransactionID), target.Key(), valueDate, string(in.Scenario),
			numeric, text, provenance, confidence, boolToInt(in.IsForecast), in.Notes,
			now.UnixNano(), now.UnixNano())
		if err != nil {
			if strings.Contains(err.Error(), "FOREIGN KEY") {
				return fmt.Errorf("%w: target %s or metric %s does not exist", ErrNotFound, target, def.ID)
			}
			return fmt.Errorf("failed to upsert metric value: %w", err)
		}

		row := tx.QueryRowContext(ctx, `SELECT `+valueColumns+` FROM metric_values
			WHERE metric_id = ? AND target_key = ? AND value_date = ? AND scenario = ?`,
			def.ID, target.Key(), valueDate, string(in.Scenario))
		stored, err = scanValue(row)
		if err != nil {
			return fmt.Errorf("failed to read back metric value: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Debug().
		Str("metric_id", def.ID).
		Str("target", target.Key()).
		Str("date", valueDate).
		Str("provenance", provenance).
		Msg("Metric value stored")

	r.bus.Emit("metrics", &events.MetricValueRecordedData{
		MetricID:   def.ID,
		Target:     target.Key(),
		Date:       valueDate,
		Provenance: provenance,
		Scenario:   string(in.Scenario),
	})
	return stored, nil
}

// Latest returns the most recent non-forecast value of metricID for target:
// latest date first, then latest write. Returns nil when there is none.
func (r *ValueRepository) Latest(ctx context.Context, metricID string, target domain.Target) (*Value, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+valueColumns+` FROM metric_values
		WHERE metric_id = ? AND target_key = ? AND is_forecast = 0
		ORDER BY value_date DESC, updated_at DESC
		LIMIT 1`, metricID, target.Key())
	v, err := scanValue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest metric value: %w", err)
	}
	return v, nil
}

// LatestForecast returns the most recent forecast for a scenario, or nil.
func (r *ValueRepository) LatestForecast(ctx context.Context, metricID string, target domain.Target, scenario Scenario) (*Value, error) {
	if scenario == ScenarioNone {
		scenario = ScenarioBase
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+valueColumns+` FROM metric_values
		WHERE metric_id = ? AND target_key = ? AND is_forecast = 1 AND scenario = ?
		ORDER BY value_date DESC, updated_at DESC
		LIMIT 1`, metricID, target.Key(), string(scenario))
	v, err := scanValue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest forecast: %w", err)
	}
	return v, nil
}

// Range returns non-forecast values dated within [start, end], ascending by date.
func (r *ValueRepository) Range(ctx context.Context, metricID string, target domain.Target, start, end time.Time) ([]Value, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+valueColumns+` FROM metric_values
		WHERE metric_id = ? AND target_key = ? AND is_forecast = 0
			AND value_date >= ? AND value_date <= ?
		ORDER BY value_date ASC, updated_at ASC`,
		metricID, target.Key(), start.UTC().Format(dateLayout), end.UTC().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query metric values: %w", err)
	}
	defer rows.Close()

	var values []Value
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric value: %w", err)
		}
		values = append(values, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metric values: %w", err)
	}
	return values, nil
}

// Count returns how many values metricID has for target, forecasts included.
func (r *ValueRepository) Count(ctx context.Context, metricID string, target domain.Target) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM metric_values WHERE metric_id = ? AND target_key = ?
	`, metricID, target.Key()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count metric values: %w", err)
	}
	return n, nil
}

// deleteForMetric removes every value of a metric inside tx.
func (r *ValueRepository) deleteForMetric(ctx context.Context, tx *sql.Tx, metricID string) (int64, error) {
	result, err := tx.ExecContext(ctx, `DELETE FROM metric_values WHERE metric_id = ?`, metricID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete metric values: %w", err)
	}
	return result.RowsAffected()
}

// ClearComputed deletes every value written through by the engine.
func (r *ValueRepository) ClearComputed(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM metric_values WHERE provenance = ?`, ProvenanceComputed)
	if err != nil {
		return 0, fmt.Errorf("failed to clear computed values: %w", err)
	}
	n, _ := result.RowsAffected()
	r.log.Info().Int64("deleted", n).Msg("Computed metric values cleared")
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanValue(row rowScanner) (*Value, error) {
	var (
		v                             Value
		portfolioID, positionID, txID sql.NullString
		valueDate, scenario           string
		numeric, text                 sql.NullString
		confidence                    sql.NullFloat64
		isForecast                    int
		createdAt, updatedAt          int64
	)
	err := row.Scan(&v.ID, &v.MetricID, &portfolioID, &positionID, &txID, &valueDate, &scenario,
		&numeric, &text, &v.Provenance, &confidence, &isForecast, &v.Notes, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	target, err := TargetRef{
		PortfolioID:   portfolioID.String,
		PositionID:    positionID.String,
		TransactionID: txID.String,
	}.Target()
	if err != nil {
		return nil, fmt.Errorf("stored value %s: %w", v.ID, err)
	}
	v.Target = target

	if v.ValueDate, err = time.Parse(dateLayout, valueDate); err != nil {
		return nil, fmt.Errorf("invalid value date %q: %w", valueDate, err)
	}
	if numeric.Valid {
		d, err := decimal.NewFromString(numeric.String)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric value %q: %w", numeric.String, err)
		}
		v.Numeric = &d
	}
	if text.Valid {
		s := text.String
		v.Text = &s
	}
	if confidence.Valid {
		c := confidence.Float64
		v.Confidence = &c
	}
	v.Scenario = Scenario(scenario)
	v.IsForecast = isForecast != 0
	v.CreatedAt = time.Unix(0, createdAt).UTC()
	v.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &v, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
