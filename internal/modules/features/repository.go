package features

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SettingsRepository persists per-user feature family switches.
// A missing row means the user has not opted out.
type SettingsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSettingsRepository creates a new user feature settings repository
func NewSettingsRepository(db *sql.DB, log zerolog.Logger) *SettingsRepository {
	return &SettingsRepository{
		db:  db,
		log: log.With().Str("repo", "feature_settings").Logger(),
	}
}

// Get returns the stored switch for (userID, family).
//
// Returns:
//   - enabled: the stored value, true when no row exists
//   - error: Error if the query fails
func (r *SettingsRepository) Get(ctx context.Context, userID, family string) (bool, error) {
	var enabled int
	err := r.db.QueryRowContext(ctx, `
		SELECT enabled FROM user_feature_settings WHERE user_id = ? AND family = ?
	`, userID, family).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get feature setting: %w", err)
	}
	return enabled != 0, nil
}

// GetAll returns every stored switch of a user keyed by family.
func (r *SettingsRepository) GetAll(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT family, enabled FROM user_feature_settings WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]bool)
	for rows.Next() {
		var (
			family  string
			enabled int
		)
		if err := rows.Scan(&family, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan feature setting: %w", err)
		}
		settings[family] = enabled != 0
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature settings: %w", err)
	}
	return settings, nil
}

// Set stores the switch for (userID, family), replacing any previous value.
func (r *SettingsRepository) Set(ctx context.Context, userID, family string, enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_feature_settings (user_id, family, enabled, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, family) DO UPDATE SET
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, userID, family, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set feature setting: %w", err)
	}

	r.log.Debug().Str("user_id", userID).Str("family", family).Bool("enabled", enabled).Msg("Feature setting stored")
	return nil
}
