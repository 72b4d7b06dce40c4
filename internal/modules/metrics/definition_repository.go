package metrics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/database"
	"github.com/aristath/eqtrak/internal/domain"
)

const definitionColumns = `id, name, COALESCE(description, ''), scope, value_kind, is_system, is_active,
	is_derived, COALESCE(formula, ''), COALESCE(family, ''), write_through, display_order,
	COALESCE(owner_id, ''), COALESCE(tags, ''), created_at, updated_at`

// DefinitionRepository persists metric definitions and their dependency edges.
type DefinitionRepository struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sql.DB, log zerolog.Logger) *DefinitionRepository {
	return &DefinitionRepository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "metric_definitions").Logger(),
	}
}

// GetByID returns a definition with its dependencies, or nil when it does not exist.
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*Definition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM metric_definitions WHERE id = ?`, id)
	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metric definition: %w", err)
	}
	if err := r.loadDependencies(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// FindByName returns the definitions named name (case-insensitive) in scope.
// An empty scope matches every scope.
func (r *DefinitionRepository) FindByName(ctx context.Context, name string, scope domain.ScopeType) ([]Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM metric_definitions WHERE name = ? COLLATE NOCASE`
	args := []interface{}{strings.TrimSpace(name)}
	if scope != "" {
		query += ` AND scope = ?`
		args = append(args, string(scope))
	}
	query += ` ORDER BY is_system DESC, display_order, id`
	return r.query(ctx, query, args...)
}

// List returns definitions ordered by display order then name. An empty
// scope lists every scope.
func (r *DefinitionRepository) List(ctx context.Context, scope domain.ScopeType) ([]Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM metric_definitions`
	var args []interface{}
	if scope != "" {
		query += ` WHERE scope = ?`
		args = append(args, string(scope))
	}
	query += ` ORDER BY display_order, name, id`
	return r.query(ctx, query, args...)
}

// Save inserts or replaces a definition and its dependency list atomically.
func (r *DefinitionRepository) Save(ctx context.Context, def *Definition) error {
	now := r.now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	return database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		return r.saveTx(ctx, tx, def)
	})
}

func (r *DefinitionRepository) saveTx(ctx context.Context, tx *sql.Tx, def *Definition) error {
	var formula, family, owner interface{}
	if def.Formula != "" {
		formula = string(def.Formula)
	}
	if def.Family != "" {
		family = def.Family
	}
	if def.OwnerID != "" {
		owner = def.OwnerID
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO metric_definitions (
			id, name, description, scope, value_kind, is_system, is_active, is_derived,
			formula, family, write_through, display_order, owner_id, tags, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			scope = excluded.scope,
			value_kind = excluded.value_kind,
			is_system = excluded.is_system,
			is_active = excluded.is_active,
			is_derived = excluded.is_derived,
			formula = excluded.formula,
			family = excluded.family,
			write_through = excluded.write_through,
			display_order = excluded.display_order,
			owner_id = excluded.owner_id,
			tags = excluded.tags,
			updated_at = excluded.updated_at
	`, def.ID, def.Name, def.Description, string(def.Scope), string(def.Kind),
		boolToInt(def.IsSystem), boolToInt(def.IsActive), boolToInt(def.IsDerived),
		formula, family, boolToInt(def.WriteThrough), def.DisplayOrder, owner,
		strings.Join(def.Tags, ","), def.CreatedAt.UnixNano(), def.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save metric definition %s: %w", def.Name, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM metric_dependencies WHERE metric_id = ?`, def.ID); err != nil {
		return fmt.Errorf("failed to clear dependencies of %s: %w", def.Name, err)
	}
	for i, dep := range def.Dependencies {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO metric_dependencies (metric_id, depends_on_id, position) VALUES (?, ?, ?)
		`, def.ID, dep, i)
		if err != nil {
			return fmt.Errorf("failed to save dependency %s of %s: %w", dep, def.Name, err)
		}
	}
	return nil
}

// SaveAll saves definitions in one transaction. Dependencies may reference
// definitions saved later in the same call.
func (r *DefinitionRepository) SaveAll(ctx context.Context, defs []Definition) error {
	now := r.now().UTC()
	return database.WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`); err != nil {
			return fmt.Errorf("failed to defer foreign keys: %w", err)
		}
		for i := range defs {
			if defs[i].CreatedAt.IsZero() {
				defs[i].CreatedAt = now
			}
			defs[i].UpdatedAt = now
			if err := r.saveTx(ctx, tx, &defs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// deleteTx removes a definition inside tx. Dependency edges and values cascade.
func (r *DefinitionRepository) deleteTx(ctx context.Context, tx *sql.Tx, id string) error {
	result, err := tx.ExecContext(ctx, `DELETE FROM metric_definitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete metric definition: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *DefinitionRepository) query(ctx context.Context, query string, args ...interface{}) ([]Definition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric definitions: %w", err)
	}

	var defs []Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan metric definition: %w", err)
		}
		defs = append(defs, *def)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("error iterating metric definitions: %w", err)
	}

	for i := range defs {
		if err := r.loadDependencies(ctx, &defs[i]); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

func (r *DefinitionRepository) loadDependencies(ctx context.Context, def *Definition) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT depends_on_id FROM metric_dependencies WHERE metric_id = ? ORDER BY position
	`, def.ID)
	if err != nil {
		return fmt.Errorf("failed to query dependencies: %w", err)
	}
	defer rows.Close()

	def.Dependencies = nil
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return fmt.Errorf("failed to scan dependency: %w", err)
		}
		def.Dependencies = append(def.Dependencies, dep)
	}
	return rows.Err()
}

func scanDefinition(row rowScanner) (*Definition, error) {
	var (
		def                               Definition
		scope, kind, formula, tags        string
		isSystem, isActive, isDerived, wt int
		createdAt, updatedAt              int64
	)
	err := row.Scan(&def.ID, &def.Name, &def.Description, &scope, &kind, &isSystem, &isActive,
		&isDerived, &formula, &def.Family, &wt, &def.DisplayOrder, &def.OwnerID, &tags,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	def.Scope = domain.ScopeType(scope)
	def.Kind = ValueKind(kind)
	def.Formula = Formula(formula)
	def.IsSystem = isSystem != 0
	def.IsActive = isActive != 0
	def.IsDerived = isDerived != 0
	def.WriteThrough = wt != 0
	if tags != "" {
		def.Tags = strings.Split(tags, ",")
	}
	def.CreatedAt = time.Unix(0, createdAt).UTC()
	def.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &def, nil
}
