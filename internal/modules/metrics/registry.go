package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/database"
	"github.com/aristath/eqtrak/internal/domain"
)

// FeatureView answers whether a feature family is on for the current request.
type FeatureView interface {
	Enabled(family string) bool
}

type allFamilies struct{}

func (allFamilies) Enabled(string) bool { return true }

// AllFamiliesEnabled is a FeatureView with nothing suppressed.
var AllFamiliesEnabled FeatureView = allFamilies{}

// Suppressed reports whether view hides def.
func Suppressed(def *Definition, view FeatureView) bool {
	if def.Family == "" {
		return false
	}
	if view == nil {
		view = AllFamiliesEnabled
	}
	return !view.Enabled(def.Family)
}

// Registry is the metric definition catalog.
type Registry struct {
	defs   *DefinitionRepository
	values *ValueRepository
	log    zerolog.Logger
}

// NewRegistry creates a new registry
func NewRegistry(defs *DefinitionRepository, values *ValueRepository, log zerolog.Logger) *Registry {
	return &Registry{
		defs:   defs,
		values: values,
		log:    log.With().Str("component", "metric_registry").Logger(),
	}
}

// Bootstrap installs or refreshes the system catalog after validating the
// whole graph, custom definitions included.
func (r *Registry) Bootstrap(ctx context.Context) (int, error) {
	catalog := SystemCatalog()

	existing, err := r.defs.List(ctx, "")
	if err != nil {
		return 0, err
	}
	all := append([]Definition(nil), catalog...)
	for _, def := range existing {
		if !def.IsSystem {
			all = append(all, def)
		}
	}
	if err := ValidateCatalog(all); err != nil {
		return 0, err
	}

	if err := r.defs.SaveAll(ctx, catalog); err != nil {
		return 0, err
	}
	r.log.Info().Int("definitions", len(catalog)).Msg("System metric catalog installed")
	return len(catalog), nil
}

// Get returns a definition by id regardless of state.
func (r *Registry) Get(ctx context.Context, id string) (*Definition, error) {
	def, err := r.defs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return def, nil
}

// Lookup resolves an id or a display name to an active, visible definition.
// An empty scope matches any scope. Suppressed definitions are not found.
func (r *Registry) Lookup(ctx context.Context, nameOrID string, scope domain.ScopeType, view FeatureView) (*Definition, error) {
	def, err := r.defs.GetByID(ctx, nameOrID)
	if err != nil {
		return nil, err
	}
	if def == nil {
		candidates, err := r.defs.FindByName(ctx, nameOrID, scope)
		if err != nil {
			return nil, err
		}
		if len(candidates) > 0 {
			def = &candidates[0]
		}
	}

	if def == nil || !def.IsActive || (scope != "" && def.Scope != scope) || Suppressed(def, view) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nameOrID)
	}
	return def, nil
}

// ListOptions filters ListForScope.
type ListOptions struct {
	// Features hides suppressed families. Nil shows everything.
	Features FeatureView
	// OwnerID limits custom metrics to those of one user. Empty includes all.
	OwnerID string
	// IncludeSystem includes system metrics.
	IncludeSystem bool
	// IncludeInactive includes deactivated definitions.
	IncludeInactive bool
}

// ListForScope returns the definitions of scope in display order.
func (r *Registry) ListForScope(ctx context.Context, scope domain.ScopeType, opts ListOptions) ([]Definition, error) {
	all, err := r.defs.List(ctx, scope)
	if err != nil {
		return nil, err
	}

	defs := make([]Definition, 0, len(all))
	for i := range all {
		def := &all[i]
		switch {
		case def.IsSystem && !opts.IncludeSystem:
		case !def.IsActive && !opts.IncludeInactive:
		case !def.IsSystem && opts.OwnerID != "" && def.OwnerID != "" && def.OwnerID != opts.OwnerID:
		case Suppressed(def, opts.Features):
		default:
			defs = append(defs, *def)
		}
	}
	return defs, nil
}

// CustomMetric is the input of CreateCustom. Scope and kind are required.
type CustomMetric struct {
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Scope        domain.ScopeType `json:"scope"`
	Kind         ValueKind        `json:"value_kind"`
	OwnerID      string           `json:"-"`
	Tags         []string         `json:"tags"`
	DisplayOrder int              `json:"display_order"`
}

// CreateCustom adds a user metric. Custom metrics are stored, never derived.
func (r *Registry) CreateCustom(ctx context.Context, in CustomMetric) (*Definition, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}
	if !in.Scope.Valid() {
		return nil, fmt.Errorf("%w: scope %q is not one of PORTFOLIO, POSITION, TRANSACTION", ErrInvalidDefinition, in.Scope)
	}
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown value kind %q", ErrInvalidDefinition, in.Kind)
	}
	if err := r.checkNameFree(ctx, name, in.Scope, in.OwnerID, ""); err != nil {
		return nil, err
	}

	displayOrder := in.DisplayOrder
	if displayOrder == 0 {
		displayOrder = 1000
	}
	def := &Definition{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  in.Description,
		Scope:        in.Scope,
		Kind:         in.Kind,
		OwnerID:      in.OwnerID,
		Tags:         cleanTags(in.Tags),
		DisplayOrder: displayOrder,
		IsActive:     true,
	}
	if err := r.defs.Save(ctx, def); err != nil {
		return nil, err
	}

	r.log.Info().Str("metric_id", def.ID).Str("name", name).Str("owner_id", in.OwnerID).Msg("Custom metric created")
	return def, nil
}

// DefinitionPatch lists the editable fields of a custom metric. Nil fields are left unchanged.
type DefinitionPatch struct {
	Name         *string   `json:"name"`
	Description  *string   `json:"description"`
	IsActive     *bool     `json:"is_active"`
	DisplayOrder *int      `json:"display_order"`
	Tags         *[]string `json:"tags"`
}

// Update edits a custom metric owned by actor.
func (r *Registry) Update(ctx context.Context, id, actor string, patch DefinitionPatch) (*Definition, error) {
	def, err := r.editable(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidDefinition)
		}
		if err := r.checkNameFree(ctx, name, def.Scope, def.OwnerID, def.ID); err != nil {
			return nil, err
		}
		def.Name = name
	}
	if patch.Description != nil {
		def.Description = *patch.Description
	}
	if patch.IsActive != nil {
		def.IsActive = *patch.IsActive
	}
	if patch.DisplayOrder != nil {
		def.DisplayOrder = *patch.DisplayOrder
	}
	if patch.Tags != nil {
		def.Tags = cleanTags(*patch.Tags)
	}

	if err := r.defs.Save(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// DeleteCustom removes a custom metric and all of its values.
func (r *Registry) DeleteCustom(ctx context.Context, id, actor string) error {
	def, err := r.editable(ctx, id, actor)
	if err != nil {
		return err
	}

	var deleted int64
	err = database.WithTransaction(ctx, r.defs.db, func(tx *sql.Tx) error {
		n, err := r.values.deleteForMetric(ctx, tx, def.ID)
		if err != nil {
			return err
		}
		deleted = n
		return r.defs.deleteTx(ctx, tx, def.ID)
	})
	if err != nil {
		return err
	}

	r.log.Info().Str("metric_id", def.ID).Int64("values_deleted", deleted).Msg("Custom metric deleted")
	return nil
}

func (r *Registry) editable(ctx context.Context, id, actor string) (*Definition, error) {
	def, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if def.IsSystem {
		return nil, fmt.Errorf("%w: %s is a system metric", ErrPermissionDenied, def.Name)
	}
	if def.OwnerID != "" && def.OwnerID != actor {
		return nil, fmt.Errorf("%w: %s belongs to another user", ErrPermissionDenied, def.Name)
	}
	return def, nil
}

func (r *Registry) checkNameFree(ctx context.Context, name string, scope domain.ScopeType, owner, selfID string) error {
	existing, err := r.defs.FindByName(ctx, name, scope)
	if err != nil {
		return err
	}
	for _, def := range existing {
		if def.ID == selfID {
			continue
		}
		if def.IsSystem || def.OwnerID == "" || def.OwnerID == owner {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}
	return nil
}

func cleanTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(strings.ReplaceAll(t, ",", " "))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// ValidateCatalog checks a set of definitions as a whole: every dependency
// exists and is reachable from its dependent's scope, derived definitions
// name a known formula, and the dependency graph is acyclic.
func ValidateCatalog(defs []Definition) error {
	byID := make(map[string]*Definition, len(defs))
	for i := range defs {
		def := &defs[i]
		if _, dup := byID[def.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidDefinition, def.ID)
		}
		byID[def.ID] = def
	}

	for _, def := range byID {
		if !def.Scope.Valid() {
			return fmt.Errorf("%w: %s has unknown scope %q", ErrInvalidDefinition, def.Name, def.Scope)
		}
		if !def.Kind.Valid() {
			return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidDefinition, def.Name, def.Kind)
		}
		if def.IsDerived && !def.Formula.Valid() {
			return fmt.Errorf("%w: derived metric %s has unknown formula %q", ErrInvalidDefinition, def.Name, def.Formula)
		}
		if !def.IsDerived && def.Formula != "" {
			return fmt.Errorf("%w: stored metric %s must not name a formula", ErrInvalidDefinition, def.Name)
		}
		for _, depID := range def.Dependencies {
			dep, ok := byID[depID]
			if !ok {
				return fmt.Errorf("%w: %s depends on unknown metric %s", ErrInvalidDefinition, def.Name, depID)
			}
			if relationBetween(def.Scope, dep.Scope) == relationInvalid {
				return fmt.Errorf("%w: %s (%s) cannot depend on %s (%s)",
					ErrInvalidDefinition, def.Name, def.Scope, dep.Name, dep.Scope)
			}
		}
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(byID))
	var path []string
	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			start := 0
			for i, p := range path {
				if p == id {
					start = i
					break
				}
			}
			cycle := append(append([]string(nil), path[start:]...), id)
			return &CycleError{Path: cycle}
		case black:
			return nil
		}
		color[id] = grey
		path = append(path, id)
		for _, dep := range byID[id].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for i := range defs {
		if err := visit(defs[i].ID); err != nil {
			return err
		}
	}
	return nil
}
