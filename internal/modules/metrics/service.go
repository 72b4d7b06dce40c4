package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/domain"
	"github.com/aristath/eqtrak/internal/events"
	"github.com/aristath/eqtrak/internal/modules/features"
)

// FeatureSource produces a per-request feature view for a user.
type FeatureSource interface {
	Snapshot(ctx context.Context, userID string) (features.Snapshot, error)
}

// Service is the entry point used by handlers, the CLI and jobs.
type Service struct {
	registry *Registry
	values   *ValueRepository
	engine   *Engine
	gate     FeatureSource
	bus      *events.Bus
	log      zerolog.Logger
}

// NewService creates a new metric service
func NewService(registry *Registry, values *ValueRepository, engine *Engine, gate FeatureSource, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		registry: registry,
		values:   values,
		engine:   engine,
		gate:     gate,
		bus:      bus,
		log:      log.With().Str("service", "metrics").Logger(),
	}
}

// GetMetric resolves an id or display name to a definition visible to
// userID. Suppressed and inactive metrics, and custom metrics of other
// users, are not found.
func (s *Service) GetMetric(ctx context.Context, nameOrID, userID string) (*Definition, error) {
	view, err := s.view(ctx, userID)
	if err != nil {
		return nil, err
	}
	def, err := s.registry.Lookup(ctx, nameOrID, "", view)
	if err != nil {
		return nil, err
	}
	if !def.IsSystem && def.OwnerID != "" && def.OwnerID != userID {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, nameOrID)
	}
	return def, nil
}

func (s *Service) view(ctx context.Context, userID string) (FeatureView, error) {
	snap, err := s.gate.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve feature switches: %w", err)
	}
	return snap, nil
}

// ComputeValue evaluates metricID for target as seen by userID.
func (s *Service) ComputeValue(ctx context.Context, metricID string, target domain.Target, userID string) (Result, error) {
	def, err := s.registry.Get(ctx, metricID)
	if err != nil {
		return Result{}, err
	}
	view, err := s.view(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	return s.engine.Compute(ctx, def, target, view)
}

// visibleDefinition returns def unless it is suppressed for userID or
// inactive, and checks that target fits its scope.
func (s *Service) visibleDefinition(ctx context.Context, metricID string, target domain.Target, userID string) (*Definition, error) {
	def, err := s.registry.Get(ctx, metricID)
	if err != nil {
		return nil, err
	}
	view, err := s.view(ctx, userID)
	if err != nil {
		return nil, err
	}
	if Suppressed(def, view) || !def.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, metricID)
	}
	if !ValidateScope(def, target) {
		return nil, fmt.Errorf("%w: metric %s is %s-scoped, target is %s", ErrScopeMismatch, def.Name, def.Scope, target.Scope)
	}
	return def, nil
}

// LatestValue returns the most recent stored value, or nil.
func (s *Service) LatestValue(ctx context.Context, metricID string, target domain.Target, userID string) (*Value, error) {
	def, err := s.visibleDefinition(ctx, metricID, target, userID)
	if err != nil {
		return nil, err
	}
	return s.values.Latest(ctx, def.ID, target)
}

// LatestForecast returns the most recent forecast of a scenario, or nil.
func (s *Service) LatestForecast(ctx context.Context, metricID string, target domain.Target, scenario Scenario, userID string) (*Value, error) {
	def, err := s.visibleDefinition(ctx, metricID, target, userID)
	if err != nil {
		return nil, err
	}
	return s.values.LatestForecast(ctx, def.ID, target, scenario)
}

// ValuesInRange returns stored values dated within [start, end], oldest first.
func (s *Service) ValuesInRange(ctx context.Context, metricID string, target domain.Target, start, end time.Time, userID string) ([]Value, error) {
	if end.Before(start) {
		return nil, invalid("range end %s is before start %s", end.Format(dateLayout), start.Format(dateLayout))
	}
	def, err := s.visibleDefinition(ctx, metricID, target, userID)
	if err != nil {
		return nil, err
	}
	return s.values.Range(ctx, def.ID, target, start, end)
}

// ListActiveMetrics returns the active metrics of scope visible to userID,
// with suppressed families removed.
func (s *Service) ListActiveMetrics(ctx context.Context, scope domain.ScopeType, userID string) ([]Definition, error) {
	if scope != "" && !scope.Valid() {
		return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidDefinition, scope)
	}
	view, err := s.view(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.registry.ListForScope(ctx, scope, ListOptions{
		Features:      view,
		OwnerID:       userID,
		IncludeSystem: true,
	})
}

// RecordValue stores a user-entered value for a stored metric.
func (s *Service) RecordValue(ctx context.Context, metricID, userID string, in ValueInput) (*Value, error) {
	def, err := s.registry.Get(ctx, metricID)
	if err != nil {
		return nil, err
	}
	view, err := s.view(ctx, userID)
	if err != nil {
		return nil, err
	}
	if Suppressed(def, view) || !def.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, metricID)
	}
	if def.IsDerived {
		return nil, fmt.Errorf("%w: %s is computed", ErrPermissionDenied, def.Name)
	}
	if !def.IsSystem && def.OwnerID != "" && def.OwnerID != userID {
		return nil, fmt.Errorf("%w: %s belongs to another user", ErrPermissionDenied, def.Name)
	}
	if in.Provenance == "" {
		in.Provenance = ProvenanceUser
	}
	if in.Date.IsZero() {
		in.Date = time.Now().UTC()
	}
	return s.values.Upsert(ctx, def, in)
}

// RecordExternal stores a value fetched from an external source. The
// provenance is the source name.
func (s *Service) RecordExternal(ctx context.Context, metricID string, target domain.Target, date time.Time, in ValueInput, source string) (*Value, error) {
	def, err := s.registry.Get(ctx, metricID)
	if err != nil {
		return nil, err
	}
	in.Target = RefFor(target)
	in.Date = date
	in.Provenance = source
	return s.values.Upsert(ctx, def, in)
}

// CreateCustomMetric adds a user metric.
func (s *Service) CreateCustomMetric(ctx context.Context, in CustomMetric) (*Definition, error) {
	def, err := s.registry.CreateCustom(ctx, in)
	if err != nil {
		return nil, err
	}
	s.emitDefinitionChange(def, "created")
	return def, nil
}

// UpdateMetric edits a custom metric.
func (s *Service) UpdateMetric(ctx context.Context, id, actor string, patch DefinitionPatch) (*Definition, error) {
	def, err := s.registry.Update(ctx, id, actor, patch)
	if err != nil {
		return nil, err
	}
	s.emitDefinitionChange(def, "updated")
	return def, nil
}

// DeleteCustomMetric removes a custom metric and its values.
func (s *Service) DeleteCustomMetric(ctx context.Context, id, actor string) error {
	def, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.registry.DeleteCustom(ctx, id, actor); err != nil {
		return err
	}
	s.emitDefinitionChange(def, "deleted")
	return nil
}

// Bootstrap installs the system catalog.
func (s *Service) Bootstrap(ctx context.Context) (int, error) {
	return s.registry.Bootstrap(ctx)
}

// ClearComputed deletes every written-through value.
func (s *Service) ClearComputed(ctx context.Context) (int64, error) {
	return s.values.ClearComputed(ctx)
}

func (s *Service) emitDefinitionChange(def *Definition, action string) {
	s.bus.Emit("metrics", &events.MetricDefinitionChangedData{
		MetricID: def.ID,
		Name:     def.Name,
		Action:   action,
		OwnerID:  def.OwnerID,
	})
}
