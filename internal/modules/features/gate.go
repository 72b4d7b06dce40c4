// Package features implements the feature gate that switches whole metric
// families on and off, system-wide and per user.
package features

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/eqtrak/internal/config"
	"github.com/aristath/eqtrak/internal/events"
)

// FamilyPerformance groups the gain/loss and return metrics.
const FamilyPerformance = "performance"

// Families lists every gated family.
var Families = []string{FamilyPerformance}

// KnownFamily reports whether family is gated.
func KnownFamily(family string) bool {
	for _, f := range Families {
		if f == family {
			return true
		}
	}
	return false
}

// UserSettings is the per-user switch store.
type UserSettings interface {
	Get(ctx context.Context, userID, family string) (bool, error)
	GetAll(ctx context.Context, userID string) (map[string]bool, error)
	Set(ctx context.Context, userID, family string, enabled bool) error
}

// Gate answers whether a family is enabled. System switches are process
// state loaded from configuration; user switches are persisted.
type Gate struct {
	mu     sync.RWMutex
	system map[string]bool
	users  UserSettings
	bus    *events.Bus
	log    zerolog.Logger
}

// NewGate creates a gate with system switches taken from cfg.
func NewGate(cfg *config.Config, users UserSettings, bus *events.Bus, log zerolog.Logger) *Gate {
	g := &Gate{
		users: users,
		bus:   bus,
		log:   log.With().Str("component", "feature_gate").Logger(),
	}
	g.Reload(cfg)
	return g
}

// Reload replaces the system switches with the values in cfg.
// Runtime overrides made through SetSystemEnabled are discarded.
func (g *Gate) Reload(cfg *config.Config) {
	system := map[string]bool{
		FamilyPerformance: cfg.PerformanceEnabled,
	}

	g.mu.Lock()
	g.system = system
	g.mu.Unlock()

	g.log.Info().Bool(FamilyPerformance, cfg.PerformanceEnabled).Msg("System feature switches loaded")
}

// SystemEnabled returns the system switch of family. Unknown families are enabled.
func (g *Gate) SystemEnabled(family string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	enabled, ok := g.system[family]
	return !ok || enabled
}

// SetSystemEnabled overrides the system switch until the next Reload.
func (g *Gate) SetSystemEnabled(family string, enabled bool) error {
	if !KnownFamily(family) {
		return fmt.Errorf("unknown feature family %q", family)
	}

	g.mu.Lock()
	g.system[family] = enabled
	g.mu.Unlock()

	g.log.Info().Str("family", family).Bool("enabled", enabled).Msg("System feature switch changed")
	g.bus.Emit("features", &events.FeatureToggledData{Family: family, Enabled: enabled})
	return nil
}

// SetUserEnabled stores a user's personal switch.
func (g *Gate) SetUserEnabled(ctx context.Context, family, userID string, enabled bool) error {
	if !KnownFamily(family) {
		return fmt.Errorf("unknown feature family %q", family)
	}
	if userID == "" {
		return fmt.Errorf("user is required")
	}
	if err := g.users.Set(ctx, userID, family, enabled); err != nil {
		return err
	}
	g.bus.Emit("features", &events.FeatureToggledData{Family: family, UserID: userID, Enabled: enabled})
	return nil
}

// IsEnabled resolves a family for an optional user. System-off always wins;
// with no user the system switch decides; otherwise the user's switch does.
func (g *Gate) IsEnabled(ctx context.Context, family, userID string) (bool, error) {
	if !g.SystemEnabled(family) {
		return false, nil
	}
	if userID == "" {
		return true, nil
	}
	return g.users.Get(ctx, userID, family)
}

// Snapshot resolves every family for userID once and returns an immutable view.
func (g *Gate) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	flags := make(map[string]bool, len(Families))
	var stored map[string]bool
	if userID != "" {
		var err error
		stored, err = g.users.GetAll(ctx, userID)
		if err != nil {
			return Snapshot{}, err
		}
	}

	for _, family := range Families {
		enabled := g.SystemEnabled(family)
		if enabled && userID != "" {
			if v, ok := stored[family]; ok {
				enabled = v
			}
		}
		flags[family] = enabled
	}
	return Snapshot{userID: userID, flags: flags}, nil
}

// Snapshot is a resolved, read-only view of the gate for one request.
type Snapshot struct {
	userID string
	flags  map[string]bool
}

// AllEnabled is a snapshot with every family on.
func AllEnabled() Snapshot {
	return Snapshot{}
}

// Enabled reports whether family is on. Ungated families are always on.
func (s Snapshot) Enabled(family string) bool {
	if family == "" {
		return true
	}
	enabled, ok := s.flags[family]
	return !ok || enabled
}

// UserID returns the user the snapshot was taken for.
func (s Snapshot) UserID() string {
	return s.userID
}

// FamilyState describes one family for API responses.
type FamilyState struct {
	Family  string `json:"family"`
	System  bool   `json:"system_enabled"`
	User    *bool  `json:"user_enabled,omitempty"`
	Enabled bool   `json:"enabled"`
}

// States describes every family for userID.
func (g *Gate) States(ctx context.Context, userID string) ([]FamilyState, error) {
	snap, err := g.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	states := make([]FamilyState, 0, len(Families))
	for _, family := range Families {
		state := FamilyState{
			Family:  family,
			System:  g.SystemEnabled(family),
			Enabled: snap.Enabled(family),
		}
		if userID != "" {
			user, err := g.users.Get(ctx, userID, family)
			if err != nil {
				return nil, err
			}
			state.User = &user
		}
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Family < states[j].Family })
	return states, nil
}
