package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/eqtrak/internal/domain"
)

func TestSystemID_IsStable(t *testing.T) {
	assert.Equal(t, SystemID(KeyCostBasis), SystemID(KeyCostBasis))
	assert.NotEqual(t, SystemID(KeyCostBasis), SystemID(KeyCurrentValue))
}

func TestSystemCatalog_IsValid(t *testing.T) {
	catalog := SystemCatalog()
	require.NoError(t, ValidateCatalog(catalog))

	for _, def := range catalog {
		assert.True(t, def.IsSystem, def.Name)
		if def.Family == FamilyPerformance {
			assert.True(t, def.IsDerived, def.Name)
		}
		if def.IsDerived {
			assert.True(t, def.Formula.Valid(), def.Name)
		}
	}
}

func TestRegistry_BootstrapIsIdempotent(t *testing.T) {
	h := newHarness(t)

	n, err := h.registry.Bootstrap(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, len(systemCatalog), n)

	all, err := h.defs.List(h.ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, len(systemCatalog))

	def := h.def(KeyPositionGainPct)
	assert.Equal(t, []string{SystemID(KeyCostBasis), SystemID(KeyCurrentValue)}, def.Dependencies)
	assert.Equal(t, FormulaPositionGainPct, def.Formula)
	assert.True(t, def.WriteThrough)
}

func TestRegistry_Lookup(t *testing.T) {
	h := newHarness(t)

	byID, err := h.registry.Lookup(h.ctx, SystemID(KeyCostBasis), domain.ScopePosition, nil)
	require.NoError(t, err)
	assert.Equal(t, "Cost Basis", byID.Name)

	byName, err := h.registry.Lookup(h.ctx, "cost basis", domain.ScopePosition, nil)
	require.NoError(t, err)
	assert.Equal(t, byID.ID, byName.ID)

	anyScope, err := h.registry.Lookup(h.ctx, "Cash Balance", "", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ScopePortfolio, anyScope.Scope)

	_, err = h.registry.Lookup(h.ctx, "Cost Basis", domain.ScopePortfolio, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.registry.Lookup(h.ctx, "nonexistent", "", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.registry.Lookup(h.ctx, "Position Gain/Loss (%)", domain.ScopePosition, familyView{FamilyPerformance: false})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ListForScope(t *testing.T) {
	h := newHarness(t)

	_, err := h.registry.CreateCustom(h.ctx, CustomMetric{
		Name: "Conviction", Scope: domain.ScopePosition, Kind: KindRatio, OwnerID: "alice",
	})
	require.NoError(t, err)
	_, err = h.registry.CreateCustom(h.ctx, CustomMetric{
		Name: "Target Price", Scope: domain.ScopePosition, Kind: KindPrice, OwnerID: "bob",
	})
	require.NoError(t, err)

	all, err := h.registry.ListForScope(h.ctx, domain.ScopePosition, ListOptions{IncludeSystem: true})
	require.NoError(t, err)
	assert.Len(t, all, 10)
	assert.Equal(t, "Total Shares", all[0].Name)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].DisplayOrder, all[i].DisplayOrder)
	}

	alice, err := h.registry.ListForScope(h.ctx, domain.ScopePosition, ListOptions{OwnerID: "alice"})
	require.NoError(t, err)
	require.Len(t, alice, 1)
	assert.Equal(t, "Conviction", alice[0].Name)

	gated, err := h.registry.ListForScope(h.ctx, domain.ScopePosition, ListOptions{
		IncludeSystem: true,
		OwnerID:       "alice",
		Features:      familyView{FamilyPerformance: false},
	})
	require.NoError(t, err)
	for _, def := range gated {
		assert.NotEqual(t, FamilyPerformance, def.Family, def.Name)
	}
	assert.Len(t, gated, 7)
}

func TestRegistry_CreateCustomValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		in   CustomMetric
		want error
	}{
		{"missing name", CustomMetric{Scope: domain.ScopePosition, Kind: KindRatio}, ErrInvalidDefinition},
		{"missing scope", CustomMetric{Name: "X", Kind: KindRatio}, ErrInvalidDefinition},
		{"missing kind", CustomMetric{Name: "X", Scope: domain.ScopePosition}, ErrInvalidDefinition},
		{"system name", CustomMetric{Name: "cost basis", Scope: domain.ScopePosition, Kind: KindRatio}, ErrDuplicateName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.registry.CreateCustom(h.ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	def, err := h.registry.CreateCustom(h.ctx, CustomMetric{
		Name: "Thesis", Scope: domain.ScopePosition, Kind: KindMemo, OwnerID: "alice", Tags: []string{" research ", ""},
	})
	require.NoError(t, err)
	assert.False(t, def.IsSystem)
	assert.False(t, def.IsDerived)
	assert.Empty(t, def.Formula)
	assert.Equal(t, []string{"research"}, def.Tags)

	_, err = h.registry.CreateCustom(h.ctx, CustomMetric{Name: "thesis", Scope: domain.ScopePosition, Kind: KindMemo, OwnerID: "alice"})
	assert.ErrorIs(t, err, ErrDuplicateName)

	// Another user may reuse the name.
	_, err = h.registry.CreateCustom(h.ctx, CustomMetric{Name: "Thesis", Scope: domain.ScopePosition, Kind: KindMemo, OwnerID: "bob"})
	assert.NoError(t, err)
}

func TestRegistry_SystemMetricsAreReadOnly(t *testing.T) {
	h := newHarness(t)
	name := "Renamed"

	_, err := h.registry.Update(h.ctx, SystemID(KeyCostBasis), "alice", DefinitionPatch{Name: &name})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = h.registry.DeleteCustom(h.ctx, SystemID(KeyCostBasis), "alice")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.Equal(t, "Cost Basis", h.def(KeyCostBasis).Name)
}

func TestRegistry_UpdateAndDeleteCustom(t *testing.T) {
	h := newHarness(t)
	pf := h.portfolio()
	pos := h.position(pf.ID, "MSFT")

	def, err := h.registry.CreateCustom(h.ctx, CustomMetric{
		Name: "Conviction", Scope: domain.ScopePosition, Kind: KindRatio, OwnerID: "alice",
	})
	require.NoError(t, err)

	name := "Conviction Score"
	inactive := false
	_, err = h.registry.Update(h.ctx, def.ID, "bob", DefinitionPatch{Name: &name})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	updated, err := h.registry.Update(h.ctx, def.ID, "alice", DefinitionPatch{Name: &name, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Conviction Score", updated.Name)
	assert.False(t, updated.IsActive)

	amount := dec("0.8")
	_, err = h.values.Upsert(h.ctx, updated, ValueInput{
		Date: testToday, Numeric: &amount, Target: RefFor(domain.PositionTarget(pos.ID)),
	})
	require.NoError(t, err)

	require.NoError(t, h.registry.DeleteCustom(h.ctx, def.ID, "alice"))

	_, err = h.registry.Get(h.ctx, def.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, h.totalValueRows())
}

func TestValidateCatalog_Rejects(t *testing.T) {
	stored := func(id string, scope domain.ScopeType) Definition {
		return Definition{ID: id, Name: id, Scope: scope, Kind: KindCurrency, IsActive: true}
	}
	derived := func(id string, scope domain.ScopeType, deps ...string) Definition {
		d := stored(id, scope)
		d.IsDerived = true
		d.Formula = FormulaCostBasis
		d.Dependencies = deps
		return d
	}

	tests := []struct {
		name string
		defs []Definition
	}{
		{"unknown dependency", []Definition{derived("a", domain.ScopePosition, "missing")}},
		{"position cannot reach transaction", []Definition{
			derived("a", domain.ScopePosition, "t"), stored("t", domain.ScopeTransaction)}},
		{"portfolio cannot reach transaction", []Definition{
			derived("a", domain.ScopePortfolio, "t"), stored("t", domain.ScopeTransaction)}},
		{"stored metric with formula", []Definition{{ID: "s", Name: "s", Scope: domain.ScopePosition, Kind: KindPrice, Formula: FormulaCostBasis}}},
		{"unknown formula", []Definition{{ID: "s", Name: "s", Scope: domain.ScopePosition, Kind: KindPrice, IsDerived: true, Formula: "MAGIC"}}},
		{"unknown kind", []Definition{{ID: "s", Name: "s", Scope: domain.ScopePosition, Kind: "WEIGHT"}}},
		{"duplicate id", []Definition{stored("a", domain.ScopePosition), stored("a", domain.ScopePosition)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateCatalog(tt.defs), ErrInvalidDefinition)
		})
	}

	t.Run("cycle", func(t *testing.T) {
		err := ValidateCatalog([]Definition{
			derived("a", domain.ScopePosition, "b"),
			derived("b", domain.ScopePosition, "c"),
			derived("c", domain.ScopePosition, "a"),
		})
		var cycle *CycleError
		require.ErrorAs(t, err, &cycle)
		assert.Equal(t, []string{"a", "b", "c", "a"}, cycle.Path)
	})

	t.Run("allowed cross-scope edges", func(t *testing.T) {
		assert.NoError(t, ValidateCatalog([]Definition{
			stored("pos", domain.ScopePosition),
			stored("pf", domain.ScopePortfolio),
			derived("roll", domain.ScopePortfolio, "pos"),
			derived("parent", domain.ScopePosition, "pf"),
			derived("tx", domain.ScopeTransaction, "pos", "pf"),
		}))
	})
}
