// Package metrics implements the metric catalog, the value store and the
// dependency-ordered computation engine.
package metrics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/eqtrak/internal/domain"
)

// ValueKind is the payload kind of a metric. Memo metrics carry text, every
// other kind carries a number.
type ValueKind string

const (
	KindPrice      ValueKind = "PRICE"
	KindRatio      ValueKind = "RATIO"
	KindCurrency   ValueKind = "CURRENCY"
	KindPercentage ValueKind = "PERCENTAGE"
	KindShares     ValueKind = "SHARES"
	KindCount      ValueKind = "COUNT"
	KindMemo       ValueKind = "MEMO"
)

// Valid reports whether k is a known kind.
func (k ValueKind) Valid() bool {
	switch k {
	case KindPrice, KindRatio, KindCurrency, KindPercentage, KindShares, KindCount, KindMemo:
		return true
	}
	return false
}

// IsMemo reports whether values of this kind are text.
func (k ValueKind) IsMemo() bool {
	return k == KindMemo
}

// Provenance tags where a stored value came from. Any other non-empty string
// names an external source (for example a quote provider).
const (
	ProvenanceUser     = "USER"
	ProvenanceComputed = "COMPUTED"
)

// Scenario tags forecast values.
type Scenario string

const (
	ScenarioNone Scenario = ""
	ScenarioBase Scenario = "BASE"
	ScenarioBull Scenario = "BULL"
	ScenarioBear Scenario = "BEAR"
)

// Valid reports whether s is a known scenario (including none).
func (s Scenario) Valid() bool {
	switch s {
	case ScenarioNone, ScenarioBase, ScenarioBull, ScenarioBear:
		return true
	}
	return false
}

// Definition describes one metric. Derived definitions name a formula and
// an ordered dependency list; stored definitions are read from the value store.
type Definition struct {
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	Scope        domain.ScopeType `json:"scope"`
	Kind         ValueKind        `json:"value_kind"`
	Formula      Formula          `json:"formula,omitempty"`
	Family       string           `json:"family,omitempty"`
	OwnerID      string           `json:"owner_id,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
	Dependencies []string         `json:"dependencies,omitempty"`
	DisplayOrder int              `json:"display_order"`
	IsSystem     bool             `json:"is_system"`
	IsActive     bool             `json:"is_active"`
	IsDerived    bool             `json:"is_derived"`
	WriteThrough bool             `json:"write_through"`
}

// Value is one stored observation of a metric for a target on a date.
type Value struct {
	ValueDate  time.Time        `json:"value_date"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	Numeric    *decimal.Decimal `json:"numeric_value,omitempty"`
	Text       *string          `json:"text_value,omitempty"`
	Confidence *float64         `json:"confidence,omitempty"`
	ID         string           `json:"id"`
	MetricID   string           `json:"metric_id"`
	Target     domain.Target    `json:"target"`
	Provenance string           `json:"provenance"`
	Scenario   Scenario         `json:"scenario,omitempty"`
	Notes      string           `json:"notes,omitempty"`
	IsForecast bool             `json:"is_forecast"`
}

// TargetRef is the raw one-of-three foreign reference carried by a write.
// Exactly one field must be set.
type TargetRef struct {
	PortfolioID   string `json:"portfolio_id,omitempty"`
	PositionID    string `json:"position_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// RefFor returns the reference that addresses t.
func RefFor(t domain.Target) TargetRef {
	switch t.Scope {
	case domain.ScopePortfolio:
		return TargetRef{PortfolioID: t.ID}
	case domain.ScopePosition:
		return TargetRef{PositionID: t.ID}
	case domain.ScopeTransaction:
		return TargetRef{TransactionID: t.ID}
	}
	return TargetRef{}
}

// Target converts the reference into a tagged target. It fails unless
// exactly one field is set.
func (r TargetRef) Target() (domain.Target, error) {
	var targets []domain.Target
	if r.PortfolioID != "" {
		targets = append(targets, domain.PortfolioTarget(r.PortfolioID))
	}
	if r.PositionID != "" {
		targets = append(targets, domain.PositionTarget(r.PositionID))
	}
	if r.TransactionID != "" {
		targets = append(targets, domain.TransactionTarget(r.TransactionID))
	}
	if len(targets) != 1 {
		return domain.Target{}, invalid("exactly one of portfolio, position or transaction must be set (got %d)", len(targets))
	}
	return targets[0], nil
}

// ValueInput is the payload of an upsert.
type ValueInput struct {
	Date       time.Time
	Numeric    *decimal.Decimal
	Text       *string
	Confidence *float64
	Target     TargetRef
	Provenance string // defaults to USER
	Scenario   Scenario
	Notes      string
	IsForecast bool
}
