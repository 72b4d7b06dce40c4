package metrics

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/eqtrak/internal/domain"
)

// Status is the outcome of one evaluation. Only StatusOK carries a payload.
type Status string

const (
	StatusOK            Status = "OK"
	StatusNoValue       Status = "NO_VALUE"
	StatusSuppressed    Status = "SUPPRESSED"
	StatusScopeMismatch Status = "SCOPE_MISMATCH"
	StatusNotApplicable Status = "NOT_APPLICABLE"
)

// Reasons attached to non-OK results.
const (
	ReasonNoStoredValue       = "no stored value"
	ReasonMissingInput        = "required input has no value"
	ReasonZeroDenominator     = "denominator is zero"
	ReasonExternalUnavailable = "external data unavailable"
	ReasonTargetNotFound      = "target not found"
	ReasonInactive            = "metric inactive"
	ReasonNoProvider          = "no provider registered"
	ReasonFeatureDisabled     = "feature family disabled"
)

// Result is what the engine returns for (metric, target).
type Result struct {
	Numeric    *decimal.Decimal `json:"numeric_value,omitempty"`
	Text       *string          `json:"text_value,omitempty"`
	Stored     *Value           `json:"stored,omitempty"`
	MetricID   string           `json:"metric_id"`
	Target     domain.Target    `json:"target"`
	Status     Status           `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	Provenance string           `json:"provenance,omitempty"`
}

// OK reports whether the result carries a value.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Decimal returns the numeric payload and whether it is present.
func (r Result) Decimal() (decimal.Decimal, bool) {
	if r.Status != StatusOK || r.Numeric == nil {
		return decimal.Zero, false
	}
	return *r.Numeric, true
}

// DecimalOrZero returns the numeric payload, or zero when there is none.
func (r Result) DecimalOrZero() decimal.Decimal {
	d, _ := r.Decimal()
	return d
}

// Number builds an OK numeric result.
func Number(d decimal.Decimal) Result {
	return Result{Status: StatusOK, Numeric: &d, Provenance: ProvenanceComputed}
}

// NoValue builds a NoValue result.
func NoValue(reason string) Result {
	return Result{Status: StatusNoValue, Reason: reason}
}

// NotApplicable builds a NotApplicable result.
func NotApplicable(reason string) Result {
	return Result{Status: StatusNotApplicable, Reason: reason}
}

func fromStored(v *Value) Result {
	if v == nil {
		return NoValue(ReasonNoStoredValue)
	}
	return Result{
		Status:     StatusOK,
		Numeric:    v.Numeric,
		Text:       v.Text,
		Stored:     v,
		Provenance: v.Provenance,
	}
}
