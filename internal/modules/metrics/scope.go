package metrics

import (
	"github.com/aristath/eqtrak/internal/domain"
)

// Target field names of the value store's one-of-three reference.
const (
	FieldPortfolio   = "portfolio"
	FieldPosition    = "position"
	FieldTransaction = "transaction"
)

// TargetField returns which foreign reference stores values of def.
func TargetField(def *Definition) string {
	switch def.Scope {
	case domain.ScopePortfolio:
		return FieldPortfolio
	case domain.ScopePosition:
		return FieldPosition
	case domain.ScopeTransaction:
		return FieldTransaction
	}
	return ""
}

// ValidateScope reports whether target is a valid target for def.
func ValidateScope(def *Definition, target domain.Target) bool {
	return def != nil && target.Valid() && def.Scope == target.Scope
}

// scopeRelation describes how a dependency's scope is reached from the dependent's scope.
type scopeRelation int

const (
	relationInvalid scopeRelation = iota
	relationSame
	relationParent // position -> portfolio, transaction -> position or portfolio
	relationRollup // portfolio -> every active position
)

func relationBetween(from, to domain.ScopeType) scopeRelation {
	if from == to {
		return relationSame
	}
	switch from {
	case domain.ScopePortfolio:
		if to == domain.ScopePosition {
			return relationRollup
		}
	case domain.ScopePosition:
		if to == domain.ScopePortfolio {
			return relationParent
		}
	case domain.ScopeTransaction:
		if to == domain.ScopePosition || to == domain.ScopePortfolio {
			return relationParent
		}
	}
	return relationInvalid
}
