// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ScopeType is the entity kind a metric is defined over.
type ScopeType string

const (
	ScopePortfolio   ScopeType = "PORTFOLIO"
	ScopePosition    ScopeType = "POSITION"
	ScopeTransaction ScopeType = "TRANSACTION"
)

// Valid reports whether s is one of the three known scopes.
func (s ScopeType) Valid() bool {
	switch s {
	case ScopePortfolio, ScopePosition, ScopeTransaction:
		return true
	}
	return false
}

// ParseScope parses a scope name, case sensitive.
func ParseScope(s string) (ScopeType, error) {
	scope := ScopeType(s)
	if !scope.Valid() {
		return "", fmt.Errorf("unknown scope %q", s)
	}
	return scope, nil
}

// Target identifies the scoped object a metric is evaluated for.
// Exactly one entity kind is active, named by Scope.
type Target struct {
	Scope ScopeType `json:"scope"`
	ID    string    `json:"id"`
}

// PortfolioTarget returns the target for a portfolio.
func PortfolioTarget(id string) Target { return Target{Scope: ScopePortfolio, ID: id} }

// PositionTarget returns the target for a position.
func PositionTarget(id string) Target { return Target{Scope: ScopePosition, ID: id} }

// TransactionTarget returns the target for a transaction.
func TransactionTarget(id string) Target { return Target{Scope: ScopeTransaction, ID: id} }

// Key is the stable string form used for storage and memoization.
func (t Target) Key() string {
	return string(t.Scope) + ":" + t.ID
}

func (t Target) String() string { return t.Key() }

// Valid reports whether the target names a known scope and a non-empty id.
func (t Target) Valid() bool {
	return t.Scope.Valid() && t.ID != ""
}

// Portfolio is a user's collection of positions.
type Portfolio struct {
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Currency    string    `json:"currency"`
	IsActive    bool      `json:"is_active"`
}

// PositionType classifies the instrument held by a position.
type PositionType string

const (
	PositionTypeStock  PositionType = "STOCK"
	PositionTypeETF    PositionType = "ETF"
	PositionTypeCrypto PositionType = "CRYPTO"
)

// Position is a holding of one ticker inside a portfolio.
type Position struct {
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	ID           string       `json:"id"`
	PortfolioID  string       `json:"portfolio_id"`
	Ticker       string       `json:"ticker"`
	PositionType PositionType `json:"position_type"`
	IsActive     bool         `json:"is_active"`
}

// TransactionType is the kind of ledger entry.
type TransactionType string

const (
	TransactionBuy      TransactionType = "BUY"
	TransactionSell     TransactionType = "SELL"
	TransactionDividend TransactionType = "DIVIDEND"
	TransactionSplit    TransactionType = "SPLIT"
	TransactionMerger   TransactionType = "MERGER"
)

// TransactionStatus is the settlement state of a ledger entry.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusCancelled TransactionStatus = "CANCELLED"
	StatusFailed    TransactionStatus = "FAILED"
)

// Transaction is an append-only buy/sell (or corporate action) record for a position.
type Transaction struct {
	Date       time.Time         `json:"date"`
	CreatedAt  time.Time         `json:"created_at"`
	ID         string            `json:"id"`
	PositionID string            `json:"position_id"`
	Type       TransactionType   `json:"transaction_type"`
	Status     TransactionStatus `json:"status"`
	Currency   string            `json:"currency"`
	Notes      string            `json:"notes,omitempty"`
	Quantity   decimal.Decimal   `json:"quantity"`
	Price      decimal.Decimal   `json:"price"`
	Fees       decimal.Decimal   `json:"fees"`
}

// TotalAmount is quantity × price.
func (t Transaction) TotalAmount() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// TotalWithFees is quantity × price + fees.
func (t Transaction) TotalWithFees() decimal.Decimal {
	return t.TotalAmount().Add(t.Fees)
}

// Proceeds is what a sale returns net of fees.
func (t Transaction) Proceeds() decimal.Decimal {
	return t.TotalAmount().Sub(t.Fees)
}

// SharesImpact is +quantity for buys, -quantity for sells and zero otherwise.
func (t Transaction) SharesImpact() decimal.Decimal {
	switch t.Type {
	case TransactionBuy:
		return t.Quantity
	case TransactionSell:
		return t.Quantity.Neg()
	}
	return decimal.Zero
}

// Impact is the signed cash footprint on the position: +total with fees for buys,
// -total with fees for sells, zero otherwise.
func (t Transaction) Impact() decimal.Decimal {
	switch t.Type {
	case TransactionBuy:
		return t.TotalWithFees()
	case TransactionSell:
		return t.TotalWithFees().Neg()
	}
	return decimal.Zero
}

// PriceQuote is a market price observation for a ticker.
type PriceQuote struct {
	Date   time.Time       `json:"date"`
	Ticker string          `json:"ticker"`
	Source string          `json:"source"`
	Price  decimal.Decimal `json:"price"`
}
