package domain

import "context"

// MarketDataProvider returns the latest market price for a ticker.
// Implementations own their caching and timeout policy and always return
// a terminal price or error.
type MarketDataProvider interface {
	LatestPrice(ctx context.Context, ticker string) (PriceQuote, error)
}

// TransactionLedger exposes the read side of the transaction ledger.
type TransactionLedger interface {
	// CompletedTransactions returns COMPLETED transactions of a position ordered by date.
	CompletedTransactions(ctx context.Context, positionID string) ([]Transaction, error)
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
}

// EntityResolver looks up portfolios and positions.
// Get methods return nil, nil when the entity does not exist.
type EntityResolver interface {
	GetPortfolio(ctx context.Context, id string) (*Portfolio, error)
	GetPosition(ctx context.Context, id string) (*Position, error)
	ActivePositions(ctx context.Context, portfolioID string) ([]Position, error)
	ActivePositionsAll(ctx context.Context) ([]Position, error)
}
