package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/eqtrak/internal/domain"
)

// MockMarketDataProvider is a mock implementation of domain.MarketDataProvider.
// This mock is thread-safe and can be used in concurrent tests.
type MockMarketDataProvider struct {
	prices map[string]decimal.Decimal
	err    error
	calls  []string
	mu     sync.Mutex
}

// NewMockMarketDataProvider creates a new mock market data provider
func NewMockMarketDataProvider() *MockMarketDataProvider {
	return &MockMarketDataProvider{
		prices: make(map[string]decimal.Decimal),
	}
}

// SetPrice sets the price returned for ticker
func (m *MockMarketDataProvider) SetPrice(ticker string, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[ticker] = decimal.RequireFromString(price)
}

// SetError sets an error returned for every lookup
func (m *MockMarketDataProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the tickers requested so far
func (m *MockMarketDataProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// LatestPrice returns the configured price for ticker
func (m *MockMarketDataProvider) LatestPrice(ctx context.Context, ticker string) (domain.PriceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ticker)

	if m.err != nil {
		return domain.PriceQuote{}, m.err
	}
	price, ok := m.prices[ticker]
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("no price for %s", ticker)
	}
	return domain.PriceQuote{
		Date:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Ticker: ticker,
		Source: "MOCK",
		Price:  price,
	}, nil
}
