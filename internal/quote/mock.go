package quote

import (
	"context"
	"fmt"
	"sync"
)

// MockSource returns controllable fixed prices for development and testing.
type MockSource struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  map[string]int
}

// NewMockSource creates a MockSource seeded with prices.
func NewMockSource(prices map[string]float64) *MockSource {
	m := &MockSource{
		prices: make(map[string]float64),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
	for s, p := range prices {
		m.prices[s] = p
	}
	return m
}

func (m *MockSource) Name() string { return "mock" }

// SetPrice sets the price returned for symbol.
func (m *MockSource) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
	delete(m.errs, symbol)
}

// SetError makes quotes for symbol fail with err.
func (m *MockSource) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

// Calls reports how many quotes were requested for symbol.
func (m *MockSource) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

func (m *MockSource) Quote(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[symbol]++
	if err, ok := m.errs[symbol]; ok {
		return 0, err
	}
	p, ok := m.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("mock %s: %w", symbol, ErrNoQuote)
	}
	return p, nil
}
