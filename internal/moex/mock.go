package moex

import (
	"context"
	"sync"
)

// MockProvider is an in-memory MarketDataProvider for tests.
type MockProvider struct {
	mu sync.Mutex

	Prices     map[string]float64
	CandleSets map[string][]Candle
	Books      map[string]*OrderBook
	Metas      map[string]*InstrumentMeta

	// Errs forces an error for an instrument across all operations.
	Errs map[string]error

	Calls int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		Prices:     make(map[string]float64),
		CandleSets: make(map[string][]Candle),
		Books:      make(map[string]*OrderBook),
		Metas:      make(map[string]*InstrumentMeta),
		Errs:       make(map[string]error),
	}
}

func (m *MockProvider) forced(instrument string) error {
	m.Calls++
	return m.Errs[instrument]
}

func (m *MockProvider) LastPrice(_ context.Context, instrument string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.forced(instrument); err != nil {
		return 0, err
	}
	p, ok := m.Prices[instrument]
	if !ok {
		return 0, ErrNotFound
	}
	return p, nil
}

func (m *MockProvider) Candles(_ context.Context, instrument, interval string, count int) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.forced(instrument); err != nil {
		return nil, err
	}
	cs, ok := m.CandleSets[instrument]
	if !ok {
		return nil, ErrNotFound
	}
	if len(cs) > count {
		cs = cs[len(cs)-count:]
	}
	out := make([]Candle, len(cs))
	copy(out, cs)
	return out, nil
}

func (m *MockProvider) OrderBook(_ context.Context, instrument string, _ int) (*OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.forced(instrument); err != nil {
		return nil, err
	}
	b, ok := m.Books[instrument]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MockProvider) InstrumentMeta(_ context.Context, instrument string) (*InstrumentMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.forced(instrument); err != nil {
		return nil, err
	}
	meta, ok := m.Metas[instrument]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *meta
	return &cp, nil
}
