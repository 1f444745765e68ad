package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"PortfolioWatch/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Prices map[string]decimal.Decimal
	Bars   map[string][]model.OHLCV
	Errors map[string]error

	mu         sync.Mutex
	priceCalls map[string]int
	barCalls   map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDailyBars(ctx context.Context, symbol, _ string) ([]model.OHLCV, error) {
	m.count(&m.barCalls, symbol)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Errors[symbol]; err != nil {
		return nil, err
	}
	if bars, ok := m.Bars[symbol]; ok {
		return bars, nil
	}
	if p, ok := m.Prices[symbol]; ok {
		return generateMockBars(p, 30), nil
	}
	return nil, fmt.Errorf("mock: unknown symbol %s", symbol)
}

func (m *MockFetcher) FetchCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.count(&m.priceCalls, symbol)
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if err := m.Errors[symbol]; err != nil {
		return decimal.Zero, err
	}
	if p, ok := m.Prices[symbol]; ok {
		return p, nil
	}
	return decimal.Zero, fmt.Errorf("mock: unknown symbol %s", symbol)
}

// PriceCalls returns how many times FetchCurrentPrice was called for symbol.
func (m *MockFetcher) PriceCalls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.priceCalls[symbol]
}

// BarCalls returns how many times FetchDailyBars was called for symbol.
func (m *MockFetcher) BarCalls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.barCalls[symbol]
}

func (m *MockFetcher) count(calls *map[string]int, symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if *calls == nil {
		*calls = make(map[string]int)
	}
	(*calls)[symbol]++
}

// generateMockBars builds count daily bars ending yesterday with the last close at basePrice.
func generateMockBars(basePrice decimal.Decimal, count int) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	step := decimal.RequireFromString("0.001")
	for i := 0; i < count; i++ {
		p := basePrice.Mul(decimal.NewFromInt(1).Add(step.Mul(decimal.NewFromInt(int64(i - count + 1)))))
		bars[i] = model.OHLCV{
			Time:   time.Now().AddDate(0, 0, -(count - i)),
			Open:   p.Mul(decimal.RequireFromString("0.999")),
			High:   p.Mul(decimal.RequireFromString("1.005")),
			Low:    p.Mul(decimal.RequireFromString("0.995")),
			Close:  p,
			Volume: decimal.NewFromInt(1000000),
		}
	}
	return bars
}
