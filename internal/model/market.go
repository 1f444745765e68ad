package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// PriceSeries holds the price history of one ticker plus its most recent close.
type PriceSeries struct {
	Bars   []OHLCV
	Latest decimal.Decimal // zero when only the bars are known
	AsOf   time.Time
}

// LatestClose returns Latest if set, otherwise the close of the last bar.
func (s PriceSeries) LatestClose() (decimal.Decimal, bool) {
	if !s.Latest.IsZero() {
		return s.Latest, true
	}
	if n := len(s.Bars); n > 0 {
		return s.Bars[n-1].Close, true
	}
	return decimal.Zero, false
}

// PriceSnapshot maps ticker to its price series for one refresh.
type PriceSnapshot map[string]PriceSeries

// PortfolioAggregate is the portfolio total and its breakdown, computed on demand.
type PortfolioAggregate struct {
	TotalMarketValue decimal.Decimal
	Allocation       map[string]decimal.Decimal // ticker -> share of total
	PricedRows       int
	UnpricedRows     int
}
