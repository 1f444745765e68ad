package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentKind is the share class of a fund: accumulating or distributing.
type InstrumentKind string

const (
	KindCapitalizing InstrumentKind = "capitalizing"
	KindDistributing InstrumentKind = "distributing"
)

// ParseInstrumentKind accepts the kind name case-insensitively.
func ParseInstrumentKind(s string) (InstrumentKind, error) {
	switch InstrumentKind(strings.ToLower(strings.TrimSpace(s))) {
	case KindCapitalizing:
		return KindCapitalizing, nil
	case KindDistributing:
		return KindDistributing, nil
	}
	return "", fmt.Errorf("%w: unknown instrument kind %q", ErrValidation, s)
}

func (k InstrumentKind) String() string { return string(k) }

func (k *InstrumentKind) UnmarshalText(text []byte) error {
	parsed, err := ParseInstrumentKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k InstrumentKind) MarshalText() ([]byte, error) { return []byte(k), nil }

// HoldingRef identifies one line item. The same ticker may be held at several brokers.
type HoldingRef struct {
	Ticker string
	Broker string
}

func (r HoldingRef) String() string { return r.Ticker + "@" + r.Broker }

// Holding is one line item of the portfolio.
type Holding struct {
	Ticker      string
	Broker      string
	CompanyName string
	Kind        InstrumentKind
	BuyIn       decimal.Decimal // cost basis per unit, immutable
	Quantity    decimal.Decimal
}

func (h Holding) Ref() HoldingRef { return HoldingRef{Ticker: h.Ticker, Broker: h.Broker} }

// DerivedMetrics are recomputed on every read. Nil pointers mean "no price yet".
type DerivedMetrics struct {
	LastPrice   *decimal.Decimal
	MarketValue *decimal.Decimal
	Performance *decimal.Decimal
	PriceAsOf   time.Time
	Stale       bool // price not refreshed by the most recent snapshot
}

// Priced reports whether a last price is known.
func (m DerivedMetrics) Priced() bool { return m.LastPrice != nil }

// ComputeMetrics derives market value and performance from a holding and its last price.
func ComputeMetrics(h Holding, lastPrice *decimal.Decimal) DerivedMetrics {
	if lastPrice == nil {
		return DerivedMetrics{}
	}
	price := *lastPrice
	value := price.Mul(h.Quantity)
	m := DerivedMetrics{LastPrice: &price, MarketValue: &value}
	if h.BuyIn.IsPositive() {
		perf := price.Sub(h.BuyIn).Div(h.BuyIn)
		m.Performance = &perf
	}
	return m
}

// Row pairs a holding with its derived metrics.
type Row struct {
	Holding Holding
	Metrics DerivedMetrics
}
