// Package allocation computes portfolio totals and breakdowns from a snapshot.
// All functions are pure and safe for concurrent use.
package allocation

import (
	"github.com/shopspring/decimal"

	"PortfolioWatch/internal/model"
)

// sharePlaces is the rounding applied to allocation shares.
const sharePlaces = 16

// Aggregate sums the market value of priced rows and computes each ticker's
// share of that total. Unpriced rows are excluded, not counted as zero.
func Aggregate(rows []model.Row) model.PortfolioAggregate {
	var agg model.PortfolioAggregate
	byTicker := groupBy(rows, func(h model.Holding) string { return h.Ticker })

	for _, row := range rows {
		if row.Metrics.MarketValue == nil {
			agg.UnpricedRows++
			continue
		}
		agg.PricedRows++
		agg.TotalMarketValue = agg.TotalMarketValue.Add(*row.Metrics.MarketValue)
	}
	agg.Allocation = shares(byTicker, agg.TotalMarketValue)
	return agg
}

// ByBroker returns each broker's share of the priced total.
func ByBroker(rows []model.Row) map[string]decimal.Decimal {
	groups := groupBy(rows, func(h model.Holding) string { return h.Broker })
	return shares(groups, total(groups))
}

// ByKind returns each instrument kind's share of the priced total.
func ByKind(rows []model.Row) map[string]decimal.Decimal {
	groups := groupBy(rows, func(h model.Holding) string { return h.Kind.String() })
	return shares(groups, total(groups))
}

func groupBy(rows []model.Row, key func(model.Holding) string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, row := range rows {
		if row.Metrics.MarketValue == nil {
			continue
		}
		k := key(row.Holding)
		out[k] = out[k].Add(*row.Metrics.MarketValue)
	}
	return out
}

func total(groups map[string]decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range groups {
		sum = sum.Add(v)
	}
	return sum
}

func shares(groups map[string]decimal.Decimal, sum decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(groups))
	if sum.IsZero() {
		return out
	}
	for k, v := range groups {
		out[k] = v.DivRound(sum, sharePlaces)
	}
	return out
}
