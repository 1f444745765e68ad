package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"PortfolioWatch/internal/calculator"
	"PortfolioWatch/internal/model"
)

var hundred = decimal.NewFromInt(100)

// FormatMoney renders amount in currency, rounded to the currency's minor unit.
// Unknown currency codes fall back to "<amount> <code>".
func FormatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(amount.Mul(factor).Round(0).IntPart(), cur.Code).Display()
}

// FormatPercent renders a fraction (0.1 = 10%) as a signed percentage.
func FormatPercent(fraction decimal.Decimal) string {
	p := fraction.Mul(hundred).StringFixed(2) + "%"
	if fraction.IsPositive() {
		return "+" + p
	}
	return p
}

// FormatRefreshFailure is sent when refreshes start failing.
func FormatRefreshFailure(trigger, errText string, at time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("⚠️ <b>Price refresh failed</b> | %s\n\n", at.Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Trigger: %s\n", trigger))
	b.WriteString(fmt.Sprintf("Error: %s\n", html.EscapeString(errText)))
	b.WriteString("\nShowing last known prices.")
	return b.String()
}

// FormatRefreshRecovered is sent on the first successful refresh after a failure.
func FormatRefreshRecovered(updated int, at time.Time) string {
	return fmt.Sprintf("✅ <b>Price refresh recovered</b> | %s\n\n%d tickers updated.", at.Format("2006-01-02 15:04"), updated)
}

// FormatPortfolio renders the holdings table and totals.
func FormatPortfolio(rows []model.Row, agg model.PortfolioAggregate, currency string, lastRefresh time.Time) string {
	var b strings.Builder
	b.WriteString("📊 <b>Portfolio</b>")
	if !lastRefresh.IsZero() {
		b.WriteString(fmt.Sprintf(" | %s", lastRefresh.Format("2006-01-02 15:04")))
	}
	b.WriteString("\n\n")

	for _, r := range rows {
		h := r.Holding
		b.WriteString(fmt.Sprintf("<b>%s</b> %s @ %s\n", h.Ticker, html.EscapeString(h.CompanyName), h.Broker))
		b.WriteString(fmt.Sprintf("  Qty: %s | Buy-in: %s\n", h.Quantity.String(), FormatMoney(h.BuyIn, currency)))
		if !r.Metrics.Priced() {
			b.WriteString("  Price: n/a\n")
			continue
		}
		line := fmt.Sprintf("  Price: %s | Value: %s", FormatMoney(*r.Metrics.LastPrice, currency), FormatMoney(*r.Metrics.MarketValue, currency))
		if r.Metrics.Performance != nil {
			line += " | " + FormatPercent(*r.Metrics.Performance)
		}
		if r.Metrics.Stale {
			line += " (stale)"
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("  ─────────────────\n")
	b.WriteString(fmt.Sprintf("Total: %s", FormatMoney(agg.TotalMarketValue, currency)))
	if agg.UnpricedRows > 0 {
		b.WriteString(fmt.Sprintf(" (%d unpriced)", agg.UnpricedRows))
	}
	return b.String()
}

// FormatAllocation renders shares largest first.
func FormatAllocation(title string, shares map[string]decimal.Decimal) string {
	keys := make([]string, 0, len(shares))
	for k := range shares {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c := shares[keys[i]].Cmp(shares[keys[j]]); c != 0 {
			return c > 0
		}
		return keys[i] < keys[j]
	})

	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>%s</b>\n", title))
	if len(keys) == 0 {
		b.WriteString("  no priced holdings\n")
	}
	for _, k := range keys {
		b.WriteString(fmt.Sprintf("  %s: %s%%\n", k, shares[k].Mul(hundred).StringFixed(2)))
	}
	return b.String()
}

// FormatHistory renders the statistics of a ticker's daily history.
func FormatHistory(ticker, name string, s calculator.HistorySummary, currency string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>%s</b> %s\n\n", ticker, html.EscapeString(name)))
	b.WriteString(fmt.Sprintf("%d bars, %s to %s\n", s.Bars, s.From.Format("2006-01-02"), s.To.Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Last close: %s\n", FormatMoney(s.LastClose, currency)))
	b.WriteString(fmt.Sprintf("52w range: %s - %s (position %s%%)\n",
		FormatMoney(s.Low52w, currency), FormatMoney(s.High52w, currency), s.Position52w.Mul(hundred).StringFixed(0)))
	b.WriteString(fmt.Sprintf("30d range: %s - %s\n", FormatMoney(s.Low30d, currency), FormatMoney(s.High30d, currency)))
	if s.MA50 != nil {
		b.WriteString(fmt.Sprintf("MA50: %s\n", FormatMoney(*s.MA50, currency)))
	}
	if s.MA200 != nil {
		b.WriteString(fmt.Sprintf("MA200: %s\n", FormatMoney(*s.MA200, currency)))
	}
	return b.String()
}
