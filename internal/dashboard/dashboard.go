// Package dashboard is the presentation boundary: it turns store state into
// display rows and routes user actions back to the store and the refresher.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"PortfolioWatch/internal/allocation"
	"PortfolioWatch/internal/calculator"
	"PortfolioWatch/internal/model"
	"PortfolioWatch/internal/notifier"
	"PortfolioWatch/internal/scheduler"
)

// Store is the part of the portfolio store the dashboard reads and edits.
type Store interface {
	CurrentSnapshot() []model.Row
	SetQuantity(ref model.HoldingRef, qty decimal.Decimal) error
	History(ticker string) ([]model.OHLCV, bool)
}

// Refresher is the part of the scheduler the dashboard triggers.
type Refresher interface {
	RefreshNow(ctx context.Context) error
	Status() scheduler.Status
}

// Trend highlights a holding's performance.
type Trend int

const (
	TrendNeutral Trend = iota
	TrendGood
	TrendBad
)

func (t Trend) String() string {
	switch t {
	case TrendGood:
		return "good"
	case TrendBad:
		return "bad"
	}
	return "neutral"
}

// goodThreshold is the performance above which a holding is highlighted as good.
var goodThreshold = decimal.RequireFromString("0.045")

// TrendOf classifies a performance fraction: above 4.5% is good, below zero is bad.
func TrendOf(perf *decimal.Decimal) Trend {
	switch {
	case perf == nil:
		return TrendNeutral
	case perf.GreaterThan(goodThreshold):
		return TrendGood
	case perf.IsNegative():
		return TrendBad
	}
	return TrendNeutral
}

// DisplayRow is one formatted table line. Unpriced cells are empty strings.
type DisplayRow struct {
	Ref         model.HoldingRef
	CompanyName string
	Kind        string
	Quantity    string
	BuyIn       string
	LastPrice   string
	MarketValue string
	Performance string
	Trend       Trend
	Stale       bool
	Row         model.Row
}

// View is everything a frontend needs to draw the portfolio.
type View struct {
	Rows        []DisplayRow
	Aggregate   model.PortfolioAggregate
	Total       string
	LastRefresh time.Time
	State       scheduler.State
}

// Dashboard adapts the store and refresher for a frontend.
type Dashboard struct {
	store     Store
	refresher Refresher
	currency  string
	log       zerolog.Logger
}

// New creates a Dashboard that formats amounts in currency.
func New(store Store, refresher Refresher, currency string, log zerolog.Logger) *Dashboard {
	return &Dashboard{
		store:     store,
		refresher: refresher,
		currency:  currency,
		log:       log.With().Str("component", "dashboard").Logger(),
	}
}

// View builds the current view from one consistent store snapshot.
func (d *Dashboard) View() View {
	rows := d.store.CurrentSnapshot()
	agg := allocation.Aggregate(rows)
	st := d.refresher.Status()

	v := View{
		Rows:        make([]DisplayRow, len(rows)),
		Aggregate:   agg,
		Total:       notifier.FormatMoney(agg.TotalMarketValue, d.currency),
		LastRefresh: st.LastRefresh,
		State:       st.State,
	}
	for i, r := range rows {
		v.Rows[i] = d.displayRow(r)
	}
	return v
}

func (d *Dashboard) displayRow(r model.Row) DisplayRow {
	h, m := r.Holding, r.Metrics
	dr := DisplayRow{
		Ref:         h.Ref(),
		CompanyName: h.CompanyName,
		Kind:        h.Kind.String(),
		Quantity:    h.Quantity.String(),
		BuyIn:       notifier.FormatMoney(h.BuyIn, d.currency),
		Trend:       TrendOf(m.Performance),
		Stale:       m.Stale,
		Row:         r,
	}
	if m.LastPrice != nil {
		dr.LastPrice = notifier.FormatMoney(*m.LastPrice, d.currency)
	}
	if m.MarketValue != nil {
		dr.MarketValue = notifier.FormatMoney(*m.MarketValue, d.currency)
	}
	if m.Performance != nil {
		dr.Performance = notifier.FormatPercent(*m.Performance)
	}
	return dr
}

// OnQuantityEdited applies a quantity typed by the user. A comma is accepted
// as decimal separator.
func (d *Dashboard) OnQuantityEdited(ref model.HoldingRef, value string) error {
	value = strings.ReplaceAll(strings.TrimSpace(value), ",", ".")
	qty, err := decimal.NewFromString(value)
	if err != nil {
		return fmt.Errorf("%w: quantity %q is not a number", model.ErrValidation, value)
	}
	return d.store.SetQuantity(ref, qty)
}

// OnManualRefreshRequested triggers an immediate refresh.
func (d *Dashboard) OnManualRefreshRequested(ctx context.Context) error {
	return d.refresher.RefreshNow(ctx)
}

const helpText = `<b>Commands</b>
/portfolio - holdings and total value
/refresh - refresh prices now
/qty TICKER BROKER N - set a holding's quantity
/history TICKER - price history statistics
/allocation - allocation by ticker, broker and kind`

// HandleCommand answers a chat command.
func (d *Dashboard) HandleCommand(text string) string {
	return d.HandleCommandContext(context.Background(), text)
}

// HandleCommandContext answers a chat command; ctx bounds a triggered refresh.
func (d *Dashboard) HandleCommandContext(ctx context.Context, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return helpText
	}
	// "/cmd@botname" in group chats
	cmd, _, _ := strings.Cut(strings.ToLower(fields[0]), "@")
	args := fields[1:]
	d.log.Debug().Str("command", cmd).Strs("args", args).Msg("handling command")

	switch cmd {
	case "/portfolio", "/status":
		return d.portfolioText()
	case "/refresh":
		return d.refreshText(ctx)
	case "/qty":
		return d.qtyText(args)
	case "/history":
		return d.historyText(args)
	case "/allocation":
		return d.allocationText()
	}
	return helpText
}

func (d *Dashboard) portfolioText() string {
	rows := d.store.CurrentSnapshot()
	return notifier.FormatPortfolio(rows, allocation.Aggregate(rows), d.currency, d.refresher.Status().LastRefresh)
}

func (d *Dashboard) refreshText(ctx context.Context) string {
	err := d.OnManualRefreshRequested(ctx)
	switch {
	case errors.Is(err, model.ErrRefreshInFlight):
		return "⏳ A refresh is already running."
	case err != nil:
		return fmt.Sprintf("⚠️ Refresh failed: %v\nShowing last known prices.\n\n%s", err, d.portfolioText())
	}
	return d.portfolioText()
}

func (d *Dashboard) qtyText(args []string) string {
	if len(args) != 3 {
		return "Usage: /qty TICKER BROKER N"
	}
	ref := model.HoldingRef{Ticker: strings.ToUpper(args[0]), Broker: args[1]}
	if err := d.OnQuantityEdited(ref, args[2]); err != nil {
		switch {
		case errors.Is(err, model.ErrUnknownHolding):
			return fmt.Sprintf("No holding %s.", ref)
		case errors.Is(err, model.ErrValidation):
			return fmt.Sprintf("Invalid quantity: %v", err)
		}
		return fmt.Sprintf("Could not update %s: %v", ref, err)
	}
	return fmt.Sprintf("✅ %s quantity set to %s.", ref, args[2])
}

func (d *Dashboard) historyText(args []string) string {
	if len(args) != 1 {
		return "Usage: /history TICKER"
	}
	ticker := strings.ToUpper(args[0])
	bars, ok := d.store.History(ticker)
	if !ok {
		return fmt.Sprintf("No price history for %s yet.", ticker)
	}
	summary, ok := calculator.Summarize(bars)
	if !ok {
		return fmt.Sprintf("No price history for %s yet.", ticker)
	}
	name := ""
	for _, r := range d.store.CurrentSnapshot() {
		if r.Holding.Ticker == ticker {
			name = r.Holding.CompanyName
			break
		}
	}
	return notifier.FormatHistory(ticker, name, summary, d.currency)
}

func (d *Dashboard) allocationText() string {
	rows := d.store.CurrentSnapshot()
	var b strings.Builder
	b.WriteString(notifier.FormatAllocation("By ticker", allocation.Aggregate(rows).Allocation))
	b.WriteString("\n")
	b.WriteString(notifier.FormatAllocation("By broker", allocation.ByBroker(rows)))
	b.WriteString("\n")
	b.WriteString(notifier.FormatAllocation("By kind", allocation.ByKind(rows)))
	return b.String()
}
