package recorder

import (
	"time"

	"github.com/shopspring/decimal"

	"PortfolioWatch/internal/model"
)

// RefreshEvent describes one refresh attempt and the valuation it produced.
type RefreshEvent struct {
	RunID            string
	Kind             string // "history" or "latest"
	Trigger          string // "startup", "scheduled" or "manual"
	StartedAt        time.Time
	Duration         time.Duration
	Status           string // "ok" or "failed"
	Updated          []string
	TotalMarketValue decimal.Decimal
	Error            string
	Rows             []model.Row // snapshot after the attempt
}

// Recorder keeps an append-only history of refresh attempts for analysis.
// Nothing in the pipeline reads it back.
type Recorder interface {
	RecordRefresh(evt *RefreshEvent) error
	Close() error
}
