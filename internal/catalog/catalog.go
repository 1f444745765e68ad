package catalog

import (
	"fmt"
	"strings"

	"PortfolioWatch/internal/model"
)

// Entry is one tracked instrument.
type Entry struct {
	Ticker string
	Name   string
}

// Catalog is the fixed universe of instruments, in configuration order.
type Catalog struct {
	entries []Entry
	byTick  map[string]string
}

// New builds a catalog. Tickers must be non-empty and unique.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{byTick: make(map[string]string, len(entries))}
	for _, e := range entries {
		ticker := strings.TrimSpace(e.Ticker)
		if ticker == "" {
			return nil, fmt.Errorf("%w: catalog entry with empty ticker", model.ErrConfiguration)
		}
		if _, dup := c.byTick[ticker]; dup {
			return nil, fmt.Errorf("%w: duplicate catalog ticker %q", model.ErrConfiguration, ticker)
		}
		c.byTick[ticker] = e.Name
		c.entries = append(c.entries, Entry{Ticker: ticker, Name: e.Name})
	}
	return c, nil
}

// Name returns the display name for ticker.
func (c *Catalog) Name(ticker string) (string, bool) {
	name, ok := c.byTick[ticker]
	return name, ok
}

func (c *Catalog) Contains(ticker string) bool {
	_, ok := c.byTick[ticker]
	return ok
}

// Tickers returns all tickers in catalog order.
func (c *Catalog) Tickers() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Ticker
	}
	return out
}

func (c *Catalog) Len() int { return len(c.entries) }
