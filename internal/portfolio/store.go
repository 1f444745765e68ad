package portfolio

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"PortfolioWatch/internal/catalog"
	"PortfolioWatch/internal/model"
)

// quote is the held price state of one ticker.
type quote struct {
	price decimal.Decimal
	bars  []model.OHLCV
	asOf  time.Time
	stale bool
}

// Store owns the holdings and their prices. Holdings and quotes are guarded
// together by one lock so readers never see a half-applied write.
type Store struct {
	mu       sync.RWMutex
	holdings []model.Holding
	index    map[model.HoldingRef]int
	tickers  []string
	quotes   map[string]quote
	closed   bool

	now func() time.Time
	log zerolog.Logger
}

// New builds a store from the seed holdings. Every ticker must be in the catalog.
func New(seed []model.Holding, cat *catalog.Catalog, log zerolog.Logger) (*Store, error) {
	if cat == nil {
		return nil, fmt.Errorf("%w: nil catalog", model.ErrConfiguration)
	}
	s := &Store{
		holdings: make([]model.Holding, 0, len(seed)),
		index:    make(map[model.HoldingRef]int, len(seed)),
		quotes:   make(map[string]quote),
		now:      time.Now,
		log:      log.With().Str("component", "portfolio").Logger(),
	}
	seen := make(map[string]bool)
	for _, h := range seed {
		name, ok := cat.Name(h.Ticker)
		if !ok {
			return nil, fmt.Errorf("%w: holding %s references ticker absent from catalog", model.ErrConfiguration, h.Ref())
		}
		if _, dup := s.index[h.Ref()]; dup {
			return nil, fmt.Errorf("%w: duplicate holding %s", model.ErrConfiguration, h.Ref())
		}
		if !h.BuyIn.IsPositive() {
			return nil, fmt.Errorf("%w: holding %s buy-in must be positive, got %s", model.ErrConfiguration, h.Ref(), h.BuyIn)
		}
		if h.Quantity.IsNegative() {
			return nil, fmt.Errorf("%w: holding %s quantity must not be negative, got %s", model.ErrConfiguration, h.Ref(), h.Quantity)
		}
		h.CompanyName = name
		s.index[h.Ref()] = len(s.holdings)
		s.holdings = append(s.holdings, h)
		if !seen[h.Ticker] {
			seen[h.Ticker] = true
			s.tickers = append(s.tickers, h.Ticker)
		}
	}
	s.log.Info().Int("holdings", len(s.holdings)).Int("tickers", len(s.tickers)).Msg("portfolio initialized")
	return s, nil
}

// Tickers returns the distinct tickers held, in insertion order.
func (s *Store) Tickers() []string {
	out := make([]string, len(s.tickers))
	copy(out, s.tickers)
	return out
}

// ApplyPriceSnapshot replaces the price of every held ticker present in snap.
// Held tickers missing from snap keep their previous price and are flagged stale.
// It returns the tickers that were updated.
func (s *Store) ApplyPriceSnapshot(snap model.PriceSnapshot) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	now := s.now()
	var updated []string
	for _, ticker := range s.tickers {
		series, ok := snap[ticker]
		var price decimal.Decimal
		if ok {
			price, ok = series.LatestClose()
		}
		if !ok || !price.IsPositive() {
			if q, had := s.quotes[ticker]; had {
				q.stale = true
				s.quotes[ticker] = q
			}
			continue
		}

		q := s.quotes[ticker]
		q.price = price
		q.stale = false
		q.asOf = series.AsOf
		if q.asOf.IsZero() {
			q.asOf = now
		}
		if len(series.Bars) > 0 {
			q.bars = append([]model.OHLCV(nil), series.Bars...)
		}
		s.quotes[ticker] = q
		updated = append(updated, ticker)
	}

	s.log.Debug().Int("updated", len(updated)).Int("tickers", len(s.tickers)).Msg("price snapshot applied")
	return updated
}

// SetQuantity changes the quantity of one holding. The price is untouched.
func (s *Store) SetQuantity(ref model.HoldingRef, qty decimal.Decimal) error {
	if qty.IsNegative() {
		return fmt.Errorf("%w: quantity must not be negative, got %s", model.ErrValidation, qty)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return model.ErrStoreClosed
	}
	i, ok := s.index[ref]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownHolding, ref)
	}
	old := s.holdings[i].Quantity
	s.holdings[i].Quantity = qty
	s.log.Info().Str("holding", ref.String()).Str("from", old.String()).Str("to", qty.String()).Msg("quantity updated")
	return nil
}

// CurrentSnapshot returns every holding with freshly derived metrics, in insertion order.
func (s *Store) CurrentSnapshot() []model.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]model.Row, len(s.holdings))
	for i, h := range s.holdings {
		rows[i] = model.Row{Holding: h, Metrics: s.metricsLocked(h)}
	}
	return rows
}

// Holding returns one line item with its metrics.
func (s *Store) Holding(ref model.HoldingRef) (model.Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[ref]
	if !ok {
		return model.Row{}, false
	}
	h := s.holdings[i]
	return model.Row{Holding: h, Metrics: s.metricsLocked(h)}, true
}

// History returns a copy of the last known bars for ticker.
func (s *Store) History(ticker string) ([]model.OHLCV, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[ticker]
	if !ok || len(q.bars) == 0 {
		return nil, false
	}
	return append([]model.OHLCV(nil), q.bars...), true
}

// Close ends the store's lifecycle. Later writes are rejected; reads keep working.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Store) metricsLocked(h model.Holding) model.DerivedMetrics {
	q, ok := s.quotes[h.Ticker]
	if !ok {
		return model.DerivedMetrics{}
	}
	price := q.price
	m := model.ComputeMetrics(h, &price)
	m.PriceAsOf = q.asOf
	m.Stale = q.stale
	return m
}
