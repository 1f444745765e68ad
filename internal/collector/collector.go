package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"PortfolioWatch/internal/model"
)

// DefaultConcurrency bounds simultaneous provider calls.
const DefaultConcurrency = 4

// Collector implements QuoteSource on top of a Fetcher. It caches each ticker's
// history so periodic polls only need the latest price.
type Collector struct {
	Fetcher     Fetcher
	Concurrency int

	mu    sync.RWMutex
	cache map[string]model.PriceSeries

	now func() time.Time
	log zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, concurrency int, log zerolog.Logger) *Collector {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Collector{
		Fetcher:     fetcher,
		Concurrency: concurrency,
		cache:       make(map[string]model.PriceSeries),
		now:         time.Now,
		log:         log.With().Str("component", "collector").Str("source", fetcher.Name()).Logger(),
	}
}

// FetchHistory downloads daily bars for every ticker. Tickers that fail are
// left out of the result. It returns ErrQuoteFetch when no ticker succeeded or
// when ctx ended before the fan-out finished.
func (c *Collector) FetchHistory(ctx context.Context, tickers []string, period string) (map[string][]model.OHLCV, error) {
	var (
		mu     sync.Mutex
		out    = make(map[string][]model.OHLCV, len(tickers))
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Concurrency)
	for _, ticker := range tickers {
		ticker := ticker // per-iteration copy (go < 1.22 loopvar semantics)
		g.Go(func() error {
			bars, err := c.Fetcher.FetchDailyBars(gctx, ticker, period)
			if err == nil && len(bars) == 0 {
				err = fmt.Errorf("no bars returned")
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				c.log.Warn().Err(err).Str("ticker", ticker).Msg("history fetch failed")
				return nil
			}
			out[ticker] = bars
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: history: %v", model.ErrQuoteFetch, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no history for any of %d tickers", model.ErrQuoteFetch, len(tickers))
	}

	now := c.now()
	c.mu.Lock()
	for ticker, bars := range out {
		c.cache[ticker] = model.PriceSeries{Bars: bars, AsOf: now}
	}
	c.mu.Unlock()

	c.log.Info().Int("fetched", len(out)).Int("failed", failed).Str("period", period).Msg("history fetched")
	return out, nil
}

// LatestClose polls only the current price of ticker and records it in the cache.
func (c *Collector) LatestClose(ctx context.Context, ticker string) (decimal.Decimal, error) {
	price, err := c.Fetcher.FetchCurrentPrice(ctx, ticker)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", model.ErrQuoteFetch, ticker, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s: non-positive price %s", model.ErrQuoteFetch, ticker, price)
	}

	c.mu.Lock()
	series := c.cache[ticker]
	series.Latest = price
	series.AsOf = c.now()
	c.cache[ticker] = series
	c.mu.Unlock()

	return price, nil
}

// Cached returns the cached series for ticker.
func (c *Collector) Cached(ticker string) (model.PriceSeries, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.cache[ticker]
	if !ok {
		return model.PriceSeries{}, false
	}
	s.Bars = append([]model.OHLCV(nil), s.Bars...)
	return s, true
}
