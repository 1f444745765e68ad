package collector

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"PortfolioWatch/internal/model"
)

// Fetcher is a raw market data provider for a single symbol.
type Fetcher interface {
	// FetchDailyBars returns daily bars over rng ("1mo", "1y", "2y", ...), oldest first.
	FetchDailyBars(ctx context.Context, symbol, rng string) ([]model.OHLCV, error)
	FetchCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Name() string
}

// QuoteSource is what the refresh pipeline consumes.
type QuoteSource interface {
	// FetchHistory may return a partial mapping; it fails only when nothing could be fetched.
	FetchHistory(ctx context.Context, tickers []string, period string) (map[string][]model.OHLCV, error)
	LatestClose(ctx context.Context, ticker string) (decimal.Decimal, error)
}

func newHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
