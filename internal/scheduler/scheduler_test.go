package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PortfolioWatch/internal/catalog"
	"PortfolioWatch/internal/collector"
	"PortfolioWatch/internal/model"
	"PortfolioWatch/internal/portfolio"
	"PortfolioWatch/internal/recorder"
)

type fakeSource struct {
	mu         sync.Mutex
	prices     map[string]decimal.Decimal
	errs       map[string]error
	history    map[string][]model.OHLCV
	historyErr error
	block      chan struct{}

	latestCalls  atomic.Int32
	historyCalls atomic.Int32
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		prices: map[string]decimal.Decimal{
			"AAA": decimal.RequireFromString("11"),
			"BBB": decimal.RequireFromString("25"),
		},
		errs: map[string]error{},
	}
}

func (f *fakeSource) setErr(ticker string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[ticker] = err
}

func (f *fakeSource) setPrice(ticker, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[ticker] = decimal.RequireFromString(price)
}

func (f *fakeSource) FetchHistory(ctx context.Context, tickers []string, period string) (map[string][]model.OHLCV, error) {
	f.historyCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	out := make(map[string][]model.OHLCV)
	for _, t := range tickers {
		if bars, ok := f.history[t]; ok {
			out[t] = bars
		}
	}
	return out, nil
}

func (f *fakeSource) LatestClose(ctx context.Context, ticker string) (decimal.Decimal, error) {
	f.latestCalls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[ticker]; err != nil {
		return decimal.Zero, err
	}
	p, ok := f.prices[ticker]
	if !ok {
		return decimal.Zero, errors.New("no quote")
	}
	return p, nil
}

type countingStore struct {
	*portfolio.Store
	applies atomic.Int32
}

func (c *countingStore) ApplyPriceSnapshot(snap model.PriceSnapshot) []string {
	c.applies.Add(1)
	return c.Store.ApplyPriceSnapshot(snap)
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recorder.RefreshEvent
}

func (f *fakeRecorder) RecordRefresh(evt *recorder.RefreshEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *evt)
	return nil
}

func (f *fakeRecorder) Close() error { return nil }

func (f *fakeRecorder) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Status
	}
	return out
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeNotifier) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func newStore(t *testing.T) *countingStore {
	t.Helper()
	cat, err := catalog.New([]catalog.Entry{
		{Ticker: "AAA", Name: "Alpha ETF"},
		{Ticker: "BBB", Name: "Beta ETF"},
	})
	require.NoError(t, err)
	st, err := portfolio.New([]model.Holding{
		{Ticker: "AAA", Broker: "BANK", Kind: model.KindCapitalizing, BuyIn: decimal.NewFromInt(10), Quantity: decimal.NewFromInt(2)},
		{Ticker: "BBB", Broker: "BANK", Kind: model.KindDistributing, BuyIn: decimal.NewFromInt(20), Quantity: decimal.NewFromInt(1)},
		{Ticker: "AAA", Broker: "BANK2", Kind: model.KindCapitalizing, BuyIn: decimal.NewFromInt(12), Quantity: decimal.NewFromInt(3)},
	}, cat, zerolog.Nop())
	require.NoError(t, err)
	return &countingStore{Store: st}
}

func priceOf(t *testing.T, rows []model.Row, ticker, broker string) *decimal.Decimal {
	t.Helper()
	for _, r := range rows {
		if r.Holding.Ticker == ticker && r.Holding.Broker == broker {
			return r.Metrics.LastPrice
		}
	}
	t.Fatalf("row %s@%s not found", ticker, broker)
	return nil
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "fetching", Fetching.String())
	assert.Equal(t, "applying", Applying.String())
	assert.Equal(t, "fetch_failed", FetchFailed.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestRefreshNow_AppliesLatestPrices(t *testing.T) {
	store := newStore(t)
	src := newFakeSource()
	r := New(store, src)

	require.NoError(t, r.RefreshNow(context.Background()))

	rows := store.CurrentSnapshot()
	require.NotNil(t, priceOf(t, rows, "AAA", "BANK2"))
	assert.True(t, decimal.NewFromInt(11).Equal(*priceOf(t, rows, "AAA", "BANK")))
	assert.True(t, decimal.NewFromInt(25).Equal(*priceOf(t, rows, "BBB", "BANK")))

	st := r.Status()
	assert.Equal(t, Idle, st.State)
	assert.Equal(t, 1, st.Attempts)
	assert.Zero(t, st.Failures)
	assert.NoError(t, st.LastError)
	assert.NotEmpty(t, st.LastRunID)
	assert.False(t, r.LastRefresh().IsZero())
	assert.EqualValues(t, 2, src.latestCalls.Load(), "one poll per distinct ticker")
}

func TestRefreshNow_InFlightIsDropped(t *testing.T) {
	store := newStore(t)
	src := newFakeSource()
	src.block = make(chan struct{})
	r := New(store, src, WithTimeout(5*time.Second))

	done := make(chan error, 1)
	go func() { done <- r.RefreshNow(context.Background()) }()

	require.Eventually(t, func() bool { return r.Status().State == Fetching }, time.Second, 5*time.Millisecond)

	err := r.RefreshNow(context.Background())
	assert.ErrorIs(t, err, model.ErrRefreshInFlight)
	r.tick()

	close(src.block)
	require.NoError(t, <-done)

	assert.EqualValues(t, 1, store.applies.Load())
	assert.EqualValues(t, 2, src.latestCalls.Load())
	assert.Equal(t, 1, r.Status().Attempts)
	assert.Equal(t, Idle, r.Status().State)
}

func TestRefreshNow_FailureLeavesSnapshotUnchanged(t *testing.T) {
	store := newStore(t)
	src := newFakeSource()
	r := New(store, src)
	require.NoError(t, r.RefreshNow(context.Background()))
	before := store.CurrentSnapshot()

	src.setErr("AAA", errors.New("boom"))
	src.setErr("BBB", errors.New("boom"))
	err := r.RefreshNow(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrQuoteFetch)

	assert.Equal(t, before, store.CurrentSnapshot())
	assert.EqualValues(t, 1, store.applies.Load())

	st := r.Status()
	assert.Equal(t, Idle, st.State)
	assert.Equal(t, 1, st.Failures)
	assert.ErrorIs(t, st.LastError, model.ErrQuoteFetch)
}

func TestRefreshNow_TimeoutAppliesNothing(t *testing.T) {
	store := newStore(t)
	src := newFakeSource()
	src.block = make(chan struct{})
	defer close(src.block)
	r := New(store, src, WithTimeout(20*time.Millisecond))

	err := r.RefreshNow(context.Background())
	assert.ErrorIs(t, err, model.ErrQuoteFetch)
	assert.Zero(t, store.applies.Load())
	for _, row := range store.CurrentSnapshot() {
		assert.False(t, row.Metrics.Priced())
	}
	assert.Equal(t, Idle, r.Status().State)
}

func TestRefreshNow_PartialPollMarksMissingStale(t *testing.T) {
	store := newStore(t)
	src := newFakeSource()
	r := New(store, src)
	require.NoError(t, r.RefreshNow(context.Background()))

	src.setErr("BBB", errors.New("provider down"))
	src.setPrice("AAA", "12.5")
	require.NoError(t, r.RefreshNow(context.Background()))

	for _, row := range store.CurrentSnapshot() {
		switch row.Holding.Ticker {
		case "AAA":
			assert.True(t, decimal.RequireFromString("12.5").Equal(*row.Metrics.LastPrice))
			assert.False(t, row.Metrics.Stale)
		case "BBB":
			assert.True(t, decimal.NewFromInt(25).Equal(*row.Metrics.LastPrice))
			assert.True(t, row.Metrics.Stale)
		}
	}
}

func TestLoadHistory(t *testing.T) {
	store := newStore(t)
	src := newFakeSource()
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	src.history = map[string][]model.OHLCV{
		"AAA": {
			{Time: day, Close: decimal.NewFromInt(9)},
			{Time: day.AddDate(0, 0, 1), Close: decimal.NewFromInt(10)},
		},
	}
	r := New(store, src, WithHistoryPeriod("1y"))

	require.NoError(t, r.LoadHistory(context.Background()))

	bars, ok := store.History("AAA")
	require.True(t, ok)
	assert.Len(t, bars, 2)
	assert.True(t, decimal.NewFromInt(10).Equal(*priceOf(t, store.CurrentSnapshot(), "AAA", "BANK")))
	assert.Nil(t, priceOf(t, store.CurrentSnapshot(), "BBB", "BANK"))
	assert.EqualValues(t, 1, src.historyCalls.Load())
	assert.Zero(t, src.latestCalls.Load())
}

func TestLoadHistory_NothingFetched(t *testing.T) {
	store := newStore(t)
	src := newFakeSource()
	src.historyErr = model.ErrQuoteFetch
	r := New(store, src)

	assert.ErrorIs(t, r.LoadHistory(context.Background()), model.ErrQuoteFetch)
	assert.Zero(t, store.applies.Load())
}

func TestRecorderAndNotifierTransitions(t *testing.T) {
	store := newStore(t)
	src := newFakeSource()
	rec := &fakeRecorder{}
	ntf := &fakeNotifier{}
	r := New(store, src, WithRecorder(rec), WithNotifier(ntf))
	ctx := context.Background()

	require.NoError(t, r.RefreshNow(ctx))
	src.setErr("AAA", errors.New("down"))
	src.setErr("BBB", errors.New("down"))
	require.Error(t, r.RefreshNow(ctx))
	require.Error(t, r.RefreshNow(ctx))
	src.setErr("AAA", nil)
	src.setErr("BBB", nil)
	require.NoError(t, r.RefreshNow(ctx))

	assert.Equal(t, []string{"ok", "failed", "failed", "ok"}, rec.statuses())

	msgs := ntf.sent()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "failed")
	assert.Contains(t, msgs[1], "recovered")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	first := rec.events[0]
	assert.Equal(t, "latest", first.Kind)
	assert.Equal(t, "manual", first.Trigger)
	assert.Len(t, first.Rows, 3)
	// 2*11 + 25 + 3*11
	assert.True(t, decimal.NewFromInt(80).Equal(first.TotalMarketValue))
	assert.NotEmpty(t, rec.events[1].Error)
}

func TestStartStop(t *testing.T) {
	store := newStore(t)
	src := newFakeSource()
	src.history = map[string][]model.OHLCV{
		"AAA": {{Time: time.Now(), Close: decimal.NewFromInt(10)}},
		"BBB": {{Time: time.Now(), Close: decimal.NewFromInt(20)}},
	}
	r := New(store, src, WithInterval(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	assert.EqualValues(t, 1, src.historyCalls.Load())
	require.Eventually(t, func() bool { return src.latestCalls.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)
	require.Eventually(t, func() bool { return r.Status().State == Idle }, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, r.Status().Attempts, 2)
}

func TestRefresher_WithCollector(t *testing.T) {
	store := newStore(t)
	mock := &collector.MockFetcher{Prices: map[string]decimal.Decimal{
		"AAA": decimal.NewFromInt(11),
		"BBB": decimal.NewFromInt(25),
	}}
	r := New(store, collector.NewCollector(mock, 2, zerolog.Nop()))
	ctx := context.Background()

	require.NoError(t, r.LoadHistory(ctx))
	bars, ok := store.History("BBB")
	require.True(t, ok)
	assert.Len(t, bars, 30)
	assert.True(t, decimal.NewFromInt(25).Equal(*priceOf(t, store.CurrentSnapshot(), "BBB", "BANK")))

	mock.Prices["BBB"] = decimal.NewFromInt(26)
	require.NoError(t, r.RefreshNow(ctx))
	assert.True(t, decimal.NewFromInt(26).Equal(*priceOf(t, store.CurrentSnapshot(), "BBB", "BANK")))
	assert.Equal(t, 1, mock.BarCalls("BBB"))
	assert.Equal(t, 1, mock.PriceCalls("BBB"))

	bars, _ = store.History("BBB")
	assert.Len(t, bars, 30, "latest poll keeps history")
}
