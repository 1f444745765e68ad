package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"PortfolioWatch/internal/allocation"
	"PortfolioWatch/internal/collector"
	"PortfolioWatch/internal/model"
	"PortfolioWatch/internal/notifier"
	"PortfolioWatch/internal/recorder"
)

// State is the refresh state machine: Idle -> Fetching -> (Applying | FetchFailed) -> Idle.
type State int

const (
	Idle State = iota
	Fetching
	Applying
	FetchFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Applying:
		return "applying"
	case FetchFailed:
		return "fetch_failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	kindHistory = "history"
	kindLatest  = "latest"

	triggerStartup   = "startup"
	triggerScheduled = "scheduled"
	triggerManual    = "manual"
)

// Store is the part of the portfolio store the refresher writes to.
type Store interface {
	Tickers() []string
	ApplyPriceSnapshot(snap model.PriceSnapshot) []string
	CurrentSnapshot() []model.Row
}

// Notifier delivers operator messages.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Status is a point-in-time view of the refresher.
type Status struct {
	State       State
	LastRefresh time.Time // last successful apply
	LastAttempt time.Time
	LastError   error
	LastRunID   string
	Attempts    int
	Failures    int
}

// Refresher periodically fetches quotes and applies them to the store.
// At most one fetch is in flight; ticks arriving meanwhile are dropped.
type Refresher struct {
	Cron *cron.Cron

	store       Store
	source      collector.QuoteSource
	recorder    recorder.Recorder
	notifier    Notifier
	interval    time.Duration
	timeout     time.Duration
	period      string
	concurrency int

	mu      sync.Mutex
	status  Status
	failing bool
	ctx     context.Context

	now func() time.Time
	log zerolog.Logger
}

// Option configures a Refresher.
type Option func(*Refresher)

func WithInterval(d time.Duration) Option       { return func(r *Refresher) { r.interval = d } }
func WithTimeout(d time.Duration) Option        { return func(r *Refresher) { r.timeout = d } }
func WithHistoryPeriod(p string) Option         { return func(r *Refresher) { r.period = p } }
func WithConcurrency(n int) Option              { return func(r *Refresher) { r.concurrency = n } }
func WithRecorder(rec recorder.Recorder) Option { return func(r *Refresher) { r.recorder = rec } }
func WithNotifier(n Notifier) Option            { return func(r *Refresher) { r.notifier = n } }
func WithLogger(l zerolog.Logger) Option        { return func(r *Refresher) { r.log = l } }
func WithClock(now func() time.Time) Option     { return func(r *Refresher) { r.now = now } }

// New creates a Refresher. Defaults: 120s interval, 30s timeout, 2y history.
func New(store Store, source collector.QuoteSource, opts ...Option) *Refresher {
	r := &Refresher{
		Cron:        cron.New(),
		store:       store,
		source:      source,
		recorder:    recorder.NewNoopRecorder(),
		interval:    120 * time.Second,
		timeout:     30 * time.Second,
		period:      "2y",
		concurrency: collector.DefaultConcurrency,
		ctx:         context.Background(),
		now:         time.Now,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.concurrency <= 0 {
		r.concurrency = collector.DefaultConcurrency
	}
	r.log = r.log.With().Str("component", "scheduler").Logger()
	return r
}

// Start loads the full history once, then registers the periodic latest-price poll.
// A failed history load is logged; holdings stay unpriced until a poll succeeds.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	if err := r.LoadHistory(ctx); err != nil {
		r.log.Warn().Err(err).Msg("startup history load failed")
	}

	if _, err := r.Cron.AddFunc(fmt.Sprintf("@every %s", r.interval), r.tick); err != nil {
		return fmt.Errorf("register refresh task: %w", err)
	}
	r.Cron.Start()
	r.log.Info().Dur("interval", r.interval).Msg("scheduler started")
	return nil
}

// Stop stops the cron scheduler and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.Cron.Stop().Done()
	r.log.Info().Msg("scheduler stopped")
}

// LoadHistory fetches the full price history of every ticker and applies it.
func (r *Refresher) LoadHistory(ctx context.Context) error {
	return r.run(ctx, kindHistory, triggerStartup)
}

// RefreshNow polls latest prices immediately. It returns ErrRefreshInFlight
// when another refresh is fetching.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	return r.run(ctx, kindLatest, triggerManual)
}

// Status returns the current refresh status.
func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// LastRefresh returns when prices were last applied successfully.
func (r *Refresher) LastRefresh() time.Time {
	return r.Status().LastRefresh
}

func (r *Refresher) tick() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	err := r.run(ctx, kindLatest, triggerScheduled)
	if errors.Is(err, model.ErrRefreshInFlight) {
		r.log.Debug().Msg("tick dropped, refresh in flight")
	}
}

func (r *Refresher) run(ctx context.Context, kind, trigger string) error {
	if !r.begin() {
		return model.ErrRefreshInFlight
	}

	runID := uuid.NewString()
	started := r.now()
	log := r.log.With().Str("run_id", runID).Str("kind", kind).Str("trigger", trigger).Logger()
	log.Debug().Msg("refresh started")

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	snap, err := r.fetch(fetchCtx, kind, log)
	cancel()

	evt := &recorder.RefreshEvent{
		RunID:     runID,
		Kind:      kind,
		Trigger:   trigger,
		StartedAt: started,
	}

	if err != nil {
		r.fail(runID, err)
		log.Error().Err(err).Msg("refresh failed")
		evt.Status = "failed"
		evt.Error = err.Error()
		r.record(evt, log)
		r.setState(Idle)
		r.notify(ctx, evt, log)
		return err
	}

	r.setState(Applying)
	updated := r.store.ApplyPriceSnapshot(snap)
	r.succeed(runID)

	evt.Status = "ok"
	evt.Updated = updated
	log.Info().Int("updated", len(updated)).Int("tickers", len(r.store.Tickers())).
		Dur("took", r.now().Sub(started)).Msg("refresh applied")
	r.record(evt, log)
	r.notify(ctx, evt, log)
	return nil
}

// fetch builds a snapshot. Partial results are fine; nothing usable, or a
// context that ended mid-fetch, is ErrQuoteFetch and nothing gets applied.
func (r *Refresher) fetch(ctx context.Context, kind string, log zerolog.Logger) (model.PriceSnapshot, error) {
	tickers := r.store.Tickers()
	snap := make(model.PriceSnapshot, len(tickers))

	switch kind {
	case kindHistory:
		hist, err := r.source.FetchHistory(ctx, tickers, r.period)
		if err != nil {
			return nil, err
		}
		now := r.now()
		for ticker, bars := range hist {
			snap[ticker] = model.PriceSeries{Bars: bars, AsOf: now}
		}
	default:
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.concurrency)
		for _, ticker := range tickers {
			ticker := ticker // per-iteration copy (go < 1.22 loopvar semantics)
			g.Go(func() error {
				price, err := r.source.LatestClose(gctx, ticker)
				if err != nil {
					log.Warn().Err(err).Str("ticker", ticker).Msg("latest close unavailable, keeping previous price")
					return nil
				}
				mu.Lock()
				snap[ticker] = model.PriceSeries{Latest: price, AsOf: r.now()}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrQuoteFetch, err)
	}
	if len(snap) == 0 {
		return nil, fmt.Errorf("%w: no prices for any of %d tickers", model.ErrQuoteFetch, len(tickers))
	}
	return snap, nil
}

// begin claims the single refresh slot. Any state other than Idle means an
// attempt is still running.
func (r *Refresher) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.State != Idle {
		return false
	}
	r.status.State = Fetching
	r.status.Attempts++
	r.status.LastAttempt = r.now()
	return true
}

func (r *Refresher) setState(s State) {
	r.mu.Lock()
	r.status.State = s
	r.mu.Unlock()
}

func (r *Refresher) succeed(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = Idle
	r.status.LastRefresh = r.now()
	r.status.LastError = nil
	r.status.LastRunID = runID
}

func (r *Refresher) fail(runID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = FetchFailed
	r.status.LastError = err
	r.status.LastRunID = runID
	r.status.Failures++
}

func (r *Refresher) record(evt *recorder.RefreshEvent, log zerolog.Logger) {
	evt.Duration = r.now().Sub(evt.StartedAt)
	evt.Rows = r.store.CurrentSnapshot()
	evt.TotalMarketValue = allocation.Aggregate(evt.Rows).TotalMarketValue
	if err := r.recorder.RecordRefresh(evt); err != nil {
		log.Error().Err(err).Msg("record refresh")
	}
}

// notify tells the operator when refreshes start failing and when they recover.
func (r *Refresher) notify(ctx context.Context, evt *recorder.RefreshEvent, log zerolog.Logger) {
	r.mu.Lock()
	failed := evt.Status == "failed"
	changed := failed != r.failing
	r.failing = failed
	r.mu.Unlock()

	if r.notifier == nil || !changed {
		return
	}
	var text string
	if failed {
		text = notifier.FormatRefreshFailure(evt.Trigger, evt.Error, evt.StartedAt)
	} else {
		text = notifier.FormatRefreshRecovered(len(evt.Updated), evt.StartedAt)
	}
	if err := r.notifier.SendWithRetry(ctx, text, 3); err != nil {
		log.Error().Err(err).Msg("send notification")
	}
}
