package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"PortfolioWatch/internal/allocation"
	"PortfolioWatch/internal/catalog"
	"PortfolioWatch/internal/collector"
	"PortfolioWatch/internal/config"
	"PortfolioWatch/internal/dashboard"
	"PortfolioWatch/internal/logger"
	"PortfolioWatch/internal/model"
	"PortfolioWatch/internal/notifier"
	"PortfolioWatch/internal/portfolio"
	"PortfolioWatch/internal/recorder"
	"PortfolioWatch/internal/scheduler"
)

func main() {
	boot := logger.New(logger.Config{Level: "info"})
	boot.Info().Msg("PortfolioWatch starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal().Err(err).Msg("config validation")
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	cat, err := catalog.New(cfg.CatalogEntries())
	if err != nil {
		log.Fatal().Err(err).Msg("build catalog")
	}
	store, err := portfolio.New(cfg.SeedHoldings(), cat, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init portfolio")
	}

	// Init fetcher
	var fetcher collector.Fetcher
	if cfg.DataSource.BaseURL != "" {
		fetcher = collector.NewRESTFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy)
	} else {
		fetcher = collector.NewYahooFetcher(cfg.Proxy)
	}
	log.Info().Str("source", fetcher.Name()).Msg("data source selected")
	col := collector.NewCollector(fetcher, cfg.Refresh.Concurrency, log)

	// Init recorder
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		} else {
			rec = sr
		}
	}
	defer rec.Close()

	opts := []scheduler.Option{
		scheduler.WithInterval(cfg.Refresh.Interval),
		scheduler.WithTimeout(cfg.Refresh.Timeout),
		scheduler.WithHistoryPeriod(cfg.Refresh.HistoryPeriod),
		scheduler.WithConcurrency(cfg.Refresh.Concurrency),
		scheduler.WithRecorder(rec),
		scheduler.WithLogger(log),
	}

	// Init Telegram notifier
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		opts = append(opts, scheduler.WithNotifier(tn))
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	refresher := scheduler.New(store, col, opts...)
	if err := refresher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start scheduler")
	}

	dash := dashboard.New(store, refresher, cfg.Currency, log)
	if tn != nil {
		go tn.StartPolling(ctx, func(text string) string { return dash.HandleCommandContext(ctx, text) })
	}

	logSummary(log, dash.View())
	log.Info().Msg("PortfolioWatch is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping...")
	cancel()
	refresher.Stop()
	store.Close()
	log.Info().Msg("PortfolioWatch stopped")
}

func logSummary(log zerolog.Logger, v dashboard.View) {
	for _, r := range v.Rows {
		log.Info().
			Str("holding", r.Ref.String()).
			Str("name", r.CompanyName).
			Str("qty", r.Quantity).
			Str("price", r.LastPrice).
			Str("value", r.MarketValue).
			Str("perf", r.Performance).
			Str("trend", r.Trend.String()).
			Msg("holding")
	}
	byKind := allocation.ByKind(rowsOf(v))
	log.Info().
		Str("total", v.Total).
		Int("priced", v.Aggregate.PricedRows).
		Int("unpriced", v.Aggregate.UnpricedRows).
		Interface("by_kind", byKind).
		Msg("portfolio summary")
}

func rowsOf(v dashboard.View) []model.Row {
	out := make([]model.Row, len(v.Rows))
	for i, r := range v.Rows {
		out[i] = r.Row
	}
	return out
}
