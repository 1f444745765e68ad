package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PortfolioWatch/internal/model"
)

const sample = `
catalog:
  - { ticker: AAA, name: Alpha ETF }
  - { ticker: BBB, name: Beta ETF }
holdings:
  - { ticker: AAA, broker: BANK, kind: capitalizing, buy_in: 28.34, quantity: 235 }
  - ticker: BBB
    broker: BANK2
    kind: Distributing
    buy_in: "78.3175"
    quantity: 252.66705
refresh:
  interval: 90s
`

var overrides = []string{
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "QUOTES_BASE_URL", "QUOTES_API_KEY",
	"HTTPS_PROXY", "REFRESH_INTERVAL", "SQLITE_PATH", "LOG_LEVEL",
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	for _, k := range overrides {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_SampleWithDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, 90*time.Second, cfg.Refresh.Interval)
	assert.Equal(t, 30*time.Second, cfg.Refresh.Timeout)
	assert.Equal(t, "2y", cfg.Refresh.HistoryPeriod)
	assert.Equal(t, 4, cfg.Refresh.Concurrency)
	assert.Equal(t, "info", cfg.Log.Level)

	seed := cfg.SeedHoldings()
	require.Len(t, seed, 2)
	assert.Equal(t, model.KindCapitalizing, seed[0].Kind)
	assert.Equal(t, model.KindDistributing, seed[1].Kind)
	assert.True(t, decimal.RequireFromString("28.34").Equal(seed[0].BuyIn))
	assert.True(t, decimal.RequireFromString("252.66705").Equal(seed[1].Quantity))
	assert.Equal(t, "BANK2", seed[1].Broker)

	entries := cfg.CatalogEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Alpha ETF", entries[0].Name)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, sample)
	t.Setenv("REFRESH_INTERVAL", "5m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("QUOTES_BASE_URL", "http://quotes.local")
	t.Setenv("SQLITE_PATH", "/tmp/watch.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://quotes.local", cfg.DataSource.BaseURL)
	assert.Equal(t, "/tmp/watch.db", cfg.Database.SQLitePath)
}

func TestLoad_BadInterval(t *testing.T) {
	path := writeConfig(t, sample)
	t.Setenv("REFRESH_INTERVAL", "soon")

	_, err := Load(path)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestLoad_UnknownKind(t *testing.T) {
	_, err := Load(writeConfig(t, `
catalog: [{ ticker: AAA, name: A }]
holdings: [{ ticker: AAA, broker: BANK, kind: hoarding, buy_in: 1, quantity: 1 }]
`))
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	for _, k := range overrides {
		t.Setenv(k, "")
	}
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.Refresh.Interval)
	assert.ErrorIs(t, cfg.Validate(), model.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty catalog", func(c *Config) { c.Catalog = nil }},
		{"empty holdings", func(c *Config) { c.Holdings = nil }},
		{"missing broker", func(c *Config) { c.Holdings[0].Broker = " " }},
		{"missing kind", func(c *Config) { c.Holdings[0].Kind = "" }},
		{"zero buy-in", func(c *Config) { c.Holdings[0].BuyIn = decimal.Zero }},
		{"negative quantity", func(c *Config) { c.Holdings[0].Quantity = decimal.NewFromInt(-1) }},
		{"duplicate holding", func(c *Config) { c.Holdings = append(c.Holdings, c.Holdings[0]) }},
		{"zero timeout", func(c *Config) { c.Refresh.Timeout = 0 }},
		{"half telegram", func(c *Config) { c.Telegram.BotToken = "token" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, sample))
			require.NoError(t, err)
			tc.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), model.ErrConfiguration)
		})
	}
}
