package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"PortfolioWatch/internal/catalog"
	"PortfolioWatch/internal/model"
)

// CatalogEntry maps a ticker to its display name.
type CatalogEntry struct {
	Ticker string `yaml:"ticker"`
	Name   string `yaml:"name"`
}

// HoldingSeed is one configured line item.
type HoldingSeed struct {
	Ticker   string               `yaml:"ticker"`
	Broker   string               `yaml:"broker"`
	Kind     model.InstrumentKind `yaml:"kind"`
	BuyIn    decimal.Decimal      `yaml:"buy_in"`
	Quantity decimal.Decimal      `yaml:"quantity"`
}

// Config holds all application configuration.
type Config struct {
	Currency string         `yaml:"currency"`
	Catalog  []CatalogEntry `yaml:"catalog"`
	Holdings []HoldingSeed  `yaml:"holdings"`
	Refresh  struct {
		Interval      time.Duration `yaml:"interval"`
		Timeout       time.Duration `yaml:"timeout"`
		HistoryPeriod string        `yaml:"history_period"`
		Concurrency   int           `yaml:"concurrency"`
	} `yaml:"refresh"`
	DataSource struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"data_source"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies .env and environment variable overrides.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: read config: %v", model.ErrConfiguration, err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse config: %v", model.ErrConfiguration, err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("QUOTES_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("QUOTES_API_KEY"); v != "" {
		cfg.DataSource.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%w: REFRESH_INTERVAL: %v", model.ErrConfiguration, err)
		}
		cfg.Refresh.Interval = interval
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// Defaults
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	if cfg.Refresh.Interval == 0 {
		cfg.Refresh.Interval = 120 * time.Second
	}
	if cfg.Refresh.Timeout == 0 {
		cfg.Refresh.Timeout = 30 * time.Second
	}
	if cfg.Refresh.HistoryPeriod == "" {
		cfg.Refresh.HistoryPeriod = "2y"
	}
	if cfg.Refresh.Concurrency == 0 {
		cfg.Refresh.Concurrency = 4
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return cfg, nil
}

// Validate checks the configuration. Catalog membership of holdings is
// checked when the portfolio is built.
func (c *Config) Validate() error {
	if len(c.Catalog) == 0 {
		return fmt.Errorf("%w: catalog must list at least one instrument", model.ErrConfiguration)
	}
	if len(c.Holdings) == 0 {
		return fmt.Errorf("%w: holdings must list at least one position", model.ErrConfiguration)
	}
	seen := make(map[model.HoldingRef]bool, len(c.Holdings))
	for i, h := range c.Holdings {
		ref := model.HoldingRef{Ticker: strings.TrimSpace(h.Ticker), Broker: strings.TrimSpace(h.Broker)}
		switch {
		case ref.Ticker == "":
			return fmt.Errorf("%w: holdings[%d].ticker is required", model.ErrConfiguration, i)
		case ref.Broker == "":
			return fmt.Errorf("%w: holdings[%d].broker is required", model.ErrConfiguration, i)
		case h.Kind == "":
			return fmt.Errorf("%w: holdings[%d].kind is required", model.ErrConfiguration, i)
		case !h.BuyIn.IsPositive():
			return fmt.Errorf("%w: holdings[%d].buy_in must be positive", model.ErrConfiguration, i)
		case h.Quantity.IsNegative():
			return fmt.Errorf("%w: holdings[%d].quantity must not be negative", model.ErrConfiguration, i)
		case seen[ref]:
			return fmt.Errorf("%w: holdings[%d] duplicates %s", model.ErrConfiguration, i, ref)
		}
		seen[ref] = true
	}
	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("%w: refresh.interval must be positive", model.ErrConfiguration)
	}
	if c.Refresh.Timeout <= 0 {
		return fmt.Errorf("%w: refresh.timeout must be positive", model.ErrConfiguration)
	}
	if c.Refresh.Concurrency < 0 {
		return fmt.Errorf("%w: refresh.concurrency must not be negative", model.ErrConfiguration)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("%w: telegram.bot_token and telegram.chat_id must be set together", model.ErrConfiguration)
	}
	return nil
}

// CatalogEntries converts the configured catalog.
func (c *Config) CatalogEntries() []catalog.Entry {
	out := make([]catalog.Entry, len(c.Catalog))
	for i, e := range c.Catalog {
		out[i] = catalog.Entry{Ticker: e.Ticker, Name: e.Name}
	}
	return out
}

// SeedHoldings converts the configured holdings, preserving order.
func (c *Config) SeedHoldings() []model.Holding {
	out := make([]model.Holding, len(c.Holdings))
	for i, h := range c.Holdings {
		out[i] = model.Holding{
			Ticker:   strings.TrimSpace(h.Ticker),
			Broker:   strings.TrimSpace(h.Broker),
			Kind:     h.Kind,
			BuyIn:    h.BuyIn,
			Quantity: h.Quantity,
		}
	}
	return out
}
