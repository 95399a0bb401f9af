// Package config loads the fundbot configuration from a TOML file with
// environment overrides. Secrets (database password, gateway key, notifier
// tokens) come from the environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Duration wraps time.Duration for TOML decoding of strings like "45s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// AnalyticsConfig is the analytics PostgreSQL connection.
type AnalyticsConfig struct {
	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`
	MaxConns int    `toml:"max_conns"`
	MinConns int    `toml:"min_conns"`
}

// GatewayConfig is the order gateway connection.
type GatewayConfig struct {
	BaseURL       string   `toml:"base_url"`
	APIKey        string   `toml:"api_key"`
	SubmitTimeout Duration `toml:"submit_timeout"`
	ReadTimeout   Duration `toml:"read_timeout"`
	RatePerSec    float64  `toml:"rate_per_sec"`
	RateBurst     int      `toml:"rate_burst"`
}

// RedisConfig is the optional shared book cache. Disabled falls back to the
// in-process cache.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	TTL        Duration `toml:"ttl"`
}

// FeedConfig is the market-data WebSocket feed.
type FeedConfig struct {
	URL string `toml:"url"`
}

// ServerConfig is the status HTTP server.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// NotifyConfig configures outbound notifications.
type NotifyConfig struct {
	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID string `toml:"telegram_chat_id"`
	DiscordWebhook string `toml:"discord_webhook"`
	// Events filters which event types are delivered; empty allows all.
	Events []string `toml:"events"`
}

// LimitsConfig are the per-fund hard limits.
type LimitsConfig struct {
	MaxDailyLossUSD            float64 `toml:"max_daily_loss_usd"`
	MaxDrawdownPct             float64 `toml:"max_drawdown_pct"`
	MaxOpenPositions           int     `toml:"max_open_positions"`
	MaxSingleMarketExposureUSD float64 `toml:"max_single_market_exposure_usd"`
	MaxDailyTrades             int     `toml:"max_daily_trades"`
	MaxDailyNotionalUSD        float64 `toml:"max_daily_notional_usd"`
	MaxConcurrentOrders        int     `toml:"max_concurrent_orders"`
}

// FundConfig declares one fund. Capital is either an absolute amount or a
// fraction of the portfolio's total capital; absolute wins when both are set.
type FundConfig struct {
	ID             string   `toml:"id"`
	Enabled        bool     `toml:"enabled"`
	IndexType      string   `toml:"index_type"`
	CapitalUSD     float64  `toml:"capital_usd"`
	CapitalPct     float64  `toml:"capital_pct"`
	MaxPositionPct float64  `toml:"max_position_pct"`
	MinTradeUSD    float64  `toml:"min_trade_usd"`
	SignalDelay    Duration `toml:"signal_delay"`
	MaxSlippagePct float64  `toml:"max_slippage_pct"`
	ExecMode       string   `toml:"exec_mode"`
	PollInterval   Duration `toml:"poll_interval"`

	Limits LimitsConfig `toml:"limits"`

	// Strategy-specific tuning, passed through to the strategy constructor.
	MinEdge           float64  `toml:"min_edge"`
	MaxArbNotionalUSD float64  `toml:"max_arb_notional_usd"`
	AlertMaxAge       Duration `toml:"alert_max_age"`
}

// Config is the root configuration.
type Config struct {
	LogLevel string `toml:"log_level"`

	// TotalCapitalUSD anchors capital_pct fund allocations.
	TotalCapitalUSD float64 `toml:"total_capital_usd"`

	QueueCapacity int      `toml:"queue_capacity"`
	IndexTTL      Duration `toml:"index_ttl"`

	Analytics AnalyticsConfig `toml:"analytics"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Redis     RedisConfig     `toml:"redis"`
	Feed      FeedConfig      `toml:"feed"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`

	Funds []FundConfig `toml:"funds"`
}

// Defaults returns a Config with sane development defaults.
func Defaults() Config {
	return Config{
		LogLevel:        "info",
		TotalCapitalUSD: 100_000,
		QueueCapacity:   10_000,
		IndexTTL:        Duration{30 * time.Second},
		Analytics: AnalyticsConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "analytics",
			User:     "fundbot",
			SSLMode:  "disable",
			MaxConns: 10,
			MinConns: 2,
		},
		Gateway: GatewayConfig{
			BaseURL:       "http://localhost:8090",
			SubmitTimeout: Duration{10 * time.Second},
			ReadTimeout:   Duration{5 * time.Second},
			RatePerSec:    5,
			RateBurst:     10,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			TTL:      Duration{30 * time.Second},
		},
		Feed: FeedConfig{
			URL: "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Validate checks the configuration, collecting every problem rather than
// stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug/info/warn/error", c.LogLevel))
	}
	if c.TotalCapitalUSD <= 0 {
		errs = append(errs, errors.New("total_capital_usd must be positive"))
	}
	if c.Analytics.DSN == "" && (c.Analytics.Host == "" || c.Analytics.Database == "") {
		errs = append(errs, errors.New("analytics requires dsn or host+database"))
	}
	if c.Gateway.BaseURL == "" {
		errs = append(errs, errors.New("gateway.base_url is required"))
	}
	if len(c.Funds) == 0 {
		errs = append(errs, errors.New("at least one fund must be configured"))
	}

	seen := make(map[string]struct{})
	var pctSum float64
	for i := range c.Funds {
		f := &c.Funds[i]
		prefix := fmt.Sprintf("funds[%d] (%s)", i, f.ID)

		if f.ID == "" {
			errs = append(errs, fmt.Errorf("funds[%d]: id is required", i))
			continue
		}
		if _, dup := seen[f.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate fund id", prefix))
		}
		seen[f.ID] = struct{}{}

		if _, err := StrategyFor(f.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
		}
		if f.CapitalUSD < 0 || f.CapitalPct < 0 {
			errs = append(errs, fmt.Errorf("%s: capital must not be negative", prefix))
		}
		if f.CapitalUSD == 0 && f.CapitalPct == 0 {
			errs = append(errs, fmt.Errorf("%s: capital_usd or capital_pct is required", prefix))
		}
		if f.CapitalUSD == 0 {
			pctSum += f.CapitalPct
		}
		if f.MaxPositionPct <= 0 || f.MaxPositionPct > 1 {
			errs = append(errs, fmt.Errorf("%s: max_position_pct must be in (0,1]", prefix))
		}
		if f.MaxSlippagePct < 0 || f.MaxSlippagePct > 1 {
			errs = append(errs, fmt.Errorf("%s: max_slippage_pct must be in [0,1]", prefix))
		}
		if f.SignalDelay.Duration < 0 {
			errs = append(errs, fmt.Errorf("%s: signal_delay must not be negative", prefix))
		}
		switch f.ExecMode {
		case "", "limit_only", "limit_then_market", "market_only":
		default:
			errs = append(errs, fmt.Errorf("%s: exec_mode %q is invalid", prefix, f.ExecMode))
		}
		if strings.HasPrefix(f.ID, "PSI-") && f.IndexType == "" {
			errs = append(errs, fmt.Errorf("%s: mirror funds require index_type", prefix))
		}
	}
	if pctSum > 1.0+1e-9 {
		errs = append(errs, fmt.Errorf("fund capital_pct allocations sum to %.3f, exceeding 1.0", pctSum))
	}

	return errors.Join(errs...)
}
