package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix namespaces every environment override.
const envPrefix = "FUNDBOT_"

// Load reads the TOML file at path over the defaults, then applies
// environment overrides. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setStr("LOG_LEVEL", &cfg.LogLevel)
	setFloat64("TOTAL_CAPITAL_USD", &cfg.TotalCapitalUSD)

	setStr("ANALYTICS_DSN", &cfg.Analytics.DSN)
	setStr("ANALYTICS_HOST", &cfg.Analytics.Host)
	setInt("ANALYTICS_PORT", &cfg.Analytics.Port)
	setStr("ANALYTICS_DATABASE", &cfg.Analytics.Database)
	setStr("ANALYTICS_USER", &cfg.Analytics.User)
	setStr("ANALYTICS_PASSWORD", &cfg.Analytics.Password)
	setStr("ANALYTICS_SSL_MODE", &cfg.Analytics.SSLMode)

	setStr("GATEWAY_BASE_URL", &cfg.Gateway.BaseURL)
	setStr("GATEWAY_API_KEY", &cfg.Gateway.APIKey)
	setDuration("GATEWAY_SUBMIT_TIMEOUT", &cfg.Gateway.SubmitTimeout)
	setFloat64("GATEWAY_RATE_PER_SEC", &cfg.Gateway.RatePerSec)

	setBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	setStr("REDIS_ADDR", &cfg.Redis.Addr)
	setStr("REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("REDIS_DB", &cfg.Redis.DB)

	setStr("FEED_URL", &cfg.Feed.URL)
	setStr("SERVER_ADDR", &cfg.Server.Addr)

	setStr("TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setStr("TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setStr("DISCORD_WEBHOOK", &cfg.Notify.DiscordWebhook)
}

func setStr(key string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(key string, dst *float64) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *Duration) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
