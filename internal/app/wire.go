package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/psifund/fundbot/internal/analytics/postgres"
	redisc "github.com/psifund/fundbot/internal/cache/redis"
	"github.com/psifund/fundbot/internal/config"
	"github.com/psifund/fundbot/internal/domain"
	"github.com/psifund/fundbot/internal/gateway"
	"github.com/psifund/fundbot/internal/marketdata"
	"github.com/psifund/fundbot/internal/notify"
)

// deps holds the wired external adapters and their close hooks.
type deps struct {
	store    *postgres.Store
	books    domain.BookCache
	gateway  *gateway.Client
	notifier *notify.Notifier

	closers []func()
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// wire builds the external adapters from config. The book cache is Redis when
// enabled, otherwise the in-process cache.
func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{}

	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Analytics.DSN,
		Host:     cfg.Analytics.Host,
		Port:     cfg.Analytics.Port,
		Database: cfg.Analytics.Database,
		User:     cfg.Analytics.User,
		Password: cfg.Analytics.Password,
		SSLMode:  cfg.Analytics.SSLMode,
		MaxConns: cfg.Analytics.MaxConns,
		MinConns: cfg.Analytics.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("app: analytics store: %w", err)
	}
	d.closers = append(d.closers, pg.Close)
	if err := pg.RunMigrations(ctx); err != nil {
		d.close()
		return nil, fmt.Errorf("app: migrations: %w", err)
	}
	d.store = postgres.NewStore(pg, logger)

	if cfg.Redis.Enabled {
		rc, err := redisc.New(ctx, redisc.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			d.close()
			return nil, fmt.Errorf("app: redis: %w", err)
		}
		d.closers = append(d.closers, func() { _ = rc.Close() })
		d.books = redisc.NewTobCache(rc, cfg.Redis.TTL.Duration)
		logger.Info("book cache: redis", slog.String("addr", cfg.Redis.Addr))
	} else {
		d.books = marketdata.NewMemoryCache()
		logger.Info("book cache: in-process")
	}

	d.gateway = gateway.New(gateway.ClientConfig{
		BaseURL:       cfg.Gateway.BaseURL,
		APIKey:        cfg.Gateway.APIKey,
		SubmitTimeout: cfg.Gateway.SubmitTimeout.Duration,
		ReadTimeout:   cfg.Gateway.ReadTimeout.Duration,
		RatePerSec:    cfg.Gateway.RatePerSec,
		RateBurst:     cfg.Gateway.RateBurst,
	}, logger)

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	d.notifier = notify.New(senders, cfg.Notify.Events, logger)

	return d, nil
}
