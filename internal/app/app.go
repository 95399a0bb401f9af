// Package app assembles the process: it wires the external adapters, builds
// one strategy/queue/executor pipeline per configured fund, and runs the
// scheduler, the market-data feed, and the status server under one errgroup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/psifund/fundbot/internal/config"
	"github.com/psifund/fundbot/internal/domain"
	"github.com/psifund/fundbot/internal/executor"
	"github.com/psifund/fundbot/internal/fund"
	"github.com/psifund/fundbot/internal/index"
	"github.com/psifund/fundbot/internal/marketdata"
	"github.com/psifund/fundbot/internal/queue"
	"github.com/psifund/fundbot/internal/risk"
	"github.com/psifund/fundbot/internal/sched"
	"github.com/psifund/fundbot/internal/server"
	"github.com/psifund/fundbot/internal/strategy"
)

// Cadences for the periodic tasks. Poll intervals are per-fund overridable;
// drains and maintenance are fixed.
const (
	defaultMirrorPoll = 5 * time.Second
	defaultAlertsPoll = 5 * time.Second
	defaultEdgePoll   = 10 * time.Second
	defaultArbPoll    = 2 * time.Second

	queueDrainEvery  = 100 * time.Millisecond
	maintenanceEvery = 60 * time.Second
)

// App is the assembled process.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	deps      *deps
	registry  *fund.Registry
	scheduler *sched.Scheduler
	feed      *marketdata.WSFeed
	server    *server.Server

	executors map[string]*executor.Executor
}

// New builds the full pipeline from config. The returned App owns every
// adapter; Close releases them.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	d, err := wire(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		logger:    logger,
		deps:      d,
		registry:  fund.NewRegistry(),
		scheduler: sched.New(sched.RealClock{}, logger),
		executors: make(map[string]*executor.Executor),
	}

	indexes := index.NewProvider(d.store, cfg.IndexTTL.Duration, logger)
	q := queue.New(cfg.QueueCapacity)
	engine := risk.NewEngine(risk.Params{}, logger)
	now := time.Now().UTC()

	var strategies []strategy.Strategy
	for _, fc := range cfg.Funds {
		if !fc.Enabled {
			continue
		}
		f, err := config.BuildFund(fc, cfg.TotalCapitalUSD)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("app: fund %s: %w", fc.ID, err)
		}
		state := a.registry.Register(f, now)

		exec := executor.New(state, q, engine, d.gateway, d.store, d.books, d.notifier, logger)
		a.executors[f.ID] = exec

		emitter := a.emitterFor(state, q, f.SignalDelay)
		strat, poll, err := a.buildStrategy(f, fc, state, indexes, emitter, logger)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("app: fund %s: %w", fc.ID, err)
		}
		strategies = append(strategies, strat)

		a.scheduler.Register(f.ID+"/poll", poll, strat.Poll)
		a.scheduler.Register(f.ID+"/drain", queueDrainEvery, exec.ProcessDue)
		a.scheduler.Register(f.ID+"/maintenance", maintenanceEvery, strat.Maintenance)

		d.notifier.FundStarted(ctx, f.ID, f.Strategy, f.StartingCapitalUSD)
		logger.Info("fund registered",
			slog.String("fund", f.ID),
			slog.String("strategy", f.Strategy),
			slog.Float64("capital_usd", f.StartingCapitalUSD),
		)
	}
	if len(a.executors) == 0 {
		d.close()
		return nil, fmt.Errorf("app: no enabled funds")
	}

	a.scheduler.OnClockSkew(func(skewNow time.Time) {
		for _, s := range strategies {
			s.ResetHighwater(skewNow)
		}
		d.notifier.ClockSkew(context.Background(), skewNow)
	})

	a.feed = marketdata.NewWSFeed(cfg.Feed.URL, nil, d.books, logger)
	a.scheduler.Register("feed/resubscribe", maintenanceEvery, a.refreshFeedTokens)

	a.server = server.New(cfg.Server.Addr, a.registry, a, d.notifier, logger)
	return a, nil
}

// emitterFor binds a fund's queue, delay, and emitted counter into an Emitter.
func (a *App) emitterFor(state *fund.State, q *queue.SignalQueue, delay time.Duration) strategy.Emitter {
	return strategy.EmitFunc(func(ctx context.Context, sig domain.Signal) error {
		if err := q.Enqueue(sig, time.Now().UTC(), delay); err != nil {
			return err
		}
		state.Metrics.SignalsEmitted.Add(1)
		return nil
	})
}

func (a *App) buildStrategy(
	f *domain.Fund,
	fc config.FundConfig,
	state *fund.State,
	indexes *index.Provider,
	emitter strategy.Emitter,
	logger *slog.Logger,
) (strategy.Strategy, time.Duration, error) {
	poll := fc.PollInterval.Duration
	switch f.Strategy {
	case config.StrategyMirror:
		if poll <= 0 {
			poll = defaultMirrorPoll
		}
		return strategy.NewMirror(f, state, indexes, a.deps.store, emitter, strategy.MirrorConfig{}, logger), poll, nil
	case config.StrategyAlerts:
		if poll <= 0 {
			poll = defaultAlertsPoll
		}
		return strategy.NewAlertFollower(f, state, a.deps.store, emitter, strategy.AlertsConfig{
			MaxAlertAge: fc.AlertMaxAge.Duration,
		}, logger), poll, nil
	case config.StrategyEdge:
		if poll <= 0 {
			poll = defaultEdgePoll
		}
		return strategy.NewEdgeRanked(f, state, a.deps.store, emitter, strategy.EdgeConfig{
			MinEdge: fc.MinEdge,
		}, logger), poll, nil
	case config.StrategyArb:
		if poll <= 0 {
			poll = defaultArbPoll
		}
		return strategy.NewCompleteSetArb(f, state, a.deps.store, a.deps.books, emitter, a.deps.notifier, strategy.ArbConfig{
			MinEdge:        fc.MinEdge,
			MaxNotionalUSD: fc.MaxArbNotionalUSD,
		}, logger), poll, nil
	default:
		return nil, 0, fmt.Errorf("no strategy for %q", f.Strategy)
	}
}

// refreshFeedTokens re-points the feed subscription at the tokens of the
// currently active binary markets plus every open position. Takes effect on
// the feed's next reconnect.
func (a *App) refreshFeedTokens(ctx context.Context, now time.Time) error {
	markets, err := a.deps.store.ActiveBinaryMarkets(ctx, 50)
	if err != nil {
		return fmt.Errorf("refresh feed tokens: %w", err)
	}

	seen := make(map[string]struct{})
	var tokens []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		tokens = append(tokens, id)
	}
	for _, m := range markets {
		add(m.YesTokenID)
		add(m.NoTokenID)
	}
	for _, exec := range a.executors {
		for _, p := range exec.Positions() {
			add(p.TokenID)
		}
	}
	a.feed.SetTokens(tokens)
	return nil
}

// Positions implements server.PositionLister.
func (a *App) Positions(fundID string) []domain.Position {
	exec, ok := a.executors[fundID]
	if !ok {
		return nil
	}
	return exec.Positions()
}

// Run blocks until the context is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scheduler.Run(gctx) })
	g.Go(func() error { return a.feed.Run(gctx) })
	g.Go(func() error { return a.server.Run(gctx) })

	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		// Normal shutdown path.
		return nil
	}
	return err
}

// Close releases every wired adapter.
func (a *App) Close() {
	a.deps.close()
}
