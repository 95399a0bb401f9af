package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/psifund/fundbot/internal/domain"
	"github.com/psifund/fundbot/internal/fund"
	"github.com/psifund/fundbot/internal/notify"
)

// ArbConfig tunes the complete-set arbitrage strategy.
type ArbConfig struct {
	// MinEdge is the minimum 1 - (yesAsk + noAsk) to act on.
	MinEdge float64
	// MaxActive caps concurrent arb positions.
	MaxActive int
	// MaxNotionalUSD caps the total spend across both legs of one arb.
	MaxNotionalUSD float64
	// MinSideNotionalUSD is the floor per leg.
	MinSideNotionalUSD float64
	// MinAskNotionalUSD is the displayed liquidity each leg must show.
	MinAskNotionalUSD float64
	// BookFreshness bounds how stale a quote may be.
	BookFreshness time.Duration
	// MarketCooldown blocks re-entering a market after an arb closes.
	MarketCooldown time.Duration
	// SignalTTL is how long the paired entry signals stay valid.
	SignalTTL   time.Duration
	MarketLimit int
}

func (c *ArbConfig) withDefaults() {
	if c.MinEdge <= 0 {
		c.MinEdge = 0.02
	}
	if c.MaxActive <= 0 {
		c.MaxActive = 5
	}
	if c.MaxNotionalUSD <= 0 {
		c.MaxNotionalUSD = 500
	}
	if c.MinSideNotionalUSD <= 0 {
		c.MinSideNotionalUSD = 10
	}
	if c.MinAskNotionalUSD <= 0 {
		c.MinAskNotionalUSD = 50
	}
	if c.BookFreshness <= 0 {
		c.BookFreshness = 5 * time.Second
	}
	if c.MarketCooldown <= 0 {
		c.MarketCooldown = 300 * time.Second
	}
	if c.SignalTTL <= 0 {
		c.SignalTTL = 60 * time.Second
	}
	if c.MarketLimit <= 0 {
		c.MarketLimit = 50
	}
}

// activeArb tracks one open complete-set position until the market resolves.
type activeArb struct {
	id         string
	marketSlug string
	yesTokenID string
	noTokenID  string
	costPerSet float64
	sets       float64
	endTime    time.Time
	openedAt   time.Time
}

// CompleteSetArb scans binary markets for complete-set mispricings: when the
// YES and NO asks sum below 1, buying equal shares of both locks in the gap
// at resolution. Entries are paired BUY signals sharing an arb id; the locked
// profit is realised by Maintenance once the market's end time passes.
type CompleteSetArb struct {
	f        *domain.Fund
	state    *fund.State
	reader   domain.AnalyticsReader
	books    domain.BookCache
	emitter  Emitter
	notifier *notify.Notifier // optional
	logger   *slog.Logger
	cfg      ArbConfig

	active       map[string]*activeArb // keyed by market slug
	lastByMarket map[string]time.Time
}

// NewCompleteSetArb creates a CompleteSetArb strategy for one fund.
func NewCompleteSetArb(f *domain.Fund, state *fund.State, reader domain.AnalyticsReader, books domain.BookCache, emitter Emitter, notifier *notify.Notifier, cfg ArbConfig, logger *slog.Logger) *CompleteSetArb {
	cfg.withDefaults()
	return &CompleteSetArb{
		f:            f,
		state:        state,
		reader:       reader,
		books:        books,
		emitter:      emitter,
		notifier:     notifier,
		logger:       logger.With(slog.String("component", "complete_set_arb"), slog.String("fund", f.ID)),
		cfg:          cfg,
		active:       make(map[string]*activeArb),
		lastByMarket: make(map[string]time.Time),
	}
}

// Name implements Strategy.
func (c *CompleteSetArb) Name() string { return "complete_set_arb" }

// ResetHighwater implements Strategy. The scanner works off live quotes, so
// there is no poll window to re-anchor.
func (c *CompleteSetArb) ResetHighwater(now time.Time) {}

// Poll scans active binary markets for complete-set edge and opens at most
// one new arb per market.
func (c *CompleteSetArb) Poll(ctx context.Context, now time.Time) error {
	if len(c.active) >= c.cfg.MaxActive {
		return nil
	}

	markets, err := c.reader.ActiveBinaryMarkets(ctx, c.cfg.MarketLimit)
	if err != nil {
		c.state.Metrics.FailedPolls.Add(1)
		return fmt.Errorf("complete set arb: markets: %w", err)
	}

	for _, m := range markets {
		if len(c.active) >= c.cfg.MaxActive {
			break
		}
		if _, open := c.active[m.Slug]; open {
			continue
		}
		if last, ok := c.lastByMarket[m.Slug]; ok && now.Sub(last) < c.cfg.MarketCooldown {
			continue
		}
		c.tryMarket(ctx, m, now)
	}
	return nil
}

func (c *CompleteSetArb) tryMarket(ctx context.Context, m domain.BinaryMarket, now time.Time) {
	yes, err := c.books.Get(ctx, m.YesTokenID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.Debug("book read failed", slog.String("token", m.YesTokenID), slog.String("error", err.Error()))
		}
		return
	}
	no, err := c.books.Get(ctx, m.NoTokenID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.Debug("book read failed", slog.String("token", m.NoTokenID), slog.String("error", err.Error()))
		}
		return
	}

	if !yes.Fresh(now, c.cfg.BookFreshness) || !no.Fresh(now, c.cfg.BookFreshness) {
		return
	}
	if yes.BestAsk <= 0 || no.BestAsk <= 0 {
		return
	}
	if yes.AskNotionalUSD() < c.cfg.MinAskNotionalUSD || no.AskNotionalUSD() < c.cfg.MinAskNotionalUSD {
		return
	}

	costPerSet := yes.BestAsk + no.BestAsk
	edge := 1 - costPerSet
	if edge < c.cfg.MinEdge {
		return
	}

	// Size each leg off displayed liquidity, never taking more than half of
	// the thinner side or half the arb budget.
	avail := 0.5 * minFloat(yes.AskNotionalUSD(), no.AskNotionalUSD())
	perSide := minFloat(c.cfg.MaxNotionalUSD/2, avail)
	if perSide < c.cfg.MinSideNotionalUSD {
		return
	}
	sets := (2 * perSide) / costPerSet

	confidence := clamp(0.5+(edge/0.03)*0.45, 0, 0.95)
	arbID := uuid.NewString()
	expires := now.Add(c.cfg.SignalTTL)

	legs := []struct {
		tokenID string
		outcome string
		ask     float64
	}{
		{m.YesTokenID, "Yes", yes.BestAsk},
		{m.NoTokenID, "No", no.BestAsk},
	}
	for _, leg := range legs {
		sig := domain.Signal{
			ID:                   uuid.NewString(),
			FundID:               c.f.ID,
			Kind:                 domain.SignalKindAlpha,
			Source:               c.Name(),
			Action:               domain.ActionBuy,
			MarketSlug:           m.Slug,
			TokenID:              leg.tokenID,
			Outcome:              leg.outcome,
			Price:                leg.ask,
			Shares:               sets,
			Confidence:           confidence,
			Strength:             1,
			SuggestedNotionalUSD: sets * leg.ask,
			Urgency:              domain.UrgencyHigh,
			Reason:               fmt.Sprintf("complete set edge %.4f on %s", edge, m.Slug),
			Metadata: map[string]string{
				"arb_id":       arbID,
				"cost_per_set": fmt.Sprintf("%.4f", costPerSet),
			},
			DetectedAt: now,
			ExpiresAt:  expires,
		}
		if err := c.emitter.Emit(ctx, sig); err != nil {
			c.logger.Warn("arb emit failed",
				slog.String("market", m.Slug),
				slog.String("error", err.Error()),
			)
			return
		}
	}

	c.active[m.Slug] = &activeArb{
		id:         arbID,
		marketSlug: m.Slug,
		yesTokenID: m.YesTokenID,
		noTokenID:  m.NoTokenID,
		costPerSet: costPerSet,
		sets:       sets,
		endTime:    m.EndTime,
		openedAt:   now,
	}
	c.lastByMarket[m.Slug] = now
	c.logger.Info("arb opened",
		slog.String("market", m.Slug),
		slog.Float64("edge", edge),
		slog.Float64("sets", sets),
	)
}

// Maintenance realises matured arbs: once the market's end time passes, each
// complete set pays out 1, so the locked profit per set is 1 - costPerSet.
func (c *CompleteSetArb) Maintenance(ctx context.Context, now time.Time) error {
	for slug, arb := range c.active {
		if now.Before(arb.endTime) {
			continue
		}
		profit := (1 - arb.costPerSet) * arb.sets
		c.state.AddRealized(profit)
		delete(c.active, slug)
		c.lastByMarket[slug] = now
		c.logger.Info("arb realised",
			slog.String("market", slug),
			slog.Float64("profit_usd", profit),
			slog.Float64("sets", arb.sets),
		)
		if c.notifier != nil {
			c.notifier.ArbRealised(ctx, c.f.ID, slug, profit)
		}
	}
	return nil
}

// ActiveCount returns the number of open arbs.
func (c *CompleteSetArb) ActiveCount() int { return len(c.active) }

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

var _ Strategy = (*CompleteSetArb)(nil)
