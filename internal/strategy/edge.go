package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/psifund/fundbot/internal/domain"
	"github.com/psifund/fundbot/internal/fund"
)

// EdgeConfig tunes the edge-ranked follower strategy.
type EdgeConfig struct {
	MinEdge              float64
	MaxInverseConfidence float64
	RosterLimit          int
	// RosterTTL drives staleness eviction: a trader absent from the ranking
	// for two TTLs is dropped.
	RosterTTL time.Duration
	// DecayThreshold is how many edge points a trader must lose from their
	// tracked peak before the fund exits their positions.
	DecayThreshold float64
	MaxTradeAge    time.Duration
	NotionalFrac   float64 // fraction of the trader's notional to suggest
	BatchLimit     int
	SeenCapacity   int
}

func (c *EdgeConfig) withDefaults() {
	if c.MinEdge <= 0 {
		c.MinEdge = 70
	}
	if c.MaxInverseConfidence <= 0 {
		c.MaxInverseConfidence = 0.5
	}
	if c.RosterLimit <= 0 {
		c.RosterLimit = 50
	}
	if c.RosterTTL <= 0 {
		c.RosterTTL = 600 * time.Second
	}
	if c.DecayThreshold <= 0 {
		c.DecayThreshold = 15
	}
	if c.MaxTradeAge <= 0 {
		c.MaxTradeAge = time.Hour
	}
	if c.NotionalFrac <= 0 {
		c.NotionalFrac = 0.5
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 100
	}
	if c.SeenCapacity <= 0 {
		c.SeenCapacity = 2000
	}
}

const edgeHistoryCap = 12

// rosterEntry tracks one followed trader and their recent edge history.
type rosterEntry struct {
	trader   domain.EdgeTrader
	history  []float64 // most recent last, bounded by edgeHistoryCap
	peak     float64
	lastSeen time.Time
	exited   bool // decay exit already emitted
}

// EdgeRanked follows the ML-ranked high-edge traders: it mirrors their fresh
// trades as alpha signals and exits a trader's positions when their edge
// decays from its tracked peak.
type EdgeRanked struct {
	f       *domain.Fund
	state   *fund.State
	reader  domain.AnalyticsReader
	emitter Emitter
	logger  *slog.Logger
	cfg     EdgeConfig

	roster    map[string]*rosterEntry // keyed by lower-cased proxy
	highwater time.Time
	seen      *seenSet
}

// NewEdgeRanked creates an EdgeRanked strategy for one fund.
func NewEdgeRanked(f *domain.Fund, state *fund.State, reader domain.AnalyticsReader, emitter Emitter, cfg EdgeConfig, logger *slog.Logger) *EdgeRanked {
	cfg.withDefaults()
	return &EdgeRanked{
		f:       f,
		state:   state,
		reader:  reader,
		emitter: emitter,
		logger:  logger.With(slog.String("component", "edge_ranked"), slog.String("fund", f.ID)),
		cfg:     cfg,
		roster:  make(map[string]*rosterEntry),
		seen:    newSeenSet(cfg.SeenCapacity),
	}
}

// Name implements Strategy.
func (e *EdgeRanked) Name() string { return "edge_ranked" }

// ResetHighwater re-anchors the poll window after a clock skew event.
func (e *EdgeRanked) ResetHighwater(now time.Time) {
	e.highwater = now
	e.logger.Warn("highwater reset", slog.Time("to", now))
}

// Maintenance implements Strategy.
func (e *EdgeRanked) Maintenance(ctx context.Context, now time.Time) error { return nil }

// Poll refreshes the trader roster, emits decay exits, then mirrors fresh
// trades from the roster. The roster refresh runs every tick: decay detection
// needs one edge sample per poll.
func (e *EdgeRanked) Poll(ctx context.Context, now time.Time) error {
	if err := e.refreshRoster(ctx, now); err != nil {
		e.state.Metrics.FailedPolls.Add(1)
		return err
	}
	if len(e.roster) == 0 {
		return nil
	}
	return e.pollTrades(ctx, now)
}

func (e *EdgeRanked) refreshRoster(ctx context.Context, now time.Time) error {
	traders, err := e.reader.HighEdgeTraders(ctx, e.cfg.MinEdge, e.cfg.MaxInverseConfidence, e.cfg.RosterLimit)
	if err != nil {
		return fmt.Errorf("edge ranked: refresh roster: %w", err)
	}

	for _, t := range traders {
		key := strings.ToLower(t.Proxy)
		entry, ok := e.roster[key]
		if !ok {
			entry = &rosterEntry{trader: t, peak: t.Edge}
			e.roster[key] = entry
		}
		entry.trader = t
		entry.lastSeen = now
		entry.history = append(entry.history, t.Edge)
		if len(entry.history) > edgeHistoryCap {
			entry.history = entry.history[len(entry.history)-edgeHistoryCap:]
		}
		if t.Edge > entry.peak {
			entry.peak = t.Edge
			entry.exited = false
		}

		if decay := entry.peak - t.Edge; decay > e.cfg.DecayThreshold && !entry.exited {
			e.emitDecayExit(ctx, entry, decay, now)
			entry.exited = true
		}
	}

	// Traders absent from the ranking for two TTLs are dropped.
	cutoff := now.Add(-2 * e.cfg.RosterTTL)
	for key, entry := range e.roster {
		if entry.lastSeen.Before(cutoff) {
			delete(e.roster, key)
		}
	}
	return nil
}

// emitDecayExit emits a wildcard SELL covering every position attributable to
// the decayed trader. The executor gates wildcards for review rather than
// submitting them.
func (e *EdgeRanked) emitDecayExit(ctx context.Context, entry *rosterEntry, decay float64, now time.Time) {
	confidence := decay / 30
	if confidence > 0.9 {
		confidence = 0.9
	}
	sig := domain.Signal{
		ID:             uuid.NewString(),
		FundID:         e.f.ID,
		Kind:           domain.SignalKindAlpha,
		Source:         e.Name(),
		Action:         domain.ActionSell,
		TokenID:        domain.WildcardToken,
		Confidence:     confidence,
		Strength:       1,
		TraderUsername: entry.trader.Username,
		TraderProxy:    entry.trader.Proxy,
		Urgency:        domain.UrgencyMedium,
		Reason: fmt.Sprintf("edge decay %.1f from peak %.1f for %s",
			decay, entry.peak, entry.trader.Username),
		DetectedAt: now,
	}
	if err := e.emitter.Emit(ctx, sig); err != nil {
		e.logger.Warn("decay exit emit failed",
			slog.String("trader", entry.trader.Username),
			slog.String("error", err.Error()),
		)
	}
}

func (e *EdgeRanked) pollTrades(ctx context.Context, now time.Time) error {
	proxies := make([]string, 0, len(e.roster))
	for key := range e.roster {
		proxies = append(proxies, key)
	}

	from := e.highwater
	if from.IsZero() {
		from = now.Add(-e.cfg.MaxTradeAge)
	}
	trades, err := e.reader.TradesForAddresses(ctx, proxies, from, now, e.cfg.BatchLimit)
	if err != nil {
		e.state.Metrics.FailedPolls.Add(1)
		return fmt.Errorf("edge ranked: poll trades: %w", err)
	}
	e.highwater = now

	for _, tr := range trades {
		if !e.seen.Add(tr.TradeID) {
			e.state.Metrics.DuplicatesSkipped.Add(1)
			continue
		}
		age := now.Sub(tr.TS)
		if age > e.cfg.MaxTradeAge {
			continue
		}
		entry, ok := e.roster[strings.ToLower(tr.Proxy)]
		if !ok || entry.exited {
			continue
		}

		edge := entry.trader.Edge
		confidence := edge / 100
		strength := confidence * clamp(tr.NotionalUSD/1000, 0, 1)

		sig := domain.Signal{
			ID:                   uuid.NewString(),
			FundID:               e.f.ID,
			Kind:                 domain.SignalKindAlpha,
			Source:               e.Name(),
			Action:               tradeAction(tr.Side),
			MarketSlug:           tr.MarketSlug,
			TokenID:              tr.TokenID,
			Outcome:              tr.Outcome,
			Price:                tr.Price,
			Confidence:           confidence,
			Strength:             strength,
			SuggestedNotionalUSD: tr.NotionalUSD * e.cfg.NotionalFrac,
			TraderUsername:       tr.Username,
			TraderProxy:          tr.Proxy,
			Urgency:              edgeUrgency(edge, age),
			Reason:               fmt.Sprintf("edge %.1f trade by %s", edge, tr.Username),
			DetectedAt:           now,
			TraderExecutedAt:     tr.TS,
			ExpiresAt:            now.Add(e.cfg.MaxTradeAge),
		}
		if err := e.emitter.Emit(ctx, sig); err != nil {
			e.logger.Warn("emit failed",
				slog.String("trade", tr.TradeID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// edgeUrgency grades a followed trade by edge and staleness. A top trader's
// fresh trade is worth chasing; an old one is not.
func edgeUrgency(edge float64, age time.Duration) domain.Urgency {
	switch {
	case edge >= 90 && age < time.Minute:
		return domain.UrgencyHigh
	case edge >= 80 && age < 5*time.Minute:
		return domain.UrgencyMedium
	default:
		return domain.UrgencyLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var _ Strategy = (*EdgeRanked)(nil)
