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
	"github.com/psifund/fundbot/internal/index"
)

// MirrorConfig tunes the index-mirroring strategy.
type MirrorConfig struct {
	// Lookback anchors the first poll window when no highwater exists yet.
	Lookback time.Duration
	// BatchLimit caps trades fetched per poll.
	BatchLimit int
	// SeenCapacity bounds the trade-id dedup set.
	SeenCapacity int
}

func (c *MirrorConfig) withDefaults() {
	if c.Lookback <= 0 {
		c.Lookback = 10 * time.Second
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 100
	}
	if c.SeenCapacity <= 0 {
		c.SeenCapacity = 2000
	}
}

// Mirror replicates the trades of an index's constituents, scaled to the
// fund's capital. It polls the trades table with a highwater-mark window so
// every constituent trade is observed exactly once; the highwater only
// advances after a successful query, so a failed poll re-reads the same
// window and the dedup set absorbs the overlap.
type Mirror struct {
	f       *domain.Fund
	state   *fund.State
	indexes *index.Provider
	reader  domain.AnalyticsReader
	emitter Emitter
	logger  *slog.Logger
	cfg     MirrorConfig

	highwater time.Time
	seen      *seenSet
}

// NewMirror creates a Mirror strategy for one fund.
func NewMirror(f *domain.Fund, state *fund.State, indexes *index.Provider, reader domain.AnalyticsReader, emitter Emitter, cfg MirrorConfig, logger *slog.Logger) *Mirror {
	cfg.withDefaults()
	return &Mirror{
		f:       f,
		state:   state,
		indexes: indexes,
		reader:  reader,
		emitter: emitter,
		logger:  logger.With(slog.String("component", "mirror"), slog.String("fund", f.ID)),
		cfg:     cfg,
		seen:    newSeenSet(cfg.SeenCapacity),
	}
}

// Name implements Strategy.
func (m *Mirror) Name() string { return "mirror" }

// ResetHighwater re-anchors the poll window after a clock skew event.
func (m *Mirror) ResetHighwater(now time.Time) {
	m.highwater = now.Add(-m.cfg.Lookback)
	m.logger.Warn("highwater reset", slog.Time("to", m.highwater))
}

// Maintenance implements Strategy. The mirror has no settlement work.
func (m *Mirror) Maintenance(ctx context.Context, now time.Time) error { return nil }

// Poll fetches constituent trades since the highwater and emits one trader
// signal per unseen trade.
func (m *Mirror) Poll(ctx context.Context, now time.Time) error {
	constituents, err := m.indexes.Constituents(ctx, m.f.IndexType, now)
	if err != nil {
		m.state.Metrics.FailedPolls.Add(1)
		return fmt.Errorf("mirror: load index %s: %w", m.f.IndexType, err)
	}
	if len(constituents) == 0 {
		return nil
	}

	proxies := make([]string, 0, len(constituents))
	for _, c := range constituents {
		proxies = append(proxies, strings.ToLower(c.Proxy))
	}

	from := m.highwater
	if from.IsZero() {
		from = now.Add(-m.cfg.Lookback)
	}

	trades, err := m.reader.TradesForAddresses(ctx, proxies, from, now, m.cfg.BatchLimit)
	if err != nil {
		m.state.Metrics.FailedPolls.Add(1)
		return fmt.Errorf("mirror: poll trades: %w", err)
	}
	// Only now is the window consumed.
	m.highwater = now

	for _, tr := range trades {
		if !m.seen.Add(tr.TradeID) {
			m.state.Metrics.DuplicatesSkipped.Add(1)
			continue
		}
		c, ok := m.indexes.Lookup(m.f.IndexType, tr.Proxy)
		if !ok {
			// Constituent rotated out between query and lookup.
			continue
		}
		sig := domain.Signal{
			ID:               uuid.NewString(),
			FundID:           m.f.ID,
			Kind:             domain.SignalKindTrader,
			Source:           m.Name(),
			Action:           tradeAction(tr.Side),
			MarketSlug:       tr.MarketSlug,
			TokenID:          tr.TokenID,
			Outcome:          tr.Outcome,
			Price:            tr.Price,
			Shares:           tr.Size,
			NotionalUSD:      tr.NotionalUSD,
			TraderUsername:   tr.Username,
			TraderProxy:      tr.Proxy,
			TraderCapitalUSD: c.CapitalUSD,
			TraderWeight:     c.Weight,
			Urgency:          domain.UrgencyMedium,
			Reason:           fmt.Sprintf("mirror %s rank %d", c.Username, c.Rank),
			DetectedAt:       now,
			TraderExecutedAt: tr.TS,
		}
		if err := m.emitter.Emit(ctx, sig); err != nil {
			m.logger.Warn("emit failed",
				slog.String("trade", tr.TradeID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func tradeAction(side string) domain.SignalAction {
	if strings.EqualFold(side, "SELL") {
		return domain.ActionSell
	}
	return domain.ActionBuy
}

var _ Strategy = (*Mirror)(nil)
