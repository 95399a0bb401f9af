package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/psifund/fundbot/internal/domain"
	"github.com/psifund/fundbot/internal/fund"
)

// AlertsConfig tunes the alert-follower strategy.
type AlertsConfig struct {
	Types             []string
	MaxAlertAge       time.Duration
	MarketCooldown    time.Duration
	BatchLimit        int
	SeenCapacity      int
	DefaultConfidence float64
	DefaultStrength   float64
}

func (c *AlertsConfig) withDefaults() {
	if len(c.Types) == 0 {
		c.Types = []string{"INSIDER_DETECTED", "UNUSUAL_ACTIVITY", "SMART_MONEY_ENTRY"}
	}
	if c.MaxAlertAge <= 0 {
		c.MaxAlertAge = 300 * time.Second
	}
	if c.MarketCooldown <= 0 {
		c.MarketCooldown = 60 * time.Second
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 50
	}
	if c.SeenCapacity <= 0 {
		c.SeenCapacity = 1000
	}
	if c.DefaultConfidence <= 0 {
		c.DefaultConfidence = 0.6
	}
	if c.DefaultStrength <= 0 {
		c.DefaultStrength = 0.5
	}
}

// alertMetadata is the JSON blob attached to actionable alerts by the
// analytics pipeline. token_id is mandatory; everything else falls back to
// strategy defaults.
type alertMetadata struct {
	TokenID              string  `json:"token_id"`
	Outcome              string  `json:"outcome"`
	Price                float64 `json:"price"`
	Action               string  `json:"action"`
	Confidence           float64 `json:"confidence"`
	Strength             float64 `json:"strength"`
	SuggestedNotionalUSD float64 `json:"suggested_notional_usd"`
}

// AlertFollower turns ACTIVE analytics alerts into alpha signals. Stale
// alerts are dropped, and a per-market cooldown stops one noisy market from
// flooding the fund.
type AlertFollower struct {
	f       *domain.Fund
	state   *fund.State
	reader  domain.AnalyticsReader
	emitter Emitter
	logger  *slog.Logger
	cfg     AlertsConfig

	highwater    time.Time
	seen         *seenSet
	lastByMarket map[string]time.Time
}

// NewAlertFollower creates an AlertFollower strategy for one fund.
func NewAlertFollower(f *domain.Fund, state *fund.State, reader domain.AnalyticsReader, emitter Emitter, cfg AlertsConfig, logger *slog.Logger) *AlertFollower {
	cfg.withDefaults()
	return &AlertFollower{
		f:            f,
		state:        state,
		reader:       reader,
		emitter:      emitter,
		logger:       logger.With(slog.String("component", "alert_follower"), slog.String("fund", f.ID)),
		cfg:          cfg,
		seen:         newSeenSet(cfg.SeenCapacity),
		lastByMarket: make(map[string]time.Time),
	}
}

// Name implements Strategy.
func (a *AlertFollower) Name() string { return "alert_follower" }

// ResetHighwater re-anchors the poll window after a clock skew event.
func (a *AlertFollower) ResetHighwater(now time.Time) {
	a.highwater = now.Add(-a.cfg.MaxAlertAge)
	a.logger.Warn("highwater reset", slog.Time("to", a.highwater))
}

// Maintenance implements Strategy.
func (a *AlertFollower) Maintenance(ctx context.Context, now time.Time) error { return nil }

// Poll fetches new ACTIVE alerts and emits one alpha signal per actionable
// alert.
func (a *AlertFollower) Poll(ctx context.Context, now time.Time) error {
	from := a.highwater
	if from.IsZero() {
		from = now.Add(-a.cfg.MaxAlertAge)
	}

	alerts, err := a.reader.ActiveAlerts(ctx, a.cfg.Types, from, now, a.cfg.BatchLimit)
	if err != nil {
		a.state.Metrics.FailedPolls.Add(1)
		return fmt.Errorf("alert follower: poll: %w", err)
	}
	a.highwater = now

	for _, alert := range alerts {
		if a.seen.Has(alert.ID) {
			a.state.Metrics.DuplicatesSkipped.Add(1)
			continue
		}
		expired := !alert.ExpiresAt.IsZero() && alert.ExpiresAt.Before(now)
		if expired || now.Sub(alert.CreatedAt) > a.cfg.MaxAlertAge {
			a.seen.Add(alert.ID)
			continue
		}
		// Cooldown skips leave the alert unmarked so it stays eligible once
		// the market frees up.
		if last, ok := a.lastByMarket[alert.MarketSlug]; ok && now.Sub(last) < a.cfg.MarketCooldown {
			continue
		}
		a.seen.Add(alert.ID)

		var meta alertMetadata
		if err := json.Unmarshal(alert.Metadata, &meta); err != nil || meta.TokenID == "" {
			a.logger.Debug("alert without actionable metadata",
				slog.String("alert", alert.ID),
				slog.String("type", alert.Type),
			)
			continue
		}

		sig := a.buildSignal(alert, meta, now)
		if err := a.emitter.Emit(ctx, sig); err != nil {
			a.logger.Warn("emit failed",
				slog.String("alert", alert.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.lastByMarket[alert.MarketSlug] = now
	}
	return nil
}

func (a *AlertFollower) buildSignal(alert domain.AlertRow, meta alertMetadata, now time.Time) domain.Signal {
	confidence := meta.Confidence
	if confidence <= 0 {
		confidence = a.cfg.DefaultConfidence
	}
	strength := meta.Strength
	if strength <= 0 {
		strength = a.cfg.DefaultStrength
	}
	expires := alert.CreatedAt.Add(a.cfg.MaxAlertAge)
	if !alert.ExpiresAt.IsZero() && alert.ExpiresAt.Before(expires) {
		expires = alert.ExpiresAt
	}

	return domain.Signal{
		ID:                   uuid.NewString(),
		FundID:               a.f.ID,
		Kind:                 domain.SignalKindAlpha,
		Source:               a.Name(),
		Action:               alertAction(meta.Action),
		MarketSlug:           alert.MarketSlug,
		TokenID:              meta.TokenID,
		Outcome:              meta.Outcome,
		Price:                meta.Price,
		Confidence:           confidence,
		Strength:             strength,
		SuggestedNotionalUSD: meta.SuggestedNotionalUSD,
		Urgency:              severityUrgency(alert.Severity),
		Reason:               fmt.Sprintf("%s: %s", alert.Type, alert.Title),
		Metadata:             map[string]string{"alert_id": alert.ID},
		DetectedAt:           now,
		ExpiresAt:            expires,
	}
}

// alertAction maps the pipeline's suggested action. Alerts are entry signals
// by default.
func alertAction(metaAction string) domain.SignalAction {
	switch strings.ToUpper(metaAction) {
	case "SELL":
		return domain.ActionSell
	case "CLOSE":
		return domain.ActionClose
	default:
		return domain.ActionBuy
	}
}

func severityUrgency(severity string) domain.Urgency {
	switch strings.ToUpper(severity) {
	case "CRITICAL":
		return domain.UrgencyCritical
	case "HIGH":
		return domain.UrgencyHigh
	case "WARNING":
		return domain.UrgencyMedium
	default:
		return domain.UrgencyLow
	}
}

var _ Strategy = (*AlertFollower)(nil)
