// Package notify fans operational events out to the configured channels
// (Telegram, Discord). Delivery is best effort: a dead webhook never blocks
// the trading loop.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Event types emitted by the orchestrator and executor.
const (
	EventFundStarted       = "fund_started"
	EventKillSwitchTripped = "kill_switch_tripped"
	EventOrderFailed       = "order_failed"
	EventArbRealised       = "arb_realised"
	EventClockSkew         = "clock_skew"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches events to every sender. An event-type allowlist filters
// what operators receive; an empty allowlist passes everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// New creates a Notifier delivering to senders, filtered to the given event
// types. Empty events allows all.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers one event to every sender, subject to the allowlist.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// FundStarted announces a fund coming online.
func (n *Notifier) FundStarted(ctx context.Context, fundID, strategy string, capitalUSD float64) {
	_ = n.Notify(ctx, EventFundStarted,
		fmt.Sprintf("Fund %s started", fundID),
		fmt.Sprintf("strategy=%s capital=$%.0f", strategy, capitalUSD),
	)
}

// KillSwitchTripped announces a fund halting on a risk limit.
func (n *Notifier) KillSwitchTripped(ctx context.Context, fundID, reason string) {
	_ = n.Notify(ctx, EventKillSwitchTripped,
		fmt.Sprintf("Kill switch tripped: %s", fundID),
		reason,
	)
}

// OrderFailed announces a gateway submission failure.
func (n *Notifier) OrderFailed(ctx context.Context, fundID, marketSlug, reason string) {
	_ = n.Notify(ctx, EventOrderFailed,
		fmt.Sprintf("Order failed: %s", fundID),
		fmt.Sprintf("market=%s %s", marketSlug, reason),
	)
}

// ArbRealised announces a matured complete-set position paying out.
func (n *Notifier) ArbRealised(ctx context.Context, fundID, marketSlug string, profitUSD float64) {
	_ = n.Notify(ctx, EventArbRealised,
		fmt.Sprintf("Arb realised: %s", fundID),
		fmt.Sprintf("market=%s profit=$%.2f", marketSlug, profitUSD),
	)
}

// ClockSkew announces a backwards wall-clock jump.
func (n *Notifier) ClockSkew(ctx context.Context, at time.Time) {
	_ = n.Notify(ctx, EventClockSkew,
		"Clock skew detected",
		fmt.Sprintf("wall clock moved backwards at %s, poll windows re-anchored", at.Format(time.RFC3339)),
	)
}

// dispatch fans one message out to every sender, collecting failures so one
// dead channel does not mute the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
