// Package executor converts sized signals into gateway orders and owns each
// fund's position map. One Executor instance serves one fund; its ProcessDue
// method is driven by the fund's queue-drain task, making it the single
// writer over that fund's positions.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/psifund/fundbot/internal/domain"
	"github.com/psifund/fundbot/internal/fund"
	"github.com/psifund/fundbot/internal/notify"
	"github.com/psifund/fundbot/internal/queue"
	"github.com/psifund/fundbot/internal/risk"
)

// urgencyMult scales the slippage allowance applied to the limit price.
func urgencyMult(u domain.Urgency) float64 {
	switch u {
	case domain.UrgencyLow:
		return 0.5
	case domain.UrgencyHigh:
		return 1.5
	case domain.UrgencyCritical:
		return 2.0
	default:
		return 1.0
	}
}

// Executor drains one fund's signal queue, sizes each due signal, submits the
// resulting limit order, and updates positions and metrics.
type Executor struct {
	state    *fund.State
	queue    *queue.SignalQueue
	engine   *risk.Engine
	gateway  domain.OrderGateway
	writer   domain.ExecutionWriter
	books    domain.BookCache // optional, for marking unrealised P&L
	notifier *notify.Notifier // optional
	logger   *slog.Logger

	mu   sync.Mutex // guards book against status-surface readers
	book *book
}

// New creates an Executor for one fund.
func New(
	state *fund.State,
	q *queue.SignalQueue,
	engine *risk.Engine,
	gateway domain.OrderGateway,
	writer domain.ExecutionWriter,
	books domain.BookCache,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		state:    state,
		queue:    q,
		engine:   engine,
		gateway:  gateway,
		writer:   writer,
		books:    books,
		notifier: notifier,
		book:     newBook(),
		logger: logger.With(
			slog.String("component", "executor"),
			slog.String("fund", state.Fund.ID),
		),
	}
}

// ProcessDue pops every due signal from the fund's queue and executes each in
// enqueue order. A failure for one signal is terminal for that signal only.
func (e *Executor) ProcessDue(ctx context.Context, now time.Time) error {
	for _, sig := range e.queue.DrainDue(e.state.Fund.ID, now) {
		e.process(ctx, sig, now)
	}
	e.refreshGauges(ctx, now)
	return nil
}

func (e *Executor) process(ctx context.Context, sig domain.Signal, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	log := e.logger.With(
		slog.String("signal_id", sig.ID),
		slog.String("source", sig.Source),
		slog.String("token", sig.TokenID),
		slog.String("action", string(sig.Action)),
	)

	// Wildcard signals refer to every position of a trader. They are logged
	// for review and counted, never sized or submitted.
	if sig.Wildcard() {
		e.state.Metrics.WildcardSignals.Add(1)
		log.Warn("wildcard signal held for review",
			slog.String("trader", sig.TraderUsername),
			slog.String("reason", sig.Reason),
		)
		return
	}

	sized, rejection := e.engine.Size(e.state.Fund, e.state.KillSwitch(), sig, e.book, now)
	if rejection != risk.RejectNone {
		e.state.Metrics.SignalsFiltered.Add(1)
		if rejection == risk.RejectExpired {
			e.state.Metrics.SignalsExpired.Add(1)
		}
		log.Debug("signal filtered", slog.String("reason", string(rejection)))
		return
	}

	side := domain.OrderSideBuy
	if sig.Action == domain.ActionSell || sig.Action == domain.ActionClose {
		side = domain.OrderSideSell
	}
	limit := e.limitPrice(sized.ReferencePrice, side, sig.Urgency)

	ack, err := e.gateway.PlaceLimitOrder(ctx, sig.TokenID, side, limit, sized.Shares)
	if err != nil {
		e.state.Metrics.OrdersFailed.Add(1)
		if errors.Is(err, domain.ErrGatewayRejected) {
			e.state.Metrics.OrdersRejected.Add(1)
		}
		log.Warn("order placement failed", slog.String("error", err.Error()))
		if e.notifier != nil {
			e.notifier.OrderFailed(ctx, sig.FundID, sig.MarketSlug, err.Error())
		}
		return
	}

	e.state.Metrics.OrdersSubmitted.Add(1)
	e.state.Metrics.SignalsExecuted.Add(1)
	e.state.Metrics.DailyTrades.Add(1)
	e.state.AddDailyNotional(sized.Shares * limit)

	e.book.pending[ack.OrderID] = domain.PendingOrder{
		OrderID:     ack.OrderID,
		SignalID:    sig.ID,
		Side:        side,
		Shares:      sized.Shares,
		LimitPrice:  limit,
		SubmittedAt: now,
	}

	switch side {
	case domain.OrderSideBuy:
		e.book.applyBuy(sig, sized.Shares, limit, now)
	case domain.OrderSideSell:
		realized, oversell := e.book.applySell(sig, sized.Shares, limit, now)
		e.state.AddRealized(realized)
		if oversell {
			log.Warn("OVERSELL: sell exceeded held shares, clamped to zero",
				slog.Float64("requested", sized.Shares),
			)
		}
	}

	// The ack is final for our purposes; reconciliation against the venue is
	// out of scope.
	delete(e.book.pending, ack.OrderID)

	rec := domain.ExecutionRecord{
		SignalID:       sig.ID,
		FundID:         sig.FundID,
		TraderUsername: sig.TraderUsername,
		MarketSlug:     sig.MarketSlug,
		TokenID:        sig.TokenID,
		Outcome:        sig.Outcome,
		SignalType:     string(sig.Action),
		Side:           side,
		TraderShares:   sig.Shares,
		FundShares:     sized.Shares,
		ExecutionPrice: limit,
		OrderID:        ack.OrderID,
		DetectedAt:     sig.DetectedAt,
		ExecutedAt:     now,
	}
	if err := e.writer.InsertExecution(ctx, rec); err != nil {
		// Persistence failure never reverts the in-memory update.
		e.state.Metrics.PersistFailures.Add(1)
		log.Warn("execution record persist failed", slog.String("error", err.Error()))
	}

	log.Info("order placed",
		slog.String("order_id", ack.OrderID),
		slog.String("status", string(ack.Status)),
		slog.Float64("shares", sized.Shares),
		slog.Float64("limit", limit),
	)
}

// limitPrice applies the slippage allowance: buys pay up, sells give way.
func (e *Executor) limitPrice(ref float64, side domain.OrderSide, urgency domain.Urgency) float64 {
	slip := e.state.Fund.MaxSlippagePct * urgencyMult(urgency)
	if side == domain.OrderSideBuy {
		return risk.BuyLimit(ref, slip)
	}
	return risk.SellLimit(ref, slip)
}

// refreshGauges updates the registry's open-position and pending-signal
// gauges, and marks unrealised P&L against the latest top-of-book bids when a
// book cache is wired.
func (e *Executor) refreshGauges(ctx context.Context, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.SetGauges(e.book.OpenPositions(), e.queue.Pending(e.state.Fund.ID))
	if e.books == nil {
		return
	}
	var unrealized float64
	for token, p := range e.book.positions {
		tob, err := e.books.Get(ctx, token)
		if err != nil || tob.BestBid <= 0 {
			continue
		}
		unrealized += p.Shares * (tob.BestBid - p.AvgCost)
	}
	e.state.SetUnrealized(unrealized)
}

// Positions returns a copy of the fund's open positions for the status surface.
func (e *Executor) Positions() []domain.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Position, 0, len(e.book.positions))
	for _, p := range e.book.positions {
		out = append(out, *p)
	}
	return out
}
