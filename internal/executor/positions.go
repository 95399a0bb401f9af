package executor

import (
	"time"

	"github.com/google/uuid"

	"github.com/psifund/fundbot/internal/domain"
)

// book is the executor-owned position and pending-order state for one fund.
// The queue-drain task is the single writer, so no lock is needed beyond the
// executor's own serialization.
type book struct {
	positions map[string]*domain.Position // keyed by token id
	pending   map[string]domain.PendingOrder
}

func newBook() *book {
	return &book{
		positions: make(map[string]*domain.Position),
		pending:   make(map[string]domain.PendingOrder),
	}
}

// ExposureUSD returns the cost-basis notional held in one token.
func (b *book) ExposureUSD(tokenID string) float64 {
	if p, ok := b.positions[tokenID]; ok {
		return p.NotionalUSD()
	}
	return 0
}

// HasPosition reports whether the fund holds the token.
func (b *book) HasPosition(tokenID string) bool {
	_, ok := b.positions[tokenID]
	return ok
}

// OpenPositions returns the number of open positions.
func (b *book) OpenPositions() int { return len(b.positions) }

// PendingOrders returns the number of unsettled submitted orders.
func (b *book) PendingOrders() int { return len(b.pending) }

// applyBuy opens or extends a position at the given fill price, keeping the
// share-weighted average cost.
func (b *book) applyBuy(sig domain.Signal, shares, price float64, now time.Time) *domain.Position {
	p, ok := b.positions[sig.TokenID]
	if !ok {
		p = &domain.Position{
			ID:         uuid.New().String(),
			FundID:     sig.FundID,
			MarketSlug: sig.MarketSlug,
			TokenID:    sig.TokenID,
			Outcome:    sig.Outcome,
			Shares:     shares,
			AvgCost:    price,
			OpenedAt:   now,
			UpdatedAt:  now,
			SignalID:   sig.ID,
		}
		b.positions[sig.TokenID] = p
		return p
	}
	total := p.Shares + shares
	p.AvgCost = (p.Shares*p.AvgCost + shares*price) / total
	p.Shares = total
	p.UpdatedAt = now
	return p
}

// applySell reduces a position and realises P&L against the average cost.
// It returns the realised delta and whether the requested shares exceeded the
// held shares (an over-sell, clamped to zero).
func (b *book) applySell(sig domain.Signal, shares, price float64, now time.Time) (realized float64, oversell bool) {
	p, ok := b.positions[sig.TokenID]
	if !ok {
		return 0, true
	}
	sold := shares
	if sold > p.Shares {
		sold = p.Shares
		oversell = true
	}
	realized = sold * (price - p.AvgCost)
	p.Shares -= sold
	p.RealizedPnL += realized
	p.UpdatedAt = now
	if p.Shares <= 0 {
		delete(b.positions, sig.TokenID)
	}
	return realized, oversell
}
