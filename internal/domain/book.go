package domain

import (
	"context"
	"time"
)

// TopOfBook is the latest best bid/ask snapshot for one token. Snapshots are
// replaced whole by the feed adapter; readers see either the old or the new
// snapshot, never a mix.
type TopOfBook struct {
	TokenID   string
	BestBid   float64
	BestAsk   float64
	BidSize   float64
	AskSize   float64
	UpdatedAt time.Time
}

// Fresh reports whether the snapshot is recent enough to act on.
func (t TopOfBook) Fresh(now time.Time, maxAge time.Duration) bool {
	return !t.UpdatedAt.IsZero() && now.Sub(t.UpdatedAt) <= maxAge
}

// AskNotionalUSD returns the resting ask liquidity in dollars.
func (t TopOfBook) AskNotionalUSD() float64 {
	return t.BestAsk * t.AskSize
}

// BookCache holds the latest top-of-book per token. Single writer (the feed
// adapter), many readers.
type BookCache interface {
	Set(ctx context.Context, tob TopOfBook) error
	Get(ctx context.Context, tokenID string) (TopOfBook, error)
}
