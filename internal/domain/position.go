package domain

import "time"

// Position is an open holding of one fund in one token. The execution
// coordinator is the single writer; a position with zero shares is removed
// from the active map rather than stored.
type Position struct {
	ID          string
	FundID      string
	MarketSlug  string
	TokenID     string
	Outcome     string
	Shares      float64 // always >= 0
	AvgCost     float64 // share-weighted average of BUY prices since shares last hit zero
	RealizedPnL float64
	OpenedAt    time.Time
	UpdatedAt   time.Time
	SignalID    string // originating signal
}

// NotionalUSD returns the position's cost-basis notional.
func (p Position) NotionalUSD() float64 {
	return p.Shares * p.AvgCost
}

// PendingOrder is an order submitted to the gateway whose acknowledgement has
// not yet finalised. Reconciliation against the venue is out of scope; entries
// are removed when the ack settles.
type PendingOrder struct {
	OrderID     string
	SignalID    string
	Side        OrderSide
	Shares      float64
	LimitPrice  float64
	SubmittedAt time.Time
}

// ExecutionRecord is the append-only persisted record of one executed signal.
type ExecutionRecord struct {
	SignalID       string
	FundID         string
	TraderUsername string
	MarketSlug     string
	TokenID        string
	Outcome        string
	SignalType     string
	Side           OrderSide
	TraderShares   float64
	FundShares     float64
	ExecutionPrice float64
	OrderID        string
	DetectedAt     time.Time
	ExecutedAt     time.Time
}
