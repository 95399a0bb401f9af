package domain

import (
	"context"
	"time"
)

// TradeRow is one trade from the analytics store, deduplicated by trade id.
type TradeRow struct {
	TradeID     string
	Username    string
	Proxy       string
	MarketSlug  string
	TokenID     string
	Side        string // "BUY" or "SELL"
	Outcome     string
	Price       float64
	Size        float64 // shares
	NotionalUSD float64
	TS          time.Time
}

// AlertRow is one analytic alert from the analytics store.
type AlertRow struct {
	ID         string
	Type       string
	Severity   string // CRITICAL, HIGH, WARNING, INFO
	Source     string
	Username   string
	MarketSlug string
	Title      string
	Message    string
	Metadata   []byte // raw JSON blob
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Status     string
}

// EdgeTrader is one row of the ML-derived trader ranking.
type EdgeTrader struct {
	Username          string
	Proxy             string
	Edge              float64 // 0..100
	InverseConfidence float64 // 1 - tier confidence
	Cluster           string
	UpdatedAt         time.Time
}

// BinaryMarket is one active two-outcome market. By store convention token
// index 0 is YES and index 1 is NO.
type BinaryMarket struct {
	Slug       string
	YesTokenID string
	NoTokenID  string
	EndTime    time.Time
	VolumeUSD  float64
}

// AnalyticsReader is the read side of the analytics store. All operations are
// idempotent; failures are classified as ErrStoreTransient or
// ErrQueryPermanent by the implementation.
type AnalyticsReader interface {
	// TradesForAddresses returns trades by any of the proxy addresses with
	// ts in (from, to], strictly ascending by ts, at most limit rows.
	TradesForAddresses(ctx context.Context, proxies []string, from, to time.Time, limit int) ([]TradeRow, error)

	// ActiveAlerts returns ACTIVE alerts of the given types created in
	// (from, to], at most limit rows.
	ActiveAlerts(ctx context.Context, types []string, from, to time.Time, limit int) ([]AlertRow, error)

	// HighEdgeTraders returns traders with edge >= minEdge and inverse
	// confidence < maxInverseConfidence, best first.
	HighEdgeTraders(ctx context.Context, minEdge, maxInverseConfidence float64, limit int) ([]EdgeTrader, error)

	// ActiveBinaryMarkets returns active binary markets ending between now
	// and now+7d, highest volume first.
	ActiveBinaryMarkets(ctx context.Context, limit int) ([]BinaryMarket, error)

	// IndexConstituents returns the constituents of one index, by rank.
	IndexConstituents(ctx context.Context, indexType string) ([]IndexConstituent, error)
}

// ExecutionWriter persists execution records. A persistence failure must not
// abort the caller's in-memory update.
type ExecutionWriter interface {
	InsertExecution(ctx context.Context, rec ExecutionRecord) error
}

// OrderGateway submits limit orders to the downstream order gateway.
type OrderGateway interface {
	PlaceLimitOrder(ctx context.Context, tokenID string, side OrderSide, price, shares float64) (OrderAck, error)
}
