package domain

import "time"

// FundCategory distinguishes funds that replicate external traders from
// funds that run their own signal generation.
type FundCategory string

const (
	FundCategoryMirror FundCategory = "mirror"
	FundCategoryActive FundCategory = "active"
)

// ExecutionMode controls how the executor works an order.
type ExecutionMode string

const (
	ExecLimitOnly       ExecutionMode = "limit_only"
	ExecLimitThenMarket ExecutionMode = "limit_then_market"
	ExecMarketOnly      ExecutionMode = "market_only"
)

// RiskLimits are the per-fund hard limits enforced by the sizing engine.
// All fields except the kill switch are immutable for the process lifetime;
// the kill switch lives on the registry's fund state so it can be toggled
// at runtime.
type RiskLimits struct {
	MaxDailyLossUSD            float64
	MaxDrawdownPct             float64
	MaxOpenPositions           int
	MaxSingleMarketExposureUSD float64
	MaxDailyTrades             int
	MaxDailyNotionalUSD        float64
	MaxConcurrentOrders        int
}

// Fund is an immutable description of one trading fund. Funds are created at
// startup from configuration and deactivated only by process shutdown.
type Fund struct {
	ID                 string
	Category           FundCategory
	Strategy           string // strategy name resolved from the fund id taxonomy
	IndexType          string // mirror funds: which index to replicate
	StartingCapitalUSD float64
	MaxPositionPct     float64 // fraction of capital per position, (0,1]
	MinTradeUSD        float64
	SignalDelay        time.Duration // anti-front-running delay before execution
	MaxSlippagePct     float64       // [0,1]
	ExecMode           ExecutionMode
	Limits             RiskLimits
	Params             map[string]any // strategy-specific tuning
	StartedAt          time.Time
}

// IndexConstituent is one trader inside a mirror fund's index snapshot.
// Constituents are loaded from the analytics store and cached with a short
// TTL; they are never mutated in-core.
type IndexConstituent struct {
	Username    string
	Proxy       string // proxy address, compared case-insensitively
	Weight      float64
	Rank        int
	CapitalUSD  float64 // estimated trader capital
	Score       float64
	StrategyTag string
	LastTradeAt time.Time
	IndexedAt   time.Time
}
