package domain

import "time"

// SignalKind discriminates the two signal families that flow through the
// shared sizing/execution pipeline.
type SignalKind string

const (
	SignalKindTrader SignalKind = "trader" // mirror input: a constituent's trade
	SignalKindAlpha  SignalKind = "alpha"  // active-fund input: alert/edge/arb
)

// SignalAction is the intent carried by a signal.
type SignalAction string

const (
	ActionBuy   SignalAction = "BUY"
	ActionSell  SignalAction = "SELL"
	ActionClose SignalAction = "CLOSE"
	ActionHold  SignalAction = "HOLD"
)

// Urgency scales the limit-price slippage allowance at execution time.
type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// WildcardToken marks a signal that refers to every position attributable to
// its originating trader rather than one token. Wildcard signals are gated at
// the executor and logged for review; they are never sized or submitted.
const WildcardToken = "*"

// Signal is the unified input to the sizing and execution pipeline. Mirror
// strategies populate the trader fields; active strategies populate the alpha
// fields. The executor and risk engine branch on Kind.
type Signal struct {
	ID     string
	FundID string
	Kind   SignalKind
	Source string // strategy name that emitted it

	Action     SignalAction
	MarketSlug string
	TokenID    string
	Outcome    string // "Yes" / "No"

	// Price is the reference price observed at detection time, in [0,1].
	Price       float64
	Shares      float64 // trader signals: shares the trader executed
	NotionalUSD float64

	// Trader fields (Kind == SignalKindTrader).
	TraderUsername   string
	TraderProxy      string
	TraderCapitalUSD float64
	TraderWeight     float64 // weight in the index at detection time

	// Alpha fields (Kind == SignalKindAlpha).
	Confidence           float64 // [0,1]
	Strength             float64 // [0,inf)
	SuggestedNotionalUSD float64 // 0 means unset
	SuggestedPct         float64 // 0 means unset

	Urgency  Urgency
	Reason   string
	Metadata map[string]string

	DetectedAt       time.Time
	TraderExecutedAt time.Time
	ExpiresAt        time.Time // alpha signals only; zero means no expiry
}

// Expired reports whether an alpha signal is past its expiry at the given time.
func (s Signal) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Wildcard reports whether the signal targets all positions of a trader.
func (s Signal) Wildcard() bool {
	return s.TokenID == WildcardToken
}

// QueuedSignal pairs a signal with the time at which it becomes executable.
type QueuedSignal struct {
	Signal    Signal
	ExecuteAt time.Time
}
