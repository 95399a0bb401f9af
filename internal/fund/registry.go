// Package fund tracks the runtime state of every configured fund: capital,
// realised and unrealised P&L, and the execution metrics exposed by the
// status surface. The registry is read-heavy; writes are single-field
// increments after each execution.
package fund

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/psifund/fundbot/internal/domain"
)

// Metrics are the monotonically increasing per-fund counters.
type Metrics struct {
	SignalsEmitted    atomic.Int64
	SignalsExecuted   atomic.Int64
	SignalsFiltered   atomic.Int64
	SignalsExpired    atomic.Int64
	DuplicatesSkipped atomic.Int64
	OrdersSubmitted   atomic.Int64
	OrdersFailed      atomic.Int64
	OrdersRejected    atomic.Int64
	FailedPolls       atomic.Int64
	PersistFailures   atomic.Int64
	WildcardSignals   atomic.Int64
	DailyTrades       atomic.Int64
}

// State is the mutable runtime record for one fund. The Fund value itself is
// immutable; the kill switch and P&L fields are the only mutable parts.
type State struct {
	Fund *domain.Fund

	killSwitch atomic.Bool
	Metrics    Metrics

	mu            sync.Mutex
	realizedPnL   float64
	unrealizedPnL float64
	openPositions int
	pendingCount  int
	dailyNotional float64
	startedAt     time.Time
}

// KillSwitch reports whether the fund's kill switch is set.
func (s *State) KillSwitch() bool { return s.killSwitch.Load() }

// SetKillSwitch toggles the fund's kill switch at runtime.
func (s *State) SetKillSwitch(on bool) { s.killSwitch.Store(on) }

// AddRealized adds to the fund's realised P&L.
func (s *State) AddRealized(delta float64) {
	s.mu.Lock()
	s.realizedPnL += delta
	s.mu.Unlock()
}

// SetUnrealized replaces the fund's unrealised P&L estimate.
func (s *State) SetUnrealized(v float64) {
	s.mu.Lock()
	s.unrealizedPnL = v
	s.mu.Unlock()
}

// SetGauges updates the open-position and pending-signal gauges.
func (s *State) SetGauges(openPositions, pending int) {
	s.mu.Lock()
	s.openPositions = openPositions
	s.pendingCount = pending
	s.mu.Unlock()
}

// AddDailyNotional accumulates traded notional for the status surface. The
// authoritative daily caps live in the sizing engine.
func (s *State) AddDailyNotional(usd float64) {
	s.mu.Lock()
	s.dailyNotional += usd
	s.mu.Unlock()
}

// Status is an immutable snapshot of one fund's state for the status surface.
type Status struct {
	FundID          string       `json:"fund_id"`
	Category        string       `json:"category"`
	Strategy        string       `json:"strategy"`
	CapitalUSD      float64      `json:"capital_usd"`
	RealizedPnL     float64      `json:"realized_pnl"`
	UnrealizedPnL   float64      `json:"unrealized_pnl"`
	NAV             float64      `json:"nav"`
	KillSwitch      bool         `json:"kill_switch"`
	OpenPositions   int          `json:"open_positions"`
	PendingSignals  int          `json:"pending_signals"`
	SignalsEmitted  int64        `json:"signals_emitted"`
	SignalsExecuted int64        `json:"signals_executed"`
	SignalsFiltered int64        `json:"signals_filtered"`
	OrdersSubmitted int64        `json:"orders_submitted"`
	OrdersFailed    int64        `json:"orders_failed"`
	DailyTrades     int64        `json:"daily_trades"`
	DailyNotional   float64      `json:"daily_notional_usd"`
	StartedAt       time.Time    `json:"started_at"`
}

// Snapshot builds a Status from the current state.
func (s *State) Snapshot() Status {
	s.mu.Lock()
	realized := s.realizedPnL
	unrealized := s.unrealizedPnL
	open := s.openPositions
	pending := s.pendingCount
	dailyNotional := s.dailyNotional
	started := s.startedAt
	s.mu.Unlock()

	return Status{
		FundID:          s.Fund.ID,
		Category:        string(s.Fund.Category),
		Strategy:        s.Fund.Strategy,
		CapitalUSD:      s.Fund.StartingCapitalUSD,
		RealizedPnL:     realized,
		UnrealizedPnL:   unrealized,
		NAV:             s.Fund.StartingCapitalUSD + realized + unrealized,
		KillSwitch:      s.KillSwitch(),
		OpenPositions:   open,
		PendingSignals:  pending,
		SignalsEmitted:  s.Metrics.SignalsEmitted.Load(),
		SignalsExecuted: s.Metrics.SignalsExecuted.Load(),
		SignalsFiltered: s.Metrics.SignalsFiltered.Load(),
		OrdersSubmitted: s.Metrics.OrdersSubmitted.Load(),
		OrdersFailed:    s.Metrics.OrdersFailed.Load(),
		DailyTrades:     s.Metrics.DailyTrades.Load(),
		DailyNotional:   dailyNotional,
		StartedAt:       started,
	}
}

// Totals aggregates across all funds for the funds/all endpoint.
type Totals struct {
	CapitalUSD    float64 `json:"capital_usd"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	NAV           float64 `json:"nav"`
	OpenPositions int     `json:"open_positions"`
}

// Registry maps fund ids to their runtime state. Registration happens at
// startup; afterwards access is read-mostly.
type Registry struct {
	mu    sync.RWMutex
	funds map[string]*State
	order []string // registration order, for stable listings
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{funds: make(map[string]*State)}
}

// Register adds a fund. It replaces any previous registration for the id.
func (r *Registry) Register(f *domain.Fund, startedAt time.Time) *State {
	st := &State{Fund: f, startedAt: startedAt}
	r.mu.Lock()
	if _, exists := r.funds[f.ID]; !exists {
		r.order = append(r.order, f.ID)
	}
	r.funds[f.ID] = st
	r.mu.Unlock()
	return st
}

// Get returns the state for a fund id.
func (r *Registry) Get(id string) (*State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.funds[id]
	if !ok {
		return nil, domain.ErrUnknownFund
	}
	return st, nil
}

// All returns every fund state in registration order.
func (r *Registry) All() []*State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*State, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.funds[id])
	}
	return out
}

// Statuses returns a snapshot per fund plus aggregate totals.
func (r *Registry) Statuses() ([]Status, Totals) {
	states := r.All()
	statuses := make([]Status, 0, len(states))
	var totals Totals
	for _, st := range states {
		s := st.Snapshot()
		statuses = append(statuses, s)
		totals.CapitalUSD += s.CapitalUSD
		totals.RealizedPnL += s.RealizedPnL
		totals.UnrealizedPnL += s.UnrealizedPnL
		totals.NAV += s.NAV
		totals.OpenPositions += s.OpenPositions
	}
	return statuses, totals
}
