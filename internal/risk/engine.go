// Package risk implements the sizing and risk engine shared by every fund
// variant. Given a signal and its owning fund, the engine either produces a
// sized order or a rejection reason. Rejections are not errors; they are
// counted and never surfaced.
package risk

import (
	"log/slog"
	"sync"
	"time"

	"github.com/psifund/fundbot/internal/domain"
)

// Rejection enumerates why a signal was filtered out.
type Rejection string

const (
	RejectNone           Rejection = ""
	RejectKillSwitch     Rejection = "KILL_SWITCH"
	RejectExpired        Rejection = "EXPIRED"
	RejectUnderThreshold Rejection = "UNDER_THRESHOLD"
	RejectNotActionable  Rejection = "NOT_ACTIONABLE"
	RejectDailyLimit     Rejection = "DAILY_LIMIT"
	RejectMaxOpen        Rejection = "MAX_OPEN"
	RejectMaxConcurrent  Rejection = "MAX_CONCURRENT"
	RejectBelowMin       Rejection = "BELOW_MIN"
	RejectZeroSize       Rejection = "ZERO_SIZE"
)

// Sized is a signal that passed every check, ready for execution.
type Sized struct {
	Shares         float64
	ReferencePrice float64
	NotionalUSD    float64
}

// PositionView is the executor-owned view of a fund's book that the engine
// consults for exposure and concurrency caps.
type PositionView interface {
	ExposureUSD(tokenID string) float64
	HasPosition(tokenID string) bool
	OpenPositions() int
	PendingOrders() int
}

// Params are the alpha-sizing tunables. Zero values fall back to defaults.
type Params struct {
	MinConfidence     float64
	MinStrength       float64
	BasePct           float64 // base fraction of capital per alpha trade
	ConfidenceScaling float64
}

const (
	defaultMinConfidence     = 0.5
	defaultMinStrength       = 0.1
	defaultBasePct           = 0.02
	defaultConfidenceScaling = 0.33
)

func (p Params) withDefaults() Params {
	if p.MinConfidence == 0 {
		p.MinConfidence = defaultMinConfidence
	}
	if p.MinStrength == 0 {
		p.MinStrength = defaultMinStrength
	}
	if p.BasePct == 0 {
		p.BasePct = defaultBasePct
	}
	if p.ConfidenceScaling == 0 {
		p.ConfidenceScaling = defaultConfidenceScaling
	}
	return p
}

// dailyState tracks per-fund counters that reset at UTC midnight.
type dailyState struct {
	day         string // "2006-01-02" in UTC
	trades      int
	notionalUSD float64
}

// Engine applies the ordered sizing and risk pipeline. One engine serves all
// funds; per-fund daily counters are kept internally.
type Engine struct {
	params Params
	logger *slog.Logger

	mu    sync.Mutex
	daily map[string]*dailyState
}

// NewEngine creates an Engine with the given alpha-sizing parameters.
func NewEngine(params Params, logger *slog.Logger) *Engine {
	return &Engine{
		params: params.withDefaults(),
		logger: logger.With(slog.String("component", "risk_engine")),
		daily:  make(map[string]*dailyState),
	}
}

// Size runs the full pipeline for one signal. killSwitch is the fund's
// current kill-switch state (owned by the registry). The returned Rejection
// is RejectNone on success.
func (e *Engine) Size(f *domain.Fund, killSwitch bool, sig domain.Signal, view PositionView, now time.Time) (Sized, Rejection) {
	// 1. Kill switch.
	if killSwitch {
		return Sized{}, RejectKillSwitch
	}

	// 2. Validity (alpha only).
	if sig.Kind == domain.SignalKindAlpha {
		if sig.Expired(now) {
			return Sized{}, RejectExpired
		}
		if sig.Action == domain.ActionHold {
			return Sized{}, RejectNotActionable
		}
		if sig.Confidence < e.params.MinConfidence || sig.Strength < e.params.MinStrength {
			return Sized{}, RejectUnderThreshold
		}
	}

	if sig.Price <= 0 {
		return Sized{}, RejectZeroSize
	}

	// 4. Raw size in USD.
	notional := e.rawNotional(f, sig)
	if notional <= 0 {
		return Sized{}, RejectZeroSize
	}

	// 3. Daily caps (checked against the candidate notional).
	if rej := e.checkDaily(f, notional, now); rej != RejectNone {
		return Sized{}, rej
	}

	// 5. Position and exposure caps.
	if maxPos := f.StartingCapitalUSD * f.MaxPositionPct; notional > maxPos {
		notional = maxPos
	}
	if limit := f.Limits.MaxSingleMarketExposureUSD; limit > 0 {
		headroom := limit - view.ExposureUSD(sig.TokenID)
		if headroom <= 0 {
			return Sized{}, RejectBelowMin
		}
		if notional > headroom {
			notional = headroom
		}
	}

	// 6. Open-position cap, new tokens only.
	if !view.HasPosition(sig.TokenID) && f.Limits.MaxOpenPositions > 0 &&
		view.OpenPositions() >= f.Limits.MaxOpenPositions {
		return Sized{}, RejectMaxOpen
	}

	// 7. Concurrency cap.
	if f.Limits.MaxConcurrentOrders > 0 && view.PendingOrders() >= f.Limits.MaxConcurrentOrders {
		return Sized{}, RejectMaxConcurrent
	}

	// 8. Minimum notional.
	shares := RoundShares(notional / sig.Price)
	if shares <= 0 || shares*sig.Price < f.MinTradeUSD {
		return Sized{}, RejectBelowMin
	}

	e.recordDaily(f.ID, shares*sig.Price, now)

	return Sized{
		Shares:         shares,
		ReferencePrice: sig.Price,
		NotionalUSD:    shares * sig.Price,
	}, RejectNone
}

// rawNotional computes the unconstrained target notional in USD.
func (e *Engine) rawNotional(f *domain.Fund, sig domain.Signal) float64 {
	switch sig.Kind {
	case domain.SignalKindTrader:
		shares := sig.Shares * sig.TraderWeight
		if sig.TraderCapitalUSD > 0 {
			shares = sig.Shares * (f.StartingCapitalUSD / sig.TraderCapitalUSD) * sig.TraderWeight
		}
		return shares * sig.Price
	case domain.SignalKindAlpha:
		if sig.SuggestedNotionalUSD > 0 {
			return sig.SuggestedNotionalUSD
		}
		if sig.SuggestedPct > 0 {
			return f.StartingCapitalUSD * sig.SuggestedPct
		}
		return f.StartingCapitalUSD * e.params.BasePct *
			e.confidenceScale(sig.Confidence) * (0.5 + sig.Strength)
	default:
		return 0
	}
}

// confidenceScale maps confidence into a [0.5, 2.0] multiplier.
func (e *Engine) confidenceScale(confidence float64) float64 {
	s := 0.5 + confidence*e.params.ConfidenceScaling*3
	if s < 0.5 {
		return 0.5
	}
	if s > 2.0 {
		return 2.0
	}
	return s
}

// checkDaily enforces the daily trade-count and notional caps, resetting the
// counters on the first observation of a new UTC date.
func (e *Engine) checkDaily(f *domain.Fund, notional float64, now time.Time) Rejection {
	e.mu.Lock()
	defer e.mu.Unlock()

	day := now.UTC().Format("2006-01-02")
	st, ok := e.daily[f.ID]
	if !ok || st.day != day {
		st = &dailyState{day: day}
		e.daily[f.ID] = st
	}

	if f.Limits.MaxDailyTrades > 0 && st.trades >= f.Limits.MaxDailyTrades {
		return RejectDailyLimit
	}
	if f.Limits.MaxDailyNotionalUSD > 0 && st.notionalUSD+notional > f.Limits.MaxDailyNotionalUSD {
		return RejectDailyLimit
	}
	return RejectNone
}

// recordDaily accounts an accepted order against the fund's daily caps.
func (e *Engine) recordDaily(fundID string, notional float64, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	day := now.UTC().Format("2006-01-02")
	st, ok := e.daily[fundID]
	if !ok || st.day != day {
		st = &dailyState{day: day}
		e.daily[fundID] = st
	}
	st.trades++
	st.notionalUSD += notional
}

// DailyCounters returns the current day's trade count and notional for a
// fund (for the status surface).
func (e *Engine) DailyCounters(fundID string, now time.Time) (trades int, notionalUSD float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.daily[fundID]
	if !ok || st.day != now.UTC().Format("2006-01-02") {
		return 0, 0
	}
	return st.trades, st.notionalUSD
}
