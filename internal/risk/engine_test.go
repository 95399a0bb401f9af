package risk

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/psifund/fundbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeView is a static PositionView for engine tests.
type fakeView struct {
	exposure map[string]float64
	open     int
	pending  int
}

func (v *fakeView) ExposureUSD(tokenID string) float64 { return v.exposure[tokenID] }
func (v *fakeView) HasPosition(tokenID string) bool    { _, ok := v.exposure[tokenID]; return ok }
func (v *fakeView) OpenPositions() int                 { return v.open }
func (v *fakeView) PendingOrders() int                 { return v.pending }

func mirrorFund() *domain.Fund {
	return &domain.Fund{
		ID:                 "PSI-TOP10",
		Category:           domain.FundCategoryMirror,
		Strategy:           "mirror",
		StartingCapitalUSD: 10_000,
		MaxPositionPct:     0.10,
		MinTradeUSD:        5,
		MaxSlippagePct:     0.02,
		Limits: domain.RiskLimits{
			MaxOpenPositions:    40,
			MaxDailyTrades:      200,
			MaxDailyNotionalUSD: 20_000,
			MaxConcurrentOrders: 10,
		},
	}
}

func traderSignal() domain.Signal {
	return domain.Signal{
		ID:               "sig-1",
		FundID:           "PSI-TOP10",
		Kind:             domain.SignalKindTrader,
		Action:           domain.ActionBuy,
		TokenID:          "tok-1",
		Price:            0.50,
		Shares:           1000,
		TraderCapitalUSD: 100_000,
		TraderWeight:     0.10,
		Urgency:          domain.UrgencyMedium,
	}
}

func TestSizeMirrorScalesByCapitalAndWeight(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	// 1000 shares x (10000/100000) x 0.10 = 10 shares at 0.50.
	sized, rej := e.Size(mirrorFund(), false, traderSignal(), &fakeView{}, now)
	if rej != RejectNone {
		t.Fatalf("rejected: %s", rej)
	}
	if sized.Shares != 10 {
		t.Errorf("shares = %v, want 10", sized.Shares)
	}
	if sized.ReferencePrice != 0.50 {
		t.Errorf("reference price = %v, want 0.50", sized.ReferencePrice)
	}
	if sized.NotionalUSD != 5 {
		t.Errorf("notional = %v, want 5", sized.NotionalUSD)
	}
}

func TestSizeKillSwitchRejectsEverything(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())
	now := time.Now().UTC()

	_, rej := e.Size(mirrorFund(), true, traderSignal(), &fakeView{}, now)
	if rej != RejectKillSwitch {
		t.Errorf("rejection = %s, want %s", rej, RejectKillSwitch)
	}
}

func TestSizeAlphaValidity(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	f := mirrorFund()

	base := domain.Signal{
		Kind:       domain.SignalKindAlpha,
		FundID:     f.ID,
		Action:     domain.ActionBuy,
		TokenID:    "tok-1",
		Price:      0.40,
		Confidence: 0.8,
		Strength:   0.5,
	}

	expired := base
	expired.ExpiresAt = now.Add(-time.Second)
	if _, rej := e.Size(f, false, expired, &fakeView{}, now); rej != RejectExpired {
		t.Errorf("expired: rejection = %s, want %s", rej, RejectExpired)
	}

	hold := base
	hold.Action = domain.ActionHold
	if _, rej := e.Size(f, false, hold, &fakeView{}, now); rej != RejectNotActionable {
		t.Errorf("hold: rejection = %s, want %s", rej, RejectNotActionable)
	}

	weak := base
	weak.Confidence = 0.2
	if _, rej := e.Size(f, false, weak, &fakeView{}, now); rej != RejectUnderThreshold {
		t.Errorf("weak: rejection = %s, want %s", rej, RejectUnderThreshold)
	}

	if _, rej := e.Size(f, false, base, &fakeView{}, now); rej != RejectNone {
		t.Errorf("valid alpha: rejection = %s, want none", rej)
	}
}

func TestSizeAlphaSuggestedNotionalWins(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())
	now := time.Now().UTC()
	f := mirrorFund()

	sig := domain.Signal{
		Kind:                 domain.SignalKindAlpha,
		FundID:               f.ID,
		Action:               domain.ActionBuy,
		TokenID:              "tok-1",
		Price:                0.25,
		Confidence:           0.9,
		Strength:             1,
		SuggestedNotionalUSD: 100,
	}
	sized, rej := e.Size(f, false, sig, &fakeView{}, now)
	if rej != RejectNone {
		t.Fatalf("rejected: %s", rej)
	}
	if sized.Shares != 400 {
		t.Errorf("shares = %v, want 400", sized.Shares)
	}
}

func TestSizePositionCapClampsNotional(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())
	now := time.Now().UTC()
	f := mirrorFund() // cap = 10000 * 0.10 = 1000

	sig := traderSignal()
	sig.Shares = 1_000_000 // raw notional far above the cap
	sized, rej := e.Size(f, false, sig, &fakeView{}, now)
	if rej != RejectNone {
		t.Fatalf("rejected: %s", rej)
	}
	if got := sized.Shares * sized.ReferencePrice; got > 1000 {
		t.Errorf("notional = %v, want <= 1000", got)
	}
}

func TestSizeExposureHeadroom(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())
	now := time.Now().UTC()
	f := mirrorFund()
	f.Limits.MaxSingleMarketExposureUSD = 100

	view := &fakeView{exposure: map[string]float64{"tok-1": 100}, open: 1}
	if _, rej := e.Size(f, false, traderSignal(), view, now); rej != RejectBelowMin {
		t.Errorf("no headroom: rejection = %s, want %s", rej, RejectBelowMin)
	}
}

func TestSizeMaxOpenOnlyBlocksNewTokens(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())
	now := time.Now().UTC()
	f := mirrorFund()
	f.Limits.MaxOpenPositions = 1

	// New token with the book full: rejected.
	full := &fakeView{exposure: map[string]float64{"other": 50}, open: 1}
	if _, rej := e.Size(f, false, traderSignal(), full, now); rej != RejectMaxOpen {
		t.Errorf("new token: rejection = %s, want %s", rej, RejectMaxOpen)
	}

	// Adding to an existing position passes.
	held := &fakeView{exposure: map[string]float64{"tok-1": 50}, open: 1}
	if _, rej := e.Size(f, false, traderSignal(), held, now); rej != RejectNone {
		t.Errorf("held token: rejection = %s, want none", rej)
	}
}

func TestSizeMaxConcurrentOrders(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())
	now := time.Now().UTC()
	f := mirrorFund()
	f.Limits.MaxConcurrentOrders = 2

	view := &fakeView{pending: 2}
	if _, rej := e.Size(f, false, traderSignal(), view, now); rej != RejectMaxConcurrent {
		t.Errorf("rejection = %s, want %s", rej, RejectMaxConcurrent)
	}
}

func TestSizeBelowMinTrade(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())
	now := time.Now().UTC()
	f := mirrorFund()
	f.MinTradeUSD = 100

	if _, rej := e.Size(f, false, traderSignal(), &fakeView{}, now); rej != RejectBelowMin {
		t.Errorf("rejection = %s, want %s", rej, RejectBelowMin)
	}
}

func TestSizeDailyTradeCap(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	f := mirrorFund()
	f.Limits.MaxDailyTrades = 2

	for i := 0; i < 2; i++ {
		if _, rej := e.Size(f, false, traderSignal(), &fakeView{}, now); rej != RejectNone {
			t.Fatalf("trade %d rejected: %s", i, rej)
		}
	}
	if _, rej := e.Size(f, false, traderSignal(), &fakeView{}, now); rej != RejectDailyLimit {
		t.Errorf("third trade: rejection = %s, want %s", rej, RejectDailyLimit)
	}

	// Counters reset at UTC midnight.
	nextDay := now.Add(24 * time.Hour)
	if _, rej := e.Size(f, false, traderSignal(), &fakeView{}, nextDay); rej != RejectNone {
		t.Errorf("next day: rejection = %s, want none", rej)
	}
}

func TestSizeDailyNotionalCap(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	f := mirrorFund()
	f.Limits.MaxDailyNotionalUSD = 8 // each trade is $5

	if _, rej := e.Size(f, false, traderSignal(), &fakeView{}, now); rej != RejectNone {
		t.Fatalf("first trade rejected: %s", rej)
	}
	if _, rej := e.Size(f, false, traderSignal(), &fakeView{}, now); rej != RejectDailyLimit {
		t.Errorf("second trade: rejection = %s, want %s", rej, RejectDailyLimit)
	}

	trades, notional := e.DailyCounters(f.ID, now)
	if trades != 1 || notional != 5 {
		t.Errorf("counters = (%d, %v), want (1, 5)", trades, notional)
	}
}

func TestSizeZeroPrice(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())
	sig := traderSignal()
	sig.Price = 0
	if _, rej := e.Size(mirrorFund(), false, sig, &fakeView{}, time.Now().UTC()); rej != RejectZeroSize {
		t.Errorf("rejection = %s, want %s", rej, RejectZeroSize)
	}
}

func TestConfidenceScaleBounds(t *testing.T) {
	t.Parallel()
	e := NewEngine(Params{}, testLogger())

	if got := e.confidenceScale(0); got != 0.5 {
		t.Errorf("scale(0) = %v, want 0.5", got)
	}
	if got := e.confidenceScale(1); got < 0.5 || got > 2.0 {
		t.Errorf("scale(1) = %v, out of [0.5, 2.0]", got)
	}
	if got := e.confidenceScale(5); got != 2.0 {
		t.Errorf("scale(5) = %v, want 2.0", got)
	}
}
