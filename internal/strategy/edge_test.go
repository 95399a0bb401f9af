package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/psifund/fundbot/internal/domain"
)

func edgeFund() *domain.Fund {
	return &domain.Fund{
		ID:                 "ALPHA-EDGE",
		Category:           domain.FundCategoryActive,
		Strategy:           "edge_ranked",
		StartingCapitalUSD: 20_000,
		MaxPositionPct:     0.05,
	}
}

func TestEdgeRankedFollowsRosterTrades(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{
		edgeTraders: []domain.EdgeTrader{
			{Username: "sharp", Proxy: "0xdef", Edge: 92, InverseConfidence: 0.2},
		},
		trades: []domain.TradeRow{
			{
				TradeID: "t1", Username: "sharp", Proxy: "0xdef",
				MarketSlug: "mkt", TokenID: "tok-1", Side: "BUY",
				Price: 0.55, Size: 500, NotionalUSD: 275, TS: now.Add(-30 * time.Second),
			},
		},
	}
	f := edgeFund()
	emitter := &captureEmitter{}
	e := NewEdgeRanked(f, newTestState(f), reader, emitter, EdgeConfig{}, testLogger())

	if err := e.Poll(context.Background(), now); err != nil {
		t.Fatalf("poll: %v", err)
	}

	sigs := emitter.all()
	if len(sigs) != 1 {
		t.Fatalf("emitted %d signals, want 1", len(sigs))
	}
	sig := sigs[0]
	if sig.Kind != domain.SignalKindAlpha || sig.Action != domain.ActionBuy {
		t.Errorf("kind/action = %s/%s", sig.Kind, sig.Action)
	}
	if sig.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92 (edge/100)", sig.Confidence)
	}
	// strength = conf * clamp(275/1000, 0, 1) = 0.92 * 0.275.
	if diff := sig.Strength - 0.92*0.275; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("strength = %v", sig.Strength)
	}
	if sig.SuggestedNotionalUSD != 137.5 {
		t.Errorf("suggested notional = %v, want 137.5 (half the trade)", sig.SuggestedNotionalUSD)
	}
	// Edge >= 90 and the trade is 30s old: HIGH.
	if sig.Urgency != domain.UrgencyHigh {
		t.Errorf("urgency = %s, want HIGH", sig.Urgency)
	}
}

func TestEdgeRankedUrgencyTiers(t *testing.T) {
	t.Parallel()
	cases := []struct {
		edge float64
		age  time.Duration
		want domain.Urgency
	}{
		{95, 30 * time.Second, domain.UrgencyHigh},
		{95, 2 * time.Minute, domain.UrgencyMedium},
		{82, 2 * time.Minute, domain.UrgencyMedium},
		{82, 10 * time.Minute, domain.UrgencyLow},
		{76, 10 * time.Second, domain.UrgencyLow},
	}
	for _, c := range cases {
		if got := edgeUrgency(c.edge, c.age); got != c.want {
			t.Errorf("edgeUrgency(%v, %v) = %s, want %s", c.edge, c.age, got, c.want)
		}
	}
}

func TestEdgeRankedDecayEmitsWildcardExit(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{
		edgeTraders: []domain.EdgeTrader{
			{Username: "fading", Proxy: "0xfad", Edge: 90, InverseConfidence: 0.2},
		},
	}
	f := edgeFund()
	emitter := &captureEmitter{}
	e := NewEdgeRanked(f, newTestState(f), reader, emitter, EdgeConfig{}, testLogger())

	// First poll establishes the peak at 90.
	if err := e.Poll(context.Background(), now); err != nil {
		t.Fatalf("first poll: %v", err)
	}

	// Edge collapses to 70 by the next tick: decay 20 > 15. The roster is
	// re-sampled every poll, so the exit fires one tick later.
	reader.mu.Lock()
	reader.edgeTraders[0].Edge = 70
	reader.mu.Unlock()
	later := now.Add(10 * time.Second)
	if err := e.Poll(context.Background(), later); err != nil {
		t.Fatalf("second poll: %v", err)
	}

	var exit *domain.Signal
	for _, s := range emitter.all() {
		if s.Wildcard() {
			s := s
			exit = &s
		}
	}
	if exit == nil {
		t.Fatal("no wildcard exit emitted on decay")
	}
	if exit.Action != domain.ActionSell {
		t.Errorf("action = %s, want SELL", exit.Action)
	}
	// confidence = min(0.9, decay/30) = 20/30.
	if diff := exit.Confidence - 20.0/30.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("confidence = %v, want %v", exit.Confidence, 20.0/30.0)
	}
	if exit.Urgency != domain.UrgencyMedium {
		t.Errorf("urgency = %s, want MEDIUM", exit.Urgency)
	}

	// A third tick at the same edge must not re-emit the exit.
	evenLater := later.Add(10 * time.Second)
	_ = e.Poll(context.Background(), evenLater)
	exits := 0
	for _, s := range emitter.all() {
		if s.Wildcard() {
			exits++
		}
	}
	if exits != 1 {
		t.Errorf("wildcard exits = %d, want 1", exits)
	}
}

func TestEdgeRankedSamplesEdgeEveryPoll(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{
		edgeTraders: []domain.EdgeTrader{
			{Username: "sharp", Proxy: "0xdef", Edge: 85, InverseConfidence: 0.2},
		},
	}
	f := edgeFund()
	e := NewEdgeRanked(f, newTestState(f), reader, &captureEmitter{}, EdgeConfig{}, testLogger())

	for i := 0; i < 3; i++ {
		if err := e.Poll(context.Background(), now.Add(time.Duration(i)*10*time.Second)); err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
	}

	entry, ok := e.roster["0xdef"]
	if !ok {
		t.Fatal("trader missing from roster")
	}
	if len(entry.history) != 3 {
		t.Errorf("edge history = %d samples, want one per poll (3)", len(entry.history))
	}
}

func TestEdgeConfigDefaults(t *testing.T) {
	t.Parallel()
	var c EdgeConfig
	c.withDefaults()
	if c.MinEdge != 70 {
		t.Errorf("min edge = %v, want 70", c.MinEdge)
	}
	if c.RosterLimit != 50 {
		t.Errorf("roster limit = %d, want 50", c.RosterLimit)
	}
	if c.BatchLimit != 100 {
		t.Errorf("batch limit = %d, want 100", c.BatchLimit)
	}
}

func TestEdgeRankedEvictsStaleRosterEntries(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{
		edgeTraders: []domain.EdgeTrader{
			{Username: "sharp", Proxy: "0xdef", Edge: 85, InverseConfidence: 0.2},
		},
	}
	f := edgeFund()
	emitter := &captureEmitter{}
	e := NewEdgeRanked(f, newTestState(f), reader, emitter, EdgeConfig{}, testLogger())

	_ = e.Poll(context.Background(), now)
	if len(e.roster) != 1 {
		t.Fatalf("roster = %d, want 1", len(e.roster))
	}

	// Trader drops out of the ranking and stays out past two TTLs.
	reader.mu.Lock()
	reader.edgeTraders = nil
	reader.mu.Unlock()
	_ = e.Poll(context.Background(), now.Add(21*time.Minute))

	if len(e.roster) != 0 {
		t.Errorf("roster = %d, want 0 after eviction", len(e.roster))
	}
}
