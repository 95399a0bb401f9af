package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/psifund/fundbot/internal/domain"
	"github.com/psifund/fundbot/internal/fund"
	"github.com/psifund/fundbot/internal/notify"
)

// recordSender captures notification titles.
type recordSender struct {
	mu     sync.Mutex
	titles []string
}

func (s *recordSender) Send(ctx context.Context, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return nil
}

func (s *recordSender) Name() string { return "record" }

func (s *recordSender) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.titles...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticPositions struct {
	byFund map[string][]domain.Position
}

func (p *staticPositions) Positions(fundID string) []domain.Position {
	return p.byFund[fundID]
}

func newTestServer(t *testing.T) (*Server, *fund.Registry) {
	t.Helper()
	reg := fund.NewRegistry()
	reg.Register(&domain.Fund{
		ID:                 "PSI-TOP10",
		Category:           domain.FundCategoryMirror,
		Strategy:           "mirror",
		StartingCapitalUSD: 10_000,
	}, time.Now().UTC())

	positions := &staticPositions{byFund: map[string][]domain.Position{
		"PSI-TOP10": {{TokenID: "tok-1", Shares: 10, AvgCost: 0.5}},
	}}
	return New(":0", reg, positions, nil, testLogger()), reg
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListFunds(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/funds", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp fundsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Funds) != 1 || resp.Funds[0].FundID != "PSI-TOP10" {
		t.Errorf("funds = %+v", resp.Funds)
	}
	if resp.Totals.CapitalUSD != 10_000 {
		t.Errorf("totals = %+v", resp.Totals)
	}
}

func TestFundDetailIncludesPositions(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/funds/PSI-TOP10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		FundID    string            `json:"fund_id"`
		Positions []domain.Position `json:"positions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.FundID != "PSI-TOP10" {
		t.Errorf("fund id = %s", resp.FundID)
	}
	if len(resp.Positions) != 1 || resp.Positions[0].TokenID != "tok-1" {
		t.Errorf("positions = %+v", resp.Positions)
	}
}

func TestFundDetailUnknown(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/funds/NOPE", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestKillSwitchEndpoint(t *testing.T) {
	t.Parallel()
	s, reg := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/funds/PSI-TOP10/killswitch", `{"on":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	st, _ := reg.Get("PSI-TOP10")
	if !st.KillSwitch() {
		t.Error("kill switch not set through the endpoint")
	}

	rec = do(t, s, http.MethodPost, "/api/funds/PSI-TOP10/killswitch", `{"on":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if st.KillSwitch() {
		t.Error("kill switch not cleared")
	}
}

func TestKillSwitchNotifiesOnTrip(t *testing.T) {
	t.Parallel()
	reg := fund.NewRegistry()
	reg.Register(&domain.Fund{
		ID:                 "PSI-TOP10",
		Category:           domain.FundCategoryMirror,
		Strategy:           "mirror",
		StartingCapitalUSD: 10_000,
	}, time.Now().UTC())
	sender := &recordSender{}
	notifier := notify.New([]notify.Sender{sender}, nil, testLogger())
	s := New(":0", reg, nil, notifier, testLogger())

	rec := do(t, s, http.MethodPost, "/api/funds/PSI-TOP10/killswitch", `{"on":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	titles := sender.all()
	if len(titles) != 1 || !strings.Contains(titles[0], "Kill switch tripped") {
		t.Errorf("notifications = %v, want one kill-switch event", titles)
	}

	// Clearing the switch is not an alert.
	_ = do(t, s, http.MethodPost, "/api/funds/PSI-TOP10/killswitch", `{"on":false}`)
	if got := len(sender.all()); got != 1 {
		t.Errorf("notifications = %d after clear, want 1", got)
	}
}

func TestKillSwitchBadBody(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/funds/PSI-TOP10/killswitch", `nope`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
