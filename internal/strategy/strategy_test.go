package strategy

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/psifund/fundbot/internal/domain"
	"github.com/psifund/fundbot/internal/fund"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeReader is a scripted AnalyticsReader shared by the strategy tests.
type fakeReader struct {
	mu           sync.Mutex
	trades       []domain.TradeRow
	alerts       []domain.AlertRow
	edgeTraders  []domain.EdgeTrader
	markets      []domain.BinaryMarket
	constituents []domain.IndexConstituent

	tradesErr error
	tradeCall struct {
		proxies  []string
		from, to time.Time
	}
}

func (r *fakeReader) TradesForAddresses(ctx context.Context, proxies []string, from, to time.Time, limit int) ([]domain.TradeRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tradeCall.proxies = proxies
	r.tradeCall.from = from
	r.tradeCall.to = to
	if r.tradesErr != nil {
		return nil, r.tradesErr
	}
	var out []domain.TradeRow
	for _, tr := range r.trades {
		if tr.TS.After(from) && !tr.TS.After(to) {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (r *fakeReader) ActiveAlerts(ctx context.Context, types []string, from, to time.Time, limit int) ([]domain.AlertRow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AlertRow
	for _, a := range r.alerts {
		if a.CreatedAt.After(from) && !a.CreatedAt.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeReader) HighEdgeTraders(ctx context.Context, minEdge, maxInverseConfidence float64, limit int) ([]domain.EdgeTrader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.EdgeTrader(nil), r.edgeTraders...), nil
}

func (r *fakeReader) ActiveBinaryMarkets(ctx context.Context, limit int) ([]domain.BinaryMarket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.BinaryMarket(nil), r.markets...), nil
}

func (r *fakeReader) IndexConstituents(ctx context.Context, indexType string) ([]domain.IndexConstituent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.IndexConstituent(nil), r.constituents...), nil
}

// captureEmitter records emitted signals.
type captureEmitter struct {
	mu   sync.Mutex
	sigs []domain.Signal
	err  error
}

func (e *captureEmitter) Emit(ctx context.Context, sig domain.Signal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.sigs = append(e.sigs, sig)
	return nil
}

func (e *captureEmitter) all() []domain.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Signal(nil), e.sigs...)
}

// fakeBooks is a static in-memory BookCache.
type fakeBooks struct {
	mu   sync.Mutex
	tobs map[string]domain.TopOfBook
}

func newFakeBooks() *fakeBooks {
	return &fakeBooks{tobs: make(map[string]domain.TopOfBook)}
}

func (b *fakeBooks) Set(ctx context.Context, tob domain.TopOfBook) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tobs[tob.TokenID] = tob
	return nil
}

func (b *fakeBooks) Get(ctx context.Context, tokenID string) (domain.TopOfBook, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tob, ok := b.tobs[tokenID]
	if !ok {
		return domain.TopOfBook{}, domain.ErrNotFound
	}
	return tob, nil
}

func newTestState(f *domain.Fund) *fund.State {
	return fund.NewRegistry().Register(f, time.Now().UTC())
}

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
