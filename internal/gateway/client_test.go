package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/psifund/fundbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := Defaults()
	cfg.BaseURL = srv.URL
	cfg.RatePerSec = 1000
	cfg.RateBurst = 1000
	return New(cfg, testLogger())
}

func TestPlaceLimitOrderSuccess(t *testing.T) {
	t.Parallel()
	var got placeOrderRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/orders" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(placeOrderResponse{OrderID: "ord-1", Status: "LIVE"})
	})

	ack, err := c.PlaceLimitOrder(context.Background(), "tok-1", domain.OrderSideBuy, 0.51, 10)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if ack.OrderID != "ord-1" || ack.Status != domain.OrderStatusLive {
		t.Errorf("ack = %+v", ack)
	}
	if got.TokenID != "tok-1" || got.Side != "BUY" || got.Price != 0.51 || got.Shares != 10 {
		t.Errorf("request body = %+v", got)
	}
}

func TestPlaceLimitOrderRejected(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"insufficient balance"}`, http.StatusUnprocessableEntity)
	})

	_, err := c.PlaceLimitOrder(context.Background(), "tok-1", domain.OrderSideBuy, 0.51, 10)
	if !errors.Is(err, domain.ErrGatewayRejected) {
		t.Errorf("err = %v, want ErrGatewayRejected", err)
	}
}

func TestPlaceLimitOrderServerErrorIsTransient(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.PlaceLimitOrder(context.Background(), "tok-1", domain.OrderSideSell, 0.49, 10)
	if !errors.Is(err, domain.ErrGatewayTransient) {
		t.Errorf("err = %v, want ErrGatewayTransient", err)
	}
}

func TestPlaceLimitOrderEmptyOrderID(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(placeOrderResponse{Status: "LIVE"})
	})

	_, err := c.PlaceLimitOrder(context.Background(), "tok-1", domain.OrderSideBuy, 0.51, 10)
	if !errors.Is(err, domain.ErrGatewayRejected) {
		t.Errorf("err = %v, want ErrGatewayRejected for empty order id", err)
	}
}

func TestBankrollAndPositions(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/bankroll":
			_ = json.NewEncoder(w).Encode(bankrollResponse{AvailableUSD: 1200, TotalUSD: 5000})
		case "/api/positions":
			_ = json.NewEncoder(w).Encode([]positionRow{{TokenID: "tok-1", Shares: 10, AvgPrice: 0.5}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	br, err := c.Bankroll(context.Background())
	if err != nil {
		t.Fatalf("bankroll: %v", err)
	}
	if br.AvailableUSD != 1200 || br.TotalUSD != 5000 {
		t.Errorf("bankroll = %+v", br)
	}

	pos, err := c.Positions(context.Background())
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(pos) != 1 || pos[0].TokenID != "tok-1" || pos[0].Shares != 10 {
		t.Errorf("positions = %+v", pos)
	}
}

func TestAPIKeyHeader(t *testing.T) {
	t.Parallel()
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(bankrollResponse{})
	}))
	t.Cleanup(srv.Close)

	cfg := Defaults()
	cfg.BaseURL = srv.URL
	cfg.APIKey = "secret"
	c := New(cfg, testLogger())

	if _, err := c.Bankroll(context.Background()); err != nil {
		t.Fatalf("bankroll: %v", err)
	}
	if auth != "Bearer secret" {
		t.Errorf("authorization = %q", auth)
	}
}
