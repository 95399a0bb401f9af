// Package gateway implements the HTTP client for the downstream order
// gateway. The gateway owns signing and venue connectivity; this client only
// speaks its internal JSON API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/psifund/fundbot/internal/domain"
)

// ClientConfig holds connection parameters for the order gateway.
type ClientConfig struct {
	BaseURL       string
	APIKey        string
	SubmitTimeout time.Duration
	ReadTimeout   time.Duration
	RatePerSec    float64
	RateBurst     int
}

// Defaults returns the gateway client defaults.
func Defaults() ClientConfig {
	return ClientConfig{
		BaseURL:       "http://localhost:8090",
		SubmitTimeout: 10 * time.Second,
		ReadTimeout:   5 * time.Second,
		RatePerSec:    5,
		RateBurst:     10,
	}
}

// Client talks to the order gateway over HTTP with a shared rate limiter so
// bursts from multiple funds cannot exceed the gateway's order budget.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a gateway client.
func New(cfg ClientConfig, logger *slog.Logger) *Client {
	d := Defaults()
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.BaseURL
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = d.SubmitTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = d.ReadTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = d.RatePerSec
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = d.RateBurst
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.SubmitTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst),
		logger:  logger.With(slog.String("component", "gateway")),
	}
}

type placeOrderRequest struct {
	TokenID string  `json:"token_id"`
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	Shares  float64 `json:"shares"`
}

type placeOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

// PlaceLimitOrder submits a limit order and returns the gateway ack. A 4xx
// response maps to ErrGatewayRejected; 5xx and transport failures map to
// ErrGatewayTransient.
func (c *Client) PlaceLimitOrder(ctx context.Context, tokenID string, side domain.OrderSide, price, shares float64) (domain.OrderAck, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.OrderAck{}, fmt.Errorf("gateway: rate wait: %w", err)
	}

	body, err := json.Marshal(placeOrderRequest{
		TokenID: tokenID,
		Side:    string(side),
		Price:   price,
		Shares:  shares,
	})
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("gateway: marshal order: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, "/api/orders", body)
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("gateway: submit order: %w: %v", domain.ErrGatewayTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("gateway: read response: %w: %v", domain.ErrGatewayTransient, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return domain.OrderAck{}, fmt.Errorf("gateway: %w: status %d: %s",
			domain.ErrGatewayRejected, resp.StatusCode, truncate(data, 200))
	default:
		return domain.OrderAck{}, fmt.Errorf("gateway: %w: status %d",
			domain.ErrGatewayTransient, resp.StatusCode)
	}

	var por placeOrderResponse
	if err := json.Unmarshal(data, &por); err != nil {
		return domain.OrderAck{}, fmt.Errorf("gateway: decode response: %w: %v", domain.ErrGatewayTransient, err)
	}
	if por.OrderID == "" {
		return domain.OrderAck{}, fmt.Errorf("gateway: %w: empty order id", domain.ErrGatewayRejected)
	}
	return domain.OrderAck{OrderID: por.OrderID, Status: domain.OrderStatus(por.Status)}, nil
}

type positionRow struct {
	TokenID  string  `json:"token_id"`
	Shares   float64 `json:"shares"`
	AvgPrice float64 `json:"avg_price"`
}

// Positions returns the gateway's open positions.
func (c *Client) Positions(ctx context.Context) ([]domain.GatewayPosition, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: positions: %w: %v", domain.ErrGatewayTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway: positions: %w: status %d", domain.ErrGatewayTransient, resp.StatusCode)
	}

	var rows []positionRow
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&rows); err != nil {
		return nil, fmt.Errorf("gateway: decode positions: %w: %v", domain.ErrGatewayTransient, err)
	}
	out := make([]domain.GatewayPosition, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.GatewayPosition{TokenID: r.TokenID, Shares: r.Shares, AvgPrice: r.AvgPrice})
	}
	return out, nil
}

type bankrollResponse struct {
	AvailableUSD float64 `json:"available_usd"`
	TotalUSD     float64 `json:"total_usd"`
}

// Bankroll returns the gateway's available balance.
func (c *Client) Bankroll(ctx context.Context) (domain.Bankroll, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/bankroll", nil)
	if err != nil {
		return domain.Bankroll{}, fmt.Errorf("gateway: bankroll: %w: %v", domain.ErrGatewayTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Bankroll{}, fmt.Errorf("gateway: bankroll: %w: status %d", domain.ErrGatewayTransient, resp.StatusCode)
	}

	var br bankrollResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&br); err != nil {
		return domain.Bankroll{}, fmt.Errorf("gateway: decode bankroll: %w: %v", domain.ErrGatewayTransient, err)
	}
	return domain.Bankroll{AvailableUSD: br.AvailableUSD, TotalUSD: br.TotalUSD}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return c.http.Do(req)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var _ domain.OrderGateway = (*Client)(nil)
