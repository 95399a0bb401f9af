package marketdata

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/psifund/fundbot/internal/domain"
)

// tobMessage is the wire shape of a top-of-book update from the market-data
// feed.
type tobMessage struct {
	EventType string  `json:"event_type"`
	TokenID   string  `json:"asset_id"`
	BestBid   float64 `json:"best_bid,string"`
	BestAsk   float64 `json:"best_ask,string"`
	BidSize   float64 `json:"bid_size,string"`
	AskSize   float64 `json:"ask_size,string"`
	Timestamp int64   `json:"timestamp"`
}

type subscribeMessage struct {
	Type     string   `json:"type"`
	Channel  string   `json:"channel"`
	AssetIDs []string `json:"asset_ids"`
}

// WSFeed subscribes to top-of-book updates over WebSocket and writes every
// snapshot into the book cache. It reconnects with a fixed backoff on
// disconnect.
type WSFeed struct {
	url    string
	cache  domain.BookCache
	logger *slog.Logger

	mu       sync.Mutex // guards tokenIDs against the resubscribe task
	tokenIDs []string

	reconnectWait time.Duration
}

// NewWSFeed creates a feed writing into cache for the given token ids.
func NewWSFeed(url string, tokenIDs []string, cache domain.BookCache, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:           url,
		tokenIDs:      append([]string(nil), tokenIDs...),
		cache:         cache,
		logger:        logger.With(slog.String("component", "marketdata_feed")),
		reconnectWait: 2 * time.Second,
	}
}

// SetTokens replaces the subscription list. Takes effect on the next
// (re)connect.
func (f *WSFeed) SetTokens(tokenIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenIDs = append([]string(nil), tokenIDs...)
}

// tokens returns a snapshot of the subscription list.
func (f *WSFeed) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokenIDs...)
}

// Run connects and consumes updates until the context is cancelled.
func (f *WSFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := f.runConnection(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("feed disconnected, reconnecting",
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnectWait):
		}
	}
}

func (f *WSFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.url, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := subscribeMessage{Type: "subscribe", Channel: "tob", AssetIDs: f.tokens()}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	f.logger.Info("feed subscribed", slog.Int("tokens", len(sub.AssetIDs)))

	// Close the connection when the context is cancelled so ReadMessage
	// unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.handleMessage(ctx, data)
	}
}

func (f *WSFeed) handleMessage(ctx context.Context, data []byte) {
	var msg tobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.logger.Debug("unparseable feed message", slog.String("error", err.Error()))
		return
	}
	if msg.EventType != "tob" || msg.TokenID == "" {
		return
	}

	tob := domain.TopOfBook{
		TokenID:   msg.TokenID,
		BestBid:   msg.BestBid,
		BestAsk:   msg.BestAsk,
		BidSize:   msg.BidSize,
		AskSize:   msg.AskSize,
		UpdatedAt: time.UnixMilli(msg.Timestamp).UTC(),
	}
	if err := f.cache.Set(ctx, tob); err != nil {
		f.logger.Warn("book cache write failed",
			slog.String("token", msg.TokenID),
			slog.String("error", err.Error()),
		)
	}
}
