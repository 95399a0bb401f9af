package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/psifund/fundbot/internal/domain"
)

// TobCache implements domain.BookCache on a Redis hash per token.
//
// Key schema:
//
//	tob:{tokenID} - hash with fields bid, ask, bid_size, ask_size, ts
type TobCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTobCache creates a TobCache. Entries expire after ttl; ttl <= 0 means
// no expiry.
func NewTobCache(c *Client, ttl time.Duration) *TobCache {
	return &TobCache{rdb: c.Underlying(), ttl: ttl}
}

func tobKey(tokenID string) string { return "tob:" + tokenID }

// Set replaces the snapshot for a token atomically.
func (tc *TobCache) Set(ctx context.Context, tob domain.TopOfBook) error {
	key := tobKey(tob.TokenID)

	pipe := tc.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"bid", strconv.FormatFloat(tob.BestBid, 'f', -1, 64),
		"ask", strconv.FormatFloat(tob.BestAsk, 'f', -1, 64),
		"bid_size", strconv.FormatFloat(tob.BidSize, 'f', -1, 64),
		"ask_size", strconv.FormatFloat(tob.AskSize, 'f', -1, 64),
		"ts", strconv.FormatInt(tob.UpdatedAt.UnixNano(), 10),
	)
	if tc.ttl > 0 {
		pipe.Expire(ctx, key, tc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set tob %s: %w", tob.TokenID, err)
	}
	return nil
}

// Get returns the snapshot for a token, or domain.ErrNotFound.
func (tc *TobCache) Get(ctx context.Context, tokenID string) (domain.TopOfBook, error) {
	vals, err := tc.rdb.HGetAll(ctx, tobKey(tokenID)).Result()
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("redis: get tob %s: %w", tokenID, err)
	}
	if len(vals) == 0 {
		return domain.TopOfBook{}, domain.ErrNotFound
	}

	tob := domain.TopOfBook{TokenID: tokenID}
	tob.BestBid, _ = strconv.ParseFloat(vals["bid"], 64)
	tob.BestAsk, _ = strconv.ParseFloat(vals["ask"], 64)
	tob.BidSize, _ = strconv.ParseFloat(vals["bid_size"], 64)
	tob.AskSize, _ = strconv.ParseFloat(vals["ask_size"], 64)
	if tsNano, perr := strconv.ParseInt(vals["ts"], 10, 64); perr == nil {
		tob.UpdatedAt = time.Unix(0, tsNano).UTC()
	}
	return tob, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*TobCache)(nil)
