package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/psifund/fundbot/internal/domain"
)

// Store implements domain.AnalyticsReader and domain.ExecutionWriter against
// the analytics schema. Read queries retry transient failures with backoff;
// permanent failures (bad SQL, missing relations) surface immediately.
type Store struct {
	client *Client
	logger *slog.Logger

	retryAttempts int
	retryBase     time.Duration
}

// NewStore creates a Store on an established client.
func NewStore(client *Client, logger *slog.Logger) *Store {
	return &Store{
		client:        client,
		logger:        logger.With(slog.String("component", "analytics_store")),
		retryAttempts: 3,
		retryBase:     250 * time.Millisecond,
	}
}

// classify maps a pgx error to one of the domain store sentinels. Syntax and
// schema errors are permanent; everything else (connection loss, timeouts,
// serialization conflicts) is worth retrying.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 42 is syntax/access errors, class 22 data exceptions,
		// class 23 constraint violations. None of those heal on retry.
		switch {
		case strings.HasPrefix(pgErr.Code, "42"),
			strings.HasPrefix(pgErr.Code, "22"),
			strings.HasPrefix(pgErr.Code, "23"):
			return fmt.Errorf("%w: %s", domain.ErrQueryPermanent, pgErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreTransient, err)
}

// withRetry runs fn up to retryAttempts times with exponential backoff,
// retrying only transient failures.
func (s *Store) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	wait := s.retryBase
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = classify(err)
		if errors.Is(lastErr, domain.ErrQueryPermanent) {
			return lastErr
		}
		if attempt == s.retryAttempts {
			break
		}
		s.logger.Warn("query retry",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return classify(ctx.Err())
		case <-time.After(wait):
		}
		wait *= 2
	}
	return lastErr
}

// TradesForAddresses returns trades by the given proxy addresses with ts in
// (from, to], ascending, at most limit rows.
func (s *Store) TradesForAddresses(ctx context.Context, proxies []string, from, to time.Time, limit int) ([]domain.TradeRow, error) {
	if len(proxies) == 0 {
		return nil, nil
	}
	const q = `
		SELECT trade_id, username, proxy_address, market_slug, token_id,
		       side, outcome, price, size, notional_usd, ts
		FROM trades
		WHERE proxy_address = ANY($1)
		  AND ts > $2 AND ts <= $3
		ORDER BY ts ASC
		LIMIT $4`

	var out []domain.TradeRow
	err := s.withRetry(ctx, "trades_for_addresses", func(ctx context.Context) error {
		rows, err := s.client.pool.Query(ctx, q, proxies, from, to, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var tr domain.TradeRow
			if err := rows.Scan(
				&tr.TradeID, &tr.Username, &tr.Proxy, &tr.MarketSlug, &tr.TokenID,
				&tr.Side, &tr.Outcome, &tr.Price, &tr.Size, &tr.NotionalUSD, &tr.TS,
			); err != nil {
				return err
			}
			out = append(out, tr)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: trades for addresses: %w", err)
	}
	return out, nil
}

// ActiveAlerts returns ACTIVE alerts of the given types created in (from, to].
func (s *Store) ActiveAlerts(ctx context.Context, types []string, from, to time.Time, limit int) ([]domain.AlertRow, error) {
	if len(types) == 0 {
		return nil, nil
	}
	const q = `
		SELECT id, alert_type, severity, source, username, market_slug,
		       title, message, metadata, created_at, expires_at, status
		FROM alerts
		WHERE status = 'ACTIVE'
		  AND alert_type = ANY($1)
		  AND created_at > $2 AND created_at <= $3
		ORDER BY created_at ASC
		LIMIT $4`

	var out []domain.AlertRow
	err := s.withRetry(ctx, "active_alerts", func(ctx context.Context) error {
		rows, err := s.client.pool.Query(ctx, q, types, from, to, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var a domain.AlertRow
			if err := rows.Scan(
				&a.ID, &a.Type, &a.Severity, &a.Source, &a.Username, &a.MarketSlug,
				&a.Title, &a.Message, &a.Metadata, &a.CreatedAt, &a.ExpiresAt, &a.Status,
			); err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: active alerts: %w", err)
	}
	return out, nil
}

// HighEdgeTraders returns the ML trader ranking filtered by edge and inverse
// confidence, best edge first.
func (s *Store) HighEdgeTraders(ctx context.Context, minEdge, maxInverseConfidence float64, limit int) ([]domain.EdgeTrader, error) {
	const q = `
		SELECT username, proxy_address, edge_score, inverse_confidence,
		       cluster_label, updated_at
		FROM ml_scores
		WHERE edge_score >= $1
		  AND inverse_confidence < $2
		ORDER BY edge_score DESC
		LIMIT $3`

	var out []domain.EdgeTrader
	err := s.withRetry(ctx, "high_edge_traders", func(ctx context.Context) error {
		rows, err := s.client.pool.Query(ctx, q, minEdge, maxInverseConfidence, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var t domain.EdgeTrader
			if err := rows.Scan(
				&t.Username, &t.Proxy, &t.Edge, &t.InverseConfidence,
				&t.Cluster, &t.UpdatedAt,
			); err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: high edge traders: %w", err)
	}
	return out, nil
}

// ActiveBinaryMarkets returns active two-outcome markets ending within the
// next seven days, highest volume first. Token index 0 is YES, index 1 NO.
func (s *Store) ActiveBinaryMarkets(ctx context.Context, limit int) ([]domain.BinaryMarket, error) {
	const q = `
		SELECT slug, token_ids[1], token_ids[2], end_date, volume_usd
		FROM markets
		WHERE active = TRUE
		  AND array_length(token_ids, 1) = 2
		  AND end_date > NOW()
		  AND end_date <= NOW() + INTERVAL '7 days'
		ORDER BY volume_usd DESC
		LIMIT $1`

	var out []domain.BinaryMarket
	err := s.withRetry(ctx, "active_binary_markets", func(ctx context.Context) error {
		rows, err := s.client.pool.Query(ctx, q, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var m domain.BinaryMarket
			if err := rows.Scan(&m.Slug, &m.YesTokenID, &m.NoTokenID, &m.EndTime, &m.VolumeUSD); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: active binary markets: %w", err)
	}
	return out, nil
}

// IndexConstituents returns the constituents of one index ordered by rank.
func (s *Store) IndexConstituents(ctx context.Context, indexType string) ([]domain.IndexConstituent, error) {
	const q = `
		SELECT username, proxy_address, weight, rank, capital_usd,
		       score, strategy_tag, last_trade_at, indexed_at
		FROM psi_index
		WHERE index_type = $1
		ORDER BY rank ASC`

	var out []domain.IndexConstituent
	err := s.withRetry(ctx, "index_constituents", func(ctx context.Context) error {
		rows, err := s.client.pool.Query(ctx, q, indexType)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var c domain.IndexConstituent
			if err := rows.Scan(
				&c.Username, &c.Proxy, &c.Weight, &c.Rank, &c.CapitalUSD,
				&c.Score, &c.StrategyTag, &c.LastTradeAt, &c.IndexedAt,
			); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: index constituents: %w", err)
	}
	// An unpopulated index is not an error: the mirror idles until the
	// analytics pipeline fills it.
	return out, nil
}

// InsertExecution appends one execution record. The (signal_id, fund_id)
// unique constraint makes retries idempotent.
func (s *Store) InsertExecution(ctx context.Context, rec domain.ExecutionRecord) error {
	const q = `
		INSERT INTO executions (
			signal_id, fund_id, trader_username, market_slug, token_id,
			outcome, signal_type, side, trader_shares, fund_shares,
			execution_price, order_id, detected_at, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (signal_id, fund_id) DO NOTHING`

	err := s.withRetry(ctx, "insert_execution", func(ctx context.Context) error {
		_, err := s.client.pool.Exec(ctx, q,
			rec.SignalID, rec.FundID, rec.TraderUsername, rec.MarketSlug, rec.TokenID,
			rec.Outcome, rec.SignalType, string(rec.Side), rec.TraderShares, rec.FundShares,
			rec.ExecutionPrice, rec.OrderID, rec.DetectedAt, rec.ExecutedAt,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s/%s: %w", rec.SignalID, rec.FundID, err)
	}
	return nil
}

var (
	_ domain.AnalyticsReader = (*Store)(nil)
	_ domain.ExecutionWriter = (*Store)(nil)
)
