// Package index caches {index type → constituents} snapshots loaded from the
// analytics store. Refreshes are single-flight per index; readers never block
// on a refresh in progress, they read the previous snapshot.
package index

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/psifund/fundbot/internal/domain"
)

// DefaultTTL is how long a cached index snapshot stays fresh.
const DefaultTTL = 30 * time.Second

type snapshot struct {
	constituents []domain.IndexConstituent
	byProxy      map[string]domain.IndexConstituent // lower-cased proxy address
	fetchedAt    time.Time
}

// Provider loads and caches index constituents with a TTL.
type Provider struct {
	reader domain.AnalyticsReader
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*snapshot

	group singleflight.Group
}

// NewProvider creates a Provider. ttl <= 0 uses DefaultTTL.
func NewProvider(reader domain.AnalyticsReader, ttl time.Duration, logger *slog.Logger) *Provider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Provider{
		reader: reader,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "index_provider")),
		cache:  make(map[string]*snapshot),
	}
}

// Constituents returns the constituents of an index. A fresh cached snapshot
// is served directly. A stale snapshot is served immediately while a
// background single-flight refresh runs. Only a cold cache blocks on the
// store.
func (p *Provider) Constituents(ctx context.Context, indexType string, now time.Time) ([]domain.IndexConstituent, error) {
	p.mu.RLock()
	snap := p.cache[indexType]
	p.mu.RUnlock()

	if snap != nil {
		if now.Sub(snap.fetchedAt) >= p.ttl {
			go p.refresh(indexType, now)
		}
		return snap.constituents, nil
	}

	v, err, _ := p.group.Do(indexType, func() (any, error) {
		return p.load(ctx, indexType, now)
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot).constituents, nil
}

// WeightFor returns the index weight of a proxy address (case-insensitive),
// or 0 when the trader is not a constituent.
func (p *Provider) WeightFor(indexType, proxy string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := p.cache[indexType]
	if snap == nil {
		return 0
	}
	if c, ok := snap.byProxy[strings.ToLower(proxy)]; ok {
		return c.Weight
	}
	return 0
}

// Lookup returns the full constituent record for a proxy address.
func (p *Provider) Lookup(indexType, proxy string) (domain.IndexConstituent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := p.cache[indexType]
	if snap == nil {
		return domain.IndexConstituent{}, false
	}
	c, ok := snap.byProxy[strings.ToLower(proxy)]
	return c, ok
}

func (p *Provider) refresh(indexType string, now time.Time) {
	_, _, _ = p.group.Do(indexType, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return p.load(ctx, indexType, now)
	})
}

func (p *Provider) load(ctx context.Context, indexType string, now time.Time) (*snapshot, error) {
	constituents, err := p.reader.IndexConstituents(ctx, indexType)
	if err != nil {
		p.logger.Warn("index refresh failed",
			slog.String("index", indexType),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	var weightSum float64
	byProxy := make(map[string]domain.IndexConstituent, len(constituents))
	for _, c := range constituents {
		byProxy[strings.ToLower(c.Proxy)] = c
		weightSum += c.Weight
	}
	if weightSum > 1.0+1e-9 {
		p.logger.Warn("index weights exceed 1.0",
			slog.String("index", indexType),
			slog.Float64("sum", weightSum),
		)
	}

	snap := &snapshot{
		constituents: constituents,
		byProxy:      byProxy,
		fetchedAt:    now,
	}
	p.mu.Lock()
	p.cache[indexType] = snap
	p.mu.Unlock()
	return snap, nil
}
