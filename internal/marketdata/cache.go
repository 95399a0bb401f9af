// Package marketdata holds the live top-of-book state consumed by the
// arbitrage strategy and the unrealised P&L marking. The feed adapter is the
// single writer; strategies are readers.
package marketdata

import (
	"context"
	"sync"

	"github.com/psifund/fundbot/internal/domain"
)

// MemoryCache is the in-process implementation of domain.BookCache.
// Snapshots are replaced whole under the write lock, so readers always see a
// consistent TopOfBook.
type MemoryCache struct {
	mu    sync.RWMutex
	books map[string]domain.TopOfBook
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{books: make(map[string]domain.TopOfBook)}
}

// Set stores the latest snapshot for a token.
func (c *MemoryCache) Set(_ context.Context, tob domain.TopOfBook) error {
	c.mu.Lock()
	c.books[tob.TokenID] = tob
	c.mu.Unlock()
	return nil
}

// Get returns the latest snapshot for a token, or domain.ErrNotFound.
func (c *MemoryCache) Get(_ context.Context, tokenID string) (domain.TopOfBook, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tob, ok := c.books[tokenID]
	if !ok {
		return domain.TopOfBook{}, domain.ErrNotFound
	}
	return tob, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*MemoryCache)(nil)
