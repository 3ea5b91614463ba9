package venue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache wraps a Client's GetBook with a short TTL cache and singleflight
// coalescing so concurrent Ingestion Pipeline workers polling the same
// option within one cycle share a single upstream fetch. Grounded on
// stadam23-Eve-flipper's order book cache (singleflight.Group keyed by
// lookup key, freshness window struct).
type Cache struct {
	inner Client
	ttl   time.Duration
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	book      Book
	expiresAt time.Time
}

// NewCache wraps inner with a TTL cache. ttl is typically a few seconds,
// matching the poll cadence so a cycle's redundant GetBook calls for the
// same option collapse to one upstream request.
func NewCache(inner Client, ttl time.Duration) *Cache {
	return &Cache{
		inner:   inner,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// GetBook returns a cached book if still fresh, otherwise fetches once
// (coalesced across concurrent callers for the same optionID) and caches
// the result.
func (c *Cache) GetBook(ctx context.Context, optionID string) (Book, error) {
	if b, ok := c.lookup(optionID); ok {
		return b, nil
	}

	v, err, _ := c.group.Do(optionID, func() (any, error) {
		if b, ok := c.lookup(optionID); ok {
			return b, nil
		}
		b, err := c.inner.GetBook(ctx, optionID)
		if err != nil {
			return Book{}, err
		}
		c.store(optionID, b)
		return b, nil
	})
	if err != nil {
		return Book{}, err
	}
	return v.(Book), nil
}

// ListMarkets and GetMarketDetail pass through uncached; markets/options
// change far less often than books and the Ingestion Pipeline already
// paces calls via its own scheduler cadence.
func (c *Cache) ListMarkets(ctx context.Context, limit int, cursor string) (Page, error) {
	return c.inner.ListMarkets(ctx, limit, cursor)
}

func (c *Cache) GetMarketDetail(ctx context.Context, marketID string) (MarketDetail, error) {
	return c.inner.GetMarketDetail(ctx, marketID)
}

func (c *Cache) lookup(optionID string) (Book, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[optionID]
	if !ok || time.Now().After(e.expiresAt) {
		return Book{}, false
	}
	return e.book, true
}

func (c *Cache) store(optionID string, b Book) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[optionID] = cacheEntry{book: b, expiresAt: time.Now().Add(c.ttl)}
}
