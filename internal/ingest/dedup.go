package ingest

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// observation is the last (price, best_bid, best_ask) tuple written for a
// key, plus the timestamp it was written at.
type observation struct {
	ts      time.Time
	price   decimal.Decimal
	bestBid decimal.Decimal
	bestAsk decimal.Decimal
}

// dedupCache tracks the last-written tuple per (market_id, option_id),
// enforcing the dedup rule from spec.md §4.2(5): a newly observed tick whose
// (price, best_bid, best_ask) tuple is identical to the cached value and
// whose ts is within min_flush_interval of the cached ts is dropped rather
// than persisted; any other tick is written and becomes the new cached
// value.
type dedupCache struct {
	mu   sync.Mutex
	last map[string]observation
}

func newDedupCache() *dedupCache {
	return &dedupCache{last: make(map[string]observation)}
}

func dedupKey(marketID, optionID string) string {
	return marketID + "\x00" + optionID
}

// Accept reports whether a tick with this tuple should be written, and if
// so records it as the new cached observation for this key.
func (d *dedupCache) Accept(marketID, optionID string, ts time.Time, price, bestBid, bestAsk decimal.Decimal, minFlushInterval time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := dedupKey(marketID, optionID)
	prev, ok := d.last[key]
	if ok && price.Equal(prev.price) && bestBid.Equal(prev.bestBid) && bestAsk.Equal(prev.bestAsk) && ts.Sub(prev.ts) < minFlushInterval {
		return false
	}
	d.last[key] = observation{ts: ts, price: price, bestBid: bestBid, bestAsk: bestAsk}
	return true
}
