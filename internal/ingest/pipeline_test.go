package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse-x/internal/metrics"
	"github.com/marketpulse/marketpulse-x/internal/store"
	"github.com/marketpulse/marketpulse-x/internal/venue"
)

func newTestPipeline(t *testing.T) (*Pipeline, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	client := venue.NewSyntheticClient(7, 2, 2)
	cfg := DefaultConfig()
	cfg.ChunkSize = 1
	cfg.MaxConcurrency = 2
	p := New(cfg, client, st, metrics.New(), zap.NewNop())
	return p, st
}

func TestCycleIngestsMarketsAndTicks(t *testing.T) {
	p, st := newTestPipeline(t)
	ctx := context.Background()

	if err := p.cycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	markets, err := st.ListMarkets(ctx)
	if err != nil {
		t.Fatalf("list markets: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(markets))
	}

	opts, err := st.ListOptions(ctx, markets[0].MarketID)
	if err != nil {
		t.Fatalf("list options: %v", err)
	}
	if len(opts) != 2 {
		t.Fatalf("expected 2 options, got %d", len(opts))
	}

	if _, err := st.LatestTick(ctx, markets[0].MarketID, opts[0].OptionID); err != nil {
		t.Fatalf("expected a tick to have been ingested: %v", err)
	}
}

func TestDedupCacheSkipsIdenticalTupleWithinFlushInterval(t *testing.T) {
	d := newDedupCache()
	ts := time.Now()
	price := decimal.NewFromFloat(0.50)
	bid := decimal.NewFromFloat(0.49)
	ask := decimal.NewFromFloat(0.51)
	window := 30 * time.Second

	if !d.Accept("m1", "o1", ts, price, bid, ask, window) {
		t.Fatal("first observation should be accepted")
	}
	// Same tuple, 3s later, well within the flush window: E2E scenario 2.
	if d.Accept("m1", "o1", ts.Add(3*time.Second), price, bid, ask, window) {
		t.Fatal("identical tuple within min_flush_interval should be skipped")
	}
}

func TestDedupCacheWritesWhenTupleChanges(t *testing.T) {
	d := newDedupCache()
	ts := time.Now()
	price := decimal.NewFromFloat(0.50)
	bid := decimal.NewFromFloat(0.49)
	ask := decimal.NewFromFloat(0.51)
	window := 30 * time.Second

	if !d.Accept("m1", "o1", ts, price, bid, ask, window) {
		t.Fatal("first observation should be accepted")
	}
	newPrice := decimal.NewFromFloat(0.52)
	if !d.Accept("m1", "o1", ts.Add(time.Second), newPrice, bid, ask, window) {
		t.Fatal("changed price should be accepted even within the flush window")
	}
}

func TestDedupCacheWritesWhenFlushIntervalElapses(t *testing.T) {
	d := newDedupCache()
	ts := time.Now()
	price := decimal.NewFromFloat(0.50)
	bid := decimal.NewFromFloat(0.49)
	ask := decimal.NewFromFloat(0.51)
	window := 30 * time.Second

	if !d.Accept("m1", "o1", ts, price, bid, ask, window) {
		t.Fatal("first observation should be accepted")
	}
	if !d.Accept("m1", "o1", ts.Add(31*time.Second), price, bid, ask, window) {
		t.Fatal("identical tuple after min_flush_interval elapses should be accepted")
	}
}

func TestBackoffExhaustsAtMaxRetries(t *testing.T) {
	b := DefaultBackoff(2)
	if _, ok := b.Next(1); !ok {
		t.Fatal("attempt 1 should be allowed")
	}
	if _, ok := b.Next(2); !ok {
		t.Fatal("attempt 2 should be allowed")
	}
	if _, ok := b.Next(3); ok {
		t.Fatal("attempt 3 should exceed max retries")
	}
}
