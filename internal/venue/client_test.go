package venue

import (
	"context"
	"testing"
	"time"
)

func TestSyntheticClientListAndBook(t *testing.T) {
	c := NewSyntheticClient(42, 3, 2)
	ctx := context.Background()

	page, err := c.ListMarkets(ctx, 10, "")
	if err != nil {
		t.Fatalf("list markets: %v", err)
	}
	if len(page.Markets) != 3 {
		t.Fatalf("expected 3 markets, got %d", len(page.Markets))
	}

	optionID := page.Markets[0].Options[0].OptionID
	b, err := c.GetBook(ctx, optionID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if !b.BestAsk.GreaterThan(b.BestBid) {
		t.Fatalf("expected ask > bid, got bid=%s ask=%s", b.BestBid, b.BestAsk)
	}
}

func TestSyntheticClientUnknownMarketIsFatal(t *testing.T) {
	c := NewSyntheticClient(1, 1, 1)
	_, err := c.GetMarketDetail(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error for unknown market")
	}
	venErr, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if venErr.Retriable() {
		t.Fatal("not-found should be fatal, not retriable")
	}
}

type countingClient struct {
	calls int
	book  Book
}

func (c *countingClient) ListMarkets(ctx context.Context, limit int, cursor string) (Page, error) {
	return Page{}, nil
}

func (c *countingClient) GetMarketDetail(ctx context.Context, marketID string) (MarketDetail, error) {
	return MarketDetail{}, nil
}

func (c *countingClient) GetBook(ctx context.Context, optionID string) (Book, error) {
	c.calls++
	return c.book, nil
}

func TestCacheCoalescesWithinTTL(t *testing.T) {
	inner := &countingClient{}
	cache := NewCache(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := cache.GetBook(ctx, "opt-1"); err != nil {
			t.Fatalf("get book: %v", err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 upstream call within TTL, got %d", inner.calls)
	}
}

func TestCacheRefetchesAfterTTL(t *testing.T) {
	inner := &countingClient{}
	cache := NewCache(inner, time.Millisecond)
	ctx := context.Background()

	if _, err := cache.GetBook(ctx, "opt-1"); err != nil {
		t.Fatalf("get book: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := cache.GetBook(ctx, "opt-1"); err != nil {
		t.Fatalf("get book: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 upstream calls across TTL boundary, got %d", inner.calls)
	}
}
