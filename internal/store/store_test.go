package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMarketRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	m := model.Market{
		MarketID:  "m1",
		Title:     "Will it rain tomorrow?",
		Status:    model.MarketOpen,
		Tags:      []string{"weather"},
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.UpsertMarket(ctx, m); err != nil {
		t.Fatalf("upsert market: %v", err)
	}

	got, err := s.GetMarket(ctx, "m1")
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if got.Title != m.Title || got.Status != m.Status {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestTickDedupIgnoresDuplicateTimestamp(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ts := time.Now().UTC().Truncate(time.Second)
	t1 := model.Tick{MarketID: "m1", OptionID: "o1", TS: ts, Price: decimal.NewFromFloat(0.42)}
	if err := s.InsertTick(ctx, t1); err != nil {
		t.Fatalf("insert tick: %v", err)
	}
	t2 := t1
	t2.Price = decimal.NewFromFloat(0.99)
	if err := s.InsertTick(ctx, t2); err != nil {
		t.Fatalf("insert duplicate tick: %v", err)
	}

	got, err := s.LatestTick(ctx, "m1", "o1")
	if err != nil {
		t.Fatalf("latest tick: %v", err)
	}
	if !got.Price.Equal(t1.Price) {
		t.Fatalf("expected first-write-wins price %s, got %s", t1.Price, got.Price)
	}
}

func TestIntentTransitionEnforcesLegalMoves(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	in := model.OrderIntent{
		IntentID:  "i1",
		SignalID:  "sig1",
		MarketID:  "m1",
		Side:      model.SideBuy,
		Qty:       decimal.NewFromInt(10),
		TTLSecs:   60,
		Status:    model.IntentSuggested,
		PolicyID:  "p1",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.InsertIntent(ctx, in); err != nil {
		t.Fatalf("insert intent: %v", err)
	}

	if _, err := s.TransitionIntent(ctx, "i1", model.IntentSent, model.IntentFilled, nil); err == nil {
		t.Fatalf("expected error transitioning from a status the row isn't in")
	}

	sent, err := s.TransitionIntent(ctx, "i1", model.IntentSuggested, model.IntentSent, nil)
	if err != nil {
		t.Fatalf("transition to sent: %v", err)
	}
	if sent.Status != model.IntentSent {
		t.Fatalf("expected status sent, got %s", sent.Status)
	}

	if _, err := s.TransitionIntent(ctx, "i1", model.IntentSuggested, model.IntentRejected, nil); err == nil {
		t.Fatalf("expected stale-state transition to fail")
	}

	filled, err := s.TransitionIntent(ctx, "i1", model.IntentSent, model.IntentFilled, func(d *model.IntentDetail) {
		price := decimal.NewFromFloat(0.55)
		d.FillPrice = &price
	})
	if err != nil {
		t.Fatalf("transition to filled: %v", err)
	}
	if filled.Detail.FillPrice == nil || !filled.Detail.FillPrice.Equal(decimal.NewFromFloat(0.55)) {
		t.Fatalf("expected fill price to be recorded, got %+v", filled.Detail.FillPrice)
	}
}

func TestDailyNotionalFilledSumsOnlyFilledIntents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	day := now.Format("2006-01-02")

	limit := decimal.NewFromFloat(0.5)
	filled := model.OrderIntent{
		IntentID:   "i1",
		SignalID:   "sig1",
		MarketID:   "m1",
		Side:       model.SideBuy,
		Qty:        decimal.NewFromInt(100),
		LimitPrice: &limit,
		TTLSecs:    60,
		Status:     model.IntentFilled,
		PolicyID:   "p1",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.InsertIntent(ctx, filled); err != nil {
		t.Fatalf("insert filled intent: %v", err)
	}

	stillSent := filled
	stillSent.IntentID = "i2"
	stillSent.Status = model.IntentSent
	if err := s.InsertIntent(ctx, stillSent); err != nil {
		t.Fatalf("insert sent intent: %v", err)
	}

	total, err := s.DailyNotionalFilled(ctx, day)
	if err != nil {
		t.Fatalf("daily notional filled: %v", err)
	}
	want := decimal.NewFromInt(100).Mul(limit)
	if !total.Equal(want) {
		t.Fatalf("expected only the filled intent's notional %s, got %s", want, total)
	}
}
