package intent

import (
	"context"
	"testing"
	"time"

	"github.com/marketpulse/marketpulse-x/internal/metrics"
	"github.com/marketpulse/marketpulse-x/internal/model"
	"github.com/marketpulse/marketpulse-x/internal/ruleengine"
	"github.com/marketpulse/marketpulse-x/internal/store"
	"github.com/marketpulse/marketpulse-x/internal/venue"
)

type legBook struct {
	books map[string]venue.Book
}

func (l legBook) GetBook(ctx context.Context, optionID string) (venue.Book, error) {
	b, ok := l.books[optionID]
	if !ok {
		return venue.Book{}, context.DeadlineExceeded
	}
	return b, nil
}

// seedCrossMarketSignal mimics CROSS_MARKET_MISPRICE's two-leg buy-cheap/
// sell-rich plan: a buy on "cheap" and a sell on "rich".
func seedCrossMarketSignal(t *testing.T, st *store.Store, signalID string, legs ...model.TradeLeg) model.Signal {
	t.Helper()
	sig := model.Signal{
		SignalID:  signalID,
		MarketID:  "m1",
		RuleID:    "r1",
		Level:     model.LevelP1,
		Score:     0.05,
		EdgeScore: 0.05,
		Payload: model.SignalPayload{
			RuleType:       model.RuleCrossMarketMisprice,
			Reason:         "test cross-market signal",
			SuggestedTrade: &model.SuggestedTrade{Legs: legs},
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := st.InsertSignal(context.Background(), sig); err != nil {
		t.Fatalf("insert signal: %v", err)
	}
	return sig
}

func TestConfirmIntentSumsNotionalAcrossAllLegs(t *testing.T) {
	st := openTestStore(t)
	// Each leg alone (qty=10*price=5=50) is under the 90 cap, but the two
	// legs together (100) exceed it, so only the sum — not leg[0] alone —
	// trips the check.
	seedPolicy(t, st, "90", "5000", "10000", 10)
	seedCrossMarketSignal(t, st, "s1",
		model.TradeLeg{MarketID: "m1", OptionID: "cheap", Side: string(model.SideBuy), Qty: dec("10"), ReferencePrice: dec("5.00"), LimitPrice: dec("5.00")},
		model.TradeLeg{MarketID: "m1", OptionID: "rich", Side: string(model.SideSell), Qty: dec("10"), ReferencePrice: dec("5.00"), LimitPrice: dec("5.00")},
	)

	books := legBook{books: map[string]venue.Book{
		"cheap": {OptionID: "cheap", BestBid: dec("4.99"), BestAsk: dec("5.00")},
		"rich":  {OptionID: "rich", BestBid: dec("5.00"), BestAsk: dec("5.01")},
	}}
	gt := NewGauntlet(st, books, ruleengine.NewBreaker())
	pipe := New(st, gt, SyntheticFillConfirmer{}, metrics.New(), "p1")

	now := time.Now().UTC()
	in, err := pipe.CreateIntent(context.Background(), "s1", now)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	confirmed, err := pipe.ConfirmIntent(context.Background(), "r1", in.IntentID, now)
	if err != nil {
		t.Fatalf("confirm intent: %v", err)
	}
	if confirmed.Status != model.IntentRejected {
		t.Fatalf("expected combined two-leg notional (100) over cap (90) to reject, got status=%s detail=%+v", confirmed.Status, confirmed.Detail.Checks)
	}
}

func TestConfirmIntentChecksSlippageOnEveryLeg(t *testing.T) {
	st := openTestStore(t)
	seedPolicy(t, st, "1000", "5000", "80", 10) // slippage_bps=80
	// Leg "cheap" is fine (limit==best), leg "rich" has a huge gap.
	seedCrossMarketSignal(t, st, "s1",
		model.TradeLeg{MarketID: "m1", OptionID: "cheap", Side: string(model.SideBuy), Qty: dec("10"), ReferencePrice: dec("0.50"), LimitPrice: dec("0.50")},
		model.TradeLeg{MarketID: "m1", OptionID: "rich", Side: string(model.SideSell), Qty: dec("10"), ReferencePrice: dec("0.60"), LimitPrice: dec("0.60")},
	)

	books := legBook{books: map[string]venue.Book{
		"cheap": {OptionID: "cheap", BestBid: dec("0.49"), BestAsk: dec("0.50")},
		"rich":  {OptionID: "rich", BestBid: dec("0.10"), BestAsk: dec("0.11")},
	}}
	gt := NewGauntlet(st, books, ruleengine.NewBreaker())
	pipe := New(st, gt, SyntheticFillConfirmer{}, metrics.New(), "p1")

	now := time.Now().UTC()
	in, err := pipe.CreateIntent(context.Background(), "s1", now)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	confirmed, err := pipe.ConfirmIntent(context.Background(), "r1", in.IntentID, now)
	if err != nil {
		t.Fatalf("confirm intent: %v", err)
	}
	if confirmed.Status != model.IntentRejected {
		t.Fatalf("expected the second leg's slippage breach to reject the whole intent, got status=%s detail=%+v", confirmed.Status, confirmed.Detail.Checks)
	}
}
