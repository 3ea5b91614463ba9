// Package intent implements the suggest/confirm Intent Pipeline: turning a
// fired Signal into an OrderIntent, running it through a five-step risk
// gauntlet, and (on confirm) transitioning it toward a fill.
package intent

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
	"github.com/marketpulse/marketpulse-x/internal/ruleengine"
	"github.com/marketpulse/marketpulse-x/internal/store"
	"github.com/marketpulse/marketpulse-x/internal/venue"
)

// bookLookup is the minimal venue surface the gauntlet needs for the
// slippage guardrail — a live best-price read, not a full Client.
type bookLookup interface {
	GetBook(ctx context.Context, optionID string) (venue.Book, error)
}

// Gauntlet runs the five risk checks spec.md §4.4 requires before an
// intent may move from suggested to sent, each adapted from the teacher's
// internal/risk/manager.go Allow() sequence of named checks, rewritten
// against decimal.Decimal and extended with the slippage and circuit
// breaker checks the teacher's manager has no equivalent of.
type Gauntlet struct {
	store   *store.Store
	book    bookLookup
	breaker *ruleengine.Breaker
}

// NewGauntlet constructs a Gauntlet.
func NewGauntlet(st *store.Store, book bookLookup, breaker *ruleengine.Breaker) *Gauntlet {
	return &Gauntlet{store: st, book: book, breaker: breaker}
}

// Evaluate runs all five checks against a candidate intent and its
// governing policy, returning the full CheckResult list (so a rejection
// can be explained) and a single pass/fail.
func (g *Gauntlet) Evaluate(ctx context.Context, ruleID string, in model.OrderIntent, policy model.ExecutionPolicy, now time.Time) ([]model.CheckResult, bool) {
	checks := []model.CheckResult{
		g.checkNotionalCap(in, policy),
		g.checkConcurrencyCap(ctx, in, policy),
		g.checkDailyCap(ctx, in, policy),
		g.checkSlippage(ctx, in, policy),
		g.checkCircuitBreaker(ruleID, in.MarketID, now),
	}
	for _, c := range checks {
		if !c.Passed {
			return checks, false
		}
	}
	return checks, true
}

// checkNotionalCap implements step (a): Σ qty·ref_price ≤ max_notional_per_order.
func (g *Gauntlet) checkNotionalCap(in model.OrderIntent, policy model.ExecutionPolicy) model.CheckResult {
	notional := notionalOf(in)
	if notional.GreaterThan(policy.MaxNotionalPerOrder) {
		return model.CheckResult{Name: "notional_cap", Passed: false,
			Reason: fmt.Sprintf("notional %s exceeds max_notional_per_order %s", notional, policy.MaxNotionalPerOrder)}
	}
	return model.CheckResult{Name: "notional_cap", Passed: true}
}

// checkConcurrencyCap implements step (b): count of intents for this market
// currently in "suggested" or "sent" state must not exceed
// max_concurrent_orders. CountOpenIntents
// includes the intent under evaluation itself (still "suggested" at this
// point), so the cap is compared with strict "greater than" rather than
// "at or above" — otherwise the effective capacity would be max-1.
func (g *Gauntlet) checkConcurrencyCap(ctx context.Context, in model.OrderIntent, policy model.ExecutionPolicy) model.CheckResult {
	n, err := g.store.CountOpenIntents(ctx, in.MarketID)
	if err != nil {
		return model.CheckResult{Name: "concurrency_cap", Passed: false, Reason: fmt.Sprintf("count open intents: %v", err)}
	}
	if n > policy.MaxConcurrentOrders {
		return model.CheckResult{Name: "concurrency_cap", Passed: false,
			Reason: fmt.Sprintf("%d open intents exceeds max_concurrent_orders %d", n, policy.MaxConcurrentOrders)}
	}
	return model.CheckResult{Name: "concurrency_cap", Passed: true}
}

// checkDailyCap implements step (c): today's filled notional plus this
// intent's notional must not exceed max_daily_notional.
func (g *Gauntlet) checkDailyCap(ctx context.Context, in model.OrderIntent, policy model.ExecutionPolicy) model.CheckResult {
	day := in.CreatedAt.UTC().Format("2006-01-02")
	spent, err := g.store.DailyNotionalFilled(ctx, day)
	if err != nil {
		return model.CheckResult{Name: "daily_cap", Passed: false, Reason: fmt.Sprintf("daily notional filled: %v", err)}
	}
	total := spent.Add(notionalOf(in))
	if total.GreaterThan(policy.MaxDailyNotional) {
		return model.CheckResult{Name: "daily_cap", Passed: false,
			Reason: fmt.Sprintf("projected daily notional %s exceeds max_daily_notional %s", total, policy.MaxDailyNotional)}
	}
	return model.CheckResult{Name: "daily_cap", Passed: true}
}

// checkSlippage implements step (d): |limit_price - current_best| /
// current_best * 10000 <= slippage_bps, checked for each leg of the plan —
// a multi-leg arb (e.g. CROSS_MARKET_MISPRICE's buy-cheap/sell-rich pair)
// is only as safe as its worst leg. Missing live book data is a hard
// reject (stale_book), never a silent pass.
func (g *Gauntlet) checkSlippage(ctx context.Context, in model.OrderIntent, policy model.ExecutionPolicy) model.CheckResult {
	legs := in.Detail.Plan.Legs
	if len(legs) == 0 {
		return model.CheckResult{Name: "slippage_guardrail", Passed: false, Reason: "stale_book: intent has no legs"}
	}
	for _, leg := range legs {
		if leg.LimitPrice.IsZero() {
			return model.CheckResult{Name: "slippage_guardrail", Passed: false,
				Reason: fmt.Sprintf("stale_book: leg %s has no limit price", leg.OptionID)}
		}
		book, err := g.book.GetBook(ctx, leg.OptionID)
		if err != nil {
			return model.CheckResult{Name: "slippage_guardrail", Passed: false, Reason: "stale_book: " + err.Error()}
		}
		currentBest := bestForSide(book, model.Side(leg.Side))
		if currentBest.IsZero() {
			return model.CheckResult{Name: "slippage_guardrail", Passed: false,
				Reason: fmt.Sprintf("stale_book: no current best price for leg %s", leg.OptionID)}
		}

		diff := leg.LimitPrice.Sub(currentBest).Abs()
		bps := diff.Div(currentBest).Mul(decimal.NewFromInt(10000))
		if bps.GreaterThan(policy.SlippageBps) {
			return model.CheckResult{Name: "slippage_guardrail", Passed: false,
				Reason: fmt.Sprintf("leg %s slippage %s bps exceeds slippage_bps %s", leg.OptionID, bps, policy.SlippageBps)}
		}
	}
	return model.CheckResult{Name: "slippage_guardrail", Passed: true}
}

// checkCircuitBreaker implements step (e): the rule-market pair's circuit
// breaker must not be OPEN.
func (g *Gauntlet) checkCircuitBreaker(ruleID, marketID string, now time.Time) model.CheckResult {
	if !g.breaker.Allowed(ruleID, marketID, now) {
		return model.CheckResult{Name: "circuit_breaker", Passed: false, Reason: "rule-market circuit breaker is OPEN"}
	}
	return model.CheckResult{Name: "circuit_breaker", Passed: true}
}

// notionalOf implements step (a)'s literal formula, Σ leg.qty · leg.reference_price
// across every leg of the plan, not just the first.
func notionalOf(in model.OrderIntent) decimal.Decimal {
	total := decimal.Zero
	for _, leg := range in.Detail.Plan.Legs {
		total = total.Add(leg.Qty.Mul(leg.ReferencePrice))
	}
	return total
}

func bestForSide(book venue.Book, side model.Side) decimal.Decimal {
	if side == model.SideBuy {
		return book.BestAsk
	}
	return book.BestBid
}
