package ruleengine

import "github.com/marketpulse/marketpulse-x/internal/model"

// Scope is what a predicate evaluates against: either a single market
// (SUM_LT_1, SPIKE_DETECT, ENDGAME_SWEEP, TREND_BREAKOUT, DUTCH_BOOK_DETECT)
// or every member market of a synonym group (SYNONYM_MISPRICE,
// CROSS_MARKET_MISPRICE, and DUTCH_BOOK_DETECT, which is evaluated on both
// kinds of scope). ID is the cooldown/circuit-breaker key's market
// component: the market_id for single-market scopes, or the group's
// lowest-sorted member market_id for group scopes (group rules have no
// natural single market_id, so the anchor member stands in).
type Scope struct {
	ID      string
	Markets []MarketView
}

// Result is what a predicate returns when it fires.
type Result struct {
	MarketID       string
	OptionID       *string
	Level          model.Level
	Score          float64
	EdgeScore      float64
	Reason         string
	WindowStats    map[string]float64
	SuggestedTrade *model.SuggestedTrade
	BookSnapshot   []model.BookLeg
}

// Predicate is one rule type's evaluation logic.
type Predicate interface {
	Type() model.RuleType
	Evaluate(params map[string]float64, scope Scope) (*Result, bool)
}

func paramOr(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// leveled resolves the P1/P2 boundary at gap==0.03 in favor of P1, per the
// end-to-end scenario in spec.md §8 (SUM_LT_1 at [0.48, 0.49],
// min_gap=0.01 -> level=P1 at gap=1-0.97=0.03 exactly); spec.md §4.3.1
// otherwise reads as a strict "> 0.03" split, but the pinned scenario wins.
func leveled(gap float64) model.Level {
	if gap >= 0.03 {
		return model.LevelP1
	}
	return model.LevelP2
}

func bookLeg(mv MarketView, o OptionView) model.BookLeg {
	leg := model.BookLeg{
		MarketID:  mv.Market.MarketID,
		OptionID:  o.OptionID,
		Label:     o.Label,
		LastPrice: o.Latest.Price,
	}
	if o.Latest.BestBid != nil {
		leg.BestBid = *o.Latest.BestBid
	}
	if o.Latest.BestAsk != nil {
		leg.BestAsk = *o.Latest.BestAsk
	}
	return leg
}

// allPredicates returns one instance of every rule-type predicate.
func allPredicates() map[model.RuleType]Predicate {
	preds := []Predicate{
		sumLT1Predicate{},
		spikeDetectPredicate{},
		endgameSweepPredicate{},
		synonymMispricePredicate{},
		dutchBookPredicate{},
		crossMarketMispricePredicate{},
		trendBreakoutPredicate{},
	}
	out := make(map[model.RuleType]Predicate, len(preds))
	for _, p := range preds {
		out[p.Type()] = p
	}
	return out
}
