package ruleengine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// dutchBookPredicate implements spec.md §4.3.5. The basket is either a
// single market's own disjoint options (the common case, scope has one
// market) or, for a synonym group covering disjoint outcomes, one
// representative price per member market (scope has many markets, one
// price per market taken from its lowest-sorted option).
type dutchBookPredicate struct{}

func (dutchBookPredicate) Type() model.RuleType { return model.RuleDutchBookDetect }

func (dutchBookPredicate) Evaluate(params map[string]float64, scope Scope) (*Result, bool) {
	if len(scope.Markets) == 0 {
		return nil, false
	}
	sumThreshold := paramOr(params, "sum_threshold", 0.995)

	sum := decimal.Zero
	var snapshot []model.BookLeg
	var legs []model.TradeLeg

	if len(scope.Markets) == 1 {
		mv := scope.Markets[0]
		if len(mv.Options) < 2 {
			return nil, false
		}
		for _, o := range mv.Options {
			sum = sum.Add(o.Latest.Price)
			snapshot = append(snapshot, bookLeg(mv, o))
			legs = append(legs, model.TradeLeg{
				MarketID: mv.Market.MarketID, OptionID: o.OptionID, Side: string(model.SideBuy),
				Qty: decimal.NewFromInt(1), ReferencePrice: o.Latest.Price, LimitPrice: o.Latest.Price,
			})
		}
	} else {
		for _, mv := range scope.Markets {
			if len(mv.Options) == 0 {
				return nil, false
			}
			o := mv.Options[0]
			sum = sum.Add(o.Latest.Price)
			snapshot = append(snapshot, bookLeg(mv, o))
			legs = append(legs, model.TradeLeg{
				MarketID: mv.Market.MarketID, OptionID: o.OptionID, Side: string(model.SideBuy),
				Qty: decimal.NewFromInt(1), ReferencePrice: o.Latest.Price, LimitPrice: o.Latest.Price,
			})
		}
	}

	sFloat, _ := sum.Float64()
	if sFloat >= sumThreshold {
		return nil, false
	}
	gap := 1 - sFloat
	edge := clamp(gap, 0, 1)

	return &Result{
		MarketID:  scope.ID,
		Level:     leveled(gap),
		Score:     gap,
		EdgeScore: edge,
		Reason:    fmt.Sprintf("basket sum=%.4f over %d legs, below threshold %.4f", sFloat, len(legs), sumThreshold),
		WindowStats: map[string]float64{
			"sum": sFloat,
			"gap": gap,
		},
		SuggestedTrade: &model.SuggestedTrade{Legs: legs, Reason: "buy the full disjoint-outcome basket"},
		BookSnapshot:   snapshot,
	}, true
}
