package ruleengine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// sumLT1Predicate implements spec.md §4.3.1: fires when a market's option
// prices sum to materially less than 1.
type sumLT1Predicate struct{}

func (sumLT1Predicate) Type() model.RuleType { return model.RuleSumLT1 }

func (sumLT1Predicate) Evaluate(params map[string]float64, scope Scope) (*Result, bool) {
	if len(scope.Markets) != 1 || len(scope.Markets[0].Options) < 2 {
		return nil, false
	}
	mv := scope.Markets[0]
	minGap := paramOr(params, "min_gap", 0.01)

	s := mv.SumLatestPrices()
	sFloat, _ := s.Float64()
	gapDec := decimal.NewFromInt(1).Sub(s)
	if gapDec.LessThanOrEqual(decimal.NewFromFloat(minGap)) {
		return nil, false
	}
	gap, _ := gapDec.Float64()

	edge := clamp(gap, 0, 1)
	var snapshot []model.BookLeg
	var legs []model.TradeLeg
	for _, o := range mv.Options {
		snapshot = append(snapshot, bookLeg(mv, o))
		legs = append(legs, model.TradeLeg{
			MarketID:       mv.Market.MarketID,
			OptionID:       o.OptionID,
			Side:           string(model.SideBuy),
			Qty:            decimal.NewFromInt(1),
			ReferencePrice: o.Latest.Price,
			LimitPrice:     o.Latest.Price,
		})
	}

	return &Result{
		MarketID:  mv.Market.MarketID,
		Level:     leveled(gap),
		Score:     gap,
		EdgeScore: edge,
		Reason:    fmt.Sprintf("sum=%.4f over %d options, gap=%.4f", sFloat, len(mv.Options), gap),
		WindowStats: map[string]float64{
			"sum": sFloat,
			"gap": gap,
		},
		SuggestedTrade: &model.SuggestedTrade{Legs: legs, Reason: "buy full basket while sum < 1"},
		BookSnapshot:   snapshot,
	}, true
}
