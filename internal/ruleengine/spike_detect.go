package ruleengine

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// spikeDetectPredicate implements spec.md §4.3.2: fires when an option's
// price has moved more than threshold within window_secs, with enough
// liquidity backing the move to be tradeable.
type spikeDetectPredicate struct{}

func (spikeDetectPredicate) Type() model.RuleType { return model.RuleSpikeDetect }

func (spikeDetectPredicate) Evaluate(params map[string]float64, scope Scope) (*Result, bool) {
	if len(scope.Markets) != 1 {
		return nil, false
	}
	mv := scope.Markets[0]
	threshold := paramOr(params, "threshold", 0.05)
	minLiquidity := paramOr(params, "min_liquidity", 0)
	windowSecs := paramOr(params, "window_secs", 10)

	var best *OptionView
	var bestDelta float64
	for i := range mv.Options {
		o := &mv.Options[i]
		openPrice, ok := o.windowOpenPrice(windowSecs)
		if !ok {
			continue
		}
		last, _ := o.Latest.Price.Float64()
		open, _ := openPrice.Float64()
		delta := last - open
		if math.Abs(delta) <= threshold {
			continue
		}
		liquidity := 0.0
		if o.Latest.Liquidity != nil {
			liquidity, _ = o.Latest.Liquidity.Float64()
		}
		if liquidity < minLiquidity {
			continue
		}
		if best == nil || math.Abs(delta) > math.Abs(bestDelta) {
			best = o
			bestDelta = delta
		}
	}
	if best == nil {
		return nil, false
	}

	edge := clamp(math.Abs(bestDelta), 0, 1)
	optionID := best.OptionID
	return &Result{
		MarketID:  mv.Market.MarketID,
		OptionID:  &optionID,
		Level:     leveled(math.Abs(bestDelta)),
		Score:     bestDelta,
		EdgeScore: edge,
		Reason:    fmt.Sprintf("option %s moved %.4f within window", best.Label, bestDelta),
		WindowStats: map[string]float64{
			"delta": bestDelta,
		},
		SuggestedTrade: &model.SuggestedTrade{
			Legs: []model.TradeLeg{{
				MarketID:       mv.Market.MarketID,
				OptionID:       best.OptionID,
				Side:           sideForDelta(bestDelta),
				Qty:            decimal.NewFromInt(1),
				ReferencePrice: best.Latest.Price,
				LimitPrice:     best.Latest.Price,
			}},
			Reason: "ride the detected spike",
		},
		BookSnapshot: []model.BookLeg{bookLeg(mv, *best)},
	}, true
}

func sideForDelta(delta float64) string {
	if delta > 0 {
		return string(model.SideBuy)
	}
	return string(model.SideSell)
}
