package ruleengine

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

const trendBreakoutEpsilon = 1e-6

// trendBreakoutPredicate implements spec.md §4.3.7: fires when an option's
// last price deviates from its rolling window mean by more than threshold,
// proportionally.
type trendBreakoutPredicate struct{}

func (trendBreakoutPredicate) Type() model.RuleType { return model.RuleTrendBreakout }

func (trendBreakoutPredicate) Evaluate(params map[string]float64, scope Scope) (*Result, bool) {
	if len(scope.Markets) != 1 {
		return nil, false
	}
	mv := scope.Markets[0]
	threshold := paramOr(params, "threshold", 0.1)
	windowSecs := paramOr(params, "window_secs", 300)

	var best *OptionView
	var bestDeviation float64
	for i := range mv.Options {
		o := &mv.Options[i]
		mean, ok := o.windowMeanPrice(windowSecs)
		if !ok {
			continue
		}
		last, _ := o.Latest.Price.Float64()
		denom := math.Max(mean, trendBreakoutEpsilon)
		deviation := math.Abs(last-mean) / denom
		if deviation <= threshold {
			continue
		}
		if best == nil || deviation > bestDeviation {
			best = o
			bestDeviation = deviation
		}
	}
	if best == nil {
		return nil, false
	}

	edge := clamp(bestDeviation, 0, 1)
	optionID := best.OptionID
	mean, _ := best.windowMeanPrice(windowSecs)
	last, _ := best.Latest.Price.Float64()
	return &Result{
		MarketID:  mv.Market.MarketID,
		OptionID:  &optionID,
		Level:     leveled(bestDeviation),
		Score:     bestDeviation,
		EdgeScore: edge,
		Reason:    fmt.Sprintf("option %s deviates %.2f%% from rolling mean %.4f", best.Label, bestDeviation*100, mean),
		WindowStats: map[string]float64{
			"deviation": bestDeviation,
			"mean":      mean,
		},
		SuggestedTrade: &model.SuggestedTrade{
			Legs: []model.TradeLeg{{
				MarketID:       mv.Market.MarketID,
				OptionID:       best.OptionID,
				Side:           sideForDelta(last - mean),
				Qty:            decimal.NewFromInt(1),
				ReferencePrice: best.Latest.Price,
				LimitPrice:     best.Latest.Price,
			}},
			Reason: "follow the breakout away from the rolling mean",
		},
		BookSnapshot: []model.BookLeg{bookLeg(mv, *best)},
	}, true
}
