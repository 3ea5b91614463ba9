package ruleengine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// endgameSweepPredicate implements spec.md §4.3.3: fires on markets close
// to expiry showing an anomalous volume surge at a high price.
type endgameSweepPredicate struct{}

func (endgameSweepPredicate) Type() model.RuleType { return model.RuleEndgameSweep }

func (endgameSweepPredicate) Evaluate(params map[string]float64, scope Scope) (*Result, bool) {
	if len(scope.Markets) != 1 {
		return nil, false
	}
	mv := scope.Markets[0]

	endsWithinHours := paramOr(params, "ends_within_hours", 24)
	priceHi := paramOr(params, "price_hi", 0.9)
	zHi := paramOr(params, "z_hi", 2.0)
	minSigma := paramOr(params, "min_sigma", 0.01)
	windowSecs := paramOr(params, "window_secs", 900)

	if mv.Market.EndsAt == nil || time.Until(*mv.Market.EndsAt) > time.Duration(endsWithinHours)*time.Hour {
		return nil, false
	}

	var best *OptionView
	var bestZ float64
	for i := range mv.Options {
		o := &mv.Options[i]
		last, _ := o.Latest.Price.Float64()
		if last < priceHi {
			continue
		}
		mean, stddev, ok := o.windowVolumeStats(windowSecs)
		if !ok {
			continue
		}
		if stddev < minSigma {
			stddev = minSigma
		}
		var v float64
		if o.Latest.Volume != nil {
			v, _ = o.Latest.Volume.Float64()
		}
		z := (v - mean) / stddev
		if z < zHi {
			continue
		}
		if best == nil || z > bestZ {
			best = o
			bestZ = z
		}
	}
	if best == nil {
		return nil, false
	}

	last, _ := best.Latest.Price.Float64()
	raw := (last - priceHi) + 0.1*bestZ
	edge := clamp(raw, 0, 1)
	optionID := best.OptionID
	return &Result{
		MarketID:  mv.Market.MarketID,
		OptionID:  &optionID,
		Level:     leveled(edge),
		Score:     raw,
		EdgeScore: edge,
		Reason:    fmt.Sprintf("option %s price %.4f with volume z-score %.2f near close", best.Label, last, bestZ),
		WindowStats: map[string]float64{
			"z":     bestZ,
			"price": last,
		},
		SuggestedTrade: &model.SuggestedTrade{
			Legs: []model.TradeLeg{{
				MarketID:       mv.Market.MarketID,
				OptionID:       best.OptionID,
				Side:           string(model.SideBuy),
				Qty:            decimal.NewFromInt(1),
				ReferencePrice: best.Latest.Price,
				LimitPrice:     best.Latest.Price,
			}},
			Reason: "ride the endgame sweep toward resolution",
		},
		BookSnapshot: []model.BookLeg{bookLeg(mv, *best)},
	}, true
}
