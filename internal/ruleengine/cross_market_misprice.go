package ruleengine

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// crossMarketMispricePredicate implements spec.md §4.3.6: requires
// option-label identity (case-insensitive) across a synonym group's
// member markets, distinguishing it from SYNONYM_MISPRICE.
type crossMarketMispricePredicate struct{}

func (crossMarketMispricePredicate) Type() model.RuleType { return model.RuleCrossMarketMisprice }

func (crossMarketMispricePredicate) Evaluate(params map[string]float64, scope Scope) (*Result, bool) {
	if len(scope.Markets) < 2 {
		return nil, false
	}
	threshold := paramOr(params, "threshold", 0.03)

	type match struct {
		aMV, bMV MarketView
		aOpt, bOpt OptionView
		gap      float64
	}
	var best *match

	for i := 0; i < len(scope.Markets); i++ {
		for j := i + 1; j < len(scope.Markets); j++ {
			a, b := scope.Markets[i], scope.Markets[j]
			for _, oa := range a.Options {
				for _, ob := range b.Options {
					if !strings.EqualFold(oa.Label, ob.Label) {
						continue
					}
					pa, _ := oa.Latest.Price.Float64()
					pb, _ := ob.Latest.Price.Float64()
					gap := pa - pb
					if gap < 0 {
						gap = -gap
					}
					if gap <= threshold {
						continue
					}
					if best == nil || gap > best.gap {
						best = &match{aMV: a, bMV: b, aOpt: oa, bOpt: ob, gap: gap}
					}
				}
			}
		}
	}
	if best == nil {
		return nil, false
	}

	edge := clamp(best.gap, 0, 1)
	cheapMV, cheapOpt, richMV, richOpt := best.aMV, best.aOpt, best.bMV, best.bOpt
	if richOpt.Latest.Price.LessThan(cheapOpt.Latest.Price) {
		cheapMV, richMV = richMV, cheapMV
		cheapOpt, richOpt = richOpt, cheapOpt
	}

	return &Result{
		MarketID:  scope.ID,
		Level:     leveled(best.gap),
		Score:     best.gap,
		EdgeScore: edge,
		Reason: fmt.Sprintf("label %q priced %.4f in %s vs %.4f in %s, gap=%.4f",
			cheapOpt.Label, cheapOpt.Latest.Price, cheapMV.Market.MarketID, richOpt.Latest.Price, richMV.Market.MarketID, best.gap),
		WindowStats: map[string]float64{"gap": best.gap},
		SuggestedTrade: &model.SuggestedTrade{
			Legs: []model.TradeLeg{
				{
					MarketID: cheapMV.Market.MarketID, OptionID: cheapOpt.OptionID, Side: string(model.SideBuy),
					Qty: decimal.NewFromInt(1), ReferencePrice: cheapOpt.Latest.Price, LimitPrice: cheapOpt.Latest.Price,
				},
				{
					MarketID: richMV.Market.MarketID, OptionID: richOpt.OptionID, Side: string(model.SideSell),
					Qty: decimal.NewFromInt(1), ReferencePrice: richOpt.Latest.Price, LimitPrice: richOpt.Latest.Price,
				},
			},
			Reason: "buy the cheaper leg, sell the richer leg for the same outcome label",
		},
		BookSnapshot: []model.BookLeg{bookLeg(cheapMV, cheapOpt), bookLeg(richMV, richOpt)},
	}, true
}
