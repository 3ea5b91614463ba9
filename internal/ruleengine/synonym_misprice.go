package ruleengine

import (
	"fmt"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// synonymMispriceRepresentativePrice returns a market's summary implied
// price: the mean of its options' latest prices. SYNONYM_MISPRICE compares
// this single scalar across a synonym group's members; unlike
// CROSS_MARKET_MISPRICE it does not require option-label identity (open
// question decision #1 in SPEC_FULL.md).
func synonymMispriceRepresentativePrice(mv MarketView) (float64, bool) {
	if len(mv.Options) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, o := range mv.Options {
		f, _ := o.Latest.Price.Float64()
		sum += f
	}
	return sum / float64(len(mv.Options)), true
}

// synonymMispricePredicate implements spec.md §4.3.4.
type synonymMispricePredicate struct{}

func (synonymMispricePredicate) Type() model.RuleType { return model.RuleSynonymMisprice }

func (synonymMispricePredicate) Evaluate(params map[string]float64, scope Scope) (*Result, bool) {
	if len(scope.Markets) < 2 {
		return nil, false
	}
	threshold := paramOr(params, "threshold", 0.025)

	type priced struct {
		mv    MarketView
		price float64
	}
	var prices []priced
	for _, mv := range scope.Markets {
		p, ok := synonymMispriceRepresentativePrice(mv)
		if !ok {
			continue
		}
		prices = append(prices, priced{mv: mv, price: p})
	}
	if len(prices) < 2 {
		return nil, false
	}

	leader, laggard := prices[0], prices[0]
	for _, p := range prices {
		if p.price < leader.price {
			leader = p
		}
		if p.price > laggard.price {
			laggard = p
		}
	}
	maxGap := laggard.price - leader.price
	if maxGap <= threshold {
		return nil, false
	}

	edge := clamp(maxGap, 0, 1)
	var snapshot []model.BookLeg
	for _, o := range leader.mv.Options {
		snapshot = append(snapshot, bookLeg(leader.mv, o))
	}
	for _, o := range laggard.mv.Options {
		snapshot = append(snapshot, bookLeg(laggard.mv, o))
	}

	return &Result{
		MarketID:  scope.ID,
		Level:     leveled(maxGap),
		Score:     maxGap,
		EdgeScore: edge,
		Reason: fmt.Sprintf("leader market %s at %.4f vs laggard %s at %.4f, gap=%.4f",
			leader.mv.Market.MarketID, leader.price, laggard.mv.Market.MarketID, laggard.price, maxGap),
		WindowStats: map[string]float64{
			"leader_price":  leader.price,
			"laggard_price": laggard.price,
			"gap":           maxGap,
		},
		BookSnapshot: snapshot,
	}, true
}
