package ruleengine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func tick(marketID, optionID, price string, ts time.Time) model.Tick {
	return model.Tick{TS: ts, MarketID: marketID, OptionID: optionID, Price: dec(price)}
}

func TestLeveledResolvesExactGapToP1(t *testing.T) {
	if got := leveled(0.03); got != model.LevelP1 {
		t.Fatalf("expected gap==0.03 to resolve to P1 per the pinned E2E scenario, got %s", got)
	}
	if got := leveled(0.0299); got != model.LevelP2 {
		t.Fatalf("expected gap<0.03 to resolve to P2, got %s", got)
	}
	if got := leveled(0.05); got != model.LevelP1 {
		t.Fatalf("expected gap>0.03 to resolve to P1, got %s", got)
	}
}

func TestSumLT1FiresAtSpecBoundaryExample(t *testing.T) {
	now := time.Now().UTC()
	scope := Scope{
		ID: "m1",
		Markets: []MarketView{{
			Market: model.Market{MarketID: "m1"},
			Options: []OptionView{
				{OptionID: "yes", Label: "Yes", Latest: tick("m1", "yes", "0.48", now)},
				{OptionID: "no", Label: "No", Latest: tick("m1", "no", "0.49", now)},
			},
		}},
	}

	pred := sumLT1Predicate{}
	result, fired := pred.Evaluate(map[string]float64{"min_gap": 0.01}, scope)
	if !fired {
		t.Fatalf("expected SUM_LT_1 to fire at sum=0.97, gap=0.03 with min_gap=0.01")
	}
	if result.Level != model.LevelP1 {
		t.Fatalf("expected P1 level at gap=0.03, got %s", result.Level)
	}
	if result.EdgeScore < 0.0299 || result.EdgeScore > 0.0301 {
		t.Fatalf("expected edge_score~=0.03, got %v", result.EdgeScore)
	}
}

func TestSumLT1DoesNotFireExactlyAtGap(t *testing.T) {
	now := time.Now().UTC()
	scope := Scope{
		Markets: []MarketView{{
			Market: model.Market{MarketID: "m1"},
			Options: []OptionView{
				{OptionID: "yes", Latest: tick("m1", "yes", "0.50", now)},
				{OptionID: "no", Latest: tick("m1", "no", "0.49", now)},
			},
		}},
	}
	_, fired := sumLT1Predicate{}.Evaluate(map[string]float64{"min_gap": 0.01}, scope)
	if fired {
		t.Fatalf("expected no fire when gap (0.01) equals min_gap (0.01): boundary is strict >")
	}
}

func TestSpikeDetectFiresOnLargeMoveAboveThreshold(t *testing.T) {
	now := time.Now().UTC()
	openTS := now.Add(-5 * time.Minute)
	liquidity := dec("500")
	latest := tick("m1", "yes", "0.60", now)
	latest.Liquidity = &liquidity

	scope := Scope{
		Markets: []MarketView{{
			Market: model.Market{MarketID: "m1"},
			Options: []OptionView{
				{OptionID: "yes", Latest: latest, Window: []model.Tick{tick("m1", "yes", "0.50", openTS)}},
			},
		}},
	}
	result, fired := spikeDetectPredicate{}.Evaluate(map[string]float64{"threshold": 0.05, "window_secs": 600}, scope)
	if !fired {
		t.Fatalf("expected SPIKE_DETECT to fire on a 0.10 move against a 0.05 threshold")
	}
	if result.SuggestedTrade == nil || len(result.SuggestedTrade.Legs) != 1 {
		t.Fatalf("expected a single-leg suggested trade")
	}
	if result.SuggestedTrade.Legs[0].Side != string(model.SideBuy) {
		t.Fatalf("expected buy side for an upward spike, got %s", result.SuggestedTrade.Legs[0].Side)
	}
}

func TestSpikeDetectDoesNotFireBelowThreshold(t *testing.T) {
	now := time.Now().UTC()
	openTS := now.Add(-5 * time.Minute)
	scope := Scope{
		Markets: []MarketView{{
			Market: model.Market{MarketID: "m1"},
			Options: []OptionView{
				{OptionID: "yes", Latest: tick("m1", "yes", "0.52", now), Window: []model.Tick{tick("m1", "yes", "0.50", openTS)}},
			},
		}},
	}
	_, fired := spikeDetectPredicate{}.Evaluate(map[string]float64{"threshold": 0.05, "window_secs": 600}, scope)
	if fired {
		t.Fatalf("expected no fire on a 0.02 move against a 0.05 threshold")
	}
}

func TestSpikeDetectIgnoresTicksOutsideWindowSecs(t *testing.T) {
	now := time.Now().UTC()
	// The only window tick is 5 minutes old; with window_secs=10 it falls
	// outside the sub-window, so there is no window_open_price and the
	// predicate must not fire even though the raw price move is large.
	openTS := now.Add(-5 * time.Minute)
	scope := Scope{
		Markets: []MarketView{{
			Market: model.Market{MarketID: "m1"},
			Options: []OptionView{
				{OptionID: "yes", Latest: tick("m1", "yes", "0.60", now), Window: []model.Tick{tick("m1", "yes", "0.50", openTS)}},
			},
		}},
	}
	_, fired := spikeDetectPredicate{}.Evaluate(map[string]float64{"threshold": 0.05, "window_secs": 10}, scope)
	if fired {
		t.Fatalf("expected no fire: the only window tick is older than window_secs=10")
	}
}

func TestTrendBreakoutMeanRespectsWindowSecs(t *testing.T) {
	now := time.Now().UTC()
	// An old, very different price must not pull the rolling mean once it
	// falls outside window_secs.
	window := []model.Tick{
		tick("m1", "a", "0.90", now.Add(-20*time.Minute)),
		tick("m1", "a", "0.50", now.Add(-1*time.Minute)),
	}
	scope := Scope{
		Markets: []MarketView{{
			Market:  model.Market{MarketID: "m1"},
			Options: []OptionView{{OptionID: "a", Latest: tick("m1", "a", "0.50", now), Window: window}},
		}},
	}
	_, fired := trendBreakoutPredicate{}.Evaluate(map[string]float64{"threshold": 0.1, "window_secs": 300}, scope)
	if fired {
		t.Fatalf("expected no fire: the stale 0.90 tick is outside window_secs=300 so the mean should equal the latest price")
	}
}

func TestEndgameSweepRequiresExpiryWindow(t *testing.T) {
	now := time.Now().UTC()
	farEnd := now.Add(72 * time.Hour)
	scope := Scope{
		Markets: []MarketView{{
			Market:  model.Market{MarketID: "m1", EndsAt: &farEnd},
			Options: []OptionView{{OptionID: "yes", Latest: tick("m1", "yes", "0.95", now)}},
		}},
	}
	_, fired := endgameSweepPredicate{}.Evaluate(map[string]float64{"ends_within_hours": 24}, scope)
	if fired {
		t.Fatalf("expected no fire when market ends well outside the ends_within_hours window")
	}
}

func TestEndgameSweepVolumeStatsRespectWindowSecs(t *testing.T) {
	now := time.Now().UTC()
	soon := now.Add(2 * time.Hour)
	volHigh := dec("1000")
	volLow := dec("10")
	latest := tick("m1", "yes", "0.95", now)
	latest.Volume = &volHigh
	window := []model.Tick{
		func() model.Tick { tk := tick("m1", "yes", "10", now.Add(-20*time.Minute)); tk.Volume = &volHigh; return tk }(),
		func() model.Tick { tk := tick("m1", "yes", "10", now.Add(-1*time.Minute)); tk.Volume = &volLow; return tk }(),
	}
	scope := Scope{
		Markets: []MarketView{{
			Market:  model.Market{MarketID: "m1", EndsAt: &soon},
			Options: []OptionView{{OptionID: "yes", Latest: latest, Window: window}},
		}},
	}
	// window_secs=300 excludes the -20min sample, leaving only the -1min
	// sample (volume=10) in the baseline, so the latest volume (1000) spikes
	// far enough above it to clear z_hi even with min_sigma flooring sigma.
	result, fired := endgameSweepPredicate{}.Evaluate(map[string]float64{
		"ends_within_hours": 24, "price_hi": 0.9, "z_hi": 2.0, "min_sigma": 0.01, "window_secs": 300,
	}, scope)
	if !fired {
		t.Fatalf("expected ENDGAME_SWEEP to fire once the stale sample is excluded from the window")
	}
	if result.WindowStats["z"] <= 0 {
		t.Fatalf("expected a positive z-score, got %v", result.WindowStats["z"])
	}
}

func TestTrendBreakoutPicksLargestDeviation(t *testing.T) {
	now := time.Now().UTC()
	window := []model.Tick{
		tick("m1", "a", "0.50", now.Add(-10*time.Minute)),
		tick("m1", "a", "0.50", now.Add(-5*time.Minute)),
	}
	scope := Scope{
		Markets: []MarketView{{
			Market: model.Market{MarketID: "m1"},
			Options: []OptionView{
				{OptionID: "a", Latest: tick("m1", "a", "0.65", now), Window: window},
				{OptionID: "b", Latest: tick("m1", "b", "0.52", now), Window: window},
			},
		}},
	}
	result, fired := trendBreakoutPredicate{}.Evaluate(map[string]float64{"threshold": 0.1, "window_secs": 900}, scope)
	if !fired {
		t.Fatalf("expected TREND_BREAKOUT to fire on option a's 0.30 relative deviation")
	}
	if *result.OptionID != "a" {
		t.Fatalf("expected option a (largest deviation) to be picked, got %s", *result.OptionID)
	}
}

func TestSynonymMispriceFiresAcrossGroupMembers(t *testing.T) {
	now := time.Now().UTC()
	scope := Scope{
		ID: "m1",
		Markets: []MarketView{
			{Market: model.Market{MarketID: "m1"}, Options: []OptionView{{OptionID: "yes", Latest: tick("m1", "yes", "0.40", now)}}},
			{Market: model.Market{MarketID: "m2"}, Options: []OptionView{{OptionID: "yes", Latest: tick("m2", "yes", "0.55", now)}}},
		},
	}
	result, fired := synonymMispricePredicate{}.Evaluate(map[string]float64{"threshold": 0.05}, scope)
	if !fired {
		t.Fatalf("expected SYNONYM_MISPRICE to fire on a 0.15 spread across group members")
	}
	if result.WindowStats["laggard_price"] < 0.549 || result.WindowStats["laggard_price"] > 0.551 {
		t.Fatalf("expected laggard_price~=0.55, got %v", result.WindowStats["laggard_price"])
	}
}

func TestCrossMarketMispriceMatchesByLabel(t *testing.T) {
	now := time.Now().UTC()
	scope := Scope{
		Markets: []MarketView{
			{Market: model.Market{MarketID: "m1"}, Options: []OptionView{{OptionID: "o1", Label: "Yes", Latest: tick("m1", "o1", "0.40", now)}}},
			{Market: model.Market{MarketID: "m2"}, Options: []OptionView{{OptionID: "o2", Label: "YES", Latest: tick("m2", "o2", "0.55", now)}}},
		},
	}
	result, fired := crossMarketMispricePredicate{}.Evaluate(map[string]float64{"threshold": 0.05}, scope)
	if !fired {
		t.Fatalf("expected CROSS_MARKET_MISPRICE to fire on a case-insensitive label match with a 0.15 gap")
	}
	if result.SuggestedTrade == nil || len(result.SuggestedTrade.Legs) != 2 {
		t.Fatalf("expected a two-leg trade plan (buy cheap / sell rich)")
	}
}

func TestDutchBookDetectSingleMarketBasket(t *testing.T) {
	now := time.Now().UTC()
	scope := Scope{
		ID: "m1",
		Markets: []MarketView{{
			Market: model.Market{MarketID: "m1"},
			Options: []OptionView{
				{OptionID: "yes", Latest: tick("m1", "yes", "0.45", now)},
				{OptionID: "no", Latest: tick("m1", "no", "0.45", now)},
			},
		}},
	}
	_, fired := dutchBookPredicate{}.Evaluate(map[string]float64{"sum_threshold": 0.995}, scope)
	if !fired {
		t.Fatalf("expected DUTCH_BOOK_DETECT to fire when a single market's basket sums to 0.90")
	}
}

func TestDutchBookDetectGroupBasket(t *testing.T) {
	now := time.Now().UTC()
	scope := Scope{
		ID: "m1",
		Markets: []MarketView{
			{Market: model.Market{MarketID: "m1"}, Options: []OptionView{{OptionID: "a", Latest: tick("m1", "a", "0.40", now)}}},
			{Market: model.Market{MarketID: "m2"}, Options: []OptionView{{OptionID: "a", Latest: tick("m2", "a", "0.45", now)}}},
		},
	}
	_, fired := dutchBookPredicate{}.Evaluate(map[string]float64{"sum_threshold": 0.995}, scope)
	if !fired {
		t.Fatalf("expected DUTCH_BOOK_DETECT to fire on a synonym-group basket summing to 0.85")
	}
}
