package ruleengine

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
	"github.com/marketpulse/marketpulse-x/internal/store"
)

// OptionView is one option's latest observation plus its rolling window,
// assembled fresh for each evaluation cycle (spec.md §4.3 step 1).
type OptionView struct {
	OptionID string
	Label    string
	Latest   model.Tick
	Window   []model.Tick // newest first
}

// MarketView is one market's options, each with latest+window ticks.
type MarketView struct {
	Market  model.Market
	Options []OptionView
}

// buildMarketView loads the latest tick per option and a lookbackSecs
// window for marketID.
func buildMarketView(ctx context.Context, st *store.Store, marketID string, lookback time.Duration) (MarketView, error) {
	m, err := st.GetMarket(ctx, marketID)
	if err != nil {
		return MarketView{}, err
	}
	opts, err := st.ListOptions(ctx, marketID)
	if err != nil {
		return MarketView{}, err
	}

	mv := MarketView{Market: m}
	since := time.Now().UTC().Add(-lookback)
	for _, o := range opts {
		latest, err := st.LatestTick(ctx, marketID, o.OptionID)
		if err != nil {
			continue // option with no ticks yet this cycle: excluded from the view
		}
		window, err := st.WindowTicks(ctx, marketID, o.OptionID, since)
		if err != nil {
			continue
		}
		mv.Options = append(mv.Options, OptionView{
			OptionID: o.OptionID,
			Label:    o.Label,
			Latest:   latest,
			Window:   window,
		})
	}
	sort.Slice(mv.Options, func(i, j int) bool { return mv.Options[i].OptionID < mv.Options[j].OptionID })
	return mv, nil
}

// SumLatestPrices sums the latest price across every option in the view.
func (mv MarketView) SumLatestPrices() decimal.Decimal {
	sum := decimal.Zero
	for _, o := range mv.Options {
		sum = sum.Add(o.Latest.Price)
	}
	return sum
}

// ticksWithin returns the subset of ov.Window within windowSecs of the
// option's latest tick, newest-first like Window itself. A non-positive
// windowSecs means "no sub-window", i.e. the full Lookback view — used when
// a rule sets window_secs to 0 or below (an absent window_secs gets the
// predicate's own default instead).
func (ov OptionView) ticksWithin(windowSecs float64) []model.Tick {
	if windowSecs <= 0 || len(ov.Window) == 0 {
		return ov.Window
	}
	cutoff := ov.Latest.TS.Add(-time.Duration(windowSecs * float64(time.Second)))
	out := make([]model.Tick, 0, len(ov.Window))
	for _, t := range ov.Window {
		if !t.TS.Before(cutoff) {
			out = append(out, t)
		}
	}
	return out
}

// windowOpenPrice returns the oldest tick's price within windowSecs of the
// option's latest tick (the window boundary sample used by SPIKE_DETECT's
// params.window_secs, spec.md §4.3.2).
func (ov OptionView) windowOpenPrice(windowSecs float64) (decimal.Decimal, bool) {
	ticks := ov.ticksWithin(windowSecs)
	if len(ticks) == 0 {
		return decimal.Zero, false
	}
	oldest := ticks[0]
	for _, t := range ticks {
		if t.TS.Before(oldest.TS) {
			oldest = t
		}
	}
	return oldest.Price, true
}

// windowMeanPrice returns the mean last_price across ticks within
// windowSecs of the option's latest tick.
func (ov OptionView) windowMeanPrice(windowSecs float64) (float64, bool) {
	ticks := ov.ticksWithin(windowSecs)
	if len(ticks) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, t := range ticks {
		f, _ := t.Price.Float64()
		sum += f
	}
	return sum / float64(len(ticks)), true
}

// windowVolumeStats returns the mean and population stddev of Volume
// samples within windowSecs of the option's latest tick, used by
// ENDGAME_SWEEP's z-score.
func (ov OptionView) windowVolumeStats(windowSecs float64) (mean, stddev float64, ok bool) {
	var vals []float64
	for _, t := range ov.ticksWithin(windowSecs) {
		if t.Volume == nil {
			continue
		}
		f, _ := t.Volume.Float64()
		vals = append(vals, f)
	}
	if len(vals) == 0 {
		return 0, 0, false
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	mean = sum / float64(len(vals))
	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	stddev = math.Sqrt(sq / float64(len(vals)))
	return mean, stddev, true
}
