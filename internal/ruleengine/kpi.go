package ruleengine

import (
	"context"
	"time"

	"github.com/marketpulse/marketpulse-x/internal/model"
	"github.com/marketpulse/marketpulse-x/internal/store"
)

// kpiEMAAlpha is the smoothing factor for the rolling avg_gap/est_edge_bps
// updates (spec.md §4.3 step 6: "exponentially-moving").
const kpiEMAAlpha = 0.2

// updateKPI loads (or creates) today's (day, rule_type) KPI row, applies
// the signal's contribution, and writes it back.
func updateKPI(ctx context.Context, st *store.Store, ruleType model.RuleType, level model.Level, edgeScore float64, gapSecs float64, now time.Time) error {
	day := now.UTC().Format("2006-01-02")
	k, err := st.GetRuleKpiDaily(ctx, day, ruleType)
	if err != nil {
		return err
	}

	k.Day = day
	k.RuleType = ruleType
	k.Signals++
	if level == model.LevelP1 {
		k.P1Signals++
	}

	edgeBps := edgeScore * 10000
	if k.Signals == 1 {
		k.AvgGapSecs = gapSecs
		k.EstEdgeBps = edgeBps
	} else {
		k.AvgGapSecs = kpiEMAAlpha*gapSecs + (1-kpiEMAAlpha)*k.AvgGapSecs
		k.EstEdgeBps = kpiEMAAlpha*edgeBps + (1-kpiEMAAlpha)*k.EstEdgeBps
	}

	return st.UpsertRuleKpiDaily(ctx, k)
}
