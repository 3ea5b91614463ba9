package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// UpsertRuleKpiDaily writes (or overwrites) one day/rule_type KPI row. The
// Rule Engine computes the EMA updates in-memory and calls this once per
// emitted signal per spec.md §4.3 step 6.
func (s *Store) UpsertRuleKpiDaily(ctx context.Context, k model.RuleKpiDaily) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_kpi_daily (day, rule_type, signals, p1_signals, avg_gap_secs, est_edge_bps)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(day, rule_type) DO UPDATE SET
			signals=excluded.signals, p1_signals=excluded.p1_signals,
			avg_gap_secs=excluded.avg_gap_secs, est_edge_bps=excluded.est_edge_bps
	`, k.Day, string(k.RuleType), k.Signals, k.P1Signals, k.AvgGapSecs, k.EstEdgeBps)
	if err != nil {
		return fmt.Errorf("upsert rule kpi %s/%s: %w", k.Day, k.RuleType, err)
	}
	return nil
}

// GetRuleKpiDaily fetches one day/rule_type row, or the zero value with no
// error if none exists yet (a fresh KPI accumulator).
func (s *Store) GetRuleKpiDaily(ctx context.Context, day string, ruleType model.RuleType) (model.RuleKpiDaily, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT day, rule_type, signals, p1_signals, avg_gap_secs, est_edge_bps
		FROM rule_kpi_daily WHERE day = ? AND rule_type = ?
	`, day, string(ruleType))

	var k model.RuleKpiDaily
	var typ string
	if err := row.Scan(&k.Day, &typ, &k.Signals, &k.P1Signals, &k.AvgGapSecs, &k.EstEdgeBps); err != nil {
		if err == sql.ErrNoRows {
			return model.RuleKpiDaily{Day: day, RuleType: ruleType}, nil
		}
		return model.RuleKpiDaily{}, fmt.Errorf("get rule kpi %s/%s: %w", day, ruleType, err)
	}
	k.RuleType = model.RuleType(typ)
	return k, nil
}
