package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// UpsertRuleDefinition inserts or updates a rule definition. Callers own
// the version-bump decision (see internal/ruleengine's content-hash debounce).
func (s *Store) UpsertRuleDefinition(ctx context.Context, r model.RuleDefinition) error {
	paramsJSON, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("marshal rule params: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_definition (rule_id, name, type, params_json, enabled, version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_id) DO UPDATE SET
			name=excluded.name, type=excluded.type, params_json=excluded.params_json,
			enabled=excluded.enabled, version=excluded.version
	`, r.RuleID, r.Name, string(r.Type), string(paramsJSON), boolToInt(r.Enabled), r.Version)
	if err != nil {
		return fmt.Errorf("upsert rule %s: %w", r.RuleID, err)
	}
	return nil
}

// GetRuleDefinition fetches one rule by ID.
func (s *Store) GetRuleDefinition(ctx context.Context, ruleID string) (model.RuleDefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT rule_id, name, type, params_json, enabled, version FROM rule_definition WHERE rule_id = ?
	`, ruleID)
	return scanRule(row)
}

// ListEnabledRules returns every enabled rule definition.
func (s *Store) ListEnabledRules(ctx context.Context) ([]model.RuleDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, name, type, params_json, enabled, version FROM rule_definition
		WHERE enabled = 1 ORDER BY rule_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list enabled rules: %w", err)
	}
	defer rows.Close()

	var out []model.RuleDefinition
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRule(row scanner) (model.RuleDefinition, error) {
	var r model.RuleDefinition
	var typ, paramsJSON string
	var enabled int
	if err := row.Scan(&r.RuleID, &r.Name, &typ, &paramsJSON, &enabled, &r.Version); err != nil {
		if err == sql.ErrNoRows {
			return model.RuleDefinition{}, ErrNotFound
		}
		return model.RuleDefinition{}, fmt.Errorf("scan rule: %w", err)
	}
	r.Type = model.RuleType(typ)
	r.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
		return model.RuleDefinition{}, fmt.Errorf("unmarshal rule params: %w", err)
	}
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
