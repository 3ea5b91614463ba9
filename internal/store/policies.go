package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// UpsertExecutionPolicy inserts or updates a policy row.
func (s *Store) UpsertExecutionPolicy(ctx context.Context, p model.ExecutionPolicy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_policy (policy_id, mode, max_notional_per_order, max_concurrent_orders,
			max_daily_notional, slippage_bps, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(policy_id) DO UPDATE SET
			mode=excluded.mode, max_notional_per_order=excluded.max_notional_per_order,
			max_concurrent_orders=excluded.max_concurrent_orders, max_daily_notional=excluded.max_daily_notional,
			slippage_bps=excluded.slippage_bps, enabled=excluded.enabled
	`, p.PolicyID, string(p.Mode), p.MaxNotionalPerOrder.String(), p.MaxConcurrentOrders,
		p.MaxDailyNotional.String(), p.SlippageBps.String(), boolToInt(p.Enabled))
	if err != nil {
		return fmt.Errorf("upsert execution policy %s: %w", p.PolicyID, err)
	}
	return nil
}

// GetExecutionPolicy fetches one policy by ID.
func (s *Store) GetExecutionPolicy(ctx context.Context, policyID string) (model.ExecutionPolicy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT policy_id, mode, max_notional_per_order, max_concurrent_orders, max_daily_notional,
			slippage_bps, enabled
		FROM execution_policy WHERE policy_id = ?
	`, policyID)

	var p model.ExecutionPolicy
	var mode, maxNotional, maxDaily, slippage string
	var enabled int
	if err := row.Scan(&p.PolicyID, &mode, &maxNotional, &p.MaxConcurrentOrders, &maxDaily, &slippage, &enabled); err != nil {
		if err == sql.ErrNoRows {
			return model.ExecutionPolicy{}, ErrNotFound
		}
		return model.ExecutionPolicy{}, fmt.Errorf("get execution policy %s: %w", policyID, err)
	}
	p.Mode = model.ExecutionMode(mode)
	p.Enabled = enabled != 0

	var err error
	if p.MaxNotionalPerOrder, err = decimal.NewFromString(maxNotional); err != nil {
		return model.ExecutionPolicy{}, fmt.Errorf("parse max_notional_per_order: %w", err)
	}
	if p.MaxDailyNotional, err = decimal.NewFromString(maxDaily); err != nil {
		return model.ExecutionPolicy{}, fmt.Errorf("parse max_daily_notional: %w", err)
	}
	if p.SlippageBps, err = decimal.NewFromString(slippage); err != nil {
		return model.ExecutionPolicy{}, fmt.Errorf("parse slippage_bps: %w", err)
	}
	return p, nil
}
