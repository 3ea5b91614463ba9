package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// legalTransitions is the closed set of allowed OrderIntent status moves
// (spec.md §3 Invariants).
var legalTransitions = map[model.IntentStatus]map[model.IntentStatus]bool{
	model.IntentSuggested: {
		model.IntentSent:     true,
		model.IntentRejected: true,
		model.IntentExpired:  true,
	},
	model.IntentSent: {
		model.IntentFilled: true,
		model.IntentExpired: true,
	},
}

// ErrIllegalTransition is returned when a caller requests a status move
// outside legalTransitions, or the current row has already moved on
// (lost a compare-and-swap race).
var ErrIllegalTransition = fmt.Errorf("store: illegal or stale intent transition")

// InsertIntent persists a newly suggested intent.
func (s *Store) InsertIntent(ctx context.Context, in model.OrderIntent) error {
	detailJSON, err := json.Marshal(in.Detail)
	if err != nil {
		return fmt.Errorf("marshal intent detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO order_intent (intent_id, signal_id, market_id, side, qty, limit_price, ttl_secs,
			status, policy_id, detail_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, in.IntentID, in.SignalID, in.MarketID, string(in.Side), in.Qty.String(), nullableDecimal(in.LimitPrice),
		in.TTLSecs, string(in.Status), in.PolicyID, string(detailJSON),
		in.CreatedAt.UTC().Format(time.RFC3339Nano), in.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert intent %s: %w", in.IntentID, err)
	}
	return nil
}

// GetIntent fetches one intent by ID.
func (s *Store) GetIntent(ctx context.Context, intentID string) (model.OrderIntent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT intent_id, signal_id, market_id, side, qty, limit_price, ttl_secs, status, policy_id,
			detail_json, created_at, updated_at
		FROM order_intent WHERE intent_id = ?
	`, intentID)
	return scanIntent(row)
}

// CountOpenIntents returns how many intents for marketID are in the
// "suggested" or "sent" state, used by the risk gauntlet's concurrency-cap
// check (spec.md §4.4 step b).
func (s *Store) CountOpenIntents(ctx context.Context, marketID string) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM order_intent WHERE market_id = ? AND status IN (?, ?)
	`, marketID, string(model.IntentSuggested), string(model.IntentSent))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count open intents: %w", err)
	}
	return n, nil
}

// DailyNotionalFilled sums qty*limit_price for intents that reached
// "filled" today in UTC, used by the daily notional cap check (spec.md
// §4.4 step c: "sum of filled notionals today + this intent's notional").
func (s *Store) DailyNotionalFilled(ctx context.Context, day string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT qty, limit_price FROM order_intent
		WHERE status = ? AND substr(updated_at, 1, 10) = ?
	`, string(model.IntentFilled), day)
	if err != nil {
		return decimal.Zero, fmt.Errorf("daily notional filled: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var qtyStr string
		var limitPrice sql.NullString
		if err := rows.Scan(&qtyStr, &limitPrice); err != nil {
			return decimal.Zero, fmt.Errorf("scan daily notional row: %w", err)
		}
		qty, err := decimal.NewFromString(qtyStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse qty: %w", err)
		}
		if !limitPrice.Valid {
			continue
		}
		price, err := decimal.NewFromString(limitPrice.String)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse limit_price: %w", err)
		}
		total = total.Add(qty.Mul(price))
	}
	return total, rows.Err()
}

// TransitionIntent performs a compare-and-swap status move: it only applies
// if the row's current status still matches from and (from, to) is a legal
// transition. mutate may adjust Detail (e.g. attach fill price or risk
// check results) before the row is written back.
func (s *Store) TransitionIntent(ctx context.Context, intentID string, from, to model.IntentStatus, mutate func(*model.IntentDetail)) (model.OrderIntent, error) {
	allowed, ok := legalTransitions[from]
	if !ok || !allowed[to] {
		return model.OrderIntent{}, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.OrderIntent{}, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT intent_id, signal_id, market_id, side, qty, limit_price, ttl_secs, status, policy_id,
			detail_json, created_at, updated_at
		FROM order_intent WHERE intent_id = ? AND status = ?
	`, intentID, string(from))
	in, err := scanIntent(row)
	if err != nil {
		if err == ErrNotFound {
			return model.OrderIntent{}, fmt.Errorf("%w: intent %s no longer in state %s", ErrIllegalTransition, intentID, from)
		}
		return model.OrderIntent{}, err
	}

	if mutate != nil {
		mutate(&in.Detail)
	}
	in.Status = to
	in.UpdatedAt = time.Now().UTC()

	detailJSON, err := json.Marshal(in.Detail)
	if err != nil {
		return model.OrderIntent{}, fmt.Errorf("marshal intent detail: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE order_intent SET status = ?, detail_json = ?, updated_at = ?
		WHERE intent_id = ? AND status = ?
	`, string(to), string(detailJSON), in.UpdatedAt.Format(time.RFC3339Nano), intentID, string(from))
	if err != nil {
		return model.OrderIntent{}, fmt.Errorf("update intent %s: %w", intentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.OrderIntent{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return model.OrderIntent{}, fmt.Errorf("%w: intent %s raced to a different state", ErrIllegalTransition, intentID)
	}
	if err := tx.Commit(); err != nil {
		return model.OrderIntent{}, fmt.Errorf("commit transition: %w", err)
	}
	return in, nil
}

// ExpireStaleSentIntents moves every "sent" intent whose TTL has elapsed
// into "expired", returning the intent IDs affected.
func (s *Store) ExpireStaleSentIntents(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT intent_id, created_at, ttl_secs FROM order_intent WHERE status = ?
	`, string(model.IntentSent))
	if err != nil {
		return nil, fmt.Errorf("list sent intents: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id, createdAt string
		var ttl int
		if err := rows.Scan(&id, &createdAt, &ttl); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sent intent: %w", err)
		}
		created, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			continue
		}
		if now.Sub(created) >= time.Duration(ttl)*time.Second {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expired []string
	for _, id := range stale {
		if _, err := s.TransitionIntent(ctx, id, model.IntentSent, model.IntentExpired, nil); err != nil {
			continue
		}
		expired = append(expired, id)
	}
	return expired, nil
}

func scanIntent(row scanner) (model.OrderIntent, error) {
	var in model.OrderIntent
	var side, status, detailJSON, createdAt, updatedAt, qty string
	var limitPrice sql.NullString
	if err := row.Scan(&in.IntentID, &in.SignalID, &in.MarketID, &side, &qty, &limitPrice, &in.TTLSecs,
		&status, &in.PolicyID, &detailJSON, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return model.OrderIntent{}, ErrNotFound
		}
		return model.OrderIntent{}, fmt.Errorf("scan intent: %w", err)
	}
	in.Side = model.Side(side)
	in.Status = model.IntentStatus(status)

	var err error
	if in.Qty, err = decimal.NewFromString(qty); err != nil {
		return model.OrderIntent{}, fmt.Errorf("parse intent qty: %w", err)
	}
	in.LimitPrice = parseNullableDecimal(limitPrice)

	if err := json.Unmarshal([]byte(detailJSON), &in.Detail); err != nil {
		return model.OrderIntent{}, fmt.Errorf("unmarshal intent detail: %w", err)
	}
	if in.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return model.OrderIntent{}, fmt.Errorf("parse intent created_at: %w", err)
	}
	if in.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return model.OrderIntent{}, fmt.Errorf("parse intent updated_at: %w", err)
	}
	return in, nil
}
