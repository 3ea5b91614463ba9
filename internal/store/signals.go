package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// InsertSignal persists a newly emitted signal.
func (s *Store) InsertSignal(ctx context.Context, sig model.Signal) error {
	payloadJSON, err := json.Marshal(sig.Payload)
	if err != nil {
		return fmt.Errorf("marshal signal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO signal (signal_id, market_id, option_id, rule_id, level, score, edge_score, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sig.SignalID, sig.MarketID, nullableString(sig.OptionID), sig.RuleID, string(sig.Level),
		sig.Score, sig.EdgeScore, string(payloadJSON), sig.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert signal %s: %w", sig.SignalID, err)
	}
	return nil
}

// LastSignalAt returns the created_at of the most recent signal for
// (ruleID, marketID), used for cooldown enforcement (spec.md §4.3). Returns
// the zero time and ErrNotFound if none exists.
func (s *Store) LastSignalAt(ctx context.Context, ruleID, marketID string) (time.Time, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM signal WHERE rule_id = ? AND market_id = ?
		ORDER BY created_at DESC LIMIT 1
	`, ruleID, marketID)
	var ts string
	if err := row.Scan(&ts); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, fmt.Errorf("last signal at: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last signal ts: %w", err)
	}
	return t, nil
}

// GetSignal fetches one signal by ID.
func (s *Store) GetSignal(ctx context.Context, signalID string) (model.Signal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT signal_id, market_id, option_id, rule_id, level, score, edge_score, payload_json, created_at
		FROM signal WHERE signal_id = ?
	`, signalID)
	return scanSignal(row)
}

// RecentSignals returns up to limit signals, newest first.
func (s *Store) RecentSignals(ctx context.Context, limit int) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT signal_id, market_id, option_id, rule_id, level, score, edge_score, payload_json, created_at
		FROM signal ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func scanSignal(row scanner) (model.Signal, error) {
	var sig model.Signal
	var level, payloadJSON, createdAt string
	var optionID sql.NullString
	if err := row.Scan(&sig.SignalID, &sig.MarketID, &optionID, &sig.RuleID, &level,
		&sig.Score, &sig.EdgeScore, &payloadJSON, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return model.Signal{}, ErrNotFound
		}
		return model.Signal{}, fmt.Errorf("scan signal: %w", err)
	}
	sig.Level = model.Level(level)
	if optionID.Valid {
		v := optionID.String
		sig.OptionID = &v
	}
	if err := json.Unmarshal([]byte(payloadJSON), &sig.Payload); err != nil {
		return model.Signal{}, fmt.Errorf("unmarshal signal payload: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Signal{}, fmt.Errorf("parse signal created_at: %w", err)
	}
	sig.CreatedAt = t
	return sig, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
