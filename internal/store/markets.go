package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// UpsertMarket inserts or updates a market row keyed by MarketID.
func (s *Store) UpsertMarket(ctx context.Context, m model.Market) error {
	tagsJSON, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO market (market_id, title, status, starts_at, ends_at, tags_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id) DO UPDATE SET
			title=excluded.title, status=excluded.status, starts_at=excluded.starts_at,
			ends_at=excluded.ends_at, tags_json=excluded.tags_json, updated_at=excluded.updated_at
	`, m.MarketID, m.Title, string(m.Status), nullableTime(m.StartsAt), nullableTime(m.EndsAt),
		string(tagsJSON), m.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert market %s: %w", m.MarketID, err)
	}
	return nil
}

// UpsertOption inserts or updates an option row keyed by OptionID.
func (s *Store) UpsertOption(ctx context.Context, o model.Option) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO option (option_id, market_id, label) VALUES (?, ?, ?)
		ON CONFLICT(option_id) DO UPDATE SET market_id=excluded.market_id, label=excluded.label
	`, o.OptionID, o.MarketID, o.Label)
	if err != nil {
		return fmt.Errorf("upsert option %s: %w", o.OptionID, err)
	}
	return nil
}

// GetMarket fetches one market by ID.
func (s *Store) GetMarket(ctx context.Context, marketID string) (model.Market, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT market_id, title, status, starts_at, ends_at, tags_json, updated_at
		FROM market WHERE market_id = ?
	`, marketID)
	return scanMarket(row)
}

// ListMarkets returns every market, ordered by market_id for determinism.
func (s *Store) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, title, status, starts_at, ends_at, tags_json, updated_at
		FROM market ORDER BY market_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	defer rows.Close()

	var out []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListOptions returns every option belonging to a market.
func (s *Store) ListOptions(ctx context.Context, marketID string) ([]model.Option, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT option_id, market_id, label FROM option WHERE market_id = ? ORDER BY option_id
	`, marketID)
	if err != nil {
		return nil, fmt.Errorf("list options for %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []model.Option
	for rows.Next() {
		var o model.Option
		if err := rows.Scan(&o.OptionID, &o.MarketID, &o.Label); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMarket(row scanner) (model.Market, error) {
	var m model.Market
	var status, tagsJSON, updatedAt string
	var startsAt, endsAt sql.NullString
	if err := row.Scan(&m.MarketID, &m.Title, &status, &startsAt, &endsAt, &tagsJSON, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Market{}, ErrNotFound
		}
		return model.Market{}, fmt.Errorf("scan market: %w", err)
	}
	m.Status = model.MarketStatus(status)
	if startsAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, startsAt.String)
		if err == nil {
			m.StartsAt = &t
		}
	}
	if endsAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, endsAt.String)
		if err == nil {
			m.EndsAt = &t
		}
	}
	if err := json.Unmarshal([]byte(tagsJSON), &m.Tags); err != nil {
		return model.Market{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return model.Market{}, fmt.Errorf("parse updated_at: %w", err)
	}
	m.UpdatedAt = t
	return m, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
