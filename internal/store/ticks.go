package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// InsertTick appends a tick. Duplicate (market_id, option_id, ts) primary
// keys are ignored rather than erroring, satisfying the dedup invariant in
// spec.md §4.2 when a polling cycle re-observes the same timestamp.
func (s *Store) InsertTick(ctx context.Context, t model.Tick) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tick (market_id, option_id, ts, price, volume, best_bid, best_ask, liquidity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market_id, option_id, ts) DO NOTHING
	`, t.MarketID, t.OptionID, t.TS.UTC().Format(time.RFC3339Nano), t.Price.String(),
		nullableDecimal(t.Volume), nullableDecimal(t.BestBid), nullableDecimal(t.BestAsk), nullableDecimal(t.Liquidity))
	if err != nil {
		return fmt.Errorf("insert tick %s/%s@%s: %w", t.MarketID, t.OptionID, t.TS, err)
	}
	return nil
}

// LatestTick returns the most recent tick for (marketID, optionID), or
// ErrNotFound if none exists.
func (s *Store) LatestTick(ctx context.Context, marketID, optionID string) (model.Tick, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT market_id, option_id, ts, price, volume, best_bid, best_ask, liquidity
		FROM tick WHERE market_id = ? AND option_id = ?
		ORDER BY ts DESC LIMIT 1
	`, marketID, optionID)
	return scanTick(row)
}

// WindowTicks returns ticks for (marketID, optionID) with ts >= since,
// newest first.
func (s *Store) WindowTicks(ctx context.Context, marketID, optionID string, since time.Time) ([]model.Tick, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, option_id, ts, price, volume, best_bid, best_ask, liquidity
		FROM tick WHERE market_id = ? AND option_id = ? AND ts >= ?
		ORDER BY ts DESC
	`, marketID, optionID, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("window ticks %s/%s: %w", marketID, optionID, err)
	}
	defer rows.Close()

	var out []model.Tick
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LatestTicksForMarket returns the most recent tick per option in a market
// in one query. The Rule Engine's view assembly does not use it; it reads
// LatestTick and WindowTicks per option instead.
func (s *Store) LatestTicksForMarket(ctx context.Context, marketID string) ([]model.Tick, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.market_id, t.option_id, t.ts, t.price, t.volume, t.best_bid, t.best_ask, t.liquidity
		FROM tick t
		INNER JOIN (
			SELECT option_id, MAX(ts) AS max_ts FROM tick WHERE market_id = ? GROUP BY option_id
		) latest ON latest.option_id = t.option_id AND latest.max_ts = t.ts
		WHERE t.market_id = ?
	`, marketID, marketID)
	if err != nil {
		return nil, fmt.Errorf("latest ticks for market %s: %w", marketID, err)
	}
	defer rows.Close()

	var out []model.Tick
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTick(row scanner) (model.Tick, error) {
	var t model.Tick
	var ts, price string
	var volume, bestBid, bestAsk, liquidity sql.NullString
	if err := row.Scan(&t.MarketID, &t.OptionID, &ts, &price, &volume, &bestBid, &bestAsk, &liquidity); err != nil {
		if err == sql.ErrNoRows {
			return model.Tick{}, ErrNotFound
		}
		return model.Tick{}, fmt.Errorf("scan tick: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return model.Tick{}, fmt.Errorf("parse tick ts: %w", err)
	}
	t.TS = parsed
	p, err := decimal.NewFromString(price)
	if err != nil {
		return model.Tick{}, fmt.Errorf("parse tick price: %w", err)
	}
	t.Price = p
	t.Volume = parseNullableDecimal(volume)
	t.BestBid = parseNullableDecimal(bestBid)
	t.BestAsk = parseNullableDecimal(bestAsk)
	t.Liquidity = parseNullableDecimal(liquidity)
	return t, nil
}

func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullableDecimal(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid {
		return nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil
	}
	return &d
}
