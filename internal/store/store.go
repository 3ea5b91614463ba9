// Package store persists the MarketPulse-X domain model in SQLite via a
// versioned, additive migration runner.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps a *sql.DB and exposes per-entity accessors. It has no
// package-level state; every caller constructs its own Store.
type Store struct {
	db *sql.DB
}

// Open opens (and, if needed, creates) a SQLite database at path and runs
// any pending migrations. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer avoids SQLITE_BUSY under WAL
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for callers that need a raw transaction.
// The store's own writes, including TransitionIntent's compare-and-swap,
// use the handle internally and do not go through DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

type migration struct {
	version int
	desc    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		desc:    "initial schema",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS market (
				market_id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				status TEXT NOT NULL,
				starts_at TEXT,
				ends_at TEXT,
				tags_json TEXT NOT NULL DEFAULT '[]',
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS option (
				option_id TEXT PRIMARY KEY,
				market_id TEXT NOT NULL REFERENCES market(market_id),
				label TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_option_market ON option(market_id)`,
			`CREATE TABLE IF NOT EXISTS tick (
				market_id TEXT NOT NULL,
				option_id TEXT NOT NULL,
				ts TEXT NOT NULL,
				price TEXT NOT NULL,
				volume TEXT,
				best_bid TEXT,
				best_ask TEXT,
				liquidity TEXT,
				PRIMARY KEY (market_id, option_id, ts)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_tick_option_ts ON tick(market_id, option_id, ts DESC)`,
			`CREATE TABLE IF NOT EXISTS rule_definition (
				rule_id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				type TEXT NOT NULL,
				params_json TEXT NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1,
				version INTEGER NOT NULL DEFAULT 1
			)`,
			`CREATE TABLE IF NOT EXISTS signal (
				signal_id TEXT PRIMARY KEY,
				market_id TEXT NOT NULL,
				option_id TEXT,
				rule_id TEXT NOT NULL,
				level TEXT NOT NULL,
				score REAL NOT NULL,
				edge_score REAL NOT NULL,
				payload_json TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_signal_rule_market_created ON signal(rule_id, market_id, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_signal_created ON signal(created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS synonym_group (
				group_id TEXT PRIMARY KEY,
				method TEXT NOT NULL,
				title TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS synonym_group_member (
				group_id TEXT NOT NULL REFERENCES synonym_group(group_id),
				market_id TEXT NOT NULL,
				PRIMARY KEY (group_id, market_id)
			)`,
			`CREATE TABLE IF NOT EXISTS execution_policy (
				policy_id TEXT PRIMARY KEY,
				mode TEXT NOT NULL,
				max_notional_per_order TEXT NOT NULL,
				max_concurrent_orders INTEGER NOT NULL,
				max_daily_notional TEXT NOT NULL,
				slippage_bps TEXT NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1
			)`,
			`CREATE TABLE IF NOT EXISTS order_intent (
				intent_id TEXT PRIMARY KEY,
				signal_id TEXT NOT NULL,
				market_id TEXT NOT NULL,
				side TEXT NOT NULL,
				qty TEXT NOT NULL,
				limit_price TEXT,
				ttl_secs INTEGER NOT NULL,
				status TEXT NOT NULL,
				policy_id TEXT NOT NULL,
				detail_json TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_intent_status ON order_intent(status)`,
			`CREATE INDEX IF NOT EXISTS idx_intent_market_created ON order_intent(market_id, created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS rule_kpi_daily (
				day TEXT NOT NULL,
				rule_type TEXT NOT NULL,
				signals INTEGER NOT NULL DEFAULT 0,
				p1_signals INTEGER NOT NULL DEFAULT 0,
				avg_gap_secs REAL NOT NULL DEFAULT 0,
				est_edge_bps REAL NOT NULL DEFAULT 0,
				PRIMARY KEY (day, rule_type)
			)`,
			`CREATE TABLE IF NOT EXISTS audit_log (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				at TEXT NOT NULL,
				actor TEXT NOT NULL,
				action TEXT NOT NULL,
				entity_type TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				detail_json TEXT NOT NULL DEFAULT '{}'
			)`,
			`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id)`,
		},
	},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current := 0
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.version, m.desc, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
