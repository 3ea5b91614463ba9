package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// InsertAuditLog appends an audit row. actor is "system" for Ingestion/Rule
// Engine writes and "operator" for Intent Pipeline confirmations, per
// SPEC_FULL.md §3.
func (s *Store) InsertAuditLog(ctx context.Context, a model.AuditLog) error {
	detailJSON, err := json.Marshal(a.Detail)
	if err != nil {
		return fmt.Errorf("marshal audit detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (at, actor, action, entity_type, entity_id, detail_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.At.UTC().Format(time.RFC3339Nano), a.Actor, a.Action, a.EntityType, a.EntityID, string(detailJSON))
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// AuditLogForEntity returns every audit row for one entity, oldest first.
func (s *Store) AuditLogForEntity(ctx context.Context, entityType, entityID string) ([]model.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, at, actor, action, entity_type, entity_id, detail_json
		FROM audit_log WHERE entity_type = ? AND entity_id = ? ORDER BY id ASC
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("audit log for entity %s/%s: %w", entityType, entityID, err)
	}
	defer rows.Close()

	var out []model.AuditLog
	for rows.Next() {
		var a model.AuditLog
		var at, detailJSON string
		if err := rows.Scan(&a.ID, &at, &a.Actor, &a.Action, &a.EntityType, &a.EntityID, &detailJSON); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse audit log at: %w", err)
		}
		a.At = t
		if err := json.Unmarshal([]byte(detailJSON), &a.Detail); err != nil {
			return nil, fmt.Errorf("unmarshal audit detail: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
