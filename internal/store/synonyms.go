package store

import (
	"context"
	"fmt"

	"github.com/marketpulse/marketpulse-x/internal/model"
)

// ReplaceSynonymGroup overwrites a synonym group's membership transactionally,
// matching the declarative-document reload model in SPEC_FULL.md §3.
func (s *Store) ReplaceSynonymGroup(ctx context.Context, g model.SynonymGroup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace synonym group: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO synonym_group (group_id, method, title) VALUES (?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET method=excluded.method, title=excluded.title
	`, g.GroupID, string(g.Method), g.Title); err != nil {
		return fmt.Errorf("upsert synonym_group %s: %w", g.GroupID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM synonym_group_member WHERE group_id = ?`, g.GroupID); err != nil {
		return fmt.Errorf("clear synonym_group_member %s: %w", g.GroupID, err)
	}
	for _, marketID := range g.Members {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO synonym_group_member (group_id, market_id) VALUES (?, ?)
		`, g.GroupID, marketID); err != nil {
			return fmt.Errorf("insert synonym_group_member %s/%s: %w", g.GroupID, marketID, err)
		}
	}
	return tx.Commit()
}

// ListSynonymGroups returns every synonym group with its members populated.
func (s *Store) ListSynonymGroups(ctx context.Context) ([]model.SynonymGroup, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT group_id, method, title FROM synonym_group ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("list synonym groups: %w", err)
	}
	defer rows.Close()

	var groups []model.SynonymGroup
	for rows.Next() {
		var g model.SynonymGroup
		var method string
		if err := rows.Scan(&g.GroupID, &method, &g.Title); err != nil {
			return nil, fmt.Errorf("scan synonym group: %w", err)
		}
		g.Method = model.SynonymMethod(method)
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		members, err := s.synonymGroupMembers(ctx, groups[i].GroupID)
		if err != nil {
			return nil, err
		}
		groups[i].Members = members
	}
	return groups, nil
}

func (s *Store) synonymGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id FROM synonym_group_member WHERE group_id = ? ORDER BY market_id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("synonym group members %s: %w", groupID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan synonym member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
