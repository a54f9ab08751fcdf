package store

import (
	"context"
	"fmt"
	"log/slog"
)

// SQL statements for mirror group operations.
const (
	sqlGroupColumns = `id, user_id, name, icon, color, sort_index, created_at, updated_at`

	sqlUpsertGroup = `INSERT INTO groups (` + sqlGroupColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 user_id    = excluded.user_id,
		 name       = excluded.name,
		 icon       = excluded.icon,
		 color      = excluded.color,
		 sort_index = excluded.sort_index,
		 updated_at = excluded.updated_at`

	sqlAllGroups = `SELECT ` + sqlGroupColumns + ` FROM groups ORDER BY sort_index, id`

	sqlDeleteGroup = `DELETE FROM groups WHERE id = ?`

	sqlClearGroupMembership = `UPDATE items SET group_id = NULL, updated_at = ?
		WHERE group_id = ?`
)

// UpsertGroups inserts or updates mirror groups by id in one transaction.
func (s *Store) UpsertGroups(ctx context.Context, groups []Group) error {
	if len(groups) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin upsert groups: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqlUpsertGroup)
	if err != nil {
		return fmt.Errorf("store: prepare upsert group: %w", err)
	}
	defer stmt.Close()

	for i := range groups {
		g := &groups[i]

		_, err := stmt.ExecContext(ctx,
			g.ID, g.UserID, g.Name, g.Icon, g.Color, g.SortIndex,
			toUnixNano(g.CreatedAt), toUnixNano(g.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("store: upsert group %s: %w", g.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit upsert groups: %w", err)
	}

	s.logger.Debug("groups upserted", slog.Int("count", len(groups)))

	return nil
}

// AllGroups returns every mirror group sorted by sort index.
func (s *Store) AllGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, sqlAllGroups)
	if err != nil {
		return nil, fmt.Errorf("store: querying groups: %w", err)
	}
	defer rows.Close()

	var groups []Group

	for rows.Next() {
		var (
			g         Group
			createdAt int64
			updatedAt int64
		)

		err := rows.Scan(&g.ID, &g.UserID, &g.Name, &g.Icon, &g.Color,
			&g.SortIndex, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("store: scanning group row: %w", err)
		}

		g.CreatedAt = fromUnixNano(createdAt)
		g.UpdatedAt = fromUnixNano(updatedAt)
		groups = append(groups, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating group rows: %w", err)
	}

	return groups, nil
}

// DeleteGroup removes a mirror group and detaches its items, in one
// transaction. Called when the server confirms the deletion.
func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin delete group: %w", err)
	}
	defer tx.Rollback()

	now := toUnixNano(s.nowFunc())

	if _, err := tx.ExecContext(ctx, sqlClearGroupMembership, now, id); err != nil {
		return fmt.Errorf("store: clearing group %s membership: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, sqlDeleteGroup, id); err != nil {
		return fmt.Errorf("store: delete group %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit delete group: %w", err)
	}

	return nil
}
