package store

import (
	"context"
	"fmt"
	"log/slog"
)

// ApplyChanges merges a pulled change batch (items and groups) into the
// mirror in a single transaction. A sync cycle's merge is all-or-nothing:
// readers never observe a half-applied pull.
func (s *Store) ApplyChanges(ctx context.Context, items []Item, groups []Group) error {
	if len(items) == 0 && len(groups) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin merge: %w", err)
	}
	defer tx.Rollback()

	if len(groups) > 0 {
		stmt, err := tx.PrepareContext(ctx, sqlUpsertGroup)
		if err != nil {
			return fmt.Errorf("store: prepare merge group: %w", err)
		}

		for i := range groups {
			g := &groups[i]

			_, err := stmt.ExecContext(ctx,
				g.ID, g.UserID, g.Name, g.Icon, g.Color, g.SortIndex,
				toUnixNano(g.CreatedAt), toUnixNano(g.UpdatedAt),
			)
			if err != nil {
				stmt.Close()
				return fmt.Errorf("store: merge group %s: %w", g.ID, err)
			}
		}

		stmt.Close()
	}

	if len(items) > 0 {
		stmt, err := tx.PrepareContext(ctx, sqlUpsertItem)
		if err != nil {
			return fmt.Errorf("store: prepare merge item: %w", err)
		}

		for i := range items {
			it := &items[i]

			_, err := stmt.ExecContext(ctx,
				it.FundCode, it.ID, it.UserID, it.FundName, nullStr(it.GroupID),
				it.SortIndex, toUnixNano(it.CreatedAt), toUnixNano(it.UpdatedAt),
				boolToInt(it.IsDeleted),
			)
			if err != nil {
				stmt.Close()
				return fmt.Errorf("store: merge item %s: %w", it.FundCode, err)
			}
		}

		stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit merge: %w", err)
	}

	s.logger.Debug("remote changes merged",
		slog.Int("items", len(items)),
		slog.Int("groups", len(groups)),
	)

	return nil
}
