package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// SQL statements for mirror item operations.
const (
	sqlItemColumns = `fund_code, id, user_id, fund_name, group_id,
		sort_index, created_at, updated_at, is_deleted`

	sqlUpsertItem = `INSERT INTO items (` + sqlItemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fund_code) DO UPDATE SET
		 id         = excluded.id,
		 user_id    = excluded.user_id,
		 fund_name  = excluded.fund_name,
		 group_id   = excluded.group_id,
		 sort_index = excluded.sort_index,
		 updated_at = excluded.updated_at,
		 is_deleted = excluded.is_deleted`

	sqlGetItem = `SELECT ` + sqlItemColumns + ` FROM items WHERE fund_code = ?`

	sqlAllItems = `SELECT ` + sqlItemColumns + ` FROM items ORDER BY sort_index, fund_code`

	sqlActiveItems = `SELECT ` + sqlItemColumns + ` FROM items
		WHERE is_deleted = 0 ORDER BY sort_index, fund_code`

	sqlItemsInGroup = `SELECT ` + sqlItemColumns + ` FROM items
		WHERE group_id = ? AND is_deleted = 0 ORDER BY sort_index, fund_code`

	sqlItemsUngrouped = `SELECT ` + sqlItemColumns + ` FROM items
		WHERE group_id IS NULL AND is_deleted = 0 ORDER BY sort_index, fund_code`

	sqlDeleteItem = `DELETE FROM items WHERE fund_code = ?`

	sqlMarkItemDeleted = `UPDATE items
		SET is_deleted = 1, updated_at = ? WHERE fund_code = ?`

	sqlUpdateItemGroup = `UPDATE items
		SET group_id = ?, updated_at = ? WHERE fund_code = ?`

	sqlUpdateItemIndex = `UPDATE items
		SET sort_index = ?, updated_at = ? WHERE fund_code = ?`

	sqlMaxSortIndex = `SELECT COALESCE(MAX(sort_index), -1) FROM items WHERE is_deleted = 0`
)

// UpsertItems inserts or updates mirror items by fund code in a single
// transaction, so a crash mid-batch leaves no partial merge visible.
func (s *Store) UpsertItems(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin upsert items: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, sqlUpsertItem)
	if err != nil {
		return fmt.Errorf("store: prepare upsert item: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		it := &items[i]

		_, err := stmt.ExecContext(ctx,
			it.FundCode, it.ID, it.UserID, it.FundName, nullStr(it.GroupID),
			it.SortIndex, toUnixNano(it.CreatedAt), toUnixNano(it.UpdatedAt),
			boolToInt(it.IsDeleted),
		)
		if err != nil {
			return fmt.Errorf("store: upsert item %s: %w", it.FundCode, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit upsert items: %w", err)
	}

	s.logger.Debug("items upserted", slog.Int("count", len(items)))

	return nil
}

// GetItem returns the mirror item for the given fund code, or (nil, nil)
// if no row exists. Callers use the nil item to distinguish "unknown code"
// from "known code".
func (s *Store) GetItem(ctx context.Context, code string) (*Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, sqlGetItem, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get item %s: %w", code, err)
	}

	return item, nil
}

// AllItems returns every mirror item sorted by sort index. When activeOnly
// is set, soft-deleted items are excluded.
func (s *Store) AllItems(ctx context.Context, activeOnly bool) ([]Item, error) {
	query := sqlAllItems
	if activeOnly {
		query = sqlActiveItems
	}

	return s.queryItems(ctx, query)
}

// ItemsInGroup returns active items in one group (nil groupID means
// ungrouped), sorted by sort index.
func (s *Store) ItemsInGroup(ctx context.Context, groupID *string) ([]Item, error) {
	if groupID == nil {
		return s.queryItems(ctx, sqlItemsUngrouped)
	}

	return s.queryItems(ctx, sqlItemsInGroup, *groupID)
}

// DeleteItem hard-removes a mirror row. Used when the server confirms a
// deletion; soft-delete bookkeeping lives on the item's flag.
func (s *Store) DeleteItem(ctx context.Context, code string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteItem, code); err != nil {
		return fmt.Errorf("store: delete item %s: %w", code, err)
	}

	return nil
}

// MarkItemDeleted soft-deletes a mirror row (optimistic REMOVE).
func (s *Store) MarkItemDeleted(ctx context.Context, code string) error {
	now := toUnixNano(s.nowFunc())

	if _, err := s.db.ExecContext(ctx, sqlMarkItemDeleted, now, code); err != nil {
		return fmt.Errorf("store: mark item %s deleted: %w", code, err)
	}

	return nil
}

// SetItemGroup moves a mirror row to another group (optimistic MOVE_GROUP).
func (s *Store) SetItemGroup(ctx context.Context, code string, groupID *string) error {
	now := toUnixNano(s.nowFunc())

	if _, err := s.db.ExecContext(ctx, sqlUpdateItemGroup, nullStr(groupID), now, code); err != nil {
		return fmt.Errorf("store: set item %s group: %w", code, err)
	}

	return nil
}

// SetItemSortIndex reorders a mirror row (optimistic REORDER).
func (s *Store) SetItemSortIndex(ctx context.Context, code string, sortIndex int) error {
	now := toUnixNano(s.nowFunc())

	if _, err := s.db.ExecContext(ctx, sqlUpdateItemIndex, sortIndex, now, code); err != nil {
		return fmt.Errorf("store: set item %s sort index: %w", code, err)
	}

	return nil
}

// MaxSortIndex returns the highest sort index among active items, or -1
// when the mirror is empty. Used to place optimistic ADDs at the end.
func (s *Store) MaxSortIndex(ctx context.Context) (int, error) {
	var max int

	if err := s.db.QueryRowContext(ctx, sqlMaxSortIndex).Scan(&max); err != nil {
		return 0, fmt.Errorf("store: max sort index: %w", err)
	}

	return max, nil
}

// queryItems runs an item query and scans the result set.
func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying items: %w", err)
	}
	defer rows.Close()

	var items []Item

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scanning item row: %w", err)
		}

		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating item rows: %w", err)
	}

	return items, nil
}

// scanItem scans a full item row. Works for both *sql.Row and *sql.Rows.
func scanItem(row interface{ Scan(...any) error }) (*Item, error) {
	var (
		it        Item
		groupID   sql.NullString
		createdAt int64
		updatedAt int64
		deleted   int
	)

	err := row.Scan(
		&it.FundCode, &it.ID, &it.UserID, &it.FundName, &groupID,
		&it.SortIndex, &createdAt, &updatedAt, &deleted,
	)
	if err != nil {
		return nil, err
	}

	it.GroupID = strPtr(groupID)
	it.CreatedAt = fromUnixNano(createdAt)
	it.UpdatedAt = fromUnixNano(updatedAt)
	it.IsDeleted = deleted != 0

	return &it, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
