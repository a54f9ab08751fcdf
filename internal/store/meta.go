package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Meta keys.
const metaKeyWatermark = "watermark"

// SQL statements for the meta table.
const (
	sqlGetMeta = `SELECT value FROM meta WHERE key = ?`

	sqlSetMeta = `INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`

	sqlDeleteMeta = `DELETE FROM meta WHERE key = ?`
)

// Watermark returns the timestamp of the last successful incremental pull,
// or the zero time when no watermark exists (full resync required).
func (s *Store) Watermark(ctx context.Context) (time.Time, error) {
	var value string

	err := s.db.QueryRowContext(ctx, sqlGetMeta, metaKeyWatermark).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}

	if err != nil {
		return time.Time{}, fmt.Errorf("store: reading watermark: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parsing watermark %q: %w", value, err)
	}

	return t, nil
}

// SetWatermark persists the watermark after a successful sync cycle.
func (s *Store) SetWatermark(ctx context.Context, t time.Time) error {
	value := t.UTC().Format(time.RFC3339Nano)

	if _, err := s.db.ExecContext(ctx, sqlSetMeta, metaKeyWatermark, value); err != nil {
		return fmt.Errorf("store: writing watermark: %w", err)
	}

	return nil
}

// ClearWatermark removes the watermark, forcing the next pull to request
// full state.
func (s *Store) ClearWatermark(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteMeta, metaKeyWatermark); err != nil {
		return fmt.Errorf("store: clearing watermark: %w", err)
	}

	return nil
}
