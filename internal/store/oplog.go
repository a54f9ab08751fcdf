package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// SQL statements for the pending operation log.
const (
	sqlInsertOp = `INSERT INTO pending_operations
		(id, fund_code, op_type, fund_name, group_id, sort_index, client_ts, device_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	// rowid tiebreak keeps replay deterministic for equal client timestamps.
	sqlPendingOps = `SELECT id, fund_code, op_type, fund_name, group_id,
		sort_index, client_ts, device_id
		FROM pending_operations ORDER BY client_ts, rowid`

	sqlAckOps = `DELETE FROM pending_operations WHERE fund_code = ?`

	sqlClearOps = `DELETE FROM pending_operations`

	sqlCountOps = `SELECT COUNT(*) FROM pending_operations`

	sqlPendingCodes = `SELECT DISTINCT fund_code FROM pending_operations ORDER BY fund_code`

	sqlHasPendingForCode = `SELECT COUNT(*) FROM pending_operations WHERE fund_code = ?`
)

// AppendOperation persists a queued mutation. For an ADD whose fund code
// has no mirror row yet, a placeholder item is inserted first so the
// optimistic UI has something to render. Both writes happen in one
// transaction.
func (s *Store) AppendOperation(ctx context.Context, op Operation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin append operation: %w", err)
	}
	defer tx.Rollback()

	if op.Kind == OpAdd {
		if err := s.insertPlaceholder(ctx, tx, &op); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, sqlInsertOp,
		op.ID, op.FundCode, op.Kind, nullStr(op.FundName), nullStr(op.GroupID),
		nullInt(op.SortIndex), op.ClientTimestamp.UnixNano(), op.DeviceID,
	)
	if err != nil {
		return fmt.Errorf("store: append operation %s for %s: %w", op.Kind, op.FundCode, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit append operation: %w", err)
	}

	s.logger.Debug("operation queued",
		slog.String("kind", op.Kind),
		slog.String("fund_code", op.FundCode),
	)

	return nil
}

// insertPlaceholder creates a minimal mirror item for an optimistic ADD if
// the code is unknown. An existing row (including soft-deleted) is revived
// by the engine's optimistic upsert, not here.
func (s *Store) insertPlaceholder(ctx context.Context, tx *sql.Tx, op *Operation) error {
	var count int

	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE fund_code = ?`, op.FundCode).Scan(&count)
	if err != nil {
		return fmt.Errorf("store: checking placeholder for %s: %w", op.FundCode, err)
	}

	if count > 0 {
		return nil
	}

	name := ""
	if op.FundName != nil {
		name = *op.FundName
	}

	sortIndex := 0
	if op.SortIndex != nil {
		sortIndex = *op.SortIndex
	}

	now := op.ClientTimestamp.UnixNano()

	_, err = tx.ExecContext(ctx, sqlUpsertItem,
		op.FundCode, "", "", name, nullStr(op.GroupID), sortIndex, now, now, 0)
	if err != nil {
		return fmt.Errorf("store: inserting placeholder for %s: %w", op.FundCode, err)
	}

	return nil
}

// PendingOperations returns every queued operation ordered by client
// timestamp ascending, with insertion order as tiebreak.
func (s *Store) PendingOperations(ctx context.Context) ([]Operation, error) {
	rows, err := s.db.QueryContext(ctx, sqlPendingOps)
	if err != nil {
		return nil, fmt.Errorf("store: querying pending operations: %w", err)
	}
	defer rows.Close()

	var ops []Operation

	for rows.Next() {
		var (
			op        Operation
			fundName  sql.NullString
			groupID   sql.NullString
			sortIndex sql.NullInt64
			clientTS  int64
		)

		err := rows.Scan(&op.ID, &op.FundCode, &op.Kind, &fundName, &groupID,
			&sortIndex, &clientTS, &op.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("store: scanning operation row: %w", err)
		}

		op.FundName = strPtr(fundName)
		op.GroupID = strPtr(groupID)

		if sortIndex.Valid {
			idx := int(sortIndex.Int64)
			op.SortIndex = &idx
		}

		op.ClientTimestamp = fromUnixNano(clientTS)
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating operation rows: %w", err)
	}

	return ops, nil
}

// Acknowledge clears all pending operations for one fund code. Called only
// after the server confirms that code's operations succeeded.
func (s *Store) Acknowledge(ctx context.Context, code string) error {
	result, err := s.db.ExecContext(ctx, sqlAckOps, code)
	if err != nil {
		return fmt.Errorf("store: acknowledging %s: %w", code, err)
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("operations acknowledged",
			slog.String("fund_code", code),
			slog.Int64("count", n),
		)
	}

	return nil
}

// ClearOperations empties the log. Used for forced full resync or logout.
func (s *Store) ClearOperations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqlClearOps); err != nil {
		return fmt.Errorf("store: clearing operations: %w", err)
	}

	return nil
}

// PendingCount returns the number of queued operations.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int

	if err := s.db.QueryRowContext(ctx, sqlCountOps).Scan(&count); err != nil {
		return 0, fmt.Errorf("store: counting pending operations: %w", err)
	}

	return count, nil
}

// PendingCodes returns the distinct fund codes with queued operations.
func (s *Store) PendingCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, sqlPendingCodes)
	if err != nil {
		return nil, fmt.Errorf("store: querying pending codes: %w", err)
	}
	defer rows.Close()

	var codes []string

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("store: scanning pending code: %w", err)
		}

		codes = append(codes, code)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating pending codes: %w", err)
	}

	return codes, nil
}

// HasPending reports whether a fund code has queued operations.
func (s *Store) HasPending(ctx context.Context, code string) (bool, error) {
	var count int

	if err := s.db.QueryRowContext(ctx, sqlHasPendingForCode, code).Scan(&count); err != nil {
		return false, fmt.Errorf("store: checking pending for %s: %w", code, err)
	}

	return count > 0, nil
}

// nullInt converts a *int to sql.NullInt64.
func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: int64(*n), Valid: true}
}
