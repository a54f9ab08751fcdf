// Package store persists the local watchlist mirror, the pending operation
// log, and the sync watermark in an embedded SQLite database. It is the
// durable half of the offline-first design: the mirror serves cold-start
// and offline reads, the operation log survives process restarts, and the
// watermark drives incremental pulls.
//
// The sync engine is the sole writer. The database uses WAL mode with a
// single connection so readers never observe a half-applied write.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Item is one watched instrument in the local mirror.
type Item struct {
	ID        string
	UserID    string
	FundCode  string
	FundName  string
	GroupID   *string
	SortIndex int
	CreatedAt time.Time
	UpdatedAt time.Time
	IsDeleted bool
}

// Group is a user-defined watchlist folder in the local mirror.
type Group struct {
	ID        string
	UserID    string
	Name      string
	Icon      string
	Color     string
	SortIndex int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Operation is one queued mutation awaiting server confirmation.
type Operation struct {
	ID              string
	Kind            string // ADD, REMOVE, UPDATE, REORDER, MOVE_GROUP
	FundCode        string
	FundName        *string
	GroupID         *string
	SortIndex       *int
	ClientTimestamp time.Time
	DeviceID        string
}

// OpAdd is the operation kind that may create a placeholder mirror item.
const OpAdd = "ADD"

// Store is the sole writer to the watchlist state database.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens the SQLite database at dbPath, runs migrations, and returns a
// ready-to-use Store. Use ":memory:" for tests. The database uses WAL mode
// with synchronous=FULL for crash-safe durability.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
			return nil, fmt.Errorf("store: creating data directory: %w", err)
		}
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("watchlist store ready", slog.String("db_path", dbPath))

	return &Store{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- scanning helpers shared by item queries ---

// toUnixNano converts a time to Unix nanoseconds, 0 for the zero time.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

// fromUnixNano converts Unix nanoseconds back to a time, zero time for 0.
func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}

	return time.Unix(0, n).UTC()
}

// nullStr converts a *string to sql.NullString.
func nullStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: *s, Valid: true}
}

// strPtr converts a sql.NullString back to *string.
func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}

	s := ns.String

	return &s
}
