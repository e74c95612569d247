// Copyright 2026 The Lapse Authors
// SPDX-License-Identifier: Apache-2.0

// Package index maintains the optional SQLite catalog of saved
// captures: one row per screenshot, queryable over IPC and pruned
// when the retention sweep archives a day folder. The tracker works
// without it; disabling the index only disables history queries.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/lapse-project/lapse/lib/sqlitepool"
)

// dayFormat matches the capture folder naming, so index rows and day
// folders describe the same partition of time.
const dayFormat = "2006-01-02"

const schema = `
CREATE TABLE IF NOT EXISTS captures (
	id          INTEGER PRIMARY KEY,
	path        TEXT NOT NULL,
	surface     TEXT NOT NULL,
	captured_at INTEGER NOT NULL,
	day         TEXT NOT NULL,
	size_bytes  INTEGER NOT NULL,
	frame_hash  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_captures_time ON captures(captured_at);
CREATE INDEX IF NOT EXISTS idx_captures_day ON captures(day);
CREATE INDEX IF NOT EXISTS idx_captures_surface ON captures(surface, captured_at);
`

// Entry is one recorded capture.
type Entry struct {
	Path       string
	Surface    string
	CapturedAt time.Time
	SizeBytes  int64
	FrameHash  string
}

// Config holds the parameters for Open.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of connections in the pool. Zero picks
	// the pool's default.
	PoolSize int

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger
}

// Store is the capture index. Safe for concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens or creates the index database and applies its schema.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("capture index: %w", err)
	}

	store := &Store{pool: pool, logger: logger}
	if err := store.ensureSchema(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("capture index: %w", err)
	}
	return store, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

func (s *Store) ensureSchema() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Record inserts one capture. The day column is derived from
// CapturedAt with the same formatting the capture writer uses for
// folder names.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("capture index: record: %w", err)
	}
	defer s.pool.Put(conn)

	return sqlitex.Execute(conn, `INSERT INTO captures
		(path, surface, captured_at, day, size_bytes, frame_hash)
		VALUES (?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			entry.Path,
			entry.Surface,
			entry.CapturedAt.UnixNano(),
			entry.CapturedAt.Format(dayFormat),
			entry.SizeBytes,
			entry.FrameHash,
		},
	})
}

// Filter specifies the criteria for Recent. All fields are optional;
// zero-valued fields are not applied.
type Filter struct {
	// Surface restricts results to one capture surface.
	Surface string

	// Day restricts results to one capture day (2006-01-02 form).
	Day string

	// Since restricts results to captures at or after this time.
	Since time.Time

	// Limit is the maximum number of entries to return (default 100).
	Limit int
}

// Recent returns captures matching the filter, newest first.
func (s *Store) Recent(ctx context.Context, filter Filter) ([]Entry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture index: recent: %w", err)
	}
	defer s.pool.Put(conn)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var conditions []string
	var args []any
	if filter.Surface != "" {
		conditions = append(conditions, "surface = ?")
		args = append(args, filter.Surface)
	}
	if filter.Day != "" {
		conditions = append(conditions, "day = ?")
		args = append(args, filter.Day)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "captured_at >= ?")
		args = append(args, filter.Since.UnixNano())
	}

	query := "SELECT path, surface, captured_at, size_bytes, frame_hash FROM captures"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY captured_at DESC LIMIT ?"
	args = append(args, limit)

	var entries []Entry
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entries = append(entries, Entry{
				Path:       stmt.ColumnText(0),
				Surface:    stmt.ColumnText(1),
				CapturedAt: time.Unix(0, stmt.ColumnInt64(2)),
				SizeBytes:  stmt.ColumnInt64(3),
				FrameHash:  stmt.ColumnText(4),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("capture index: recent: %w", err)
	}
	return entries, nil
}

// PruneDays removes the rows for the given capture days. The
// retention sweep calls this after archiving those folders, so the
// index never points at files that no longer exist. Returns the
// number of rows removed.
func (s *Store) PruneDays(ctx context.Context, days []string) (int64, error) {
	if len(days) == 0 {
		return 0, nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("capture index: prune: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("capture index: begin prune: %w", err)
	}
	defer endTransaction(&err)

	var pruned int64
	for _, day := range days {
		if err = sqlitex.Execute(conn, "DELETE FROM captures WHERE day = ?", &sqlitex.ExecOptions{
			Args: []any{day},
		}); err != nil {
			return 0, fmt.Errorf("capture index: prune %s: %w", day, err)
		}
		pruned += int64(conn.Changes())
	}

	if pruned > 0 {
		s.logger.Info("capture index pruned", "days", len(days), "rows", pruned)
	}
	return pruned, nil
}

// Stats summarizes the index contents.
type Stats struct {
	Captures      int64
	Days          int64
	ContentBytes  int64
	DatabaseBytes int64
}

// Stats reports row counts and sizes, for startup logging and
// diagnostics.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("capture index: stats: %w", err)
	}
	defer s.pool.Put(conn)

	var stats Stats
	err = sqlitex.Execute(conn,
		"SELECT COUNT(*), COUNT(DISTINCT day), COALESCE(SUM(size_bytes), 0) FROM captures",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.Captures = stmt.ColumnInt64(0)
				stats.Days = stmt.ColumnInt64(1)
				stats.ContentBytes = stmt.ColumnInt64(2)
				return nil
			},
		})
	if err != nil {
		return Stats{}, fmt.Errorf("capture index: stats: %w", err)
	}

	err = sqlitex.Execute(conn,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.DatabaseBytes = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return Stats{}, fmt.Errorf("capture index: stats: %w", err)
	}
	return stats, nil
}
