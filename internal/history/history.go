// Package history keeps a durable record of applied wallpapers so
// repeated rotations avoid recent repeats and retention knows which
// files belong to evicted entries.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Store is an ordered record of applied wallpapers backed by SQLite.
// An identifier appears at most once; re-applying it moves the entry
// to the most-recent position instead of duplicating it.
type Store struct {
	db *sql.DB
}

// Entry is one applied-wallpaper record.
type Entry struct {
	Identifier string
	AppliedAt  time.Time
	FilePath   string
}

// Open opens or creates the history database at path. An unreadable
// file is discarded and replaced with an empty store: a rotation must
// never fail solely because history is corrupt.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := openDB(path)
	if err != nil {
		if !isCorrupt(err) {
			return nil, err
		}
		slog.Warn("history database unreadable, resetting",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		if rmErr := os.Remove(path); rmErr != nil {
			return nil, fmt.Errorf("remove corrupt history: %w", rmErr)
		}
		db, err = openDB(path)
		if err != nil {
			return nil, err
		}
	}

	return &Store{db: db}, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func isCorrupt(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "file is not a database") ||
		strings.Contains(msg, "database disk image is malformed")
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Contains reports whether identifier has ever been applied.
func (s *Store) Contains(ctx context.Context, identifier string) (bool, error) {
	if s == nil || s.db == nil {
		return false, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM history WHERE identifier = ?", identifier).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query history: %w", err)
	}
	return true, nil
}

// Recent returns up to n identifiers, most recently applied first.
func (s *Store) Recent(ctx context.Context, n int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT identifier FROM history ORDER BY seq DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recent: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent: %w", err)
	}

	return ids, nil
}

// Record inserts identifier as the most recent entry, or moves an
// existing entry to the most-recent position.
func (s *Store) Record(ctx context.Context, identifier string, appliedAt time.Time, filePath string) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(identifier) == "" {
		return errors.New("identifier is required")
	}
	if appliedAt.IsZero() {
		return errors.New("applied_at is required")
	}
	if strings.TrimSpace(filePath) == "" {
		return errors.New("file path is required")
	}

	// seq is assigned past the current maximum so ordering survives
	// reopen without relying on timestamp resolution.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (identifier, applied_at, file_path, seq)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM history))
		ON CONFLICT(identifier) DO UPDATE SET
			applied_at = excluded.applied_at,
			file_path = excluded.file_path,
			seq = excluded.seq
	`, identifier, formatTime(appliedAt), filePath)
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}

	return nil
}

// EvictOldestBeyond removes every entry beyond the limit most recent
// and returns the file paths of the removed entries so the caller can
// delete them.
func (s *Store) EvictOldestBeyond(ctx context.Context, limit int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit < 0 {
		return nil, errors.New("limit must not be negative")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin eviction: %w", err)
	}

	// LIMIT -1 OFFSET n selects everything past the n newest entries.
	rows, err := tx.QueryContext(ctx, `
		SELECT identifier, file_path FROM history
		ORDER BY seq DESC LIMIT -1 OFFSET ?
	`, limit)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("query stale entries: %w", err)
	}

	var (
		ids   []string
		paths []string
	)
	for rows.Next() {
		var id, path string
		if err := rows.Scan(&id, &path); err != nil {
			_ = rows.Close()
			_ = tx.Rollback()
			return nil, fmt.Errorf("scan stale entry: %w", err)
		}
		ids = append(ids, id)
		paths = append(paths, path)
	}
	if err := rows.Err(); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("iterate stale entries: %w", err)
	}

	if len(ids) == 0 {
		_ = tx.Rollback()
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf("DELETE FROM history WHERE identifier IN (%s)", strings.Join(placeholders, ","))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("delete stale entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit eviction: %w", err)
	}

	return paths, nil
}

// Entries returns the full history, most recently applied first.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT identifier, applied_at, file_path FROM history
		ORDER BY seq DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			appliedAt string
		)
		if err := rows.Scan(&e.Identifier, &appliedAt, &e.FilePath); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.AppliedAt, err = parseTime(appliedAt)
		if err != nil {
			return nil, fmt.Errorf("parse applied_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
