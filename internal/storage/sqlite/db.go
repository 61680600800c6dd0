// Package sqlite implements the metadata index (component B) and episodic
// log (component C) on top of a single local SQLite file, using the
// pure-Go, no-CGO driver from github.com/ncruces/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Storage wraps the metadata index and episodic log's shared database
// handle. A single connection is held open for the process's lifetime;
// SQLite serializes writers internally regardless of Go-level pooling.
type Storage struct {
	db           *sql.DB
	ftsAvailable bool
}

// Open opens (creating and migrating if necessary) the metadata database at
// path.
func Open(path string) (*Storage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite serialises writers anyway; avoid pool contention on a single file.

	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign_keys: %w", err)
	}

	s := &Storage{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

// beginImmediateWithRetry starts a BEGIN IMMEDIATE transaction on conn,
// retrying with jittered backoff on SQLITE_BUSY. IMMEDIATE acquires a
// RESERVED lock up front so concurrent writers serialize at transaction
// start rather than failing at commit time.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn) error {
	const maxAttempts = 5
	base := 10 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		lastErr = err
		if !isBusyErr(err) {
			return err
		}
		backoff := base * time.Duration(1<<attempt)
		jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("begin immediate: exhausted retries: %w", lastErr)
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	var sqlErr interface{ Error() string }
	if errors.As(err, &sqlErr) {
		msg := sqlErr.Error()
		return contains(msg, "SQLITE_BUSY") || contains(msg, "database is locked")
	}
	return false
}

func contains(s, substr string) bool {
	return len(substr) == 0 || (len(s) >= len(substr) && indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}
