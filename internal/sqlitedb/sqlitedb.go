// Package sqlitedb opens SQLite files with the pragmas questledger relies on
// and provides the transaction, integrity and file-level helpers shared by
// the progress store and the page cache.
//
// Every connection gets, via DSN pragmas:
//
//	busy_timeout = 60000 (configurable)
//	foreign_keys = ON
//	journal_mode = WAL
//	synchronous  = NORMAL
//
// Pools are capped at a single open connection so that the foreground and the
// background sync serialize on the connection instead of on file locks.
package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// ErrCorrupt reports that a database file failed its integrity check or is
// not a database at all.
var ErrCorrupt = errors.New("sqlite database is corrupt")

type config struct {
	busyTimeout       time.Duration
	synchronous       string
	foreignKeys       bool
	incrementalVacuum bool
	mkdirAll          bool
}

func defaults() config {
	return config{
		busyTimeout: 60 * time.Second,
		synchronous: "NORMAL",
		foreignKeys: true,
	}
}

// Option customises Open behaviour.
type Option func(*config)

// WithBusyTimeout sets PRAGMA busy_timeout. Default: 60s.
func WithBusyTimeout(d time.Duration) Option { return func(c *config) { c.busyTimeout = d } }

// WithIncrementalVacuum sets auto_vacuum = INCREMENTAL. It only takes effect
// on a freshly created file.
func WithIncrementalVacuum() Option { return func(c *config) { c.incrementalVacuum = true } }

// WithoutForeignKeys disables PRAGMA foreign_keys.
func WithoutForeignKeys() Option { return func(c *config) { c.foreignKeys = false } }

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// Open opens the SQLite database at path and verifies the connection.
func Open(ctx context.Context, path string, opts ...Option) (*sql.DB, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlitedb: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path, &cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlitedb: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		if isNotADatabase(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
		}
		return nil, fmt.Errorf("sqlitedb: ping %s: %w", path, err)
	}
	return db, nil
}

func dsn(path string, cfg *config) string {
	q := url.Values{}
	if cfg.incrementalVacuum {
		q.Add("_pragma", "auto_vacuum(INCREMENTAL)")
	}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.busyTimeout.Milliseconds()))
	if cfg.foreignKeys {
		q.Add("_pragma", "foreign_keys(1)")
	} else {
		q.Add("_pragma", "foreign_keys(0)")
	}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("synchronous(%s)", cfg.synchronous))
	return "file:" + path + "?" + q.Encode()
}

// CheckIntegrity runs PRAGMA integrity_check and returns ErrCorrupt unless SQLite
// answers "ok". Busy errors are returned as-is; a locked file is not broken.
func CheckIntegrity(ctx context.Context, db *sql.DB) error {
	var result string
	err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result)
	switch {
	case err == nil && result == "ok":
		return nil
	case err == nil:
		return fmt.Errorf("%w: integrity_check: %s", ErrCorrupt, result)
	case IsBusy(err):
		return fmt.Errorf("sqlitedb: integrity_check: %w", err)
	default:
		return fmt.Errorf("%w: integrity_check: %v", ErrCorrupt, err)
	}
}
