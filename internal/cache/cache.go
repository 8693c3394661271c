// Package cache implements the TTL- and size-bounded page cache backed by its
// own SQLite file. The cache is strictly an optimization: every failure is
// logged and reported to callers as a miss.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/clock/system"
	"github.com/JakeFAU/questledger/internal/metrics"
	"github.com/JakeFAU/questledger/internal/sqlitedb"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
    key TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    fetched_at REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_fetched_at ON cache(fetched_at);
`

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Config bounds the cache.
type Config struct {
	Path         string
	TTL          time.Duration
	MaxEntries   int
	MaxSizeBytes int64
	BusyTimeout  time.Duration
}

// Cache is a key/content store with lazy expiry and post-write pruning. A
// Cache whose file could not be opened or recreated runs disabled and always
// misses.
type Cache struct {
	cfg    Config
	clock  Clock
	logger *zap.Logger

	mu sync.Mutex
	db *sql.DB
}

// Option customises Open.
type Option func(*Cache)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// Open opens or creates the cache file. It never fails: a corrupt file is
// deleted and recreated, and if that also fails the cache is disabled.
func Open(ctx context.Context, cfg Config, logger *zap.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		cfg:    cfg,
		clock:  system.New(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	db, err := c.openFile(ctx)
	if err != nil {
		c.logger.Warn("cache file unusable; recreating empty",
			zap.String("path", cfg.Path), zap.Error(err))
		if rmErr := sqlitedb.Remove(cfg.Path); rmErr != nil {
			c.logger.Warn("remove cache file failed", zap.Error(rmErr))
		}
		db, err = c.openFile(ctx)
		if err != nil {
			c.logger.Warn("cache disabled", zap.String("path", cfg.Path), zap.Error(err))
			return c
		}
	}
	c.db = db
	return c
}

func (c *Cache) openFile(ctx context.Context) (*sql.DB, error) {
	opts := []sqlitedb.Option{sqlitedb.WithIncrementalVacuum(), sqlitedb.WithoutForeignKeys(), sqlitedb.WithMkdirAll()}
	if c.cfg.BusyTimeout > 0 {
		opts = append(opts, sqlitedb.WithBusyTimeout(c.cfg.BusyTimeout))
	}
	db, err := sqlitedb.Open(ctx, c.cfg.Path, opts...)
	if err != nil {
		return nil, err
	}
	if err := sqlitedb.CheckIntegrity(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Enabled reports whether the cache has a usable backing file.
func (c *Cache) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db != nil
}

func (c *Cache) handle() *sql.DB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db
}

// Get returns unexpired content for key. Expired entries are deleted and
// reported as absent.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	db := c.handle()
	if db == nil {
		metrics.ObserveCacheLookup("miss")
		return "", false
	}

	var (
		content   string
		fetchedAt float64
	)
	err := db.QueryRowContext(ctx,
		"SELECT content, fetched_at FROM cache WHERE key = ?", key,
	).Scan(&content, &fetchedAt)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		metrics.ObserveCacheLookup("miss")
		return "", false
	}

	if c.clock.Now().Sub(fromUnix(fetchedAt)) >= c.cfg.TTL {
		metrics.ObserveCacheLookup("expired")
		if c.remove(ctx, db, key) {
			metrics.ObserveCacheEviction("expired", 1)
		}
		return "", false
	}
	metrics.ObserveCacheLookup("hit")
	return content, true
}

// Set upserts content for key stamped with the current time, then prunes.
func (c *Cache) Set(ctx context.Context, key, content string) {
	db := c.handle()
	if db == nil {
		return
	}
	_, err := sqlitedb.Exec(ctx, db,
		`INSERT INTO cache (key, content, fetched_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET content = excluded.content, fetched_at = excluded.fetched_at`,
		key, content, toUnix(c.clock.Now()),
	)
	if err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return
	}
	c.prune(ctx, db)
}

// Delete removes key unconditionally.
func (c *Cache) Delete(ctx context.Context, key string) {
	db := c.handle()
	if db == nil {
		return
	}
	c.remove(ctx, db, key)
}

// Clear drops every entry and reclaims the space.
func (c *Cache) Clear(ctx context.Context) int64 {
	db := c.handle()
	if db == nil {
		return 0
	}
	res, err := sqlitedb.Exec(ctx, db, "DELETE FROM cache")
	if err != nil {
		c.logger.Warn("cache clear failed", zap.Error(err))
		return 0
	}
	n, _ := res.RowsAffected()
	metrics.ObserveCacheEviction("clear", n)
	c.vacuum(ctx, db)
	return n
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len(ctx context.Context) int {
	db := c.handle()
	if db == nil {
		return 0
	}
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache").Scan(&n); err != nil {
		c.logger.Warn("cache count failed", zap.Error(err))
		return 0
	}
	return n
}

// Close releases the backing file. Later calls behave as a disabled cache.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Cache) remove(ctx context.Context, db *sql.DB, key string) bool {
	res, err := sqlitedb.Exec(ctx, db, "DELETE FROM cache WHERE key = ?", key)
	if err != nil {
		c.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

func toUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnix(v float64) time.Time {
	return time.Unix(0, int64(v*float64(time.Second)))
}
