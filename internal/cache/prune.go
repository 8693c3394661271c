package cache

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/metrics"
	"github.com/JakeFAU/questledger/internal/sqlitedb"
)

const deleteOldest = `DELETE FROM cache WHERE key IN (
    SELECT key FROM cache ORDER BY fetched_at ASC, key ASC LIMIT ?
)`

// prune enforces the entry and size caps. The count cap trims down to the
// limit; the size cap independently drops the oldest quarter. A full VACUUM
// runs only when rows were deleted.
func (c *Cache) prune(ctx context.Context, db *sql.DB) {
	var deleted int64

	count, err := c.count(ctx, db)
	if err != nil {
		c.logger.Warn("cache prune count failed", zap.Error(err))
		return
	}
	if c.cfg.MaxEntries > 0 && count > c.cfg.MaxEntries {
		n := c.deleteOldest(ctx, db, count-c.cfg.MaxEntries)
		c.logger.Debug("pruned cache by count",
			zap.Int("count", count), zap.Int("max_entries", c.cfg.MaxEntries), zap.Int64("deleted", n))
		metrics.ObserveCacheEviction("count", n)
		deleted += n
		count -= int(n)
	}

	if c.cfg.MaxSizeBytes > 0 && count > 0 {
		size, err := c.sizeBytes(ctx, db)
		if err != nil {
			c.logger.Warn("cache prune size failed", zap.Error(err))
		} else if size > c.cfg.MaxSizeBytes {
			quarter := (count + 3) / 4
			n := c.deleteOldest(ctx, db, quarter)
			c.logger.Debug("pruned cache by size",
				zap.Int64("size_bytes", size), zap.Int64("max_bytes", c.cfg.MaxSizeBytes), zap.Int64("deleted", n))
			metrics.ObserveCacheEviction("size", n)
			deleted += n
		}
	}

	if deleted > 0 {
		c.vacuum(ctx, db)
	}
}

func (c *Cache) deleteOldest(ctx context.Context, db *sql.DB, limit int) int64 {
	res, err := sqlitedb.Exec(ctx, db, deleteOldest, limit)
	if err != nil {
		c.logger.Warn("cache prune delete failed", zap.Error(err))
		return 0
	}
	n, _ := res.RowsAffected()
	return n
}

func (c *Cache) count(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache").Scan(&n)
	return n, err
}

// sizeBytes reports the logical database size from page_count * page_size.
func (c *Cache) sizeBytes(ctx context.Context, db *sql.DB) (int64, error) {
	var pages, pageSize int64
	if err := db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pages); err != nil {
		return 0, err
	}
	if err := db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pages * pageSize, nil
}

func (c *Cache) vacuum(ctx context.Context, db *sql.DB) {
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		c.logger.Warn("cache vacuum failed", zap.Error(err))
		return
	}
	metrics.ObserveCacheVacuum("full")
}

// IncrementalVacuum releases free pages without rewriting the file.
func (c *Cache) IncrementalVacuum(ctx context.Context) {
	db := c.handle()
	if db == nil {
		return
	}
	if _, err := db.ExecContext(ctx, "PRAGMA incremental_vacuum"); err != nil {
		c.logger.Warn("cache incremental vacuum failed", zap.Error(err))
		return
	}
	metrics.ObserveCacheVacuum("incremental")
}

// RunMaintenance runs IncrementalVacuum every interval until ctx is done.
func (c *Cache) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.IncrementalVacuum(ctx)
		}
	}
}
