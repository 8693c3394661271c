package cache

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCacheRoundTripAndExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	c := openTestCache(t, Config{TTL: time.Hour, MaxEntries: 10, MaxSizeBytes: 1 << 30}, clk)

	c.Set(ctx, "https://example.com/a", "<html>a</html>")
	got, ok := c.Get(ctx, "https://example.com/a")
	require.True(t, ok)
	require.Equal(t, "<html>a</html>", got)

	clk.Advance(59 * time.Minute)
	_, ok = c.Get(ctx, "https://example.com/a")
	require.True(t, ok, "entry is still fresh before the TTL")

	clk.Advance(2 * time.Minute)
	_, ok = c.Get(ctx, "https://example.com/a")
	require.False(t, ok)
	require.Zero(t, c.Len(ctx), "expired entry is deleted on read")
}

func TestCacheSetReplacesAndRefreshes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	c := openTestCache(t, Config{TTL: time.Hour, MaxEntries: 10, MaxSizeBytes: 1 << 30}, clk)

	c.Set(ctx, "k", "old")
	clk.Advance(50 * time.Minute)
	c.Set(ctx, "k", "new")
	clk.Advance(50 * time.Minute)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, "new", got)
	require.Equal(t, 1, c.Len(ctx))
}

func TestCacheDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := openTestCache(t, Config{TTL: time.Hour, MaxEntries: 10, MaxSizeBytes: 1 << 30}, newFakeClock())

	c.Set(ctx, "k", "v")
	c.Delete(ctx, "k")
	c.Delete(ctx, "never-set")
	_, ok := c.Get(ctx, "k")
	require.False(t, ok)
}

func TestCacheBoundedByEntryCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	const maxEntries = 20
	c := openTestCache(t, Config{TTL: time.Hour, MaxEntries: maxEntries, MaxSizeBytes: 1 << 30}, clk)

	for i := range maxEntries + 50 {
		c.Set(ctx, fmt.Sprintf("key-%03d", i), "body")
		clk.Advance(time.Second)
	}

	require.LessOrEqual(t, c.Len(ctx), maxEntries)
	_, ok := c.Get(ctx, "key-000")
	require.False(t, ok, "oldest entries are evicted first")
	_, ok = c.Get(ctx, fmt.Sprintf("key-%03d", maxEntries+49))
	require.True(t, ok, "newest entry survives")
}

func TestPruneBySizeDropsOldestQuarter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	c := openTestCache(t, Config{TTL: time.Hour, MaxEntries: 100, MaxSizeBytes: 1 << 30}, clk)

	for i := range 8 {
		c.Set(ctx, fmt.Sprintf("key-%d", i), strings.Repeat("x", 512))
		clk.Advance(time.Second)
	}
	require.Equal(t, 8, c.Len(ctx))

	c.cfg.MaxSizeBytes = 1
	c.prune(ctx, c.handle())

	require.Equal(t, 6, c.Len(ctx))
	_, ok := c.Get(ctx, "key-0")
	require.False(t, ok)
	_, ok = c.Get(ctx, "key-1")
	require.False(t, ok)
	_, ok = c.Get(ctx, "key-2")
	require.True(t, ok)
}

func TestOpenRecreatesCorruptFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("garbage!"), 1024), 0o600))

	c := Open(ctx, Config{Path: path, TTL: time.Hour, MaxEntries: 10}, zap.NewNop(), WithClock(newFakeClock()))
	t.Cleanup(func() { _ = c.Close() })

	require.True(t, c.Enabled())
	c.Set(ctx, "k", "v")
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, "v", got)
}

func TestOpenCreatesMissingDirectories(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "xdg-cache", "questledger", "cache.db")
	c := Open(ctx, Config{Path: path, TTL: time.Hour, MaxEntries: 10}, zap.NewNop(), WithClock(newFakeClock()))
	t.Cleanup(func() { _ = c.Close() })

	require.True(t, c.Enabled())
	c.Set(ctx, "k", "v")
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, "v", got)
}

func TestUnopenableCacheIsDisabled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("file"), 0o600))
	path := filepath.Join(blocker, "cache.db")
	c := Open(ctx, Config{Path: path, TTL: time.Hour, MaxEntries: 10}, zap.NewNop())

	require.False(t, c.Enabled())
	c.Set(ctx, "k", "v")
	_, ok := c.Get(ctx, "k")
	require.False(t, ok)
	require.Zero(t, c.Len(ctx))
	require.NoError(t, c.Close())
}

func TestClearEmptiesCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := openTestCache(t, Config{TTL: time.Hour, MaxEntries: 10, MaxSizeBytes: 1 << 30}, newFakeClock())
	c.Set(ctx, "a", "1")
	c.Set(ctx, "b", "2")

	require.EqualValues(t, 2, c.Clear(ctx))
	require.Zero(t, c.Len(ctx))
}

func TestRunMaintenanceStopsOnCancel(t *testing.T) {
	t.Parallel()

	c := openTestCache(t, Config{TTL: time.Hour, MaxEntries: 10, MaxSizeBytes: 1 << 30}, newFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.RunMaintenance(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func openTestCache(t *testing.T, cfg Config, clk Clock) *Cache {
	t.Helper()
	cfg.Path = filepath.Join(t.TempDir(), "cache.db")
	c := Open(context.Background(), cfg, zap.NewNop(), WithClock(clk))
	require.True(t, c.Enabled())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
