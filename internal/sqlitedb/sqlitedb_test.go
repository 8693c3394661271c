package sqlitedb

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenAppliesPragmas(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "app.db"), WithBusyTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var fk int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	require.Equal(t, 1, fk)

	var mode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	require.Equal(t, "wal", strings.ToLower(mode))

	var busy int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
	require.Equal(t, 5000, busy)

	require.NoError(t, CheckIntegrity(ctx, db))
}

func TestOpenIncrementalVacuum(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "cache.db"), WithIncrementalVacuum())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var mode int
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA auto_vacuum").Scan(&mode))
	require.Equal(t, 2, mode)
}

func TestGarbageFileIsCorrupt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "junk.db")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("not a database "), 512), 0o600))

	db, err := Open(ctx, path)
	if err == nil {
		err = CheckIntegrity(ctx, db)
		_ = db.Close()
	}
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestRunTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = Exec(ctx, db, "CREATE TABLE items (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO items (id) VALUES (1)"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count))
	require.Zero(t, count)

	require.NoError(t, RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO items (id) VALUES (2)")
		return err
	}))
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&count))
	require.Equal(t, 1, count)
}

func TestIsBusy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{errors.New("database table is locked"), true},
		{errors.New("no such table: items"), false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, IsBusy(tt.err), "%v", tt.err)
	}
}

func TestBackupCopiesExistingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "progress.db")

	dest, err := Backup(path)
	require.NoError(t, err)
	require.Empty(t, dest, "missing source is not backed up")

	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))
	dest, err = Backup(path)
	require.NoError(t, err)
	require.Equal(t, path+".bak", dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}

func TestQuarantineMovesFileAndSidecars(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "progress.db")
	require.NoError(t, os.WriteFile(path, []byte("broken"), 0o600))
	require.NoError(t, os.WriteFile(path+"-wal", []byte("wal"), 0o600))

	dest, err := Quarantine(path, time.Unix(1700000000, 0))
	require.NoError(t, err)
	require.Equal(t, path+".corrupt-1700000000", dest)

	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(dest)
	require.NoError(t, err)
	_, err = os.Stat(dest + "-wal")
	require.NoError(t, err)
}

func TestRemoveIgnoresMissing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gone.db")
	require.NoError(t, Remove(path))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, Remove(path))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
