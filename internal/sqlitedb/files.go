package sqlitedb

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// sidecars are the WAL-mode companion files that travel with a database.
var sidecars = []string{"-wal", "-shm"}

// Backup copies an existing database file to "<path>.bak". A missing source
// is not an error.
func Backup(path string) (string, error) {
	dest := path + ".bak"
	src, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("sqlitedb: backup open: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("sqlitedb: backup create: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("sqlitedb: backup copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("sqlitedb: backup close: %w", err)
	}
	return dest, nil
}

// Quarantine renames a broken database (and its WAL sidecars) aside to
// "<path>.corrupt-<unix seconds>" and returns the new path.
func Quarantine(path string, now time.Time) (string, error) {
	dest := fmt.Sprintf("%s.corrupt-%d", path, now.Unix())
	if err := os.Rename(path, dest); err != nil {
		return "", fmt.Errorf("sqlitedb: quarantine %s: %w", path, err)
	}
	for _, suffix := range sidecars {
		if err := os.Rename(path+suffix, dest+suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return dest, fmt.Errorf("sqlitedb: quarantine %s: %w", path+suffix, err)
		}
	}
	return dest, nil
}

// Remove deletes a database file and its sidecars, ignoring missing files.
func Remove(path string) error {
	for _, p := range append([]string{path}, path+sidecars[0], path+sidecars[1]) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("sqlitedb: remove %s: %w", p, err)
		}
	}
	return nil
}
