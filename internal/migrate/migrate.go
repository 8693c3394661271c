// Package migrate upgrades the progress database through numbered, embedded
// SQL steps. The applied version lives in settings(key='schema_version') and
// is written in the same transaction as the step it records.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/JakeFAU/questledger/internal/sqlitedb"
)

// VersionKey is the settings row holding the applied schema version.
const VersionKey = "schema_version"

//go:embed migrations/*.sql
var embedded embed.FS

// Step is one numbered schema upgrade.
type Step struct {
	Version int
	Name    string
	SQL     string
}

// Steps returns the embedded upgrade steps ordered by version.
func Steps() ([]Step, error) {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	return LoadSteps(sub)
}

// Target is the version reached after every embedded step has run.
func Target() int {
	steps, err := Steps()
	if err != nil || len(steps) == 0 {
		return 0
	}
	return steps[len(steps)-1].Version
}

// LoadSteps reads NNNN_name.sql files from fsys. Versions must be contiguous
// starting at 1.
func LoadSteps(fsys fs.FS) ([]Step, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var steps []Step
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: missing version prefix", entry.Name())
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version: %w", entry.Name(), err)
		}
		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		steps = append(steps, Step{
			Version: version,
			Name:    entry.Name(),
			SQL:     ExtractUp(string(content)),
		})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	for i, step := range steps {
		if step.Version != i+1 {
			return nil, fmt.Errorf("migration %s: expected version %d", step.Name, i+1)
		}
	}
	return steps, nil
}

// Migrate applies every embedded step above the current version and returns
// the resulting version. Calling it on an up-to-date store is a no-op.
func Migrate(ctx context.Context, db *sql.DB) (int, error) {
	steps, err := Steps()
	if err != nil {
		return 0, err
	}
	return Apply(ctx, db, steps)
}

// Apply runs steps above the current version, each in its own transaction
// together with the version bump.
func Apply(ctx context.Context, db *sql.DB, steps []Step) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("sql db is required")
	}
	current, err := CurrentVersion(ctx, db)
	if err != nil {
		return 0, err
	}

	for _, step := range steps {
		if step.Version <= current {
			continue
		}
		if err := ctx.Err(); err != nil {
			return current, fmt.Errorf("migrate canceled: %w", err)
		}
		err := sqlitedb.RunTx(ctx, db, func(tx *sql.Tx) error {
			if strings.TrimSpace(step.SQL) != "" {
				if _, err := tx.ExecContext(ctx, step.SQL); err != nil && !IsAlreadyExists(err) {
					return fmt.Errorf("exec migration %s: %w", step.Name, err)
				}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO settings (key, value) VALUES (?, ?)
				 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
				VersionKey, strconv.Itoa(step.Version),
			); err != nil {
				return fmt.Errorf("record migration %s: %w", step.Name, err)
			}
			return nil
		})
		if err != nil {
			return current, err
		}
		current = step.Version
	}
	return current, nil
}

// CurrentVersion reads the recorded schema version; a store without the
// settings table or row is at version 0.
func CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var raw string
	err := db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", VersionKey).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil && strings.Contains(err.Error(), "no such table"):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	version, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return version, nil
}

// ExtractUp returns the SQL in the "-- +migrate Up" section, or the whole
// content when no markers are present.
func ExtractUp(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	upIdx := strings.Index(content, up)
	if upIdx == -1 {
		return content
	}
	body := content[upIdx+len(up):]
	if downIdx := strings.Index(body, down); downIdx != -1 {
		body = body[:downIdx]
	}
	return body
}

// IsAlreadyExists reports whether err comes from re-running additive DDL.
func IsAlreadyExists(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}
