package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/questledger/internal/sqlitedb"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// RunStatus mirrors the sync_runs status column.
type RunStatus string

// Sync run statuses persisted in sync_runs.status.
const (
	RunRunning  RunStatus = "running"
	RunSuccess  RunStatus = "success"
	RunPartial  RunStatus = "partial"
	RunCanceled RunStatus = "canceled"
)

// SyncRun models one row of sync_runs.
type SyncRun struct {
	// ID is the run identifier shared with progress events.
	ID uuid.UUID
	// StartedAt captures when the run was first recorded.
	StartedAt time.Time
	// FinishedAt is nil until the run completes.
	FinishedAt *time.Time
	Status     RunStatus
	// Categories is the number of categories the run produced.
	Categories int
	// Errors counts categories that fell back to their previous entries.
	Errors int
	Note   *string
}

// RunRepository persists sync run bookkeeping.
type RunRepository interface {
	// RecordRunStart inserts (or idempotently updates) the started_at timestamp.
	RecordRunStart(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	// CompleteRun marks the run finished with its outcome.
	CompleteRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, categories, errs int, note *string) error
	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (SyncRun, error)
	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]SyncRun, error)
}

var _ RunRepository = (*Store)(nil)

// RecordRunStart implements RunRepository.
func (s *Store) RecordRunStart(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	_, err := sqlitedb.Exec(ctx, s.db,
		`INSERT INTO sync_runs (id, started_at, status) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET started_at = excluded.started_at`,
		id.String(), formatRunTime(startedAt), string(RunRunning))
	if err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	return nil
}

// CompleteRun implements RunRepository.
func (s *Store) CompleteRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status RunStatus,
	categories, errs int,
	note *string,
) error {
	res, err := sqlitedb.Exec(ctx, s.db,
		`UPDATE sync_runs SET finished_at = ?, status = ?, categories = ?, errors = ?, note = ? WHERE id = ?`,
		formatRunTime(finishedAt), string(status), categories, errs, nullString(note), id.String())
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("complete run %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun implements RunRepository.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (SyncRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, categories, errors, note FROM sync_runs WHERE id = ?`,
		id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncRun{}, ErrNotFound
	}
	return run, err
}

// ListRuns implements RunRepository.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, categories, errors, note
		 FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (SyncRun, error) {
	var (
		run            SyncRun
		id, started    string
		finished, note sql.NullString
		status         string
	)
	if err := row.Scan(&id, &started, &finished, &status, &run.Categories, &run.Errors, &note); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SyncRun{}, err
		}
		return SyncRun{}, fmt.Errorf("scan run: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return SyncRun{}, fmt.Errorf("parse run id %q: %w", id, err)
	}
	run.ID = parsed
	run.Status = RunStatus(status)
	if run.StartedAt, err = time.Parse(runTimeLayout, started); err != nil {
		return SyncRun{}, fmt.Errorf("parse run start: %w", err)
	}
	if finished.Valid {
		t, err := time.Parse(runTimeLayout, finished.String)
		if err != nil {
			return SyncRun{}, fmt.Errorf("parse run finish: %w", err)
		}
		run.FinishedAt = &t
	}
	if note.Valid {
		n := note.String
		run.Note = &n
	}
	return run, nil
}

// runTimeLayout keeps a fixed width so started_at sorts as text.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatRunTime(t time.Time) string {
	return t.UTC().Format(runTimeLayout)
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
