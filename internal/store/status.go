package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/catalog"
	"github.com/JakeFAU/questledger/internal/metrics"
	"github.com/JakeFAU/questledger/internal/sqlitedb"
)

// TimestampLayout formats completion timestamps, in local time.
const TimestampLayout = "01 / 02 / 2006 03:04 PM"

// State is the lifecycle position of an entry for one profile.
type State int

// Persisted state values. NotStarted is never stored; it is the absence of a row.
const (
	NotStarted State = iota
	InProgress
	Completed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	return s >= NotStarted && s <= Completed
}

// ParseState accepts the String form, a few short aliases, or the integer code.
func ParseState(raw string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "not_started", "not-started", "notstarted", "none", "0":
		return NotStarted, nil
	case "in_progress", "in-progress", "inprogress", "started", "1":
		return InProgress, nil
	case "completed", "complete", "done", "2":
		return Completed, nil
	}
	return NotStarted, fmt.Errorf("unknown state %q", raw)
}

// Status is the tracked state of one entry. Timestamp is set only for
// Completed entries.
type Status struct {
	State     State
	Timestamp string
}

// CompletedAt parses the completion timestamp.
func (s Status) CompletedAt() (time.Time, bool) {
	if s.State != Completed || s.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(TimestampLayout, s.Timestamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// HistoryEntry is one completed entry of the current profile.
type HistoryEntry struct {
	Entry     string
	Timestamp string
	At        time.Time
}

// CategorySummary counts completed entries of one category.
type CategorySummary struct {
	Category   string
	Completed  int
	InProgress int
	Total      int
}

// Percent returns the completed share rounded down.
func (c CategorySummary) Percent() int {
	if c.Total == 0 {
		return 0
	}
	return c.Completed * 100 / c.Total
}

func (s *Store) validEntry(entry string) error {
	// Extracted names may carry the truncation suffix on top of the limit.
	limit := s.opts.MaxEntryNameLength + utf8.RuneCountInString(catalog.Ellipsis)
	if strings.TrimSpace(entry) == "" || utf8.RuneCountInString(entry) > limit {
		return fmt.Errorf("%w: %q", ErrInvalidEntry, entry)
	}
	return nil
}

// Statuses returns every tracked entry of the current profile.
func (s *Store) Statuses(ctx context.Context) (map[string]Status, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT quest_name, status, timestamp FROM quest_status WHERE profile = ?", s.CurrentProfile())
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]Status)
	for rows.Next() {
		var (
			name  string
			state int
			ts    sql.NullString
		)
		if err := rows.Scan(&name, &state, &ts); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		st := State(state)
		if st != InProgress && st != Completed {
			continue
		}
		status := Status{State: st}
		if st == Completed {
			status.Timestamp = ts.String
		}
		out[name] = status
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statuses: %w", err)
	}
	return out, nil
}

// SetStatus moves entry to state for the current profile. Completed stamps the
// current time, InProgress clears it and NotStarted deletes the record.
func (s *Store) SetStatus(ctx context.Context, entry string, state State) error {
	return s.SetStatuses(ctx, []string{entry}, state)
}

// SetStatuses applies state to every entry in one transaction. Nothing is
// written when any name is invalid.
func (s *Store) SetStatuses(ctx context.Context, entries []string, state State) error {
	if !state.Valid() {
		return fmt.Errorf("set status: unknown state %d", int(state))
	}
	for _, entry := range entries {
		if err := s.validEntry(entry); err != nil {
			return err
		}
	}
	if len(entries) == 0 {
		return nil
	}

	profile := s.CurrentProfile()
	stamp := s.clock.Now().Local().Format(TimestampLayout)
	err := sqlitedb.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, entry := range entries {
			if err := writeStatus(ctx, tx, profile, entry, state, stamp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set status %s: %w", state, err)
	}
	for range entries {
		metrics.ObserveStatusChange(state.String())
	}
	s.logger.Debug("status updated",
		zap.String("profile", profile), zap.Int("entries", len(entries)), zap.Stringer("state", state))
	return nil
}

func writeStatus(ctx context.Context, tx *sql.Tx, profile, entry string, state State, stamp string) error {
	var err error
	switch state {
	case NotStarted:
		_, err = tx.ExecContext(ctx,
			"DELETE FROM quest_status WHERE profile = ? AND quest_name = ?", profile, entry)
	case InProgress:
		_, err = tx.ExecContext(ctx, upsertStatus, profile, entry, int(InProgress), nil)
	case Completed:
		_, err = tx.ExecContext(ctx, upsertStatus, profile, entry, int(Completed), stamp)
	}
	return err
}

const upsertStatus = `INSERT INTO quest_status (profile, quest_name, status, timestamp)
VALUES (?, ?, ?, ?)
ON CONFLICT(profile, quest_name) DO UPDATE SET status = excluded.status, timestamp = excluded.timestamp`

// ResetCategory deletes the statuses of every trackable entry of category for
// the current profile and returns how many records were removed. Entries that
// share a name with another category are reset there too.
func (s *Store) ResetCategory(ctx context.Context, category string, cat catalog.Catalog) (int64, error) {
	names := cat.Trackable(category)
	if len(names) == 0 {
		return 0, nil
	}
	profile := s.CurrentProfile()
	var removed int64
	err := sqlitedb.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "DELETE FROM quest_status WHERE profile = ? AND quest_name = ?")
		if err != nil {
			return err
		}
		defer func() { _ = stmt.Close() }()
		for _, name := range names {
			res, err := stmt.ExecContext(ctx, profile, name)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reset category %s: %w", category, err)
	}
	s.logger.Info("category reset",
		zap.String("profile", profile), zap.String("category", category), zap.Int64("removed", removed))
	return removed, nil
}

// History lists completed entries of the current profile, newest first.
// Records without a timestamp are omitted.
func (s *Store) History(ctx context.Context) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT quest_name, timestamp FROM quest_status
		 WHERE profile = ? AND status = ? AND timestamp IS NOT NULL AND timestamp != ''`,
		s.CurrentProfile(), int(Completed))
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.Entry, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.At, _ = Status{State: Completed, Timestamp: h.Timestamp}.CompletedAt()
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.After(out[j].At)
		}
		return out[i].Entry < out[j].Entry
	})
	return out, nil
}

// Summary counts progress per category of cat for the current profile, in
// the given category order.
func (s *Store) Summary(ctx context.Context, cat catalog.Catalog, order []string) ([]CategorySummary, error) {
	statuses, err := s.Statuses(ctx)
	if err != nil {
		return nil, err
	}
	categories := cat.Categories(order)
	out := make([]CategorySummary, 0, len(categories))
	for _, category := range categories {
		sum := CategorySummary{Category: category}
		for _, name := range cat.Trackable(category) {
			sum.Total++
			switch statuses[name].State {
			case Completed:
				sum.Completed++
			case InProgress:
				sum.InProgress++
			}
		}
		out = append(out, sum)
	}
	return out, nil
}
