package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/sqlitedb"
)

// ExportMeta identifies the writer of an export file.
type ExportMeta struct {
	Version string `json:"version"`
	Date    string `json:"date"`
}

// ExportRecord is one entry status as written to an export file.
type ExportRecord struct {
	Status    *int    `json:"status"`
	Timestamp *string `json:"timestamp"`
}

// ExportFile is the document written by ExportProfile.
type ExportFile struct {
	Meta    ExportMeta              `json:"meta"`
	Profile string                  `json:"profile"`
	Quests  map[string]ExportRecord `json:"quests"`
}

// ExportProfile writes the current profile's statuses to path and returns the
// number of records written.
func (s *Store) ExportProfile(ctx context.Context, path string) (int, error) {
	statuses, err := s.Statuses(ctx)
	if err != nil {
		return 0, err
	}
	doc := ExportFile{
		Meta: ExportMeta{
			Version: s.opts.AppVersion,
			Date:    s.clock.Now().Format(time.RFC3339),
		},
		Profile: s.CurrentProfile(),
		Quests:  make(map[string]ExportRecord, len(statuses)),
	}
	for name, st := range statuses {
		code := int(st.State)
		rec := ExportRecord{Status: &code}
		if st.Timestamp != "" {
			ts := st.Timestamp
			rec.Timestamp = &ts
		}
		doc.Quests[name] = rec
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return 0, fmt.Errorf("encode export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write export %s: %w", path, err)
	}
	s.logger.Info("profile exported",
		zap.String("profile", doc.Profile), zap.String("path", path), zap.Int("records", len(doc.Quests)))
	return len(doc.Quests), nil
}

// ImportProfile upserts every InProgress or Completed record of the file at
// path into the current profile. The current profile is never switched and
// records absent from the file are left alone.
func (s *Store) ImportProfile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read import %s: %w", path, err)
	}
	var doc ExportFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("decode import %s: %w", path, err)
	}

	profile := s.CurrentProfile()
	stamp := s.clock.Now().Local().Format(TimestampLayout)
	imported := 0
	err = sqlitedb.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		imported = 0
		for name, rec := range doc.Quests {
			state, ok := importedState(rec)
			if !ok {
				continue
			}
			if err := s.validEntry(name); err != nil {
				s.logger.Warn("skipping invalid imported entry", zap.String("entry", name))
				continue
			}
			ts, _ := recordTimestamp(state, rec, stamp).(string)
			if err := writeStatus(ctx, tx, profile, name, state, ts); err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", path, err)
	}
	s.logger.Info("profile imported",
		zap.String("profile", profile), zap.String("source_profile", doc.Profile),
		zap.String("path", path), zap.Int("records", imported))
	return imported, nil
}

// recordTimestamp returns the timestamp column for an imported record:
// Completed keeps its own stamp or falls back to stamp, anything else is NULL.
func recordTimestamp(state State, rec ExportRecord, stamp string) any {
	if state != Completed {
		return nil
	}
	if rec.Timestamp != nil && *rec.Timestamp != "" {
		return *rec.Timestamp
	}
	return stamp
}

func importedState(rec ExportRecord) (State, bool) {
	if rec.Status == nil {
		return NotStarted, false
	}
	switch state := State(*rec.Status); state {
	case InProgress, Completed:
		return state, true
	default:
		return NotStarted, false
	}
}

// MergeLegacyJSON merges a flat {entry: {status, timestamp}} user file into the
// current profile without overwriting existing records. A missing file is not
// an error and the file is never removed.
func (s *Store) MergeLegacyJSON(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read legacy file %s: %w", path, err)
	}
	var legacy map[string]ExportRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		return 0, fmt.Errorf("decode legacy file %s: %w", path, err)
	}

	profile := s.CurrentProfile()
	stamp := s.clock.Now().Local().Format(TimestampLayout)
	merged := 0
	err = sqlitedb.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		merged = 0
		for name, rec := range legacy {
			state, ok := importedState(rec)
			if !ok || s.validEntry(name) != nil {
				continue
			}
			res, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO quest_status (profile, quest_name, status, timestamp) VALUES (?, ?, ?, ?)`,
				profile, name, int(state), recordTimestamp(state, rec, stamp))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				merged++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("merge legacy file %s: %w", path, err)
	}
	if merged > 0 {
		s.logger.Info("merged legacy user file", zap.String("path", path), zap.Int("records", merged))
	}
	return merged, nil
}
