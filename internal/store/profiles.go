package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/sqlitedb"
)

var profileNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

// errRefused aborts a transaction whose precondition does not hold.
var errRefused = errors.New("refused")

// ValidProfileName reports whether name is acceptable for a new profile.
func (s *Store) ValidProfileName(name string) bool {
	return name != "" && len(name) <= s.opts.MaxProfileNameLength && profileNamePattern.MatchString(name)
}

// ListProfiles returns every profile name sorted alphabetically.
func (s *Store) ListProfiles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM profiles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return names, nil
}

// CreateProfile adds name and makes it current. It reports false, leaving the
// store untouched, for invalid or duplicate names.
func (s *Store) CreateProfile(ctx context.Context, name string) bool {
	if !s.ValidProfileName(name) {
		return false
	}
	res, err := sqlitedb.Exec(ctx, s.db, "INSERT OR IGNORE INTO profiles (name) VALUES (?)", name)
	if err != nil {
		s.logger.Error("create profile failed", zap.String("profile", name), zap.Error(err))
		return false
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false
	}
	if err := s.setCurrent(ctx, name); err != nil {
		s.logger.Error("switch to new profile failed", zap.String("profile", name), zap.Error(err))
	}
	s.logger.Info("profile created", zap.String("profile", name))
	return true
}

// DeleteProfile removes name and its statuses. The last remaining profile
// cannot be deleted. When the current profile is removed the first remaining
// profile becomes current.
func (s *Store) DeleteProfile(ctx context.Context, name string) bool {
	var next string
	err := sqlitedb.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM profiles").Scan(&count); err != nil {
			return err
		}
		if count <= 1 {
			return errRefused
		}
		// Stores created before the foreign key existed rely on this delete.
		if _, err := tx.ExecContext(ctx, "DELETE FROM quest_status WHERE profile = ?", name); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM profiles WHERE name = ?", name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errRefused
		}
		return tx.QueryRowContext(ctx, "SELECT name FROM profiles ORDER BY name LIMIT 1").Scan(&next)
	})
	if errors.Is(err, errRefused) {
		return false
	}
	if err != nil {
		s.logger.Error("delete profile failed", zap.String("profile", name), zap.Error(err))
		return false
	}

	if s.CurrentProfile() == name {
		if err := s.setCurrent(ctx, next); err != nil {
			s.logger.Error("switch after delete failed", zap.String("profile", next), zap.Error(err))
		}
	}
	s.logger.Info("profile deleted", zap.String("profile", name))
	return true
}

// SwitchProfile makes name current and persists the choice. Unknown names are
// ignored.
func (s *Store) SwitchProfile(ctx context.Context, name string) error {
	exists, err := s.profileExists(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		s.logger.Debug("switch to unknown profile ignored", zap.String("profile", name))
		return nil
	}
	return s.setCurrent(ctx, name)
}

func (s *Store) setCurrent(ctx context.Context, name string) error {
	if err := s.setSetting(ctx, settingCurrentProfile, name); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = name
	s.mu.Unlock()
	return nil
}

func (s *Store) profileExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM profiles WHERE name = ?", name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup profile %s: %w", name, err)
	}
	return true, nil
}
