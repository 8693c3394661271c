package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/clock/system"
	"github.com/JakeFAU/questledger/internal/migrate"
	"github.com/JakeFAU/questledger/internal/sqlitedb"
)

var (
	// ErrStoreCorruption is returned by Open when the store file is broken and
	// a fresh replacement could not be initialized either.
	ErrStoreCorruption = errors.New("store corruption")
	// ErrInvalidEntry rejects empty or oversized entry names.
	ErrInvalidEntry = errors.New("invalid entry name")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")
)

const (
	settingCurrentProfile = "current_profile"
	catalogKey            = "catalog"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Options configures Open.
type Options struct {
	Path                 string
	BusyTimeout          time.Duration
	Backup               bool
	DefaultProfile       string
	MaxProfileNameLength int
	MaxEntryNameLength   int
	AppVersion           string
	Clock                Clock
}

// Store owns the progress database connection and the current profile.
type Store struct {
	db     *sql.DB
	opts   Options
	clock  Clock
	logger *zap.Logger

	mu      sync.RWMutex
	current string
}

// Open backs up, opens, verifies and migrates the store at opts.Path, then
// restores the persisted current profile. A file that fails the integrity
// check is quarantined and replaced by a fresh store.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultProfile == "" {
		opts.DefaultProfile = "Default"
	}
	if opts.MaxProfileNameLength <= 0 {
		opts.MaxProfileNameLength = 32
	}
	if opts.MaxEntryNameLength <= 0 {
		opts.MaxEntryNameLength = 128
	}
	clock := opts.Clock
	if clock == nil {
		clock = system.New()
	}

	if opts.Backup {
		if dest, err := sqlitedb.Backup(opts.Path); err != nil {
			logger.Warn("store backup failed", zap.String("path", opts.Path), zap.Error(err))
		} else if dest != "" {
			logger.Debug("store backup written", zap.String("backup", dest))
		}
	}

	db, err := bootstrap(ctx, opts)
	if errors.Is(err, sqlitedb.ErrCorrupt) {
		dest, qErr := sqlitedb.Quarantine(opts.Path, clock.Now())
		if qErr != nil {
			return nil, fmt.Errorf("%w: quarantine failed: %v (integrity: %v)", ErrStoreCorruption, qErr, err)
		}
		logger.Warn("store failed integrity check; quarantined and recreating",
			zap.String("path", opts.Path), zap.String("quarantined", dest), zap.Error(err))
		db, err = bootstrap(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: fresh store: %v", ErrStoreCorruption, err)
		}
	}
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, opts: opts, clock: clock, logger: logger}
	if err := s.restoreProfile(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func bootstrap(ctx context.Context, opts Options) (*sql.DB, error) {
	dbOpts := []sqlitedb.Option{sqlitedb.WithMkdirAll()}
	if opts.BusyTimeout > 0 {
		dbOpts = append(dbOpts, sqlitedb.WithBusyTimeout(opts.BusyTimeout))
	}
	db, err := sqlitedb.Open(ctx, opts.Path, dbOpts...)
	if err != nil {
		return nil, err
	}
	if err := sqlitedb.CheckIntegrity(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return db, nil
}

// restoreProfile loads the persisted current profile, creating the default
// profile when the store has none.
func (s *Store) restoreProfile(ctx context.Context) error {
	current, err := s.getSetting(ctx, settingCurrentProfile)
	if err != nil {
		return err
	}
	if current == "" {
		current = s.opts.DefaultProfile
	}

	exists, err := s.profileExists(ctx, current)
	if err != nil {
		return err
	}
	if !exists {
		profiles, err := s.ListProfiles(ctx)
		if err != nil {
			return err
		}
		if len(profiles) > 0 {
			current = profiles[0]
		} else {
			current = s.opts.DefaultProfile
			if _, err := sqlitedb.Exec(ctx, s.db,
				"INSERT OR IGNORE INTO profiles (name) VALUES (?)", current); err != nil {
				return fmt.Errorf("create default profile: %w", err)
			}
			s.logger.Info("created default profile", zap.String("profile", current))
		}
	}

	if err := s.setSetting(ctx, settingCurrentProfile, current); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = current
	s.mu.Unlock()
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// Ping verifies the connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return nil
}

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return migrate.CurrentVersion(ctx, s.db)
}

// CurrentProfile returns the active profile name.
func (s *Store) CurrentProfile() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) getSetting(ctx context.Context, key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %s: %w", key, err)
	}
	return value.String, nil
}

func (s *Store) setSetting(ctx context.Context, key, value string) error {
	_, err := sqlitedb.Exec(ctx, s.db,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}
