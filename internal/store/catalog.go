package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/questledger/internal/catalog"
	"github.com/JakeFAU/questledger/internal/sqlitedb"
)

// LoadCatalog returns the stored catalog, or an empty one when none was saved.
func (s *Store) LoadCatalog(ctx context.Context) (catalog.Catalog, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, "SELECT blob FROM catalog WHERE key = ?", catalogKey).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.Catalog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	c, err := catalog.Decode([]byte(blob))
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return c, nil
}

// SaveCatalog replaces the stored catalog wholesale.
func (s *Store) SaveCatalog(ctx context.Context, c catalog.Catalog) error {
	data, err := catalog.Encode(c)
	if err != nil {
		return err
	}
	_, err = sqlitedb.Exec(ctx, s.db,
		`INSERT INTO catalog (key, blob) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET blob = excluded.blob`, catalogKey, string(data))
	if err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	s.logUntracked(ctx, c)
	return nil
}

// EnsureCatalog seeds baseline when no catalog has been stored yet and returns
// the catalog in effect.
func (s *Store) EnsureCatalog(ctx context.Context, baseline catalog.Catalog) (catalog.Catalog, error) {
	current, err := s.LoadCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if len(current) > 0 {
		return current, nil
	}
	seed := baseline.Clone()
	if seed == nil {
		seed = catalog.Catalog{}
	}
	if err := s.SaveCatalog(ctx, seed); err != nil {
		return nil, err
	}
	s.logger.Info("seeded baseline catalog", zap.Int("categories", len(seed)))
	return seed, nil
}

func (s *Store) logUntracked(ctx context.Context, c catalog.Catalog) {
	statuses, err := s.Statuses(ctx)
	if err != nil {
		s.logger.Warn("untracked entry check failed", zap.Error(err))
		return
	}
	untracked := 0
	for name := range c.AllTrackable() {
		if _, ok := statuses[name]; !ok {
			untracked++
		}
	}
	if untracked > 0 {
		s.logger.Info("catalog has untracked entries",
			zap.String("profile", s.CurrentProfile()), zap.Int("untracked", untracked))
	}
}
