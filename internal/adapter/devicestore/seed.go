package devicestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

// GetSeed returns the seed row for hash, or nil when the dataset has none.
func (s *Store) GetSeed(ctx context.Context, hash domain.NumberHash) (*domain.SeedEntry, error) {
	var (
		e        domain.SeedEntry
		category string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT category, score FROM seed_entries WHERE number_hash = ?`, string(hash),
	).Scan(&category, &e.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query seed entry: %w", err)
	}
	e.NumberHash = hash
	e.Category = domain.Category(category)
	return &e, nil
}

// SeedVersion returns the installed dataset version, or nil before the first install.
func (s *Store) SeedVersion(ctx context.Context) (*domain.SeedVersion, error) {
	var (
		v         domain.SeedVersion
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, sha256, updated_at FROM seed_version WHERE id = 1`,
	).Scan(&v.Version, &v.SHA256, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query seed version: %w", err)
	}
	v.UpdatedAt = time.UnixMilli(updatedAt)
	return &v, nil
}

// ReplaceAll swaps the entire dataset and its version record in one
// transaction, so readers see either the old or the new version.
func (s *Store) ReplaceAll(ctx context.Context, version domain.SeedVersion, entries []domain.SeedEntry) error {
	if version.UpdatedAt.IsZero() {
		version.UpdatedAt = time.Now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM seed_entries`); err != nil {
			return fmt.Errorf("failed to clear seed entries: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO seed_entries (number_hash, category, score) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare seed insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, string(e.NumberHash), string(e.Category), e.Score); err != nil {
				return fmt.Errorf("failed to insert seed entry: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO seed_version (id, version, sha256, updated_at) VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET version = excluded.version, sha256 = excluded.sha256, updated_at = excluded.updated_at
		`, version.Version, version.SHA256, version.UpdatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to save seed version: %w", err)
		}
		return nil
	})
}

func (s *Store) SeedCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seed_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count seed entries: %w", err)
	}
	return n, nil
}
