package repository

import (
	"context"
	"fmt"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

func (r *PostgresRepository) LatestManifest(ctx context.Context) (*domain.SeedManifest, error) {
	query := `
		SELECT version, sha256, object_key, row_count, created_at
		FROM seed_manifests
		ORDER BY version DESC
		LIMIT 1
	`
	var m domain.SeedManifest
	err := r.db.QueryRow(ctx, query).Scan(&m.Version, &m.SHA256, &m.ObjectKey, &m.RowCount, &m.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

func (r *PostgresRepository) InsertManifest(ctx context.Context, m domain.SeedManifest) error {
	query := `
		INSERT INTO seed_manifests (version, sha256, object_key, row_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.Exec(ctx, query, m.Version, m.SHA256, m.ObjectKey, m.RowCount, m.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert seed manifest: %w", mapError(err))
	}
	return nil
}

// SeedCandidates lists categorised numbers above the thresholds, leaving out
// anything with an unresolved hardening flag.
func (r *PostgresRepository) SeedCandidates(ctx context.Context, minScore float64, minReporters int) ([]domain.SeedEntry, error) {
	query := `
		SELECT r.number_hash, r.category, r.confidence_score
		FROM reputation r
		WHERE r.confidence_score >= $1
		  AND r.unique_reporters >= $2
		  AND r.category <> ''
		  AND NOT EXISTS (
		      SELECT 1 FROM reputation_flags f
		      WHERE f.number_hash = r.number_hash AND NOT f.resolved
		  )
		ORDER BY r.number_hash
	`
	rows, err := r.db.Query(ctx, query, minScore, minReporters)
	if err != nil {
		return nil, fmt.Errorf("failed to query seed candidates: %w", err)
	}
	defer rows.Close()

	var entries []domain.SeedEntry
	for rows.Next() {
		var (
			hash     string
			category string
			score    float64
		)
		if err := rows.Scan(&hash, &category, &score); err != nil {
			return nil, fmt.Errorf("failed to scan seed candidate: %w", err)
		}
		entries = append(entries, domain.SeedEntry{
			NumberHash: domain.NumberHash(hash),
			Category:   domain.Category(category),
			Score:      score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}
