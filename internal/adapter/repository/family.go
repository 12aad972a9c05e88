package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const selectPair = `
		SELECT id, parent_device_hash, child_device_hash, rules, rules_version, created_at, expires_at, revoked
		FROM family_pairs`

// CreatePair inserts pair after retiring any expired pair left for the same
// child. A child holds at most one unrevoked pair; a second insert fails
// with domain.ErrConflict.
func (r *PostgresRepository) CreatePair(ctx context.Context, pair domain.FamilyPair) error {
	rules, err := json.Marshal(pair.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode family rules: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE family_pairs SET revoked = true
		WHERE child_device_hash = $1 AND NOT revoked AND expires_at <= $2
	`, pair.ChildDeviceHash, pair.CreatedAt)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("failed to retire expired family pairs: %w", err)
	}

	query := `
		INSERT INTO family_pairs (id, parent_device_hash, child_device_hash, rules, rules_version, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.Exec(ctx, query,
		pair.ID,
		pair.ParentDeviceHash,
		pair.ChildDeviceHash,
		rules,
		pair.RulesVersion,
		pair.CreatedAt,
		pair.ExpiresAt,
		pair.Revoked,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("failed to insert family pair: %w", mapError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit family pair: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetPair(ctx context.Context, id string) (*domain.FamilyPair, error) {
	pairID, err := uuid.Parse(id)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	return scanPair(r.db.QueryRow(ctx, selectPair+" WHERE id = $1", pairID))
}

func (r *PostgresRepository) ActivePairForChild(ctx context.Context, childDeviceHash string, now time.Time) (*domain.FamilyPair, error) {
	query := selectPair + `
		WHERE child_device_hash = $1 AND NOT revoked AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1`
	return scanPair(r.db.QueryRow(ctx, query, childDeviceHash, now))
}

func (r *PostgresRepository) UpdatePair(ctx context.Context, pair domain.FamilyPair) error {
	rules, err := json.Marshal(pair.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode family rules: %w", err)
	}

	query := `
		UPDATE family_pairs
		SET rules = $2, rules_version = $3, expires_at = $4, revoked = $5
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, pair.ID, rules, pair.RulesVersion, pair.ExpiresAt, pair.Revoked)
	if err != nil {
		return fmt.Errorf("failed to update family pair: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeletePair(ctx context.Context, id string) error {
	pairID, err := uuid.Parse(id)
	if err != nil {
		return domain.ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM family_pairs WHERE id = $1`, pairID)
	if err != nil {
		return fmt.Errorf("failed to delete family pair: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPair(row pgx.Row) (*domain.FamilyPair, error) {
	var (
		pair  domain.FamilyPair
		rules []byte
	)
	err := row.Scan(
		&pair.ID,
		&pair.ParentDeviceHash,
		&pair.ChildDeviceHash,
		&rules,
		&pair.RulesVersion,
		&pair.CreatedAt,
		&pair.ExpiresAt,
		&pair.Revoked,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &pair.Rules); err != nil {
			return nil, fmt.Errorf("failed to decode family rules: %w", err)
		}
	}
	return &pair, nil
}
