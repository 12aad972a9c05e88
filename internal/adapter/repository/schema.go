package repository

import (
	"context"
	"fmt"
)

// schema is applied idempotently at startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS reputation (
		number_hash      TEXT PRIMARY KEY,
		report_count     INTEGER NOT NULL DEFAULT 0,
		unique_reporters INTEGER NOT NULL DEFAULT 0,
		negative_signals INTEGER NOT NULL DEFAULT 0,
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		category         TEXT NOT NULL DEFAULT '',
		last_reported_at TIMESTAMPTZ,
		last_computed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS report_events (
		id                UUID PRIMARY KEY,
		number_hash       TEXT NOT NULL,
		device_token_hash TEXT NOT NULL,
		category          TEXT NOT NULL,
		reported_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS report_events_number_time ON report_events (number_hash, reported_at)`,
	`CREATE INDEX IF NOT EXISTS report_events_time ON report_events (reported_at)`,
	`CREATE TABLE IF NOT EXISTS correction_events (
		id                UUID PRIMARY KEY,
		number_hash       TEXT NOT NULL,
		device_token_hash TEXT NOT NULL,
		corrected_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS correction_events_number_time ON correction_events (number_hash, corrected_at)`,
	`CREATE TABLE IF NOT EXISTS reporters (
		number_hash       TEXT NOT NULL,
		device_token_hash TEXT NOT NULL,
		first_reported_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (number_hash, device_token_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS category_votes (
		number_hash TEXT NOT NULL,
		category    TEXT NOT NULL,
		votes       INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (number_hash, category)
	)`,
	`CREATE TABLE IF NOT EXISTS quarantine (
		number_hash    TEXT PRIMARY KEY,
		trigger_reason TEXT NOT NULL,
		window_count   INTEGER NOT NULL,
		quarantined_at TIMESTAMPTZ NOT NULL,
		expires_at     TIMESTAMPTZ NOT NULL,
		reviewed       BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS reputation_flags (
		id          BIGSERIAL PRIMARY KEY,
		number_hash TEXT NOT NULL,
		reason      TEXT NOT NULL,
		flagged_at  TIMESTAMPTZ NOT NULL,
		resolved    BOOLEAN NOT NULL DEFAULT false,
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS reputation_flags_unresolved ON reputation_flags (number_hash, reason) WHERE NOT resolved`,
	`CREATE TABLE IF NOT EXISTS family_pairs (
		id                 UUID PRIMARY KEY,
		parent_device_hash TEXT NOT NULL,
		child_device_hash  TEXT NOT NULL,
		rules              JSONB NOT NULL DEFAULT '{}',
		rules_version      INTEGER NOT NULL DEFAULT 0,
		created_at         TIMESTAMPTZ NOT NULL,
		expires_at         TIMESTAMPTZ NOT NULL,
		revoked            BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS family_pairs_child_live ON family_pairs (child_device_hash) WHERE NOT revoked`,
	`CREATE TABLE IF NOT EXISTS seed_manifests (
		version    BIGINT PRIMARY KEY,
		sha256     TEXT NOT NULL,
		object_key TEXT NOT NULL,
		row_count  INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates any missing tables and indexes.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
