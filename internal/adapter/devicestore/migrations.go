package devicestore

import (
	"context"
	"database/sql"
	"fmt"
)

type migration struct {
	version     int
	description string
	statements  []string
}

var migrations = []migration{
	{
		version:     1,
		description: "lists, prefix rules and seed dataset",
		statements: []string{
			`CREATE TABLE whitelist (
				number_hash TEXT PRIMARY KEY,
				display_label TEXT NOT NULL,
				added_at INTEGER NOT NULL
			)`,
			`CREATE TABLE blocklist (
				number_hash TEXT PRIMARY KEY,
				display_label TEXT NOT NULL,
				added_at INTEGER NOT NULL
			)`,
			`CREATE TABLE prefix_rules (
				prefix TEXT PRIMARY KEY,
				action TEXT NOT NULL CHECK (action IN ('block', 'allow')),
				label TEXT NOT NULL DEFAULT '',
				added_at INTEGER NOT NULL
			)`,
			`CREATE TABLE seed_entries (
				number_hash TEXT PRIMARY KEY,
				category TEXT NOT NULL,
				score REAL NOT NULL
			)`,
			`CREATE TABLE seed_version (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				version INTEGER NOT NULL,
				sha256 TEXT NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
		},
	},
	{
		version:     2,
		description: "behavioral events and call history",
		statements: []string{
			`CREATE TABLE behavioral_events (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				number_hash TEXT NOT NULL,
				event_type TEXT NOT NULL,
				occurred_at INTEGER NOT NULL
			)`,
			`CREATE INDEX idx_events_hash_time ON behavioral_events(number_hash, occurred_at)`,
			`CREATE TABLE call_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				number_hash TEXT NOT NULL,
				display_label TEXT NOT NULL,
				outcome TEXT NOT NULL,
				confidence_score REAL NOT NULL DEFAULT 0,
				category TEXT,
				source TEXT NOT NULL,
				screened_at INTEGER NOT NULL
			)`,
		},
	},
	{
		version:     3,
		description: "preferences",
		statements: []string{
			`CREATE TABLE preferences (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`,
		},
	},
}

// SchemaVersion is the version the binary expects after migrating.
func SchemaVersion() int {
	return migrations[len(migrations)-1].version
}

func (s *Store) migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d (%s): %w", m.version, m.description, err)
				}
			}
			// PRAGMA does not accept bound parameters.
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, m.version)); err != nil {
				return fmt.Errorf("failed to set schema version %d: %w", m.version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
