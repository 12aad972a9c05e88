package devicestore

import (
	"context"
	"fmt"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
)

// ListTable is a whitelist or blocklist keyed by number hash.
type ListTable struct {
	store *Store
	table string
}

var _ ports.ListStore = (*ListTable)(nil)

func (s *Store) Whitelist() *ListTable { return &ListTable{store: s, table: "whitelist"} }
func (s *Store) Blocklist() *ListTable { return &ListTable{store: s, table: "blocklist"} }

func (l *ListTable) Contains(ctx context.Context, hash domain.NumberHash) (bool, error) {
	var exists int
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE number_hash = ?)`, l.table)
	if err := l.store.db.QueryRowContext(ctx, query, string(hash)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to query %s: %w", l.table, err)
	}
	return exists == 1, nil
}

func (l *ListTable) Add(ctx context.Context, entry domain.ListEntry) error {
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (number_hash, display_label, added_at) VALUES (?, ?, ?)
		ON CONFLICT(number_hash) DO UPDATE SET display_label = excluded.display_label
	`, l.table)
	if _, err := l.store.db.ExecContext(ctx, query, string(entry.NumberHash), entry.DisplayLabel, entry.AddedAt.UnixMilli()); err != nil {
		return fmt.Errorf("failed to add to %s: %w", l.table, err)
	}
	return nil
}

func (l *ListTable) Remove(ctx context.Context, hash domain.NumberHash) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE number_hash = ?`, l.table)
	res, err := l.store.db.ExecContext(ctx, query, string(hash))
	if err != nil {
		return fmt.Errorf("failed to remove from %s: %w", l.table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (l *ListTable) List(ctx context.Context) ([]domain.ListEntry, error) {
	query := fmt.Sprintf(`SELECT number_hash, display_label, added_at FROM %s ORDER BY added_at DESC`, l.table)
	rows, err := l.store.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", l.table, err)
	}
	defer rows.Close()

	var entries []domain.ListEntry
	for rows.Next() {
		var (
			e       domain.ListEntry
			hash    string
			addedAt int64
		)
		if err := rows.Scan(&hash, &e.DisplayLabel, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s entry: %w", l.table, err)
		}
		e.NumberHash = domain.NumberHash(hash)
		e.AddedAt = time.UnixMilli(addedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
