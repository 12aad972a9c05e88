package devicestore

import (
	"context"
	"fmt"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

func (s *Store) Rules(ctx context.Context) ([]domain.PrefixRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT prefix, action, label, added_at FROM prefix_rules
		ORDER BY length(prefix) DESC, prefix
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prefix rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.PrefixRule
	for rows.Next() {
		var (
			r       domain.PrefixRule
			action  string
			addedAt int64
		)
		if err := rows.Scan(&r.Prefix, &action, &r.Label, &addedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prefix rule: %w", err)
		}
		r.Action = domain.PrefixAction(action)
		r.AddedAt = time.UnixMilli(addedAt)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *Store) AddRule(ctx context.Context, rule domain.PrefixRule) error {
	if !rule.Action.Valid() {
		return fmt.Errorf("%w: prefix action %q", domain.ErrValidation, rule.Action)
	}
	if rule.AddedAt.IsZero() {
		rule.AddedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prefix_rules (prefix, action, label, added_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(prefix) DO UPDATE SET action = excluded.action, label = excluded.label
	`, rule.Prefix, string(rule.Action), rule.Label, rule.AddedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save prefix rule: %w", err)
	}
	return nil
}

func (s *Store) RemoveRule(ctx context.Context, prefix string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM prefix_rules WHERE prefix = ?`, prefix)
	if err != nil {
		return fmt.Errorf("failed to delete prefix rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
