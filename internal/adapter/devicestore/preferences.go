package devicestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

const screeningPrefsKey = "screening"

// LoadPreferences returns the stored preferences, or the defaults when the
// user never changed anything.
func (s *Store) LoadPreferences(ctx context.Context) (domain.Preferences, error) {
	prefs := domain.DefaultPreferences()

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, screeningPrefsKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return prefs, nil
	}
	if err != nil {
		return prefs, fmt.Errorf("failed to load preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		return domain.DefaultPreferences(), fmt.Errorf("failed to decode preferences: %w", err)
	}
	return prefs, nil
}

func (s *Store) SavePreferences(ctx context.Context, prefs domain.Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, screeningPrefsKey, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
