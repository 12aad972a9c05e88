package devicestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

const defaultMaxHistory = domain.MaxHistoryRecords

// AppendHistory inserts a record and prunes the oldest beyond the cap.
func (s *Store) AppendHistory(ctx context.Context, record domain.CallHistoryRecord) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var category sql.NullString
		if record.Category != "" {
			category = sql.NullString{String: record.Category, Valid: true}
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO call_history (number_hash, display_label, outcome, confidence_score, category, source, screened_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, string(record.NumberHash), record.DisplayLabel, string(record.Outcome),
			record.ConfidenceScore, category, string(record.Source), record.ScreenedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to insert call history: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM call_history WHERE id NOT IN (
				SELECT id FROM call_history ORDER BY id DESC LIMIT ?
			)
		`, s.maxHistory)
		if err != nil {
			return fmt.Errorf("failed to prune call history: %w", err)
		}
		return nil
	})
}

func (s *Store) RecentHistory(ctx context.Context, limit int) ([]domain.CallHistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, number_hash, display_label, outcome, confidence_score, category, source, screened_at
		FROM call_history ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query call history: %w", err)
	}
	defer rows.Close()

	var records []domain.CallHistoryRecord
	for rows.Next() {
		var (
			r                     domain.CallHistoryRecord
			hash, outcome, source string
			category              sql.NullString
			screenedAt            int64
		)
		if err := rows.Scan(&r.ID, &hash, &r.DisplayLabel, &outcome, &r.ConfidenceScore, &category, &source, &screenedAt); err != nil {
			return nil, fmt.Errorf("failed to scan call history: %w", err)
		}
		r.NumberHash = domain.NumberHash(hash)
		r.Outcome = domain.Outcome(outcome)
		r.Category = category.String
		r.Source = domain.DecisionSource(source)
		r.ScreenedAt = time.UnixMilli(screenedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}
