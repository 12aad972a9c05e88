package devicestore

import (
	"context"
	"fmt"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

func (s *Store) AppendEvent(ctx context.Context, event domain.BehavioralEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO behavioral_events (number_hash, event_type, occurred_at) VALUES (?, ?, ?)`,
		string(event.NumberHash), string(event.Type), event.OccurredAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append behavioral event: %w", err)
	}
	return nil
}

func (s *Store) EventsSince(ctx context.Context, hash domain.NumberHash, since time.Time) ([]domain.BehavioralEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, occurred_at FROM behavioral_events
		WHERE number_hash = ? AND occurred_at >= ?
		ORDER BY occurred_at
	`, string(hash), since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query behavioral events: %w", err)
	}
	defer rows.Close()

	var events []domain.BehavioralEvent
	for rows.Next() {
		var (
			eventType  string
			occurredAt int64
		)
		if err := rows.Scan(&eventType, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan behavioral event: %w", err)
		}
		events = append(events, domain.BehavioralEvent{
			NumberHash: hash,
			Type:       domain.EventType(eventType),
			OccurredAt: time.UnixMilli(occurredAt),
		})
	}
	return events, rows.Err()
}

// PurgeEvents deletes events older than olderThan and trims every caller to
// its keepPerHash most recent events.
func (s *Store) PurgeEvents(ctx context.Context, olderThan time.Time, keepPerHash int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM behavioral_events WHERE occurred_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired events: %w", err)
	}
	expired, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `
		DELETE FROM behavioral_events WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY number_hash ORDER BY occurred_at DESC, id DESC
				) AS rn
				FROM behavioral_events
			) WHERE rn > ?
		)
	`, keepPerHash)
	if err != nil {
		return expired, fmt.Errorf("failed to trim events: %w", err)
	}
	trimmed, _ := res.RowsAffected()

	return expired + trimmed, nil
}
