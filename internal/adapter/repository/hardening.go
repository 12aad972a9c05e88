package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
)

func (r *PostgresRepository) NumberStatsSince(ctx context.Context, since time.Time) ([]ports.NumberReportStats, error) {
	query := `
		SELECT e.number_hash,
		       COUNT(*),
		       COUNT(DISTINCT e.device_token_hash),
		       (SELECT COUNT(*) FROM correction_events c
		        WHERE c.number_hash = e.number_hash AND c.corrected_at >= $1)
		FROM report_events e
		WHERE e.reported_at >= $1
		GROUP BY e.number_hash
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reports since %v: %w", since, err)
	}
	defer rows.Close()

	var stats []ports.NumberReportStats
	for rows.Next() {
		var (
			s    ports.NumberReportStats
			hash string
		)
		if err := rows.Scan(&hash, &s.TotalReports, &s.DistinctDevices, &s.Corrections); err != nil {
			return nil, fmt.Errorf("failed to scan report stats: %w", err)
		}
		s.NumberHash = domain.NumberHash(hash)
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return stats, nil
}

func (r *PostgresRepository) DeviceStatsSince(ctx context.Context, since time.Time) ([]ports.DeviceReportStats, error) {
	query := `
		SELECT device_token_hash, array_agg(DISTINCT number_hash ORDER BY number_hash)
		FROM report_events
		WHERE reported_at >= $1
		GROUP BY device_token_hash
	`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate devices since %v: %w", since, err)
	}
	defer rows.Close()

	var stats []ports.DeviceReportStats
	for rows.Next() {
		var (
			device  string
			numbers []string
		)
		if err := rows.Scan(&device, &numbers); err != nil {
			return nil, fmt.Errorf("failed to scan device stats: %w", err)
		}
		hashes := make([]domain.NumberHash, len(numbers))
		for i, n := range numbers {
			hashes[i] = domain.NumberHash(n)
		}
		stats = append(stats, ports.DeviceReportStats{DeviceTokenHash: device, Numbers: hashes})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return stats, nil
}

// InsertFlag relies on the partial unique index over unresolved flags.
func (r *PostgresRepository) InsertFlag(ctx context.Context, flag domain.ReputationFlag) (bool, error) {
	query := `
		INSERT INTO reputation_flags (number_hash, reason, flagged_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (number_hash, reason) WHERE NOT resolved DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, string(flag.NumberHash), string(flag.Reason), flag.FlaggedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert flag: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) DampenFlagged(ctx context.Context, factor float64, now time.Time) (int, error) {
	query := `
		UPDATE reputation
		SET confidence_score = confidence_score * $1, last_computed_at = $2
		WHERE number_hash IN (SELECT DISTINCT number_hash FROM reputation_flags WHERE NOT resolved)
	`
	tag, err := r.db.Exec(ctx, query, factor, now)
	if err != nil {
		return 0, fmt.Errorf("failed to dampen flagged numbers: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
