package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/jackc/pgx/v5"
)

const selectRecord = `
		SELECT number_hash, report_count, unique_reporters, negative_signals,
		       confidence_score, category, last_reported_at, last_computed_at
		FROM reputation
		WHERE number_hash = $1`

// WithinTx runs fn in a transaction, committing only when fn succeeds.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx ports.ReputationTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&reputationTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetRecord(ctx context.Context, hash domain.NumberHash) (*domain.ReputationRecord, error) {
	return scanRecord(r.db.QueryRow(ctx, selectRecord, string(hash)))
}

func scanRecord(row pgx.Row) (*domain.ReputationRecord, error) {
	var (
		rec      domain.ReputationRecord
		hash     string
		category string
	)
	err := row.Scan(
		&hash,
		&rec.ReportCount,
		&rec.UniqueReporters,
		&rec.NegativeSignals,
		&rec.ConfidenceScore,
		&category,
		&rec.LastReportedAt,
		&rec.LastComputedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	rec.NumberHash = domain.NumberHash(hash)
	rec.Category = domain.Category(category)
	return &rec, nil
}

type reputationTx struct {
	tx pgx.Tx
}

func (t *reputationTx) LockRecord(ctx context.Context, hash domain.NumberHash) (*domain.ReputationRecord, error) {
	return scanRecord(t.tx.QueryRow(ctx, selectRecord+" FOR UPDATE", string(hash)))
}

func (t *reputationTx) EnsureRecord(ctx context.Context, hash domain.NumberHash, now time.Time) (*domain.ReputationRecord, error) {
	query := `
		INSERT INTO reputation (number_hash, last_computed_at)
		VALUES ($1, $2)
		ON CONFLICT (number_hash) DO NOTHING
	`
	if _, err := t.tx.Exec(ctx, query, string(hash), now); err != nil {
		return nil, fmt.Errorf("failed to create reputation record: %w", err)
	}
	return t.LockRecord(ctx, hash)
}

func (t *reputationTx) SaveRecord(ctx context.Context, rec *domain.ReputationRecord) error {
	query := `
		UPDATE reputation
		SET report_count = $2, unique_reporters = $3, negative_signals = $4,
		    confidence_score = $5, category = $6, last_reported_at = $7, last_computed_at = $8
		WHERE number_hash = $1
	`
	_, err := t.tx.Exec(ctx, query,
		string(rec.NumberHash),
		rec.ReportCount,
		rec.UniqueReporters,
		rec.NegativeSignals,
		rec.ConfidenceScore,
		string(rec.Category),
		rec.LastReportedAt,
		rec.LastComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save reputation record: %w", err)
	}
	return nil
}

func (t *reputationTx) AppendReportEvent(ctx context.Context, e domain.ReportEvent) error {
	query := `
		INSERT INTO report_events (id, number_hash, device_token_hash, category, reported_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := t.tx.Exec(ctx, query, e.ID, string(e.NumberHash), e.DeviceTokenHash, string(e.Category), e.ReportedAt); err != nil {
		return fmt.Errorf("failed to append report event: %w", err)
	}
	return nil
}

func (t *reputationTx) AppendCorrectionEvent(ctx context.Context, e domain.CorrectionEvent) error {
	query := `
		INSERT INTO correction_events (id, number_hash, device_token_hash, corrected_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := t.tx.Exec(ctx, query, e.ID, string(e.NumberHash), e.DeviceTokenHash, e.CorrectedAt); err != nil {
		return fmt.Errorf("failed to append correction event: %w", err)
	}
	return nil
}

func (t *reputationTx) InsertReporter(ctx context.Context, hash domain.NumberHash, deviceTokenHash string, now time.Time) (bool, error) {
	query := `
		INSERT INTO reporters (number_hash, device_token_hash, first_reported_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (number_hash, device_token_hash) DO NOTHING
	`
	tag, err := t.tx.Exec(ctx, query, string(hash), deviceTokenHash, now)
	if err != nil {
		return false, fmt.Errorf("failed to record reporter: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *reputationTx) IncrementVote(ctx context.Context, hash domain.NumberHash, category domain.Category) error {
	query := `
		INSERT INTO category_votes (number_hash, category, votes)
		VALUES ($1, $2, 1)
		ON CONFLICT (number_hash, category) DO UPDATE SET votes = category_votes.votes + 1
	`
	if _, err := t.tx.Exec(ctx, query, string(hash), string(category)); err != nil {
		return fmt.Errorf("failed to count category vote: %w", err)
	}
	return nil
}

func (t *reputationTx) TopVotes(ctx context.Context, hash domain.NumberHash, limit int) ([]domain.CategoryVote, error) {
	query := `
		SELECT category, votes
		FROM category_votes
		WHERE number_hash = $1
		ORDER BY votes DESC, category ASC
		LIMIT $2
	`
	rows, err := t.tx.Query(ctx, query, string(hash), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query category votes: %w", err)
	}
	defer rows.Close()

	var votes []domain.CategoryVote
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("failed to scan category vote: %w", err)
		}
		votes = append(votes, domain.CategoryVote{Category: domain.Category(category), Votes: n})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return votes, nil
}

func (t *reputationTx) CountReportsSince(ctx context.Context, hash domain.NumberHash, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM report_events WHERE number_hash = $1 AND reported_at >= $2`

	var n int
	if err := t.tx.QueryRow(ctx, query, string(hash), since).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count recent reports: %w", err)
	}
	return n, nil
}

func (t *reputationTx) UpsertQuarantine(ctx context.Context, q domain.QuarantineEntry) error {
	query := `
		INSERT INTO quarantine (number_hash, trigger_reason, window_count, quarantined_at, expires_at, reviewed)
		VALUES ($1, $2, $3, $4, $5, false)
		ON CONFLICT (number_hash) DO UPDATE
		SET trigger_reason = EXCLUDED.trigger_reason,
		    window_count = EXCLUDED.window_count,
		    quarantined_at = EXCLUDED.quarantined_at,
		    expires_at = EXCLUDED.expires_at,
		    reviewed = false
	`
	_, err := t.tx.Exec(ctx, query, string(q.NumberHash), q.TriggerReason, q.WindowCount, q.QuarantinedAt, q.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to quarantine number: %w", err)
	}
	return nil
}

func (t *reputationTx) ActiveQuarantine(ctx context.Context, hash domain.NumberHash, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM quarantine
			WHERE number_hash = $1 AND NOT reviewed AND expires_at > $2
		)
	`
	var active bool
	if err := t.tx.QueryRow(ctx, query, string(hash), now).Scan(&active); err != nil {
		return false, fmt.Errorf("failed to check quarantine: %w", err)
	}
	return active, nil
}
