// Package reputation aggregates crowd reports into per-number confidence
// scores and hardens them against coordinated abuse.
package reputation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/fennsaji/call-shield-sub001/internal/platform/metrics"
	"github.com/fennsaji/call-shield-sub001/internal/ratelimit"
	"github.com/google/uuid"
)

const (
	// PromotionLead is how many votes the leading category needs over the
	// runner-up before it replaces the recorded category.
	PromotionLead = 3

	VelocityWindow    = 60 * time.Minute
	VelocityThreshold = 5
	QuarantineTTL     = 48 * time.Hour
)

// Limits holds one limiter per operation. A nil limiter admits everything.
type Limits struct {
	Report  ratelimit.Limiter
	Correct ratelimit.Limiter
	Lookup  ratelimit.Limiter
}

type ReportResult struct {
	ConfidenceScore float64
	UniqueReporters int
	Quarantined     bool
}

type CorrectionResult struct {
	ConfidenceScore float64
}

type LookupResult struct {
	ConfidenceScore float64
	Category        string
	ReportCount     int
	UniqueReporters int
}

type Service struct {
	store  ports.ReputationStore
	limits Limits
	now    func() time.Time
	logger *slog.Logger
}

func NewService(store ports.ReputationStore, limits Limits, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		limits: limits,
		now:    time.Now,
		logger: logger.With("component", "reputation_service"),
	}
}

// WithClock replaces the service clock; intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SubmitReport ingests one spam report. Validation and rate limiting happen
// before anything is written.
func (s *Service) SubmitReport(ctx context.Context, hash domain.NumberHash, deviceTokenHash string, category domain.Category) (ReportResult, error) {
	if err := validateHashes(hash, deviceTokenHash); err != nil {
		return ReportResult{}, err
	}
	if !category.Valid() {
		return ReportResult{}, fmt.Errorf("%w: unknown category %q", domain.ErrValidation, category)
	}
	if err := s.admit(ctx, s.limits.Report, "report", deviceTokenHash); err != nil {
		return ReportResult{}, err
	}

	now := s.now().UTC()
	var (
		result      ReportResult
		newReporter bool
	)
	err := s.store.WithinTx(ctx, func(tx ports.ReputationTx) error {
		rec, err := tx.EnsureRecord(ctx, hash, now)
		if err != nil {
			return err
		}

		err = tx.AppendReportEvent(ctx, domain.ReportEvent{
			ID:              uuid.New(),
			NumberHash:      hash,
			DeviceTokenHash: deviceTokenHash,
			Category:        category,
			ReportedAt:      now,
		})
		if err != nil {
			return err
		}

		newReporter, err = tx.InsertReporter(ctx, hash, deviceTokenHash, now)
		if err != nil {
			return err
		}
		if err := tx.IncrementVote(ctx, hash, category); err != nil {
			return err
		}
		votes, err := tx.TopVotes(ctx, hash, 2)
		if err != nil {
			return err
		}

		rec.ReportCount++
		if newReporter {
			rec.UniqueReporters++
		}
		rec.Category = promoteCategory(rec.Category, votes)
		rec.LastReportedAt = &now

		recent, err := tx.CountReportsSince(ctx, hash, now.Add(-VelocityWindow))
		if err != nil {
			return err
		}
		if recent >= VelocityThreshold {
			err := tx.UpsertQuarantine(ctx, domain.QuarantineEntry{
				NumberHash:    hash,
				TriggerReason: "velocity",
				WindowCount:   recent,
				QuarantinedAt: now,
				ExpiresAt:     now.Add(QuarantineTTL),
			})
			if err != nil {
				return err
			}
			result.Quarantined = true
		}

		capped := result.Quarantined
		if !capped {
			if capped, err = tx.ActiveQuarantine(ctx, hash, now); err != nil {
				return err
			}
		}

		score := domain.CalculateConfidenceScore(rec.UniqueReporters, rec.NegativeSignals, rec.LastReportedAt, now)
		rec.ConfidenceScore = domain.CapScore(score, capped)
		rec.LastComputedAt = now
		if err := tx.SaveRecord(ctx, rec); err != nil {
			return err
		}

		result.ConfidenceScore = rec.ConfidenceScore
		result.UniqueReporters = rec.UniqueReporters
		return nil
	})
	if err != nil {
		return ReportResult{}, fmt.Errorf("failed to submit report: %w", err)
	}

	metrics.RecordReport(newReporter, result.Quarantined)
	if result.Quarantined {
		s.logger.WarnContext(ctx, "number quarantined", "number_hash", hash, "score", result.ConfidenceScore)
	}
	return result, nil
}

// SubmitCorrection records a "not spam" signal. Numbers with no record are
// left alone and score 0.
func (s *Service) SubmitCorrection(ctx context.Context, hash domain.NumberHash, deviceTokenHash string) (CorrectionResult, error) {
	if err := validateHashes(hash, deviceTokenHash); err != nil {
		return CorrectionResult{}, err
	}
	if err := s.admit(ctx, s.limits.Correct, "correct", deviceTokenHash); err != nil {
		return CorrectionResult{}, err
	}

	now := s.now().UTC()
	var result CorrectionResult
	err := s.store.WithinTx(ctx, func(tx ports.ReputationTx) error {
		rec, err := tx.LockRecord(ctx, hash)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			return err
		}

		err = tx.AppendCorrectionEvent(ctx, domain.CorrectionEvent{
			ID:              uuid.New(),
			NumberHash:      hash,
			DeviceTokenHash: deviceTokenHash,
			CorrectedAt:     now,
		})
		if err != nil {
			return err
		}

		quarantined, err := tx.ActiveQuarantine(ctx, hash, now)
		if err != nil {
			return err
		}

		rec.NegativeSignals++
		score := domain.CalculateConfidenceScore(rec.UniqueReporters, rec.NegativeSignals, rec.LastReportedAt, now)
		rec.ConfidenceScore = domain.CapScore(score, quarantined)
		rec.LastComputedAt = now
		if err := tx.SaveRecord(ctx, rec); err != nil {
			return err
		}

		result.ConfidenceScore = rec.ConfidenceScore
		return nil
	})
	if err != nil {
		return CorrectionResult{}, fmt.Errorf("failed to submit correction: %w", err)
	}

	metrics.RecordCorrection()
	return result, nil
}

// Lookup returns the stored verdict, or a zero result for unknown numbers.
func (s *Service) Lookup(ctx context.Context, hash domain.NumberHash, deviceTokenHash string) (LookupResult, error) {
	if err := validateHashes(hash, deviceTokenHash); err != nil {
		return LookupResult{}, err
	}
	if err := s.admit(ctx, s.limits.Lookup, "lookup", deviceTokenHash); err != nil {
		return LookupResult{}, err
	}

	rec, err := s.store.GetRecord(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return LookupResult{}, nil
		}
		return LookupResult{}, fmt.Errorf("failed to load reputation: %w", err)
	}
	return LookupResult{
		ConfidenceScore: rec.ConfidenceScore,
		Category:        string(rec.Category),
		ReportCount:     rec.ReportCount,
		UniqueReporters: rec.UniqueReporters,
	}, nil
}

func (s *Service) admit(ctx context.Context, l ratelimit.Limiter, op, key string) error {
	if l == nil {
		return nil
	}
	ok, err := l.Allow(ctx, op+":"+key)
	if err != nil {
		return fmt.Errorf("rate limiter unavailable: %w", err)
	}
	if !ok {
		metrics.RecordRateLimited(op)
		return domain.ErrRateLimited
	}
	return nil
}

// promoteCategory applies the voting rule: the first category is taken
// as-is, later ones must lead the runner-up by PromotionLead votes.
func promoteCategory(current domain.Category, top []domain.CategoryVote) domain.Category {
	if len(top) == 0 {
		return current
	}
	if current == "" {
		return top[0].Category
	}
	lead := top[0].Votes
	if len(top) > 1 {
		lead -= top[1].Votes
	}
	if lead >= PromotionLead {
		return top[0].Category
	}
	return current
}

func validateHashes(hash domain.NumberHash, deviceTokenHash string) error {
	if !domain.IsValidHash(string(hash)) {
		return fmt.Errorf("%w: number hash must be 64 lowercase hex characters", domain.ErrValidation)
	}
	if !domain.IsValidHash(deviceTokenHash) {
		return fmt.Errorf("%w: device token hash must be 64 lowercase hex characters", domain.ErrValidation)
	}
	return nil
}
