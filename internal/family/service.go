// Package family pairs a parent device with a child device that follows the
// parent's blocking rules.
package family

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/fennsaji/call-shield-sub001/internal/platform/metrics"
	"github.com/fennsaji/call-shield-sub001/internal/ratelimit"
	"github.com/google/uuid"
)

const (
	PairTTL = 30 * 24 * time.Hour

	maxBlockedHashes = 1000
	maxPrefixRules   = 100
)

var prefixPattern = regexp.MustCompile(`^\+[0-9]{1,14}$`)

type PairResult struct {
	PairID    uuid.UUID
	Token     string
	ExpiresAt time.Time
}

// SyncResult is the rule payload both sides of a pair converge on.
type SyncResult struct {
	Role         string
	Rules        domain.FamilyRules
	RulesVersion int
	ExpiresAt    time.Time
}

type Service struct {
	store   ports.FamilyStore
	billing ports.SubscriptionVerifier
	tokens  *Tokens
	limiter ratelimit.Limiter
	now     func() time.Time
	logger  *slog.Logger
}

// NewService builds the pairing service. limiter may be nil.
func NewService(store ports.FamilyStore, billing ports.SubscriptionVerifier, tokens *Tokens, limiter ratelimit.Limiter, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		billing: billing,
		tokens:  tokens,
		limiter: limiter,
		now:     time.Now,
		logger:  logger.With("component", "family"),
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.tokens.now = now
	return s
}

// Pair links child to parent after checking the parent's subscription.
// A child can belong to at most one active pair.
func (s *Service) Pair(ctx context.Context, parentDeviceHash, childDeviceHash, purchaseToken string) (PairResult, error) {
	if err := validateDevice(parentDeviceHash); err != nil {
		return PairResult{}, err
	}
	if err := validateDevice(childDeviceHash); err != nil {
		return PairResult{}, err
	}
	if parentDeviceHash == childDeviceHash {
		return PairResult{}, fmt.Errorf("%w: a device cannot pair with itself", domain.ErrValidation)
	}
	if purchaseToken == "" {
		return PairResult{}, fmt.Errorf("%w: purchase token is required", domain.ErrValidation)
	}
	if err := s.admit(ctx, parentDeviceHash); err != nil {
		return PairResult{}, err
	}
	if err := s.verify(ctx, purchaseToken); err != nil {
		return PairResult{}, err
	}

	now := s.now().UTC()
	_, err := s.store.ActivePairForChild(ctx, childDeviceHash, now)
	switch {
	case err == nil:
		return PairResult{}, fmt.Errorf("%w: device is already paired", domain.ErrConflict)
	case !errors.Is(err, domain.ErrNotFound):
		return PairResult{}, fmt.Errorf("failed to check existing pair: %w", err)
	}

	pair := domain.FamilyPair{
		ID:               uuid.New(),
		ParentDeviceHash: parentDeviceHash,
		ChildDeviceHash:  childDeviceHash,
		CreatedAt:        now,
		ExpiresAt:        now.Add(PairTTL),
	}
	if err := s.store.CreatePair(ctx, pair); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return PairResult{}, fmt.Errorf("%w: device is already paired", domain.ErrConflict)
		}
		return PairResult{}, fmt.Errorf("failed to create pair: %w", err)
	}

	token, err := s.tokens.Issue(pair.ID)
	if err != nil {
		return PairResult{}, err
	}

	s.logger.InfoContext(ctx, "family pair created", "pair_id", pair.ID, "expires_at", pair.ExpiresAt)
	return PairResult{PairID: pair.ID, Token: token, ExpiresAt: pair.ExpiresAt}, nil
}

// Sync returns the current rules to either side. When rules is non-nil the
// caller must be the parent, and the rules replace the stored ones.
func (s *Service) Sync(ctx context.Context, token, deviceHash string, rules *domain.FamilyRules) (SyncResult, error) {
	pair, err := s.activePair(ctx, token, deviceHash)
	if err != nil {
		return SyncResult{}, err
	}

	role := "child"
	if deviceHash == pair.ParentDeviceHash {
		role = "parent"
	}

	if rules != nil {
		if role != "parent" {
			return SyncResult{}, fmt.Errorf("%w: only the parent device can push rules", domain.ErrUnauthorized)
		}
		if err := validateRules(*rules); err != nil {
			return SyncResult{}, err
		}
		pair.Rules = *rules
		pair.RulesVersion++
		if err := s.store.UpdatePair(ctx, *pair); err != nil {
			return SyncResult{}, fmt.Errorf("failed to store family rules: %w", err)
		}
		s.logger.InfoContext(ctx, "family rules updated", "pair_id", pair.ID, "version", pair.RulesVersion)
	}

	return SyncResult{
		Role:         role,
		Rules:        pair.Rules,
		RulesVersion: pair.RulesVersion,
		ExpiresAt:    pair.ExpiresAt,
	}, nil
}

// Renew extends the pair by PairTTL from the later of now and its current
// expiry. Lapsed pairs can be renewed; revoked ones cannot.
func (s *Service) Renew(ctx context.Context, token, parentDeviceHash, purchaseToken string) (time.Time, error) {
	if purchaseToken == "" {
		return time.Time{}, fmt.Errorf("%w: purchase token is required", domain.ErrValidation)
	}
	pair, err := s.pairFor(ctx, token, parentDeviceHash)
	if err != nil {
		return time.Time{}, err
	}
	if pair.Revoked || pair.ParentDeviceHash != parentDeviceHash {
		return time.Time{}, fmt.Errorf("%w: pair", domain.ErrNotFound)
	}
	if err := s.verify(ctx, purchaseToken); err != nil {
		return time.Time{}, err
	}

	from := s.now().UTC()
	if pair.ExpiresAt.After(from) {
		from = pair.ExpiresAt
	}
	pair.ExpiresAt = from.Add(PairTTL)
	if err := s.store.UpdatePair(ctx, *pair); err != nil {
		return time.Time{}, fmt.Errorf("failed to renew pair: %w", err)
	}
	return pair.ExpiresAt, nil
}

// Revoke ends the pair from the parent side. The record is kept.
func (s *Service) Revoke(ctx context.Context, token, parentDeviceHash string) error {
	pair, err := s.activePair(ctx, token, parentDeviceHash)
	if err != nil {
		return err
	}
	if pair.ParentDeviceHash != parentDeviceHash {
		return fmt.Errorf("%w: pair", domain.ErrNotFound)
	}

	pair.Revoked = true
	if err := s.store.UpdatePair(ctx, *pair); err != nil {
		return fmt.Errorf("failed to revoke pair: %w", err)
	}
	s.logger.InfoContext(ctx, "family pair revoked", "pair_id", pair.ID)
	return nil
}

// Unpair removes the pair; either side may call it.
func (s *Service) Unpair(ctx context.Context, token, deviceHash string) error {
	pair, err := s.pairFor(ctx, token, deviceHash)
	if err != nil {
		return err
	}
	if err := s.store.DeletePair(ctx, pair.ID.String()); err != nil {
		return fmt.Errorf("failed to delete pair: %w", err)
	}
	s.logger.InfoContext(ctx, "family pair removed", "pair_id", pair.ID)
	return nil
}

// pairFor resolves token to a pair that deviceHash belongs to. Non-members
// get ErrNotFound so pair ids cannot be probed.
func (s *Service) pairFor(ctx context.Context, token, deviceHash string) (*domain.FamilyPair, error) {
	if err := validateDevice(deviceHash); err != nil {
		return nil, err
	}
	id, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	if err := s.admit(ctx, deviceHash); err != nil {
		return nil, err
	}

	pair, err := s.store.GetPair(ctx, id.String())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load pair: %w", err)
	}
	if !pair.Member(deviceHash) {
		return nil, fmt.Errorf("%w: pair", domain.ErrNotFound)
	}
	return pair, nil
}

func (s *Service) activePair(ctx context.Context, token, deviceHash string) (*domain.FamilyPair, error) {
	pair, err := s.pairFor(ctx, token, deviceHash)
	if err != nil {
		return nil, err
	}
	if pair.Revoked || !s.now().Before(pair.ExpiresAt) {
		return nil, fmt.Errorf("%w: pair is no longer active", domain.ErrNotFound)
	}
	return pair, nil
}

func (s *Service) admit(ctx context.Context, deviceHash string) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "family:"+deviceHash)
	if err != nil {
		return fmt.Errorf("rate limiter unavailable: %w", err)
	}
	if !ok {
		metrics.RecordRateLimited("family")
		return domain.ErrRateLimited
	}
	return nil
}

func (s *Service) verify(ctx context.Context, purchaseToken string) error {
	status, err := s.billing.Verify(ctx, purchaseToken)
	if err != nil {
		return fmt.Errorf("failed to verify subscription: %w", err)
	}
	if status != ports.SubscriptionActive {
		return domain.ErrPaymentRequired
	}
	return nil
}

func validateDevice(hash string) error {
	if !domain.IsValidHash(hash) {
		return fmt.Errorf("%w: device hash must be 64 lowercase hex characters", domain.ErrValidation)
	}
	return nil
}

func validateRules(rules domain.FamilyRules) error {
	if len(rules.BlockedHashes) > maxBlockedHashes {
		return fmt.Errorf("%w: at most %d blocked numbers", domain.ErrValidation, maxBlockedHashes)
	}
	if len(rules.PrefixRules) > maxPrefixRules {
		return fmt.Errorf("%w: at most %d prefix rules", domain.ErrValidation, maxPrefixRules)
	}
	for _, h := range rules.BlockedHashes {
		if !domain.IsValidHash(h) {
			return fmt.Errorf("%w: blocked number hash %q", domain.ErrValidation, h)
		}
	}
	for _, r := range rules.PrefixRules {
		if !prefixPattern.MatchString(r.Prefix) || !r.Action.Valid() {
			return fmt.Errorf("%w: prefix rule %q", domain.ErrValidation, r.Prefix)
		}
	}
	return nil
}
