// Package lookup resolves the reputation of a caller from the local seed
// dataset and, failing that, from the backend.
package lookup

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fennsaji/call-shield-sub001/internal/breaker"
	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/fennsaji/call-shield-sub001/internal/platform/metrics"
)

type Source string

const (
	SourceSeedDB   Source = "SEED_DB"
	SourceRemote   Source = "REMOTE"
	SourceNotFound Source = "NOT_FOUND"
)

type Result struct {
	Score           float64
	Category        string
	ReportCount     int
	UniqueReporters int
	Source          Source
}

var notFound = Result{Source: SourceNotFound}

// Repository never returns an error: lookups are best effort and every
// failure degrades to NOT_FOUND.
type Repository struct {
	seed    ports.SeedStore
	remote  ports.ReputationClient
	breaker *breaker.Breaker
	logger  *slog.Logger
}

// NewRepository builds a repository. remote may be nil for offline devices.
func NewRepository(seed ports.SeedStore, remote ports.ReputationClient, cb *breaker.Breaker, logger *slog.Logger) *Repository {
	return &Repository{
		seed:    seed,
		remote:  remote,
		breaker: cb,
		logger:  logger.With("component", "reputation_repository"),
	}
}

func (r *Repository) Lookup(ctx context.Context, hash domain.NumberHash) Result {
	entry, err := r.seed.GetSeed(ctx, hash)
	if err != nil {
		r.logger.WarnContext(ctx, "seed lookup failed", "number_hash", hash, "error", err)
	}
	if entry != nil {
		return Result{
			Score:    entry.Score,
			Category: string(entry.Category),
			Source:   SourceSeedDB,
		}
	}

	if r.remote == nil {
		return notFound
	}

	var (
		rep     *ports.RemoteReputation
		limited error
	)
	call := func(ctx context.Context) error {
		var err error
		rep, err = r.remote.LookupReputation(ctx, hash)
		// Quota rejections do not count as breaker failures.
		if errors.Is(err, domain.ErrRateLimited) {
			limited = err
			return nil
		}
		return err
	}
	if r.breaker != nil {
		err = r.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	if err == nil && limited != nil {
		err = limited
	}

	if err != nil {
		r.logger.DebugContext(ctx, "remote lookup absorbed", "number_hash", hash, "error", err)
		metrics.RecordRemoteLookupError(errorKind(err))
		return notFound
	}
	if rep == nil || (rep.ConfidenceScore == 0 && rep.UniqueReporters == 0) {
		return notFound
	}

	return Result{
		Score:           rep.ConfidenceScore,
		Category:        rep.Category,
		ReportCount:     rep.ReportCount,
		UniqueReporters: rep.UniqueReporters,
		Source:          SourceRemote,
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, breaker.ErrOpen):
		return "circuit_open"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}
