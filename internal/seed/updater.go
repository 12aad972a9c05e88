package seed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/fennsaji/call-shield-sub001/internal/platform/metrics"
)

type Status string

const (
	StatusUpToDate Status = "up_to_date"
	StatusUpdated  Status = "updated"
)

type UpdateResult struct {
	Status  Status
	Version int64
	Entries int
}

// RetryConfig bounds UpdateWithRetry.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 4, InitialInterval: 2 * time.Second, MaxInterval: time.Minute}
}

type Option func(*Updater)

// WithProgress mirrors every downloaded byte to w.
func WithProgress(w io.Writer) Option {
	return func(u *Updater) { u.progress = w }
}

func WithRetry(cfg RetryConfig) Option {
	return func(u *Updater) { u.retry = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(u *Updater) { u.now = now }
}

// Updater keeps the local seed dataset in sync with the published manifest.
type Updater struct {
	source          ports.SeedSource
	store           ports.SeedStore
	deviceTokenHash string
	progress        io.Writer
	retry           RetryConfig
	now             func() time.Time
	logger          *slog.Logger
}

func NewUpdater(source ports.SeedSource, store ports.SeedStore, deviceTokenHash string, logger *slog.Logger, opts ...Option) *Updater {
	u := &Updater{
		source:          source,
		store:           store,
		deviceTokenHash: deviceTokenHash,
		retry:           DefaultRetryConfig(),
		now:             time.Now,
		logger:          logger.With("component", "seed_updater"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Update installs the published dataset when it is newer than the local one.
// The download is verified against the manifest digest before anything is
// written; on ErrChecksumMismatch the previous dataset stays in place.
func (u *Updater) Update(ctx context.Context) (UpdateResult, error) {
	manifest, err := u.source.FetchManifest(ctx, u.deviceTokenHash)
	if errors.Is(err, domain.ErrNotFound) {
		u.logger.InfoContext(ctx, "no seed dataset published yet")
		return UpdateResult{Status: StatusUpToDate}, nil
	}
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to fetch seed manifest: %w", err)
	}

	local, err := u.store.SeedVersion(ctx)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to read local seed version: %w", err)
	}
	if local != nil && local.Version >= manifest.Version {
		return UpdateResult{Status: StatusUpToDate, Version: local.Version}, nil
	}

	body, err := u.source.StreamDownload(ctx, manifest.DownloadURL)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("failed to download seed dataset: %w", err)
	}
	defer body.Close()

	digest := sha256.New()
	var r io.Reader = io.TeeReader(body, digest)
	if u.progress != nil {
		r = io.TeeReader(r, u.progress)
	}

	entries, err := Parse(r)
	if err != nil {
		metrics.RecordSeedUpdate("invalid")
		return UpdateResult{}, err
	}
	// Trailing bytes the CSV reader left unread still count toward the digest.
	if _, err := io.Copy(io.Discard, r); err != nil {
		return UpdateResult{}, fmt.Errorf("failed to read seed dataset: %w", err)
	}

	got := hex.EncodeToString(digest.Sum(nil))
	if !equalDigest(got, manifest.SHA256) {
		metrics.RecordSeedUpdate("checksum_mismatch")
		u.logger.WarnContext(ctx, "seed dataset rejected",
			"version", manifest.Version, "expected", manifest.SHA256, "actual", got)
		return UpdateResult{}, fmt.Errorf("%w: version %d", domain.ErrChecksumMismatch, manifest.Version)
	}

	version := domain.SeedVersion{Version: manifest.Version, SHA256: got, UpdatedAt: u.now()}
	if err := u.store.ReplaceAll(ctx, version, entries); err != nil {
		return UpdateResult{}, fmt.Errorf("failed to install seed dataset: %w", err)
	}

	metrics.RecordSeedUpdate("updated")
	u.logger.InfoContext(ctx, "seed dataset installed", "version", manifest.Version, "entries", len(entries))
	return UpdateResult{Status: StatusUpdated, Version: manifest.Version, Entries: len(entries)}, nil
}

// UpdateWithRetry runs Update with bounded exponential backoff and returns
// the last error once the retries are exhausted.
func (u *Updater) UpdateWithRetry(ctx context.Context) (UpdateResult, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = u.retry.InitialInterval
	expBackoff.MaxInterval = u.retry.MaxInterval
	expBackoff.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(u.retry.MaxRetries)), ctx)

	var result UpdateResult
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		result, err = u.Update(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		u.logger.WarnContext(ctx, "seed update attempt failed", "attempt", attempt, "retry_in", wait, "error", err)
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		metrics.RecordSeedUpdate("failed")
		return UpdateResult{}, err
	}
	return result, nil
}
