package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
)

// BuilderConfig selects which reputation records make it into the dataset.
type BuilderConfig struct {
	MinScore     float64
	MinReporters int
}

func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{MinScore: 0.6, MinReporters: 3}
}

type BuildResult struct {
	Manifest  domain.SeedManifest
	Published bool
}

// Builder exports high-confidence reputation records as a new seed version.
type Builder struct {
	manifests ports.SeedManifestStore
	publisher ports.SeedPublisher
	cfg       BuilderConfig
	now       func() time.Time
	logger    *slog.Logger
}

func NewBuilder(manifests ports.SeedManifestStore, publisher ports.SeedPublisher, cfg BuilderConfig, logger *slog.Logger) *Builder {
	return &Builder{
		manifests: manifests,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With("component", "seed_builder"),
	}
}

// Build publishes a new version unless the canonical content is unchanged
// since the latest manifest, in which case the latest manifest is returned.
func (b *Builder) Build(ctx context.Context) (BuildResult, error) {
	entries, err := b.manifests.SeedCandidates(ctx, b.cfg.MinScore, b.cfg.MinReporters)
	if err != nil {
		return BuildResult{}, fmt.Errorf("failed to load seed candidates: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].NumberHash < entries[j].NumberHash })

	data := Serialize(entries)
	sum := Checksum(data)

	latest, err := b.manifests.LatestManifest(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return BuildResult{}, fmt.Errorf("failed to load latest manifest: %w", err)
	}
	if latest != nil && latest.SHA256 == sum {
		b.logger.InfoContext(ctx, "seed dataset unchanged", "version", latest.Version)
		return BuildResult{Manifest: *latest}, nil
	}

	version := int64(1)
	if latest != nil {
		version = latest.Version + 1
	}

	manifest := domain.SeedManifest{
		Version:   version,
		SHA256:    sum,
		ObjectKey: fmt.Sprintf("seed/v%d.csv", version),
		RowCount:  len(entries),
		CreatedAt: b.now().UTC(),
	}
	if err := b.publisher.Publish(ctx, manifest.ObjectKey, data); err != nil {
		return BuildResult{}, fmt.Errorf("failed to upload seed dataset: %w", err)
	}
	if err := b.manifests.InsertManifest(ctx, manifest); err != nil {
		return BuildResult{}, fmt.Errorf("failed to record seed manifest: %w", err)
	}

	b.logger.InfoContext(ctx, "seed dataset published",
		"version", manifest.Version, "rows", manifest.RowCount, "object_key", manifest.ObjectKey)
	return BuildResult{Manifest: manifest, Published: true}, nil
}

// Catalog serves the latest manifest with a short-lived download link.
type Catalog struct {
	manifests ports.SeedManifestStore
	publisher ports.SeedPublisher
	urlExpiry time.Duration
}

func NewCatalog(manifests ports.SeedManifestStore, publisher ports.SeedPublisher, urlExpiry time.Duration) *Catalog {
	return &Catalog{manifests: manifests, publisher: publisher, urlExpiry: urlExpiry}
}

// Latest returns domain.ErrNotFound when nothing has been published.
func (c *Catalog) Latest(ctx context.Context) (*domain.SeedManifest, error) {
	manifest, err := c.manifests.LatestManifest(ctx)
	if err != nil {
		return nil, err
	}

	url, err := c.publisher.PresignedURL(ctx, manifest.ObjectKey, c.urlExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to sign seed download url: %w", err)
	}
	manifest.DownloadURL = url
	return manifest, nil
}
