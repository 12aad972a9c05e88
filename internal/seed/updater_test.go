package seed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/adapter/devicestore"
	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	hashA = domain.NumberHash(strings.Repeat("a", 64))
	hashB = domain.NumberHash(strings.Repeat("b", 64))
	hashC = domain.NumberHash(strings.Repeat("c", 64))
)

type fakeSource struct {
	manifest    *domain.SeedManifest
	manifestErr error
	body        []byte
	downloads   int
	failFirst   int
}

func (f *fakeSource) FetchManifest(context.Context, string) (*domain.SeedManifest, error) {
	if f.manifestErr != nil {
		return nil, f.manifestErr
	}
	m := *f.manifest
	return &m, nil
}

func (f *fakeSource) StreamDownload(context.Context, string) (io.ReadCloser, error) {
	f.downloads++
	if f.downloads <= f.failFirst {
		return nil, errors.New("connection reset")
	}
	return io.NopCloser(bytes.NewReader(f.body)), nil
}

func openStore(t *testing.T) *devicestore.Store {
	t.Helper()
	store, err := devicestore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func publish(version int64, entries ...domain.SeedEntry) *fakeSource {
	data := Serialize(entries)
	return &fakeSource{
		manifest: &domain.SeedManifest{Version: version, SHA256: Checksum(data), DownloadURL: "https://seed.example/v"},
		body:     data,
	}
}

func TestSerialize_Canonical(t *testing.T) {
	data := Serialize([]domain.SeedEntry{
		{NumberHash: hashA, Category: domain.CategoryLoanScam, Score: 0.87},
		{NumberHash: hashB, Category: domain.CategoryPhishing, Score: 1},
	})
	assert.Equal(t, string(hashA)+",loan_scam,0.87\n"+string(hashB)+",phishing,1", string(data))
}

func TestParse_RejectsBadRows(t *testing.T) {
	tests := map[string]string{
		"too few fields":   string(hashA) + ",loan_scam",
		"bad hash":         "xyz,loan_scam,0.5",
		"unknown category": string(hashA) + ",robocall,0.5",
		"score above one":  string(hashA) + ",loan_scam,1.5",
		"score not number": string(hashA) + ",loan_scam,high",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestUpdate_InstallsNewerVersion(t *testing.T) {
	store := openStore(t)
	src := publish(3,
		domain.SeedEntry{NumberHash: hashA, Category: domain.CategoryLoanScam, Score: 0.87},
		domain.SeedEntry{NumberHash: hashB, Category: domain.CategoryTelemarketing, Score: 0.65},
	)
	var progress bytes.Buffer
	u := NewUpdater(src, store, "device", logger.Discard(), WithProgress(&progress))

	res, err := u.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Status: StatusUpdated, Version: 3, Entries: 2}, res)
	assert.Equal(t, src.body, progress.Bytes())

	entry, err := store.GetSeed(context.Background(), hashA)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.CategoryLoanScam, entry.Category)

	version, err := store.SeedVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), version.Version)
	assert.Equal(t, src.manifest.SHA256, version.SHA256)
}

func TestUpdate_SkipsWhenCurrent(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.ReplaceAll(context.Background(), domain.SeedVersion{Version: 5, SHA256: "old"}, nil))
	src := publish(5, domain.SeedEntry{NumberHash: hashA, Category: domain.CategoryOther, Score: 0.9})

	res, err := NewUpdater(src, store, "device", logger.Discard()).Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusUpToDate, res.Status)
	assert.Zero(t, src.downloads)
}

func TestUpdate_ChecksumMismatchKeepsOldDataset(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	old := domain.SeedVersion{Version: 1, SHA256: "previous"}
	require.NoError(t, store.ReplaceAll(ctx, old, []domain.SeedEntry{
		{NumberHash: hashC, Category: domain.CategoryJobScam, Score: 0.7},
	}))

	src := publish(2, domain.SeedEntry{NumberHash: hashA, Category: domain.CategoryLoanScam, Score: 0.87})
	src.manifest.SHA256 = strings.Repeat("0", 64)

	_, err := NewUpdater(src, store, "device", logger.Discard()).Update(ctx)
	require.ErrorIs(t, err, domain.ErrChecksumMismatch)

	entry, err := store.GetSeed(ctx, hashA)
	require.NoError(t, err)
	assert.Nil(t, entry, "rows from the rejected download must not be visible")

	kept, err := store.GetSeed(ctx, hashC)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	version, err := store.SeedVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version.Version)
	assert.Equal(t, "previous", version.SHA256)
}

func TestUpdate_DigestComparisonIgnoresCase(t *testing.T) {
	store := openStore(t)
	src := publish(1, domain.SeedEntry{NumberHash: hashA, Category: domain.CategoryLoanScam, Score: 0.8})
	src.manifest.SHA256 = strings.ToUpper(src.manifest.SHA256)

	res, err := NewUpdater(src, store, "device", logger.Discard()).Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, res.Status)
}

func TestUpdate_NoManifestPublished(t *testing.T) {
	src := &fakeSource{manifestErr: domain.ErrNotFound}

	res, err := NewUpdater(src, openStore(t), "device", logger.Discard()).Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusUpToDate, res.Status)
}

func TestUpdateWithRetry(t *testing.T) {
	fast := RetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

	t.Run("recovers from transient failures", func(t *testing.T) {
		src := publish(1, domain.SeedEntry{NumberHash: hashA, Category: domain.CategoryLoanScam, Score: 0.8})
		src.failFirst = 2

		res, err := NewUpdater(src, openStore(t), "device", logger.Discard(), WithRetry(fast)).UpdateWithRetry(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StatusUpdated, res.Status)
		assert.Equal(t, 3, src.downloads)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		src := publish(1, domain.SeedEntry{NumberHash: hashA, Category: domain.CategoryLoanScam, Score: 0.8})
		src.manifest.SHA256 = strings.Repeat("f", 64)

		_, err := NewUpdater(src, openStore(t), "device", logger.Discard(), WithRetry(fast)).UpdateWithRetry(context.Background())
		require.ErrorIs(t, err, domain.ErrChecksumMismatch)
		assert.Equal(t, 4, src.downloads)
	})
}
