package ports

import (
	"context"
	"io"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

// Device-side stores.

type ListStore interface {
	Contains(ctx context.Context, hash domain.NumberHash) (bool, error)
	Add(ctx context.Context, entry domain.ListEntry) error
	Remove(ctx context.Context, hash domain.NumberHash) error
	List(ctx context.Context) ([]domain.ListEntry, error)
}

type PrefixRuleStore interface {
	Rules(ctx context.Context) ([]domain.PrefixRule, error)
	AddRule(ctx context.Context, rule domain.PrefixRule) error
	RemoveRule(ctx context.Context, prefix string) error
}

// SeedStore holds the local mirror of the curated spam dataset.
// ReplaceAll must swap rows and version metadata atomically.
type SeedStore interface {
	GetSeed(ctx context.Context, hash domain.NumberHash) (*domain.SeedEntry, error)
	SeedVersion(ctx context.Context) (*domain.SeedVersion, error)
	ReplaceAll(ctx context.Context, version domain.SeedVersion, entries []domain.SeedEntry) error
	SeedCount(ctx context.Context) (int, error)
}

type EventStore interface {
	AppendEvent(ctx context.Context, event domain.BehavioralEvent) error
	EventsSince(ctx context.Context, hash domain.NumberHash, since time.Time) ([]domain.BehavioralEvent, error)
	PurgeEvents(ctx context.Context, olderThan time.Time, keepPerHash int) (int64, error)
}

type HistoryStore interface {
	AppendHistory(ctx context.Context, record domain.CallHistoryRecord) error
	RecentHistory(ctx context.Context, limit int) ([]domain.CallHistoryRecord, error)
}

type PreferenceStore interface {
	LoadPreferences(ctx context.Context) (domain.Preferences, error)
	SavePreferences(ctx context.Context, prefs domain.Preferences) error
}

// ContactDirectory answers whether a caller is in the user's address book.
type ContactDirectory interface {
	IsContact(ctx context.Context, hash domain.NumberHash) (bool, error)
}

// RemoteReputation is the backend view of a number as seen by the device.
type RemoteReputation struct {
	ConfidenceScore float64 `json:"confidence_score"`
	Category        string  `json:"category"`
	ReportCount     int     `json:"report_count"`
	UniqueReporters int     `json:"unique_reporters"`
}

type ReputationClient interface {
	LookupReputation(ctx context.Context, hash domain.NumberHash) (*RemoteReputation, error)
}

// SeedSource is the bulk downloader for the seed dataset.
type SeedSource interface {
	FetchManifest(ctx context.Context, deviceTokenHash string) (*domain.SeedManifest, error)
	StreamDownload(ctx context.Context, url string) (io.ReadCloser, error)
}

// Backend stores.

// ReputationStore runs every mutation for one number inside a transaction
// that holds a row lock on the number's record.
type ReputationStore interface {
	WithinTx(ctx context.Context, fn func(tx ReputationTx) error) error
	GetRecord(ctx context.Context, hash domain.NumberHash) (*domain.ReputationRecord, error)
}

type ReputationTx interface {
	// LockRecord returns the locked record, or domain.ErrNotFound.
	LockRecord(ctx context.Context, hash domain.NumberHash) (*domain.ReputationRecord, error)
	// EnsureRecord creates an empty record when none exists and locks it.
	EnsureRecord(ctx context.Context, hash domain.NumberHash, now time.Time) (*domain.ReputationRecord, error)
	SaveRecord(ctx context.Context, rec *domain.ReputationRecord) error

	AppendReportEvent(ctx context.Context, event domain.ReportEvent) error
	AppendCorrectionEvent(ctx context.Context, event domain.CorrectionEvent) error
	// InsertReporter reports whether the (number, device) pair was new.
	InsertReporter(ctx context.Context, hash domain.NumberHash, deviceTokenHash string, now time.Time) (bool, error)
	IncrementVote(ctx context.Context, hash domain.NumberHash, category domain.Category) error
	TopVotes(ctx context.Context, hash domain.NumberHash, limit int) ([]domain.CategoryVote, error)
	CountReportsSince(ctx context.Context, hash domain.NumberHash, since time.Time) (int, error)

	UpsertQuarantine(ctx context.Context, entry domain.QuarantineEntry) error
	ActiveQuarantine(ctx context.Context, hash domain.NumberHash, now time.Time) (bool, error)
}

// NumberReportStats aggregates report activity for one number in a window.
type NumberReportStats struct {
	NumberHash      domain.NumberHash
	TotalReports    int
	DistinctDevices int
	Corrections     int
}

// DeviceReportStats lists the numbers one device reported in a window.
type DeviceReportStats struct {
	DeviceTokenHash string
	Numbers         []domain.NumberHash
}

type HardeningStore interface {
	NumberStatsSince(ctx context.Context, since time.Time) ([]NumberReportStats, error)
	DeviceStatsSince(ctx context.Context, since time.Time) ([]DeviceReportStats, error)
	// InsertFlag reports false when an unresolved flag with the same reason exists.
	InsertFlag(ctx context.Context, flag domain.ReputationFlag) (bool, error)
	// DampenFlagged multiplies the score of every number with an unresolved
	// flag by factor and returns how many numbers were touched.
	DampenFlagged(ctx context.Context, factor float64, now time.Time) (int, error)
}

type FamilyStore interface {
	// CreatePair returns domain.ErrConflict when the child already holds an
	// unrevoked, unexpired pair.
	CreatePair(ctx context.Context, pair domain.FamilyPair) error
	GetPair(ctx context.Context, id string) (*domain.FamilyPair, error)
	ActivePairForChild(ctx context.Context, childDeviceHash string, now time.Time) (*domain.FamilyPair, error)
	UpdatePair(ctx context.Context, pair domain.FamilyPair) error
	DeletePair(ctx context.Context, id string) error
}

type SeedManifestStore interface {
	// LatestManifest returns domain.ErrNotFound when nothing is published.
	LatestManifest(ctx context.Context) (*domain.SeedManifest, error)
	InsertManifest(ctx context.Context, manifest domain.SeedManifest) error
	SeedCandidates(ctx context.Context, minScore float64, minReporters int) ([]domain.SeedEntry, error)
}

// SeedPublisher stores published seed datasets in object storage.
type SeedPublisher interface {
	Publish(ctx context.Context, objectKey string, data []byte) error
	PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

type SubscriptionStatus string

const (
	SubscriptionActive  SubscriptionStatus = "active"
	SubscriptionExpired SubscriptionStatus = "expired"
)

// SubscriptionVerifier checks a purchase token with the billing provider.
type SubscriptionVerifier interface {
	Verify(ctx context.Context, purchaseToken string) (SubscriptionStatus, error)
}
