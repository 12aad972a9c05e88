package domain

import (
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryTelemarketing  Category = "telemarketing"
	CategoryLoanScam       Category = "loan_scam"
	CategoryInvestmentScam Category = "investment_scam"
	CategoryImpersonation  Category = "impersonation"
	CategoryPhishing       Category = "phishing"
	CategoryJobScam        Category = "job_scam"
	CategoryOther          Category = "other"
)

var categories = map[Category]struct{}{
	CategoryTelemarketing:  {},
	CategoryLoanScam:       {},
	CategoryInvestmentScam: {},
	CategoryImpersonation:  {},
	CategoryPhishing:       {},
	CategoryJobScam:        {},
	CategoryOther:          {},
}

func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

// ReputationRecord is the aggregated crowd verdict for one number.
type ReputationRecord struct {
	NumberHash      NumberHash
	ReportCount     int
	UniqueReporters int
	NegativeSignals int
	ConfidenceScore float64
	Category        Category
	LastReportedAt  *time.Time
	LastComputedAt  time.Time
}

type QuarantineEntry struct {
	NumberHash    NumberHash
	TriggerReason string
	WindowCount   int
	QuarantinedAt time.Time
	ExpiresAt     time.Time
	Reviewed      bool
}

// Active reports whether the quarantine still caps the score at now.
func (q QuarantineEntry) Active(now time.Time) bool {
	return !q.Reviewed && now.Before(q.ExpiresAt)
}

type FlagReason string

const (
	FlagSpike       FlagReason = "spike"
	FlagLowTrust    FlagReason = "low_trust"
	FlagOscillation FlagReason = "oscillation"
)

type ReputationFlag struct {
	NumberHash NumberHash
	Reason     FlagReason
	FlaggedAt  time.Time
	Resolved   bool
}

type ReportEvent struct {
	ID              uuid.UUID
	NumberHash      NumberHash
	DeviceTokenHash string
	Category        Category
	ReportedAt      time.Time
}

type CorrectionEvent struct {
	ID              uuid.UUID
	NumberHash      NumberHash
	DeviceTokenHash string
	CorrectedAt     time.Time
}

type CategoryVote struct {
	Category Category
	Votes    int
}

// SeedManifest describes one published seed dataset.
type SeedManifest struct {
	Version     int64     `json:"version"`
	SHA256      string    `json:"sha256"`
	DownloadURL string    `json:"download_url"`
	ObjectKey   string    `json:"-"`
	RowCount    int       `json:"-"`
	CreatedAt   time.Time `json:"-"`
}

// FamilyPair links a parent device to a child device that follows the
// parent's screening rules.
type FamilyPair struct {
	ID               uuid.UUID
	ParentDeviceHash string
	ChildDeviceHash  string
	Rules            FamilyRules
	RulesVersion     int
	CreatedAt        time.Time
	ExpiresAt        time.Time
	Revoked          bool
}

// Member reports whether deviceHash is either side of the pair.
func (p FamilyPair) Member(deviceHash string) bool {
	return deviceHash == p.ParentDeviceHash || deviceHash == p.ChildDeviceHash
}

type FamilyRules struct {
	BlockedHashes []string           `json:"blocked_hashes"`
	PrefixRules   []FamilyPrefixRule `json:"prefix_rules"`
}

type FamilyPrefixRule struct {
	Prefix string       `json:"prefix"`
	Action PrefixAction `json:"action"`
}
