package domain

import (
	"sort"
	"strings"
	"time"
)

const (
	// EventTTL is the hard retention of behavioral events.
	EventTTL = 24 * time.Hour
	// MaxEventsPerHash is the soft cap of events kept for one caller.
	MaxEventsPerHash = 100
	// MaxHistoryRecords is the number of call history rows kept on the device.
	MaxHistoryRecords = 1000
)

// ListEntry is a member of the user's whitelist or blocklist.
type ListEntry struct {
	NumberHash   NumberHash
	DisplayLabel string
	AddedAt      time.Time
}

type PrefixAction string

const (
	PrefixBlock PrefixAction = "block"
	PrefixAllow PrefixAction = "allow"
)

func (a PrefixAction) Valid() bool {
	return a == PrefixBlock || a == PrefixAllow
}

type PrefixRule struct {
	Prefix  string
	Action  PrefixAction
	Label   string
	AddedAt time.Time
}

// MatchPrefix returns the rule with the longest prefix of e164, or nil.
func MatchPrefix(rules []PrefixRule, e164 string) *PrefixRule {
	sorted := make([]PrefixRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})

	for i := range sorted {
		if sorted[i].Prefix != "" && strings.HasPrefix(e164, sorted[i].Prefix) {
			return &sorted[i]
		}
	}
	return nil
}

// SeedEntry is one row of the curated known-spam dataset.
type SeedEntry struct {
	NumberHash NumberHash
	Category   Category
	Score      float64
}

// SeedVersion identifies the dataset currently installed on the device.
type SeedVersion struct {
	Version   int64
	SHA256    string
	UpdatedAt time.Time
}

type EventType string

const (
	EventIncomingCall EventType = "incoming_call"
	EventShortRing    EventType = "short_ring"
)

type BehavioralEvent struct {
	NumberHash NumberHash
	Type       EventType
	OccurredAt time.Time
}

type Outcome string

const (
	OutcomeAllowed  Outcome = "allowed"
	OutcomeSilenced Outcome = "silenced"
	OutcomeRejected Outcome = "rejected"
	OutcomeFlagged  Outcome = "flagged"
)

type CallHistoryRecord struct {
	ID              int64
	NumberHash      NumberHash
	DisplayLabel    string
	Outcome         Outcome
	ConfidenceScore float64
	Category        string
	Source          DecisionSource
	ScreenedAt      time.Time
}

// Preferences are the user-controlled screening switches.
type Preferences struct {
	BlockHidden             bool              `json:"block_hidden"`
	HiddenAction            HiddenAction      `json:"hidden_action"`
	ProTier                 bool              `json:"pro_tier"`
	AutoBlockHighConfidence bool              `json:"auto_block_high_confidence"`
	ContactsOnly            bool              `json:"contacts_only"`
	NightGuard              NightGuard        `json:"night_guard"`
	InternationalLock       InternationalLock `json:"international_lock"`
}

type HiddenAction string

const (
	HiddenReject  HiddenAction = "reject"
	HiddenSilence HiddenAction = "silence"
)

// NightGuard silences non-contacts between StartHour (inclusive) and
// EndHour (exclusive), local time. The window may wrap past midnight.
type NightGuard struct {
	Enabled   bool `json:"enabled"`
	StartHour int  `json:"start_hour"`
	EndHour   int  `json:"end_hour"`
}

// Covers reports whether hour falls inside the guarded window.
func (n NightGuard) Covers(hour int) bool {
	if !n.Enabled || n.StartHour == n.EndHour {
		return false
	}
	if n.StartHour < n.EndHour {
		return hour >= n.StartHour && hour < n.EndHour
	}
	return hour >= n.StartHour || hour < n.EndHour
}

type InternationalLock struct {
	Enabled         bool `json:"enabled"`
	HomeCountryCode int  `json:"home_country_code"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		HiddenAction: HiddenReject,
		NightGuard:   NightGuard{StartHour: 22, EndHour: 7},
		InternationalLock: InternationalLock{
			HomeCountryCode: 91,
		},
	}
}
