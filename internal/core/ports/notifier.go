package ports

import (
	"context"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
)

// CallNotifier surfaces a screened call to the user. It is invoked after
// the decision has been returned.
type CallNotifier interface {
	NotifyScreened(ctx context.Context, n CallNotification) error
}

type CallNotification struct {
	NumberHash   domain.NumberHash
	DisplayLabel string
	Outcome      domain.Outcome
	Source       domain.DecisionSource
	Score        float64
	Category     string
	ScreenedAt   time.Time
}

// AlertNotifier posts operator alerts from backend batch jobs.
type AlertNotifier interface {
	NotifyHardeningSummary(ctx context.Context, summary HardeningSummary) error
}

type HardeningSummary struct {
	Flagged   map[domain.FlagReason]int
	Numbers   []domain.NumberHash
	Dampened  int
	StartedAt time.Time
	Duration  time.Duration
}
