// Package behavior derives call-pattern signals from the rolling per-caller
// event log.
package behavior

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
)

type Thresholds struct {
	// FrequencyCalls incoming calls within FrequencyWindow mark a frequency anomaly.
	FrequencyCalls  int
	FrequencyWindow time.Duration
	// BurstCalls incoming calls within BurstWindow mark a burst.
	BurstCalls  int
	BurstWindow time.Duration
	// ShortRings short-ring events within ShortRingWindow mark bait calling.
	ShortRings      int
	ShortRingWindow time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		FrequencyCalls:  5,
		FrequencyWindow: 24 * time.Hour,
		BurstCalls:      3,
		BurstWindow:     10 * time.Minute,
		ShortRings:      2,
		ShortRingWindow: 24 * time.Hour,
	}
}

type Signals struct {
	FrequencyAnomaly bool
	Burst            bool
	ShortRingBait    bool
}

func (s Signals) Any() bool {
	return s.FrequencyAnomaly || s.Burst || s.ShortRingBait
}

type Analyzer struct {
	events     ports.EventStore
	thresholds Thresholds
	logger     *slog.Logger
}

func NewAnalyzer(events ports.EventStore, thresholds Thresholds, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		events:     events,
		thresholds: thresholds,
		logger:     logger.With("component", "behavior_analyzer"),
	}
}

// Analyze evaluates the caller's recent events as of now. The call being
// screened has not been recorded yet and is counted as one more incoming call.
func (a *Analyzer) Analyze(ctx context.Context, hash domain.NumberHash, now time.Time) (Signals, error) {
	since := now.Add(-a.longestWindow())
	events, err := a.events.EventsSince(ctx, hash, since)
	if err != nil {
		return Signals{}, fmt.Errorf("failed to load behavioral events: %w", err)
	}

	incomingFreq, incomingBurst, shortRings := 1, 1, 0
	for _, e := range events {
		age := now.Sub(e.OccurredAt)
		switch e.Type {
		case domain.EventIncomingCall:
			if age <= a.thresholds.FrequencyWindow {
				incomingFreq++
			}
			if age <= a.thresholds.BurstWindow {
				incomingBurst++
			}
		case domain.EventShortRing:
			if age <= a.thresholds.ShortRingWindow {
				shortRings++
			}
		}
	}

	return Signals{
		FrequencyAnomaly: incomingFreq >= a.thresholds.FrequencyCalls,
		Burst:            incomingBurst >= a.thresholds.BurstCalls,
		ShortRingBait:    shortRings >= a.thresholds.ShortRings,
	}, nil
}

func (a *Analyzer) RecordIncoming(ctx context.Context, hash domain.NumberHash, at time.Time) error {
	return a.events.AppendEvent(ctx, domain.BehavioralEvent{NumberHash: hash, Type: domain.EventIncomingCall, OccurredAt: at})
}

// RecordShortRing notes a call that hung up within a couple of rings.
func (a *Analyzer) RecordShortRing(ctx context.Context, hash domain.NumberHash, at time.Time) error {
	return a.events.AppendEvent(ctx, domain.BehavioralEvent{NumberHash: hash, Type: domain.EventShortRing, OccurredAt: at})
}

// Purge applies the event TTL and the per-caller cap.
func (a *Analyzer) Purge(ctx context.Context, now time.Time) (int64, error) {
	n, err := a.events.PurgeEvents(ctx, now.Add(-domain.EventTTL), domain.MaxEventsPerHash)
	if err != nil {
		return n, err
	}
	a.logger.DebugContext(ctx, "purged behavioral events", "deleted", n)
	return n, nil
}

func (a *Analyzer) longestWindow() time.Duration {
	w := a.thresholds.FrequencyWindow
	if a.thresholds.BurstWindow > w {
		w = a.thresholds.BurstWindow
	}
	if a.thresholds.ShortRingWindow > w {
		w = a.thresholds.ShortRingWindow
	}
	return w
}
