package behavior

import (
	"context"
	"testing"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/adapter/devicestore"
	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const caller = domain.NumberHash("1111111111111111111111111111111111111111111111111111111111111111")

func newAnalyzer(t *testing.T) (*Analyzer, *devicestore.Store) {
	t.Helper()
	store, err := devicestore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewAnalyzer(store, DefaultThresholds(), logger.Discard()), store
}

func TestAnalyze(t *testing.T) {
	now := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		events []domain.BehavioralEvent
		want   Signals
	}{
		{
			name: "first call is quiet",
			want: Signals{},
		},
		{
			name: "four spread calls plus this one is a frequency anomaly",
			events: []domain.BehavioralEvent{
				{Type: domain.EventIncomingCall, OccurredAt: now.Add(-20 * time.Hour)},
				{Type: domain.EventIncomingCall, OccurredAt: now.Add(-15 * time.Hour)},
				{Type: domain.EventIncomingCall, OccurredAt: now.Add(-10 * time.Hour)},
				{Type: domain.EventIncomingCall, OccurredAt: now.Add(-5 * time.Hour)},
			},
			want: Signals{FrequencyAnomaly: true},
		},
		{
			name: "calls older than a day are ignored",
			events: []domain.BehavioralEvent{
				{Type: domain.EventIncomingCall, OccurredAt: now.Add(-30 * time.Hour)},
				{Type: domain.EventIncomingCall, OccurredAt: now.Add(-29 * time.Hour)},
				{Type: domain.EventIncomingCall, OccurredAt: now.Add(-28 * time.Hour)},
				{Type: domain.EventIncomingCall, OccurredAt: now.Add(-27 * time.Hour)},
			},
			want: Signals{},
		},
		{
			name: "two recent calls plus this one is a burst",
			events: []domain.BehavioralEvent{
				{Type: domain.EventIncomingCall, OccurredAt: now.Add(-8 * time.Minute)},
				{Type: domain.EventIncomingCall, OccurredAt: now.Add(-2 * time.Minute)},
			},
			want: Signals{Burst: true},
		},
		{
			name: "two short rings are bait",
			events: []domain.BehavioralEvent{
				{Type: domain.EventShortRing, OccurredAt: now.Add(-3 * time.Hour)},
				{Type: domain.EventShortRing, OccurredAt: now.Add(-1 * time.Hour)},
			},
			want: Signals{ShortRingBait: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, store := newAnalyzer(t)
			ctx := context.Background()
			for _, e := range tt.events {
				e.NumberHash = caller
				require.NoError(t, store.AppendEvent(ctx, e))
			}

			got, err := a.Analyze(ctx, caller, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != Signals{}, got.Any())
		})
	}
}

func TestRecordAndPurge(t *testing.T) {
	a, _ := newAnalyzer(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)

	require.NoError(t, a.RecordIncoming(ctx, caller, now.Add(-48*time.Hour)))
	require.NoError(t, a.RecordShortRing(ctx, caller, now.Add(-time.Minute)))
	require.NoError(t, a.RecordShortRing(ctx, caller, now))

	n, err := a.Purge(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := a.Analyze(ctx, caller, now)
	require.NoError(t, err)
	assert.True(t, got.ShortRingBait)
}
