package reputation

import (
	"context"
	"testing"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/fennsaji/call-shield-sub001/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureAlerts struct{ summaries []ports.HardeningSummary }

func (c *captureAlerts) NotifyHardeningSummary(_ context.Context, s ports.HardeningSummary) error {
	c.summaries = append(c.summaries, s)
	return nil
}

var hardenNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func seedRecord(store *memStore, hash domain.NumberHash, score float64) {
	store.records[hash] = &domain.ReputationRecord{NumberHash: hash, ConfidenceScore: score}
}

func addReports(store *memStore, hash domain.NumberHash, dev string, n int, at time.Time) {
	for i := 0; i < n; i++ {
		store.reports = append(store.reports, domain.ReportEvent{NumberHash: hash, DeviceTokenHash: dev, ReportedAt: at})
	}
}

func newHardener(store *memStore, alerts ports.AlertNotifier) *Hardener {
	return NewHardener(store, alerts, DefaultHardeningConfig(), logger.Discard()).
		WithClock(func() time.Time { return hardenNow })
}

func TestHardener_Spike(t *testing.T) {
	store := newMemStore()
	recent := hardenNow.Add(-10 * time.Minute)

	seedRecord(store, number(1), 0.8)
	addReports(store, number(1), device(1), 5, recent)
	addReports(store, number(1), device(2), 5, recent)

	seedRecord(store, number(2), 0.8)
	addReports(store, number(2), device(1), 8, recent)

	seedRecord(store, number(3), 0.8)
	addReports(store, number(3), device(1), 12, hardenNow.Add(-2*time.Hour))

	res, err := newHardener(store, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.ByReason[domain.FlagSpike])
	assert.Equal(t, 1, res.Dampened)
	assert.InDelta(t, 0.4, store.records[number(1)].ConfidenceScore, 1e-9)
	assert.InDelta(t, 0.8, store.records[number(2)].ConfidenceScore, 1e-9, "below the absolute floor")
	assert.InDelta(t, 0.8, store.records[number(3)].ConfidenceScore, 1e-9, "outside the spike window")
}

func TestHardener_LowTrustDevice(t *testing.T) {
	store := newMemStore()
	at := hardenNow.Add(-6 * time.Hour)
	for i := 0; i < 30; i++ {
		seedRecord(store, number(i), 0.6)
		addReports(store, number(i), device(66), 1, at)
	}
	for i := 100; i < 129; i++ {
		seedRecord(store, number(i), 0.6)
		addReports(store, number(i), device(67), 1, at)
	}

	res, err := newHardener(store, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 30, res.ByReason[domain.FlagLowTrust])
	assert.Equal(t, 30, res.Dampened)
	assert.InDelta(t, 0.3, store.records[number(0)].ConfidenceScore, 1e-9)
	assert.InDelta(t, 0.6, store.records[number(100)].ConfidenceScore, 1e-9)
}

func TestHardener_Oscillation(t *testing.T) {
	store := newMemStore()
	at := hardenNow.Add(-3 * time.Hour)
	seedRecord(store, number(1), 0.5)
	for i := 0; i < 5; i++ {
		addReports(store, number(1), device(i), 1, at)
		store.corrections = append(store.corrections, domain.CorrectionEvent{NumberHash: number(1), DeviceTokenHash: device(50 + i), CorrectedAt: at})
	}

	res, err := newHardener(store, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.ByReason[domain.FlagOscillation])
}

func TestHardener_FlagsAreIdempotentButDampeningRepeats(t *testing.T) {
	store := newMemStore()
	alerts := &captureAlerts{}
	seedRecord(store, number(1), 0.8)
	addReports(store, number(1), device(1), 10, hardenNow.Add(-time.Minute))
	h := newHardener(store, alerts)

	first, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Flagged)

	second, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Flagged)
	assert.Equal(t, 1, second.Dampened)

	assert.Len(t, store.flags, 1)
	assert.InDelta(t, 0.2, store.records[number(1)].ConfidenceScore, 1e-9)
	require.Len(t, alerts.summaries, 1, "only runs that flag something alert")
	assert.Equal(t, []domain.NumberHash{number(1)}, alerts.summaries[0].Numbers)
}
