package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/fennsaji/call-shield-sub001/internal/platform/metrics"
)

type HardeningConfig struct {
	SpikeWindow     time.Duration
	SpikeRatio      float64
	SpikeMinReports int

	LowTrustWindow     time.Duration
	LowTrustMinNumbers int

	OscillationWindow         time.Duration
	OscillationMinReports     int
	OscillationMinCorrections int

	DampenFactor float64
}

func DefaultHardeningConfig() HardeningConfig {
	return HardeningConfig{
		SpikeWindow:               time.Hour,
		SpikeRatio:                5,
		SpikeMinReports:           10,
		LowTrustWindow:            24 * time.Hour,
		LowTrustMinNumbers:        30,
		OscillationWindow:         24 * time.Hour,
		OscillationMinReports:     5,
		OscillationMinCorrections: 5,
		DampenFactor:              0.5,
	}
}

// HardeningResult counts newly raised flags and the numbers dampened in
// one pass.
type HardeningResult struct {
	Flagged  int
	Dampened int
	ByReason map[domain.FlagReason]int
}

// Hardener runs the abuse hardening pass. Each run dampens every number that
// still carries an unresolved flag, so repeated runs compound until the flag
// is resolved by review.
type Hardener struct {
	store    ports.HardeningStore
	notifier ports.AlertNotifier
	cfg      HardeningConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewHardener builds a hardener. notifier may be nil.
func NewHardener(store ports.HardeningStore, notifier ports.AlertNotifier, cfg HardeningConfig, logger *slog.Logger) *Hardener {
	return &Hardener{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With("component", "hardening"),
	}
}

func (h *Hardener) WithClock(now func() time.Time) *Hardener {
	h.now = now
	return h
}

func (h *Hardener) Run(ctx context.Context) (HardeningResult, error) {
	started := h.now().UTC()
	candidates := make(map[domain.FlagReason][]domain.NumberHash)

	spikeStats, err := h.store.NumberStatsSince(ctx, started.Add(-h.cfg.SpikeWindow))
	if err != nil {
		return HardeningResult{}, fmt.Errorf("failed to aggregate spike window: %w", err)
	}
	for _, s := range spikeStats {
		if s.DistinctDevices == 0 || s.TotalReports < h.cfg.SpikeMinReports {
			continue
		}
		if float64(s.TotalReports)/float64(s.DistinctDevices) >= h.cfg.SpikeRatio {
			candidates[domain.FlagSpike] = append(candidates[domain.FlagSpike], s.NumberHash)
		}
	}

	devices, err := h.store.DeviceStatsSince(ctx, started.Add(-h.cfg.LowTrustWindow))
	if err != nil {
		return HardeningResult{}, fmt.Errorf("failed to aggregate device window: %w", err)
	}
	lowTrust := make(map[domain.NumberHash]struct{})
	for _, d := range devices {
		if len(d.Numbers) < h.cfg.LowTrustMinNumbers {
			continue
		}
		h.logger.WarnContext(ctx, "low-trust device detected", "device_token_hash", d.DeviceTokenHash, "numbers", len(d.Numbers))
		for _, n := range d.Numbers {
			lowTrust[n] = struct{}{}
		}
	}
	candidates[domain.FlagLowTrust] = sortedHashes(lowTrust)

	dayStats, err := h.store.NumberStatsSince(ctx, started.Add(-h.cfg.OscillationWindow))
	if err != nil {
		return HardeningResult{}, fmt.Errorf("failed to aggregate oscillation window: %w", err)
	}
	for _, s := range dayStats {
		if s.TotalReports >= h.cfg.OscillationMinReports && s.Corrections >= h.cfg.OscillationMinCorrections {
			candidates[domain.FlagOscillation] = append(candidates[domain.FlagOscillation], s.NumberHash)
		}
	}

	result := HardeningResult{ByReason: make(map[domain.FlagReason]int)}
	var flaggedNumbers []domain.NumberHash
	for _, reason := range []domain.FlagReason{domain.FlagSpike, domain.FlagLowTrust, domain.FlagOscillation} {
		for _, hash := range candidates[reason] {
			inserted, err := h.store.InsertFlag(ctx, domain.ReputationFlag{NumberHash: hash, Reason: reason, FlaggedAt: started})
			if err != nil {
				return HardeningResult{}, fmt.Errorf("failed to flag %s: %w", hash, err)
			}
			if inserted {
				result.ByReason[reason]++
				result.Flagged++
				flaggedNumbers = append(flaggedNumbers, hash)
			}
		}
	}

	result.Dampened, err = h.store.DampenFlagged(ctx, h.cfg.DampenFactor, started)
	if err != nil {
		return HardeningResult{}, fmt.Errorf("failed to dampen flagged numbers: %w", err)
	}

	byReason := make(map[string]int, len(result.ByReason))
	for reason, n := range result.ByReason {
		byReason[string(reason)] = n
	}
	metrics.RecordHardening(byReason, result.Dampened)

	h.logger.InfoContext(ctx, "hardening pass complete",
		"flagged", result.Flagged, "dampened", result.Dampened, "duration", h.now().Sub(started))

	if h.notifier != nil && result.Flagged > 0 {
		err := h.notifier.NotifyHardeningSummary(ctx, ports.HardeningSummary{
			Flagged:   result.ByReason,
			Numbers:   flaggedNumbers,
			Dampened:  result.Dampened,
			StartedAt: started,
			Duration:  h.now().Sub(started),
		})
		if err != nil {
			h.logger.WarnContext(ctx, "failed to post hardening summary", "error", err)
		}
	}

	return result, nil
}

func sortedHashes(set map[domain.NumberHash]struct{}) []domain.NumberHash {
	out := make([]domain.NumberHash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
