package reputation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
)

// memStore is an in-memory ReputationStore and HardeningStore. WithinTx
// serializes on a single mutex, which is enough to model the row lock.
type memStore struct {
	mu sync.Mutex

	records     map[domain.NumberHash]*domain.ReputationRecord
	reports     []domain.ReportEvent
	corrections []domain.CorrectionEvent
	reporters   map[string]struct{}
	votes       map[domain.NumberHash]map[domain.Category]int
	quarantines map[domain.NumberHash]domain.QuarantineEntry
	flags       []domain.ReputationFlag
}

func newMemStore() *memStore {
	return &memStore{
		records:     make(map[domain.NumberHash]*domain.ReputationRecord),
		reporters:   make(map[string]struct{}),
		votes:       make(map[domain.NumberHash]map[domain.Category]int),
		quarantines: make(map[domain.NumberHash]domain.QuarantineEntry),
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx ports.ReputationTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(memTx{m})
}

func (m *memStore) GetRecord(_ context.Context, hash domain.NumberHash) (*domain.ReputationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

type memTx struct{ m *memStore }

func (t memTx) LockRecord(_ context.Context, hash domain.NumberHash) (*domain.ReputationRecord, error) {
	rec, ok := t.m.records[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (t memTx) EnsureRecord(ctx context.Context, hash domain.NumberHash, now time.Time) (*domain.ReputationRecord, error) {
	if _, ok := t.m.records[hash]; !ok {
		t.m.records[hash] = &domain.ReputationRecord{NumberHash: hash, LastComputedAt: now}
	}
	return t.LockRecord(ctx, hash)
}

func (t memTx) SaveRecord(_ context.Context, rec *domain.ReputationRecord) error {
	cp := *rec
	t.m.records[rec.NumberHash] = &cp
	return nil
}

func (t memTx) AppendReportEvent(_ context.Context, e domain.ReportEvent) error {
	t.m.reports = append(t.m.reports, e)
	return nil
}

func (t memTx) AppendCorrectionEvent(_ context.Context, e domain.CorrectionEvent) error {
	t.m.corrections = append(t.m.corrections, e)
	return nil
}

func (t memTx) InsertReporter(_ context.Context, hash domain.NumberHash, device string, _ time.Time) (bool, error) {
	key := string(hash) + "|" + device
	if _, ok := t.m.reporters[key]; ok {
		return false, nil
	}
	t.m.reporters[key] = struct{}{}
	return true, nil
}

func (t memTx) IncrementVote(_ context.Context, hash domain.NumberHash, category domain.Category) error {
	if t.m.votes[hash] == nil {
		t.m.votes[hash] = make(map[domain.Category]int)
	}
	t.m.votes[hash][category]++
	return nil
}

func (t memTx) TopVotes(_ context.Context, hash domain.NumberHash, limit int) ([]domain.CategoryVote, error) {
	var out []domain.CategoryVote
	for c, n := range t.m.votes[hash] {
		out = append(out, domain.CategoryVote{Category: c, Votes: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].Category < out[j].Category
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t memTx) CountReportsSince(_ context.Context, hash domain.NumberHash, since time.Time) (int, error) {
	n := 0
	for _, e := range t.m.reports {
		if e.NumberHash == hash && !e.ReportedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (t memTx) UpsertQuarantine(_ context.Context, q domain.QuarantineEntry) error {
	t.m.quarantines[q.NumberHash] = q
	return nil
}

func (t memTx) ActiveQuarantine(_ context.Context, hash domain.NumberHash, now time.Time) (bool, error) {
	q, ok := t.m.quarantines[hash]
	return ok && q.Active(now), nil
}

func (m *memStore) NumberStatsSince(_ context.Context, since time.Time) ([]ports.NumberReportStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := make(map[domain.NumberHash]*ports.NumberReportStats)
	devices := make(map[domain.NumberHash]map[string]struct{})
	get := func(h domain.NumberHash) *ports.NumberReportStats {
		if stats[h] == nil {
			stats[h] = &ports.NumberReportStats{NumberHash: h}
			devices[h] = make(map[string]struct{})
		}
		return stats[h]
	}
	for _, e := range m.reports {
		if e.ReportedAt.Before(since) {
			continue
		}
		s := get(e.NumberHash)
		s.TotalReports++
		devices[e.NumberHash][e.DeviceTokenHash] = struct{}{}
		s.DistinctDevices = len(devices[e.NumberHash])
	}
	for _, c := range m.corrections {
		if c.CorrectedAt.Before(since) {
			continue
		}
		get(c.NumberHash).Corrections++
	}

	var out []ports.NumberReportStats
	for _, s := range stats {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memStore) DeviceStatsSince(_ context.Context, since time.Time) ([]ports.DeviceReportStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	numbers := make(map[string]map[domain.NumberHash]struct{})
	for _, e := range m.reports {
		if e.ReportedAt.Before(since) {
			continue
		}
		if numbers[e.DeviceTokenHash] == nil {
			numbers[e.DeviceTokenHash] = make(map[domain.NumberHash]struct{})
		}
		numbers[e.DeviceTokenHash][e.NumberHash] = struct{}{}
	}

	var out []ports.DeviceReportStats
	for device, set := range numbers {
		out = append(out, ports.DeviceReportStats{DeviceTokenHash: device, Numbers: sortedHashes(set)})
	}
	return out, nil
}

func (m *memStore) InsertFlag(_ context.Context, flag domain.ReputationFlag) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.flags {
		if f.NumberHash == flag.NumberHash && f.Reason == flag.Reason && !f.Resolved {
			return false, nil
		}
	}
	m.flags = append(m.flags, flag)
	return true, nil
}

func (m *memStore) DampenFlagged(_ context.Context, factor float64, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[domain.NumberHash]struct{})
	touched := 0
	for _, f := range m.flags {
		if f.Resolved {
			continue
		}
		if _, ok := seen[f.NumberHash]; ok {
			continue
		}
		seen[f.NumberHash] = struct{}{}
		if rec, ok := m.records[f.NumberHash]; ok {
			rec.ConfidenceScore *= factor
			rec.LastComputedAt = now
			touched++
		}
	}
	return touched, nil
}
