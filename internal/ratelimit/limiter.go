// Package ratelimit provides sliding-window limiters keyed by device or token.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most a fixed number of calls per key within a window.
// A rejected call does not consume capacity.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SlidingWindow is an in-process limiter. Counts are per instance, which is
// acceptable for blunting abuse but not globally consistent.
type SlidingWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewSlidingWindow(limit int, window time.Duration, now func() time.Time) *SlidingWindow {
	if now == nil {
		now = time.Now
	}
	return &SlidingWindow{
		limit:  limit,
		window: window,
		now:    now,
		hits:   make(map[string][]time.Time),
	}
}

func (l *SlidingWindow) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := prune(l.hits[key], now.Add(-l.window))
	if len(recent) >= l.limit {
		l.hits[key] = recent
		return false, nil
	}
	l.hits[key] = append(recent, now)
	return true, nil
}

// Sweep drops keys with no hits inside the window.
func (l *SlidingWindow) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	removed := 0
	for key, ts := range l.hits {
		if recent := prune(ts, cutoff); len(recent) == 0 {
			delete(l.hits, key)
			removed++
		} else {
			l.hits[key] = recent
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (l *SlidingWindow) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func prune(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}
