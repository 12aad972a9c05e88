package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errRemote = errors.New("remote failed")

func newTestBreaker(clock *fakeClock) *Breaker {
	return New(Config{
		Name:             "test",
		WindowSize:       10,
		FailureThreshold: 0.5,
		ReopenAfter:      30 * time.Second,
		Now:              clock.Now,
	})
}

func fail(context.Context) error    { return errRemote }
func succeed(context.Context) error { return nil }

func TestBreaker_OpensWhenWindowFullAndThresholdExceeded(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)

	for i := 0; i < 6; i++ {
		assert.ErrorIs(t, b.Execute(context.Background(), fail), errRemote)
	}
	assert.Equal(t, StateClosed, b.State(), "window not full yet")

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Execute(context.Background(), succeed))
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_StaysClosedAtThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)

	for i := 0; i < 5; i++ {
		_ = b.Execute(context.Background(), fail)
		_ = b.Execute(context.Background(), succeed)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OpenFailsFastWithoutInvoking(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	for i := 0; i < 10; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	require.Equal(t, StateOpen, b.State())

	invoked := false
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked)

	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, b.Execute(context.Background(), succeed), ErrOpen)
}

func TestBreaker_HalfOpenProbeSuccessCloses(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	for i := 0; i < 10; i++ {
		_ = b.Execute(context.Background(), fail)
	}

	clock.Advance(30 * time.Second)
	var seen State
	err := b.Execute(context.Background(), func(context.Context) error {
		seen = b.State()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, seen)
	assert.Equal(t, StateClosed, b.State())

	// The window was cleared: nine failures alone cannot reopen it.
	for i := 0; i < 9; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	for i := 0; i < 10; i++ {
		_ = b.Execute(context.Background(), fail)
	}

	clock.Advance(31 * time.Second)
	assert.ErrorIs(t, b.Execute(context.Background(), fail), errRemote)
	assert.Equal(t, StateOpen, b.State())

	// The open timestamp was reset by the failed probe.
	clock.Advance(10 * time.Second)
	assert.ErrorIs(t, b.Execute(context.Background(), succeed), ErrOpen)
}

func TestBreaker_PanickingProbeReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	for i := 0; i < 10; i++ {
		_ = b.Execute(context.Background(), fail)
	}

	clock.Advance(31 * time.Second)
	assert.PanicsWithValue(t, "boom", func() {
		_ = b.Execute(context.Background(), func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())

	clock.Advance(31 * time.Second)
	invoked := false
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, invoked, "a new probe is admitted after the panic")
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_PanicCountsAsFailureWhenClosed(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)

	for i := 0; i < 6; i++ {
		assert.Panics(t, func() {
			_ = b.Execute(context.Background(), func(context.Context) error { panic("boom") })
		})
	}
	for i := 0; i < 4; i++ {
		_ = b.Execute(context.Background(), succeed)
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_SingleProbeWhileHalfOpen(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBreaker(clock)
	for i := 0; i < 10; i++ {
		_ = b.Execute(context.Background(), fail)
	}
	clock.Advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, b.Execute(context.Background(), succeed), ErrOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_OnStateChange(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	var transitions []string
	b := New(Config{
		Name:             "remote",
		WindowSize:       2,
		FailureThreshold: 0.5,
		ReopenAfter:      time.Second,
		Now:              clock.Now,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
	})

	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	clock.Advance(time.Second)
	_ = b.Execute(context.Background(), succeed)

	assert.Equal(t, []string{
		"remote:closed->open",
		"remote:open->half_open",
		"remote:half_open->closed",
	}, transitions)
}
