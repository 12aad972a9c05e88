package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindow_Allow(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewSlidingWindow(3, time.Hour, func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "device-a")
		assert.NoError(t, err)
		assert.True(t, ok)
	}

	ok, _ := l.Allow(ctx, "device-a")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "device-b")
	assert.True(t, ok, "keys are independent")

	now = now.Add(59 * time.Minute)
	ok, _ = l.Allow(ctx, "device-a")
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "device-a")
	assert.True(t, ok, "oldest hits left the window")
}

func TestSlidingWindow_RejectionDoesNotConsume(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewSlidingWindow(1, time.Minute, func() time.Time { return now })
	ctx := context.Background()

	ok, _ := l.Allow(ctx, "k")
	assert.True(t, ok)

	for i := 0; i < 5; i++ {
		now = now.Add(10 * time.Second)
		ok, _ = l.Allow(ctx, "k")
		assert.False(t, ok)
	}

	now = now.Add(10 * time.Second)
	ok, _ = l.Allow(ctx, "k")
	assert.True(t, ok)
}

func TestSlidingWindow_Sweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewSlidingWindow(5, time.Minute, func() time.Time { return now })
	ctx := context.Background()

	_, _ = l.Allow(ctx, "a")
	_, _ = l.Allow(ctx, "b")
	now = now.Add(2 * time.Minute)
	_, _ = l.Allow(ctx, "b")

	assert.Equal(t, 1, l.Sweep())
	assert.Len(t, l.hits, 1)
}
