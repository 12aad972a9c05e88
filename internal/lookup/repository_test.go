package lookup

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fennsaji/call-shield-sub001/internal/breaker"
	"github.com/fennsaji/call-shield-sub001/internal/core/domain"
	"github.com/fennsaji/call-shield-sub001/internal/core/ports"
	"github.com/fennsaji/call-shield-sub001/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const number = domain.NumberHash("abababababababababababababababababababababababababababababababab")

type mockSeed struct {
	mock.Mock
	ports.SeedStore
}

func (m *mockSeed) GetSeed(ctx context.Context, hash domain.NumberHash) (*domain.SeedEntry, error) {
	args := m.Called(ctx, hash)
	entry, _ := args.Get(0).(*domain.SeedEntry)
	return entry, args.Error(1)
}

type mockRemote struct {
	mock.Mock
}

func (m *mockRemote) LookupReputation(ctx context.Context, hash domain.NumberHash) (*ports.RemoteReputation, error) {
	args := m.Called(ctx, hash)
	rep, _ := args.Get(0).(*ports.RemoteReputation)
	return rep, args.Error(1)
}

func TestLookup_SeedHitSkipsRemote(t *testing.T) {
	seed := &mockSeed{}
	remote := &mockRemote{}
	seed.On("GetSeed", mock.Anything, number).Return(&domain.SeedEntry{NumberHash: number, Category: domain.CategoryLoanScam, Score: 0.92}, nil)

	repo := NewRepository(seed, remote, nil, logger.Discard())
	got := repo.Lookup(context.Background(), number)

	assert.Equal(t, Result{Score: 0.92, Category: "loan_scam", Source: SourceSeedDB}, got)
	remote.AssertNotCalled(t, "LookupReputation", mock.Anything, mock.Anything)
}

func TestLookup_RemoteHit(t *testing.T) {
	seed := &mockSeed{}
	remote := &mockRemote{}
	seed.On("GetSeed", mock.Anything, number).Return(nil, nil)
	remote.On("LookupReputation", mock.Anything, number).Return(&ports.RemoteReputation{
		ConfidenceScore: 0.65, Category: "telemarketing", ReportCount: 9, UniqueReporters: 7,
	}, nil)

	repo := NewRepository(seed, remote, breaker.New(breaker.DefaultConfig("remote")), logger.Discard())
	got := repo.Lookup(context.Background(), number)

	assert.Equal(t, SourceRemote, got.Source)
	assert.Equal(t, 7, got.UniqueReporters)
	assert.Equal(t, "telemarketing", got.Category)
}

func TestLookup_SeedErrorFallsThroughToRemote(t *testing.T) {
	seed := &mockSeed{}
	remote := &mockRemote{}
	seed.On("GetSeed", mock.Anything, number).Return(nil, errors.New("disk I/O error"))
	remote.On("LookupReputation", mock.Anything, number).Return(&ports.RemoteReputation{ConfidenceScore: 0.5, UniqueReporters: 5}, nil)

	got := NewRepository(seed, remote, nil, logger.Discard()).Lookup(context.Background(), number)
	assert.Equal(t, SourceRemote, got.Source)
}

func TestLookup_RemoteFailuresBecomeNotFound(t *testing.T) {
	seed := &mockSeed{}
	seed.On("GetSeed", mock.Anything, number).Return(nil, nil)

	tests := []struct {
		name string
		rep  *ports.RemoteReputation
		err  error
	}{
		{name: "error", err: errors.New("connection reset")},
		{name: "timeout", err: context.DeadlineExceeded},
		{name: "unknown number", rep: &ports.RemoteReputation{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &mockRemote{}
			remote.On("LookupReputation", mock.Anything, number).Return(tt.rep, tt.err)

			got := NewRepository(seed, remote, nil, logger.Discard()).Lookup(context.Background(), number)
			assert.Equal(t, SourceNotFound, got.Source)
		})
	}
}

func TestLookup_OpenCircuitSkipsRemote(t *testing.T) {
	seed := &mockSeed{}
	seed.On("GetSeed", mock.Anything, number).Return(nil, nil)
	remote := &mockRemote{}
	remote.On("LookupReputation", mock.Anything, number).Return(nil, errors.New("503"))

	cb := breaker.New(breaker.Config{
		Name:             "remote",
		WindowSize:       2,
		FailureThreshold: 0.5,
		ReopenAfter:      time.Hour,
	})
	repo := NewRepository(seed, remote, cb, logger.Discard())

	repo.Lookup(context.Background(), number)
	repo.Lookup(context.Background(), number)
	assert.Equal(t, breaker.StateOpen, cb.State())

	got := repo.Lookup(context.Background(), number)
	assert.Equal(t, SourceNotFound, got.Source)
	remote.AssertNumberOfCalls(t, "LookupReputation", 2)
}

func TestLookup_RateLimitedDoesNotTripBreaker(t *testing.T) {
	seed := &mockSeed{}
	seed.On("GetSeed", mock.Anything, number).Return(nil, nil)
	remote := &mockRemote{}
	remote.On("LookupReputation", mock.Anything, number).
		Return(nil, fmt.Errorf("%w: lookup quota exhausted", domain.ErrRateLimited))

	cb := breaker.New(breaker.Config{
		Name:             "remote",
		WindowSize:       2,
		FailureThreshold: 0.5,
		ReopenAfter:      time.Hour,
	})
	repo := NewRepository(seed, remote, cb, logger.Discard())

	for i := 0; i < 5; i++ {
		got := repo.Lookup(context.Background(), number)
		assert.Equal(t, SourceNotFound, got.Source)
	}
	assert.Equal(t, breaker.StateClosed, cb.State())
	remote.AssertNumberOfCalls(t, "LookupReputation", 5)
}

func TestLookup_Offline(t *testing.T) {
	seed := &mockSeed{}
	seed.On("GetSeed", mock.Anything, number).Return(nil, nil)

	got := NewRepository(seed, nil, nil, logger.Discard()).Lookup(context.Background(), number)
	assert.Equal(t, SourceNotFound, got.Source)
}
