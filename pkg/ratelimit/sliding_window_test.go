package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	counters map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{counters: make(map[string]int64)}
}

func (s *memoryStore) Incr(_ context.Context, key string, bucket int64, _ time.Duration) (int64, error) {
	k := fmt.Sprintf("%s:%d", key, bucket)
	s.counters[k]++
	return s.counters[k], nil
}

func (s *memoryStore) Get(_ context.Context, key string, bucket int64) (int64, error) {
	return s.counters[fmt.Sprintf("%s:%d", key, bucket)], nil
}

func TestLimiterAdmitsUpToMax(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiter(newMemoryStore(), 5).WithClock(func() time.Time { return base })

	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(ctx, "user-1", "settlement-trigger")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be admitted", i+1)
	}

	ok, err := limiter.Allow(ctx, "user-1", "settlement-trigger")
	require.NoError(t, err)
	assert.False(t, ok, "6th request in the window should be rejected")
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiter(newMemoryStore(), 1).WithClock(func() time.Time { return base })

	ok, err := limiter.Allow(ctx, "user-1", "settlement-trigger")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.Allow(ctx, "user-1", "settlement-trigger")
	require.NoError(t, err)
	assert.False(t, ok)

	// A different actor and a different endpoint each get their own window.
	ok, err = limiter.Allow(ctx, "user-2", "settlement-trigger")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.Allow(ctx, "user-1", "redemption-create")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLimiterSlidesAcrossBucketBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 30, 0, time.UTC)
	limiter := NewLimiter(newMemoryStore(), 5).WithClock(func() time.Time { return now })

	// Fill the window in the first minute.
	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(ctx, "user-1", "settlement-trigger")
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Just into the next minute the previous bucket still weighs almost
	// fully, so the estimate stays above the limit.
	now = time.Date(2026, 3, 2, 10, 1, 5, 0, time.UTC)
	ok, err := limiter.Allow(ctx, "user-1", "settlement-trigger")
	require.NoError(t, err)
	assert.False(t, ok)

	// Halfway through the next minute the previous bucket counts for half:
	// estimate 2.5 + 1 <= 5 admits again.
	now = time.Date(2026, 3, 2, 10, 1, 30, 0, time.UTC)
	ok, err = limiter.Allow(ctx, "user-1", "settlement-trigger")
	require.NoError(t, err)
	assert.True(t, ok)

	// A full minute later the old bucket has no weight at all.
	now = time.Date(2026, 3, 2, 10, 2, 30, 0, time.UTC)
	ok, err = limiter.Allow(ctx, "user-1", "settlement-trigger")
	require.NoError(t, err)
	assert.True(t, ok)
}
