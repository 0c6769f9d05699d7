package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryWindowStoreCounts(t *testing.T) {
	store := NewMemoryWindowStore()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		count, _, err := store.Incr(ctx, "k", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}
}

func TestMemoryWindowStoreIsolatesKeys(t *testing.T) {
	store := NewMemoryWindowStore()
	ctx := context.Background()

	store.Incr(ctx, "a", time.Minute)
	store.Incr(ctx, "a", time.Minute)
	count, _, err := store.Incr(ctx, "b", time.Minute)

	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryWindowStoreResetsAfterExpiry(t *testing.T) {
	store := NewMemoryWindowStore()
	ctx := context.Background()

	store.Incr(ctx, "k", 10*time.Millisecond)
	store.Incr(ctx, "k", 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)

	count, _, err := store.Incr(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryWindowStore(), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision := limiter.Check(ctx, "phone:+5511999990000", 3)
		assert.True(t, decision.Allowed, "request %d should be allowed", i+1)
	}

	decision := limiter.Check(ctx, "phone:+5511999990000", 3)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
}

func TestRateLimiterRemainingNeverNegative(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryWindowStore(), time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		limiter.Check(ctx, "k", 2)
	}

	decision := limiter.Check(ctx, "k", 2)
	assert.Equal(t, 0, decision.Remaining)
}

func TestCheckAllReturnsFirstBlockingSubject(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryWindowStore(), time.Minute)
	ctx := context.Background()

	subjects := []SubjectLimit{
		{Subject: "phone:+5511999990000", Limit: 1},
		{Subject: "tenant:acme", Limit: 100},
	}

	decision := limiter.CheckAll(ctx, subjects)
	assert.True(t, decision.Allowed)

	decision = limiter.CheckAll(ctx, subjects)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "phone:+5511999990000", decision.Subject)
}

func TestCheckAllCountsEverySubject(t *testing.T) {
	limiter := NewRateLimiter(NewMemoryWindowStore(), time.Minute)
	ctx := context.Background()

	subjects := []SubjectLimit{
		{Subject: "phone:a", Limit: 10},
		{Subject: "tenant:t", Limit: 2},
	}

	limiter.CheckAll(ctx, subjects)
	limiter.CheckAll(ctx, subjects)

	// Third request trips the tenant limit even though the phone is fine
	decision := limiter.CheckAll(ctx, subjects)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "tenant:t", decision.Subject)
}

// failingStore simulates a shared store outage.
type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int, time.Time, error) {
	return 0, time.Time{}, context.DeadlineExceeded
}

func TestRateLimiterFallsBackToMemory(t *testing.T) {
	limiter := NewRateLimiter(failingStore{}, time.Minute)
	ctx := context.Background()

	// The in-memory fallback still enforces the limit
	for i := 0; i < 2; i++ {
		decision := limiter.Check(ctx, "k", 2)
		assert.True(t, decision.Allowed)
	}

	decision := limiter.Check(ctx, "k", 2)
	assert.False(t, decision.Allowed)
}
