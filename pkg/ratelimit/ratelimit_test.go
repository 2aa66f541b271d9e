package ratelimit

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestTokenBucket_Allow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bucket := NewTokenBucket(5, 1, clock)

	for i := 0; i < 5; i++ {
		assert.True(t, bucket.Allow(), "Request %d should be allowed", i+1)
	}
	assert.False(t, bucket.Allow(), "6th request should be denied")

	clock.Advance(time.Second)
	assert.True(t, bucket.Allow(), "Request after refill should be allowed")
	assert.False(t, bucket.Allow())
}

func TestTokenBucket_FractionalRefill(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bucket := NewTokenBucket(2, 1, clock)

	assert.True(t, bucket.AllowN(2))

	// 0.5초씩 두 번 지나면 토큰 하나
	clock.Advance(500 * time.Millisecond)
	assert.False(t, bucket.Allow())
	clock.Advance(500 * time.Millisecond)
	assert.True(t, bucket.Allow())
}

func TestTokenBucket_CapacityCap(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bucket := NewTokenBucket(3, 10, clock)

	clock.Advance(time.Hour)
	assert.Equal(t, int64(3), bucket.Remaining())
	assert.False(t, bucket.AllowN(4))
}

func TestRateLimiter_PerKeyBuckets(t *testing.T) {
	limiter := NewRateLimiter(3, 1, clockwork.NewFakeClock())
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("player1"))
	}
	assert.False(t, limiter.Allow("player1"))
	assert.True(t, limiter.Allow("player2"), "Different key should have separate bucket")

	limiter.Reset("player1")
	assert.True(t, limiter.Allow("player1"))
}

func TestRateLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limiter := NewRateLimiter(3, 1, clock)
	defer limiter.Stop()

	limiter.Allow("idle")
	clock.Advance(5 * time.Minute)
	limiter.Allow("active")
	clock.Advance(5 * time.Minute)

	limiter.cleanup()
	assert.Equal(t, 1, limiter.Len())
}
