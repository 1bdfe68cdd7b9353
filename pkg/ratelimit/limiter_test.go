package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLimiterSeparatesKeys(t *testing.T) {
	limiter := New(1, 2, time.Minute)
	now := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	assert.True(t, limiter.Allow("officer-1", now))
	assert.True(t, limiter.Allow("officer-1", now))
	assert.False(t, limiter.Allow("officer-1", now))
	assert.True(t, limiter.Allow("officer-2", now))

	assert.True(t, limiter.Allow("officer-1", now.Add(time.Second)))
	assert.Equal(t, 2, limiter.Len())
}

func TestKeyedLimiterDisabled(t *testing.T) {
	var limiter *KeyedLimiter = New(0, 10, 0)
	assert.Nil(t, limiter)
	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow("officer-1", time.Now()))
	}
	assert.True(t, New(1, 1, 0).Allow("  ", time.Now()))
}

func TestKeyedLimiterEvictsIdleKeys(t *testing.T) {
	limiter := New(100, 100, time.Minute)
	start := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	limiter.Allow("stale", start)

	later := start.Add(time.Hour)
	for i := 0; i < 255; i++ {
		limiter.Allow("active", later)
	}
	assert.Equal(t, 1, limiter.Len())
}
