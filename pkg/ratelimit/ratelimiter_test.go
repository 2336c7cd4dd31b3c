package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(time.Minute, 3)
	rl.now = func() time.Time { return now }

	t.Run("BurstUpToMax", func(t *testing.T) {
		assert.True(t, rl.Allow("a"))
		assert.True(t, rl.Allow("a"))
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		assert.True(t, rl.Allow("b"))
	})

	t.Run("Refills", func(t *testing.T) {
		now = now.Add(20 * time.Second)
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
	})

	t.Run("IdleKeysAreEvicted", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		assert.True(t, rl.Allow("c"))
		assert.NotContains(t, rl.limiters, "b")
		assert.Equal(t, now, rl.lastSweep)
	})

	t.Run("SweepsAtMostOncePerWindow", func(t *testing.T) {
		swept := rl.lastSweep
		now = now.Add(30 * time.Second)
		assert.True(t, rl.Allow("d"))
		assert.Equal(t, swept, rl.lastSweep)
		assert.Contains(t, rl.limiters, "c")

		now = now.Add(time.Minute)
		assert.True(t, rl.Allow("d"))
		assert.Equal(t, now, rl.lastSweep)
		assert.NotContains(t, rl.limiters, "c")
	})
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 0)
	for range 10 {
		assert.True(t, rl.Allow("a"))
	}
}
