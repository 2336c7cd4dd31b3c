package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is an in-memory token bucket per key. Each key may make max requests in a burst, and
// regains them at an even pace over window.
type RateLimiter struct {
	limiters map[string]*entry
	lock     sync.Mutex
	window   time.Duration
	max      int
	now      func() time.Time
	// lastSweep is when idle keys were last evicted.
	lastSweep time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*entry),
		window:   window,
		max:      max,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	if rl.max <= 0 || rl.window <= 0 {
		return true
	}

	rl.lock.Lock()
	defer rl.lock.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > rl.window {
		rl.evict(now)
		rl.lastSweep = now
	}

	e, ok := rl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.max)), rl.max)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// evict drops keys idle for a full window. Their buckets would be full again anyway. It runs at most
// once per window.
func (rl *RateLimiter) evict(now time.Time) {
	for key, e := range rl.limiters {
		if now.Sub(e.lastSeen) > rl.window {
			delete(rl.limiters, key)
		}
	}
}
