package resilience

import (
	"math"
	"sync"
	"time"
)

// RateLimiterConfig configures a keyed token bucket limiter.
type RateLimiterConfig struct {
	// Rate is the sustained number of requests per second per key.
	Rate float64
	// Burst is the bucket size.
	Burst int
	// IdleTTL drops buckets untouched for this long. 0 keeps them forever.
	IdleTTL time.Duration
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key (an API key or client address).
type RateLimiter struct {
	config RateLimiterConfig
	now    func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter creates a new keyed rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10
	}
	if config.Burst <= 0 {
		config.Burst = int(math.Ceil(config.Rate))
	}
	return &RateLimiter{config: config, now: time.Now, buckets: make(map[string]*bucket)}
}

// Allow consumes a token for key. When the bucket is empty it returns false
// and the time until a token becomes available.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rl.config.Burst), lastSeen: now}
		rl.buckets[key] = b
	} else {
		b.tokens = math.Min(float64(rl.config.Burst), b.tokens+now.Sub(b.lastSeen).Seconds()*rl.config.Rate)
		b.lastSeen = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := time.Duration((1 - b.tokens) / rl.config.Rate * float64(time.Second))
	return false, wait
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *RateLimiter) sweep(now time.Time) {
	if rl.config.IdleTTL <= 0 || now.Sub(rl.lastSweep) < rl.config.IdleTTL {
		return
	}
	rl.lastSweep = now
	for k, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.config.IdleTTL {
			delete(rl.buckets, k)
		}
	}
}
