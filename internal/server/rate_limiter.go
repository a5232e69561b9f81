// Package server throttles inbound frames per connection so one client
// cannot flood the relay core.
package server

import (
	"math"
	"sync"
	"time"

	"github.com/roomrelay/roomrelay/internal/config"
)

// rateLimiter is a token bucket refilled continuously at Burst tokens per
// RefillInterval. One token is spent per inbound frame. Configuration is
// sanitized before it reaches here (config.sanitize), so burst and interval
// are positive.
type rateLimiter struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	rate   float64 // tokens per second
	last   time.Time
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	burst := float64(cfg.Burst)
	return &rateLimiter{
		tokens: burst,
		burst:  burst,
		rate:   burst / cfg.RefillInterval.Seconds(),
		last:   time.Now(),
	}
}

// allow spends a token if one is available and reports whether the frame may
// be processed.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens = math.Min(rl.burst, rl.tokens+now.Sub(rl.last).Seconds()*rl.rate)
	rl.last = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
