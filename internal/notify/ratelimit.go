package notify

import (
	"sync"
	"time"
)

// RateLimiter caps how many notifications go out per sliding window.
// It exists as a last line of defense: upstream deduplication should
// keep volume low, but a rule change that suddenly matches everything
// must not turn the target channel into the noise it was meant to stop.
type RateLimiter struct {
	mu           sync.Mutex
	maxPerWindow int
	window       time.Duration
	timestamps   []time.Time
	dropped      int64
	enabled      bool
	now          func() time.Time
}

// RateLimitConfig holds rate limiter configuration.
type RateLimitConfig struct {
	MaxPerWindow   int           // Maximum notifications per window (default: 10)
	Window         time.Duration // Time window (default: 1 minute)
	Enabled        bool          // Whether rate limiting is enabled
	BypassCritical bool          // Whether critical alerts skip the limit
}

// DefaultRateLimitConfig returns default rate limit settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPerWindow:   10,
		Window:         time.Minute,
		Enabled:        true,
		BypassCritical: true,
	}
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.MaxPerWindow <= 0 {
		config.MaxPerWindow = 10
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}

	return &RateLimiter{
		maxPerWindow: config.MaxPerWindow,
		window:       config.Window,
		timestamps:   make([]time.Time, 0, config.MaxPerWindow),
		enabled:      config.Enabled,
		now:          time.Now,
	}
}

// Allow reports whether a notification fits under the limit and, when
// it does, consumes a slot in the current window.
func (r *RateLimiter) Allow() bool {
	if !r.enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.expire(now.Add(-r.window))

	if len(r.timestamps) >= r.maxPerWindow {
		r.dropped++
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Release returns the most recently consumed slot. Call it when a
// notification attempt fails after Allow reported true.
func (r *RateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.timestamps); n > 0 {
		r.timestamps = r.timestamps[:n-1]
	}
}

// expire drops timestamps older than cutoff. Caller holds the mutex.
func (r *RateLimiter) expire(cutoff time.Time) {
	keep := 0
	for keep < len(r.timestamps) && r.timestamps[keep].Before(cutoff) {
		keep++
	}
	if keep > 0 {
		copy(r.timestamps, r.timestamps[keep:])
		r.timestamps = r.timestamps[:len(r.timestamps)-keep]
	}
}

// Stats returns rate limiter statistics.
func (r *RateLimiter) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return RateLimitStats{
		Dropped:      r.dropped,
		CurrentCount: len(r.timestamps),
		MaxPerWindow: r.maxPerWindow,
		Window:       r.window,
		Enabled:      r.enabled,
	}
}

// Reset clears the rate limiter state.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timestamps = r.timestamps[:0]
	r.dropped = 0
}

// RateLimitStats contains rate limiter statistics.
type RateLimitStats struct {
	Dropped      int64         `json:"dropped"`
	CurrentCount int           `json:"current_count"`
	MaxPerWindow int           `json:"max_per_window"`
	Window       time.Duration `json:"window"`
	Enabled      bool          `json:"enabled"`
}
