package worker

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff produces exponentially growing delays for retry loops. A
// little jitter is applied to every delay so pollers that fail together
// do not wake up in lockstep.
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64

	mu      sync.Mutex
	attempt int
}

// NewBackoff returns a backoff that starts at initial and doubles on
// every attempt up to max, with 10% jitter.
func NewBackoff(initial, max time.Duration) *Backoff {
	return NewBackoffWithConfig(initial, max, 2.0, 0.1)
}

// NewBackoffWithConfig returns a backoff with explicit growth factor and
// jitter fraction. A jitter of 0 makes the delays deterministic.
func NewBackoffWithConfig(initial, max time.Duration, multiplier, jitter float64) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	if multiplier < 1 {
		multiplier = 2.0
	}
	return &Backoff{
		initial:    initial,
		max:        max,
		multiplier: multiplier,
		jitter:     jitter,
	}
}

// Next returns the delay for the current attempt and advances the
// attempt counter.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := float64(b.initial) * math.Pow(b.multiplier, float64(b.attempt))
	if delay > float64(b.max) {
		delay = float64(b.max)
	}

	if b.jitter > 0 {
		spread := delay * b.jitter
		delay = delay - spread + rand.Float64()*spread*2
	}

	b.attempt++

	return time.Duration(delay)
}

// Reset returns the backoff to its initial state.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// Attempt reports how many delays have been handed out since the last
// reset.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
