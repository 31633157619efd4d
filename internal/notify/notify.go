// Package notify delivers alert notifications to their target channels.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/good-yellow-bee/noisegate/internal/models"
)

// Notifier is the interface for all notification targets.
type Notifier interface {
	// Name returns the notifier name (e.g., "slack-webhook", "chat").
	Name() string
	// Send delivers a notification for a positive send decision.
	Send(ctx context.Context, decision *models.Decision) error
	// Close releases any resources.
	Close() error
}

// ErrRateLimited is returned when a notification is dropped because the
// outbound rate limit is exhausted.
var ErrRateLimited = fmt.Errorf("notification rate limited")

// Dispatcher fans a send decision out to every registered notifier,
// applying an outbound rate limit so a misconfigured rule set cannot
// flood the target channel.
type Dispatcher struct {
	mu             sync.RWMutex
	notifiers      map[string]Notifier
	limiter        *RateLimiter
	bypassCritical bool
}

// NewDispatcher creates a dispatcher with default rate limiting.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig())
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate
// limit configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig) *Dispatcher {
	return &Dispatcher{
		notifiers:      make(map[string]Notifier),
		limiter:        NewRateLimiter(config),
		bypassCritical: config.BypassCritical,
	}
}

// Register adds a notifier to the dispatcher.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Name()] = n
}

// Dispatch sends the decision to all registered notifiers. Critical
// alerts skip the rate limit when the limiter is configured to let them
// through. When every notifier fails the consumed rate limit token is
// returned, so a broken webhook does not eat the window.
func (d *Dispatcher) Dispatch(ctx context.Context, decision *models.Decision) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.notifiers) == 0 {
		return nil
	}

	limited := d.limiter != nil &&
		!(d.bypassCritical && decision.Record.Severity == models.SeverityCritical)
	if limited && !d.limiter.Allow() {
		return ErrRateLimited
	}

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Send(ctx, decision); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if limited && len(errs) == len(d.notifiers) {
		d.limiter.Release()
	}
	if len(errs) > 0 {
		return fmt.Errorf("notification errors: %v", errs)
	}
	return nil
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	if d.limiter == nil {
		return RateLimitStats{}
	}
	return d.limiter.Stats()
}

// Close closes all registered notifiers.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, n := range d.notifiers {
		if err := n.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.notifiers = make(map[string]Notifier)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
