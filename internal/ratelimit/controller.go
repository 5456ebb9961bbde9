// Package ratelimit provides the process-wide gate in front of upstream
// price-data calls: a minimum spacing between requests plus an exclusion
// window ("cooldown") entered when the upstream signals throttling.
//
// The controller never gives up and never fails a request on its own; it
// only delays callers. The single intentional blocking point is Wait, which
// may sleep for up to the configured minimum interval, or until the cooldown
// deadline when one is active.
package ratelimit

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMinInterval is the starting spacing between upstream calls.
	DefaultMinInterval = 3 * time.Second

	// DefaultCooldown is the exclusion window applied when ReportThrottled
	// is called without an explicit base.
	DefaultCooldown = 90 * time.Second

	// throttledFloor is the minimum spacing enforced once throttling has
	// been observed. The interval can grow past it but never shrinks
	// automatically.
	throttledFloor = 3 * time.Second

	// maxWaitJitter is the upper bound of the random delay added after the
	// spacing wait, de-synchronizing concurrent callers.
	maxWaitJitter = 500 * time.Millisecond
)

// Controller enforces a minimum interval between upstream calls and a
// cooldown deadline after detected throttling. One instance is shared by all
// concurrent fetch operations of a process.
type Controller struct {
	mu            sync.Mutex
	limiter       *rate.Limiter
	minInterval   time.Duration
	cooldownUntil time.Time

	logger *slog.Logger
}

// New creates a controller with the given minimum request spacing.
// Non-positive values fall back to DefaultMinInterval.
func New(minInterval time.Duration, logger *slog.Logger) *Controller {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		limiter:     rate.NewLimiter(rate.Every(minInterval), 1),
		minInterval: minInterval,
		logger:      logger,
	}
}

// Wait blocks until it is safe to issue the next upstream call: first until
// any active cooldown deadline has passed, then until the shared minimum
// spacing allows another request, then for a small random jitter. The only
// error it returns is the context's.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		remaining := time.Until(c.cooldownUntil)
		c.mu.Unlock()

		if remaining <= 0 {
			break
		}
		c.logger.Info("upstream cooldown active, waiting", "remaining", remaining.Round(time.Millisecond))
		if err := sleep(ctx, remaining); err != nil {
			return err
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	// Jitter after the token grant keeps concurrent callers from releasing
	// in lockstep once a cooldown expires.
	if j := rand.N(maxWaitJitter); j > 0 {
		if err := sleep(ctx, j); err != nil {
			return err
		}
	}
	return nil
}

// ReportThrottled records an upstream throttling signal: the cooldown
// deadline moves to now + base + jitter (jitter in [0, base/4]), and the
// minimum spacing is raised to at least the throttled floor. A non-positive
// base selects DefaultCooldown. An existing later deadline is kept.
func (c *Controller) ReportThrottled(base time.Duration) {
	if base <= 0 {
		base = DefaultCooldown
	}
	jitter := rand.N(base/4 + 1)
	until := time.Now().Add(base + jitter)

	c.mu.Lock()
	if until.After(c.cooldownUntil) {
		c.cooldownUntil = until
	}
	raised := false
	if c.minInterval < throttledFloor {
		c.minInterval = throttledFloor
		c.limiter.SetLimit(rate.Every(throttledFloor))
		raised = true
	}
	minInterval := c.minInterval
	deadline := c.cooldownUntil
	c.mu.Unlock()

	c.logger.Warn("upstream throttling detected, entering cooldown",
		"cooldown_until", deadline,
		"base", base,
		"jitter", jitter.Round(time.Millisecond),
		"min_interval", minInterval,
		"min_interval_raised", raised)
}

// InCooldown reports whether the cooldown deadline is still in the future.
func (c *Controller) InCooldown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Before(c.cooldownUntil)
}

// MinInterval returns the current minimum spacing between upstream calls.
func (c *Controller) MinInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.minInterval
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
