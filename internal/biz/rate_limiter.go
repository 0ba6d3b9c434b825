package biz

import (
	"context"
	"time"

	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// rateWindow is the rolling window a calls-per-minute limit applies to.
const rateWindow = 60 * time.Second

// RateLimiter bounds the outbound call rate of one dependency group to N
// calls per rolling 60 seconds. It never rejects a call, it only delays it.
//
// The window is kept in a RateWindowRepo: in-memory for a single process,
// Redis when several harvesters share one provider quota. Storage failures
// degrade to allowing the call (graceful degradation).
type RateLimiter struct {
	key   string
	limit int
	repo  RateWindowRepo

	// sem serializes Acquire so that the inspect-then-record update of the
	// window is atomic, while still honoring ctx while waiting for it.
	sem chan struct{}

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	logger *pkglog.LogHelper
}

// NewRateLimiter creates a limiter for the given window key.
func NewRateLimiter(key string, callsPerMinute int, repo RateWindowRepo, logger log.Logger) *RateLimiter {
	if callsPerMinute < 1 {
		callsPerMinute = 1
	}
	return &RateLimiter{
		key:    key,
		limit:  callsPerMinute,
		repo:   repo,
		sem:    make(chan struct{}, 1),
		now:    time.Now,
		sleep:  sleepContext,
		logger: pkglog.NewLogHelper(logger),
	}
}

// Limit returns the configured calls per minute.
func (l *RateLimiter) Limit() int {
	return l.limit
}

// Acquire blocks until issuing another call keeps the window at or below the
// limit, then records the call. It returns immediately when the window has
// room, and returns ctx.Err() if ctx ends while waiting.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.sem }()

	for {
		now := l.now()
		window, err := l.repo.Window(ctx, l.key, now.Add(-rateWindow))
		if err != nil {
			// Storage failure: log warning and allow call (graceful degradation)
			l.logger.Warnf("Rate window read failed for %s: %v (call allowed)", l.key, err)
			break
		}
		if len(window) < l.limit {
			break
		}

		// Wait until the oldest call leaves the window
		wait := window[0].Add(rateWindow).Sub(now)
		l.logger.RateLimit("Rate limit reached, delaying call",
			"key", l.key,
			"limit", l.limit,
			"in_window", len(window),
			"wait_seconds", wait.Seconds())
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}

	if err := l.repo.Add(ctx, l.key, l.now()); err != nil {
		l.logger.Warnf("Rate window write failed for %s: %v", l.key, err)
	}
	return nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
