package biz

import (
	"context"
	"errors"
	"time"

	"IntelHarvest/internal/model"
	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// ErrCircuitOpen is recorded for a source skipped by an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker open")

// FetchResult is the explicit outcome of a fetch: an envelope or an error.
type FetchResult struct {
	Envelope *model.SignalEnvelope
	Err      error
	// Attempts is the number of calls made, set by Fetcher.Do.
	Attempts int
}

// OK reports whether the fetch succeeded.
func (r FetchResult) OK() bool {
	return r.Err == nil && r.Envelope != nil
}

// Succeeded wraps a fetched envelope.
func Succeeded(envelope *model.SignalEnvelope) FetchResult {
	return FetchResult{Envelope: envelope}
}

// Failed wraps a fetch failure.
func Failed(err error) FetchResult {
	return FetchResult{Err: err}
}

// FetchFunc performs one call to a source. It must honor ctx.
type FetchFunc func(ctx context.Context) FetchResult

// Acquirer is satisfied by RateLimiter.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// RetryPolicy bounds how many times and how long a source is called.
type RetryPolicy struct {
	MaxAttempts int
	// Timeout bounds a single attempt.
	Timeout     time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// DefaultRetryPolicy is 3 attempts of 15s with 1s, 2s backoff capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Timeout:     15 * time.Second,
		BackoffBase: time.Second,
		BackoffCap:  30 * time.Second,
	}
}

// Delay returns the wait after the given zero-based attempt:
// min(base * 2^attempt, cap). A non-positive base means no wait.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BackoffBase <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 32 {
		return p.BackoffCap
	}
	d := p.BackoffBase * time.Duration(uint64(1)<<uint(attempt))
	if d > p.BackoffCap || d <= 0 {
		return p.BackoffCap
	}
	return d
}

// Fetcher runs a fetch with bounded exponential-backoff retry. It decides how
// many times to call once a call is permitted; whether to call at all is the
// circuit breaker's decision.
type Fetcher struct {
	policy RetryPolicy
	sleep  func(ctx context.Context, d time.Duration) error
	logger *pkglog.LogHelper
}

// NewFetcher creates a fetcher with the given policy.
func NewFetcher(policy RetryPolicy, logger log.Logger) *Fetcher {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Fetcher{
		policy: policy,
		sleep:  sleepContext,
		logger: pkglog.NewLogHelper(logger),
	}
}

// Policy returns the fetcher's retry policy.
func (f *Fetcher) Policy() RetryPolicy {
	return f.policy
}

// FetchOption customizes a single Do call.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	limiter Acquirer
}

// WithRateLimit acquires from limiter before every attempt. The wait for the
// limiter is not counted against the attempt timeout.
func WithRateLimit(limiter Acquirer) FetchOption {
	return func(o *fetchOptions) {
		o.limiter = limiter
	}
}

// Do calls op up to MaxAttempts times. Each attempt is bounded by the policy
// timeout; between attempts, not after the last, it waits Delay(attempt).
// The last failure is returned unchanged.
func (f *Fetcher) Do(ctx context.Context, sourceID string, op FetchFunc, opts ...FetchOption) FetchResult {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	var result FetchResult
	for attempt := 0; attempt < f.policy.MaxAttempts; attempt++ {
		if o.limiter != nil {
			if err := o.limiter.Acquire(ctx); err != nil {
				return FetchResult{Err: err, Attempts: attempt}
			}
		}

		result = f.attempt(ctx, op)
		result.Attempts = attempt + 1
		if result.Err == nil && result.Envelope == nil {
			result.Err = errors.New("source returned no data")
		}
		if result.Err == nil {
			return result
		}

		// Parent context is done: no point in retrying
		if ctx.Err() != nil {
			return result
		}
		if attempt == f.policy.MaxAttempts-1 {
			break
		}

		delay := f.policy.Delay(attempt)
		f.logger.Retry(ctx, sourceID, attempt+1, delay.Seconds(), result.Err)
		if err := f.sleep(ctx, delay); err != nil {
			return result
		}
	}
	return result
}

func (f *Fetcher) attempt(ctx context.Context, op FetchFunc) FetchResult {
	if f.policy.Timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, f.policy.Timeout)
	defer cancel()
	return op(attemptCtx)
}
