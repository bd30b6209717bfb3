package annotate

import (
	"context"
	"errors"
	"time"

	"github.com/kailas-cloud/newsdigest/internal/domain"
)

// BackoffKind selects how the wait before the next attempt is computed.
type BackoffKind int

const (
	// BackoffLinear waits BaseDelay * attempt.
	BackoffLinear BackoffKind = iota
	// BackoffFixed waits RateLimitDelay regardless of attempt.
	BackoffFixed
)

// RetryPolicy bounds and paces attempts of one structured call.
type RetryPolicy struct {
	MaxAttempts    int
	RateLimitDelay time.Duration
	BaseDelay      time.Duration
}

// AuditedRetryPolicy paces the generate, audit and recovery calls.
func AuditedRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, RateLimitDelay: 65 * time.Second, BaseDelay: 15 * time.Second}
}

// LegacyRetryPolicy paces the single-item call.
func LegacyRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, RateLimitDelay: 65 * time.Second, BaseDelay: 35 * time.Second}
}

// NoDelayRetryPolicy keeps the attempt bound but never waits.
func NoDelayRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3}
}

// Classify picks fixed backoff for rate-limit rejections and linear for everything else.
func (p RetryPolicy) Classify(err error) BackoffKind {
	if errors.Is(err, domain.ErrRateLimited) {
		return BackoffFixed
	}
	return BackoffLinear
}

// Delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(err error, attempt int) time.Duration {
	if p.Classify(err) == BackoffFixed {
		return p.RateLimitDelay
	}
	return p.BaseDelay * time.Duration(attempt)
}

// Retryable reports whether another attempt can change the outcome.
// Cancellation and local quota rejection cannot.
func (p RetryPolicy) Retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, domain.ErrQuotaExceeded):
		return false
	}
	return true
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
