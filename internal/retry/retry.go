// Package retry wraps the model service clients with bounded backoff and throttling.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// Policy bounds how often a failed call is repeated.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy tries three times with 500ms initial backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// NewLimiter returns a limiter allowing rps calls per second, or nil when rps <= 0.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := max(int(rps), 1)
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Do runs op until it succeeds, fails with a non-retryable error, or the policy
// is exhausted. Only errors carrying a retryable domain.ServiceError are repeated.
func Do(ctx context.Context, p Policy, limiter *rate.Limiter, op func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		err := op(ctx)
		if err != nil && !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}
