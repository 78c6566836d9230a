package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// RetryPolicy bounds provider calls made by the cache.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls for transient failures.
	MaxAttempts int
	// Delay is the base wait between attempts.
	Delay time.Duration
	// Backoff returns the wait before retry number attempt (1-based).
	// Defaults to Delay × attempt.
	Backoff func(attempt int) time.Duration
	// Retryable reports whether err should be retried.
	// Defaults to errors.Is(err, domain.ErrTransient).
	Retryable func(err error) bool
	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy allows 3 attempts with a 2s linear backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) wait(attempt int) time.Duration {
	if p.Backoff != nil {
		return p.Backoff(attempt)
	}
	return p.Delay * time.Duration(attempt)
}

func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return errors.Is(err, domain.ErrTransient)
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
