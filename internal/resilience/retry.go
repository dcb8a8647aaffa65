package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrInvalidMaxAttempts is returned by [Retry] when MaxAttempts is not positive.
var ErrInvalidMaxAttempts = errors.New("resilience: max attempts must be greater than 0")

// RetryPolicy configures [Retry].
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt; it doubles after
	// every further failure.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Zero means no cap.
	MaxDelay time.Duration

	// Retryable reports whether err is worth another attempt. Nil retries
	// every error.
	Retryable func(error) bool

	// OnRetry, if set, runs before each backoff sleep with the attempt that
	// just failed (1-based).
	OnRetry func(attempt int, err error)
}

// Retry runs op until it succeeds, returns a non-retryable error, or
// MaxAttempts is reached. It returns the error of the last attempt, or the
// context error if ctx ends while waiting.
func Retry(ctx context.Context, p RetryPolicy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, lastErr)
		}
		slog.Debug("operation failed, will retry",
			"attempt", attempt, "max_attempts", p.MaxAttempts, "err", lastErr)

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

// backoff returns BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
