package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shineum/mailkit/internal/metrics"
)

// Defaults for RetryPolicy.
const (
	DefaultMaxRetries     = 3
	DefaultBaseRetryDelay = time.Second
)

// RetryPolicy controls how API providers retry transient failures. The
// delay doubles after every attempt.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy returns three retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseRetryDelay}
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// retryAfter is implemented by errors carrying a server supplied delay,
// such as an HTTP Retry-After header.
type retryAfter interface {
	RetryAfter() time.Duration
}

// Permanent wraps err so Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, the retries
// are used up or ctx is done. Retries are counted per provider name.
func (p RetryPolicy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying provider request",
				"provider", name,
				"attempt", attempt,
				"max_retries", p.MaxRetries,
			)
			metrics.DeliveryRetriesTotal.WithLabelValues(name).Inc()
			if err := sleepWithContext(ctx, p.delay(attempt-1, lastErr)); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		lastErr = err
		slog.Warn("provider request failed",
			"provider", name,
			"attempt", attempt,
			"error", err,
		)
	}

	return fmt.Errorf("%s request failed after %d retries: %w", name, p.MaxRetries, lastErr)
}

// delay prefers a server supplied hint over the computed backoff.
func (p RetryPolicy) delay(attempt int, lastErr error) time.Duration {
	var ra retryAfter
	if errors.As(lastErr, &ra) {
		if d := ra.RetryAfter(); d > 0 {
			return d
		}
	}
	return p.backoffDelay(attempt)
}

// backoffDelay returns the delay before retry number attempt (zero based).
func (p RetryPolicy) backoffDelay(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
