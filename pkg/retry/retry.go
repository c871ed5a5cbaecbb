// Package retry implements the exponential backoff used against AI provider
// APIs: the wait before retry n is Base * 2^n.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/yanqian/smart-notes/pkg/errors"
)

// ErrMaxRetries is returned once a policy has exhausted its retries.
var ErrMaxRetries = errors.New("max retries exceeded")

// Policy describes how often and how patiently to retry.
type Policy struct {
	Base       time.Duration
	MaxRetries int
	// OnRetry is called before sleeping; attempt is the zero based retry count.
	OnRetry func(attempt int, wait time.Duration, err error)
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

// Delay returns the wait before the given retry.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return p.Base * time.Duration(1<<attempt)
}

// Do runs fn until it succeeds, returns a non retryable error, the context
// ends, or MaxRetries retries have been spent.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		cause := unwrapRetryable(err)
		if attempt >= p.MaxRetries {
			return fmt.Errorf("%w: %w", ErrMaxRetries, cause)
		}
		wait := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, cause)
		}
		if err := sleep(ctx, wait); err != nil {
			return interrupted(err, cause, attempt+1)
		}
	}
}

// interrupted keeps the last failure when the context ends during a backoff.
// The cause's code survives; a bare deadline becomes a timeout.
func interrupted(ctxErr, cause error, attempts int) error {
	wrapped := fmt.Errorf("%w after %d attempts: %w", ctxErr, attempts, cause)
	code := apperrors.CodeOf(cause)
	switch {
	case code != "":
	case errors.Is(ctxErr, context.DeadlineExceeded):
		code = apperrors.CodeTimeout
	default:
		return wrapped
	}
	return apperrors.Wrap(code, "gave up retrying", wrapped)
}

func unwrapRetryable(err error) error {
	var r *retryableError
	if errors.As(err, &r) {
		return r.err
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
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
