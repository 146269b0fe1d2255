package util

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryableError marks a failure worth another attempt. After, when
// non-zero, is the wait the remote side asked for.
type RetryableError struct {
	Err   error
	After time.Duration
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// RetryWithBackoff calls fn up to maxRetries+1 times. Only errors wrapped in
// RetryableError are retried; anything else is returned as is. The wait
// before attempt n is base<<n, or the error's After when that is longer.
// If the context is cancelled, RetryWithBackoff returns the context error.
func RetryWithBackoff(ctx context.Context, maxRetries int, base time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		var retryable *RetryableError
		if !errors.As(lastErr, &retryable) {
			return lastErr
		}

		// Don't wait after the last attempt
		if attempt == maxRetries {
			break
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		backoff := base << attempt
		if retryable.After > backoff {
			backoff = retryable.After
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}
