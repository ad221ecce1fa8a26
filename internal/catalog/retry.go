package catalog

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryWithBackoff calls fn up to maxRetries+1 times, doubling the delay
// after each failure with ±25% jitter. A permanentError stops the loop and
// its cause is returned.
func RetryWithBackoff(ctx context.Context, maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var permErr *permanentError
		if errors.As(err, &permErr) {
			return permErr.Unwrap()
		}

		if attempt == maxRetries {
			break
		}

		delay := initialDelay << attempt
		if half := int64(delay) / 2; half > 0 {
			delay = delay - delay/4 + time.Duration(rand.Int63n(half))
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
