package misc

import (
	"context"
	"time"
)

// DefaultBackoff is the delay schedule between store retries.
var DefaultBackoff = []time.Duration{
	1 * time.Second,
	3 * time.Second,
	5 * time.Second,
}

// Retry runs op until it succeeds, fails with a non-retryable error, the delays
// are exhausted or ctx is done.
func Retry(ctx context.Context, delays []time.Duration, isRetryable func(error) bool, op func() error) error {
	var err error
	for i := 0; ; i++ {
		if err = op(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i >= len(delays) || !isRetryable(err) {
			return err
		}
		t := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RetryValue is Retry for operations that produce a value. The value of the
// last attempt is returned together with its error.
func RetryValue[T any](ctx context.Context, delays []time.Duration, isRetryable func(error) bool, op func() (T, error)) (T, error) {
	var out T
	err := Retry(ctx, delays, isRetryable, func() error {
		v, err := op()
		out = v
		return err
	})
	return out, err
}
