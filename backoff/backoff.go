// Package backoff retries remote calls with increasing delays.
package backoff

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

var (
	// DefaultDelays are the waits before the second, third and fourth attempt
	DefaultDelays = []time.Duration{500 * time.Millisecond, 2 * time.Second, 8 * time.Second}

	// AttemptTimeout bounds a single attempt
	AttemptTimeout = 30 * time.Second
)

// Callback is one attempt of a retried call
type Callback[T any] func(ctx context.Context) (T, error)

// Options returns the retry options for a delay schedule. The number of
// attempts is one more than the number of delays.
func Options(ctx context.Context, delays []time.Duration) []retry.Option {
	if len(delays) == 0 {
		return []retry.Option{retry.Context(ctx), retry.Attempts(1), retry.LastErrorOnly(true)}
	}
	return []retry.Option{
		retry.Context(ctx),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return delayAt(delays, n)
		}),
		retry.Attempts(uint(len(delays) + 1)),
		retry.LastErrorOnly(true),
	}
}

// delayAt returns the wait after the nth failed attempt. retry-go counts
// attempts from 1 by the time it asks for a delay.
func delayAt(delays []time.Duration, n uint) time.Duration {
	i := max(int(n)-1, 0)
	return delays[min(i, len(delays)-1)]
}

// Retry runs callback until it succeeds, returns an unrecoverable error or
// the delay schedule is exhausted.
func Retry[T any](ctx context.Context, delays []time.Duration, callback Callback[T], opts ...retry.Option) (T, error) {
	var value T
	err := retry.Do(func() error {
		actx, cancel := context.WithTimeout(ctx, AttemptTimeout)
		defer cancel()

		var err error
		value, err = callback(actx)
		return err
	}, append(Options(ctx, delays), opts...)...)

	return value, err
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	return retry.Unrecoverable(err)
}
