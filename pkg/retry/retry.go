package retry

import (
	"context"
	"time"

	"github.com/scrutinychain/sdk/pkg/errors"
)

// DefaultMaxRetries is the default number of retries after the first attempt.
const DefaultMaxRetries = 3

// Policy controls how Do retries an operation.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero means the operation runs exactly once.
	MaxRetries int

	// Backoff computes the delay before each retry.
	// Nil means DefaultBackoffConfig.
	Backoff *BackoffConfig

	// Retryable decides whether an error is worth another attempt.
	// Nil means errors.IsRetryable.
	Retryable func(error) bool

	// OnRetry is called before sleeping ahead of retry number attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns a Policy with DefaultMaxRetries and default backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		Backoff:    DefaultBackoffConfig(),
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or runs out of
// retries. The last error is returned unchanged. If ctx is done while waiting
// between attempts, Do returns a KindTimeout error wrapping the last error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	backoff := p.Backoff
	if backoff == nil {
		backoff = DefaultBackoffConfig()
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = errors.IsRetryable
	}

	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= p.MaxRetries || !retryable(err) {
			return v, err
		}

		delay := backoff.Interval(attempt + 1)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, errors.E(errors.KindTimeout, "retry.Do", "context done while waiting to retry", err)
		case <-timer.C:
		}
	}
}

// WithTimeout runs fn under a deadline of d. When the deadline passes before
// fn returns, WithTimeout returns a KindTimeout "Operation timed out" error
// without waiting for fn. A d of zero or less runs fn under ctx unchanged.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, errors.FromContext("", ctx.Err())
	}
}
