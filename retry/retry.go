// Package retry re-runs failed backend calls and fetchers. The cache itself
// never retries; callers compose a Policy around the functions they pass in.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/unkn0wn-root/optimist"
)

const (
	defaultAttempts = 3
	defaultDelay    = time.Second
)

type Policy struct {
	// MaxAttempts counts the first try. 0 => 3; 1 disables retries.
	MaxAttempts int
	// Delay before retry n (1-based). nil => fixed 1s.
	Delay func(attempt int) time.Duration
	// Retryable reports whether err is worth another attempt. nil => every
	// error except context cancellation.
	Retryable func(error) bool
	// OnRetry is called before each wait. Optional.
	OnRetry func(err error, wait time.Duration)
}

// Fixed waits d between attempts.
func Fixed(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// Exponential doubles base on every attempt, capped at max.
func Exponential(base, max time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt && d < max; i++ {
			d *= 2
		}
		if d > max {
			d = max
		}
		return d
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultAttempts
	}
	if p.Delay == nil {
		p.Delay = Fixed(defaultDelay)
	}
	if p.Retryable == nil {
		p.Retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}
	return p
}

// schedule adapts Policy.Delay to backoff.BackOff.
type schedule struct {
	delay   func(int) time.Duration
	attempt int
}

func (s *schedule) NextBackOff() time.Duration {
	s.attempt++
	return s.delay(s.attempt)
}

func (s *schedule) Reset() { s.attempt = 0 }

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.withDefaults()
	var b backoff.BackOff = &schedule{delay: p.Delay}
	b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	b = backoff.WithContext(b, ctx)

	op := func() error {
		err := fn(ctx)
		if err != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var notify backoff.Notify
	if p.OnRetry != nil {
		notify = p.OnRetry
	}
	return backoff.RetryNotify(op, b, notify)
}

// Call wraps a backend call.
func Call[T any](p Policy, call optimist.BackendCall[T]) optimist.BackendCall[T] {
	return func(ctx context.Context, op optimist.Op[T]) (T, error) {
		var res T
		err := p.Do(ctx, func(ctx context.Context) error {
			var err error
			res, err = call(ctx, op)
			return err
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return res, nil
	}
}

// Fetch wraps a fetcher.
func Fetch[T any](p Policy, fetch optimist.Fetcher[T]) optimist.Fetcher[T] {
	return func(ctx context.Context, key string) ([]T, error) {
		var items []T
		err := p.Do(ctx, func(ctx context.Context) error {
			var err error
			items, err = fetch(ctx, key)
			return err
		})
		if err != nil {
			return nil, err
		}
		return items, nil
	}
}
