package storefront

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/unkn0wn-root/optimist"
	"github.com/unkn0wn-root/optimist/breaker"
	"github.com/unkn0wn-root/optimist/retry"
)

type settings struct {
	retry   *retry.Policy
	breaker *breaker.Breaker
	now     func() time.Time
}

type Option func(*settings)

// WithRetry retries failed fetches and backend calls. Errors that cannot
// succeed on a second attempt (auth, conflicts, an open breaker) are never
// retried.
func WithRetry(p retry.Policy) Option {
	return func(s *settings) { s.retry = &p }
}

// WithBreaker routes every fetch and backend call through b.
func WithBreaker(b *breaker.Breaker) Option {
	return func(s *settings) { s.breaker = b }
}

// WithClock sets the clock used to stamp optimistic rows.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now}
	for _, o := range opts {
		o(&s)
	}
	if s.retry != nil {
		inner := s.retry.Retryable
		s.retry.Retryable = func(err error) bool {
			if permanent(err) {
				return false
			}
			return inner == nil || inner(err)
		}
	}
	return s
}

func permanent(err error) bool {
	switch {
	case errors.Is(err, ErrNotAuthenticated),
		errors.Is(err, ErrAlreadyInWishlist),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return true
	}
	var ve *ValidationError
	return errors.As(err, &ve)
}

func wrapCall[T any](s settings, call optimist.BackendCall[T]) optimist.BackendCall[T] {
	if s.breaker != nil {
		call = breaker.Call(s.breaker, call)
	}
	if s.retry != nil {
		call = retry.Call(*s.retry, call)
	}
	return call
}

func wrapFetch[T any](s settings, fetch optimist.Fetcher[T]) optimist.Fetcher[T] {
	if s.breaker != nil {
		fetch = breaker.Fetch(s.breaker, fetch)
	}
	if s.retry != nil {
		fetch = retry.Fetch(*s.retry, fetch)
	}
	return fetch
}
