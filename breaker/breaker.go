// Package breaker guards backend calls and fetchers with a circuit breaker.
// A tripped breaker fails calls fast with gobreaker.ErrOpenState, which the
// cache treats like any other backend failure: the optimistic change is
// rolled back.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/unkn0wn-root/optimist"
)

type Settings struct {
	Name string

	// MaxRequests allowed while half-open. 0 => 1.
	MaxRequests uint32
	// Interval clears counts while closed. 0 => never.
	Interval time.Duration
	// Timeout before an open breaker goes half-open. 0 => 60s.
	Timeout time.Duration

	// Trip when at least MinRequests were seen and the failure ratio reaches FailureRatio.
	FailureRatio float64
	MinRequests  uint32

	// IsFailure decides which errors count against the breaker. nil => every
	// error except context cancellation.
	IsFailure func(error) bool

	OnStateChange func(name string, from, to gobreaker.State)
}

// Default returns the settings used by the storefront binary.
func Default(name string) Settings {
	return Settings{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func New(s Settings) *Breaker {
	isFailure := s.IsFailure
	if isFailure == nil {
		isFailure = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}
	minReq := s.MinRequests
	ratio := s.FailureRatio
	return &Breaker{cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < minReq {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= ratio
		},
		OnStateChange: s.OnStateChange,
		IsSuccessful: func(err error) bool {
			return err == nil || !isFailure(err)
		},
	})}
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }
func (b *Breaker) Name() string            { return b.cb.Name() }

// Call wraps a backend call.
func Call[T any](b *Breaker, call optimist.BackendCall[T]) optimist.BackendCall[T] {
	return func(ctx context.Context, op optimist.Op[T]) (T, error) {
		v, err := b.cb.Execute(func() (any, error) {
			return call(ctx, op)
		})
		if err != nil {
			var zero T
			return zero, err
		}
		res, _ := v.(T)
		return res, nil
	}
}

// Fetch wraps a fetcher.
func Fetch[T any](b *Breaker, fetch optimist.Fetcher[T]) optimist.Fetcher[T] {
	return func(ctx context.Context, key string) ([]T, error) {
		v, err := b.cb.Execute(func() (any, error) {
			return fetch(ctx, key)
		})
		if err != nil {
			return nil, err
		}
		items, _ := v.([]T)
		return items, nil
	}
}
