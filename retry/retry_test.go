package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/optimist"
)

type item struct{ ID string }

func fast(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Delay: Fixed(time.Millisecond)}
}

func TestCallRetriesUntilSuccess(t *testing.T) {
	n := 0
	call := Call(fast(3), func(ctx context.Context, op optimist.Op[item]) (item, error) {
		n++
		if n < 3 {
			return item{}, errors.New("flaky")
		}
		return item{ID: op.TargetID}, nil
	})

	got, err := call(context.Background(), optimist.Op[item]{TargetID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, 3, n)
}

func TestCallGivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("down")
	n := 0
	waits := 0
	p := fast(3)
	p.OnRetry = func(err error, d time.Duration) {
		waits++
		assert.ErrorIs(t, err, boom)
	}
	call := Call(p, func(ctx context.Context, op optimist.Op[item]) (item, error) {
		n++
		return item{ID: "partial"}, boom
	})

	got, err := call(context.Background(), optimist.Op[item]{})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, item{}, got)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, waits)
}

func TestNonRetryableStopsImmediately(t *testing.T) {
	conflict := errors.New("already there")
	p := fast(5)
	p.Retryable = func(err error) bool { return !errors.Is(err, conflict) }
	n := 0
	fetch := Fetch(p, func(ctx context.Context, key string) ([]item, error) {
		n++
		return nil, conflict
	})

	_, err := fetch(context.Background(), "wishlist:u1")
	require.ErrorIs(t, err, conflict)
	assert.Equal(t, 1, n)
}

func TestContextStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	n := 0
	p := Policy{MaxAttempts: 10, Delay: Fixed(time.Hour)}
	fetch := Fetch(p, func(ctx context.Context, key string) ([]item, error) {
		n++
		cancel()
		return nil, errors.New("down")
	})

	_, err := fetch(ctx, "cart:u1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, n)
}

func TestDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.Delay(1))
	assert.False(t, p.Retryable(context.Canceled))
	assert.True(t, p.Retryable(errors.New("x")))
}

func TestExponential(t *testing.T) {
	d := Exponential(100*time.Millisecond, time.Second)
	assert.Equal(t, 100*time.Millisecond, d(1))
	assert.Equal(t, 200*time.Millisecond, d(2))
	assert.Equal(t, 400*time.Millisecond, d(3))
	assert.Equal(t, time.Second, d(10))
}
