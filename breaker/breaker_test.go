package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/optimist"
)

type item struct{ ID string }

func testSettings() Settings {
	return Settings{
		Name:         "cart",
		MaxRequests:  1,
		Timeout:      50 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func TestCallTripsAfterFailureRatio(t *testing.T) {
	b := New(testSettings())
	boom := errors.New("backend down")
	calls := 0
	call := Call(b, func(ctx context.Context, op optimist.Op[item]) (item, error) {
		calls++
		return item{}, boom
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := call(ctx, optimist.Op[item]{Kind: optimist.Add})
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := call(ctx, optimist.Op[item]{Kind: optimist.Add})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, calls, "open breaker must not reach the backend")
}

func TestHalfOpenRecovers(t *testing.T) {
	b := New(testSettings())
	fail := true
	fetch := Fetch(b, func(ctx context.Context, key string) ([]item, error) {
		if fail {
			return nil, errors.New("down")
		}
		return []item{{ID: "p1"}}, nil
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = fetch(ctx, "cart:u1")
	}
	require.Equal(t, gobreaker.StateOpen, b.State())

	time.Sleep(60 * time.Millisecond)
	fail = false
	items, err := fetch(ctx, "cart:u1")
	require.NoError(t, err)
	assert.Equal(t, []item{{ID: "p1"}}, items)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestCancellationDoesNotTrip(t *testing.T) {
	b := New(testSettings())
	call := Call(b, func(ctx context.Context, op optimist.Op[item]) (item, error) {
		return item{}, context.Canceled
	})
	for i := 0; i < 5; i++ {
		_, err := call(context.Background(), optimist.Op[item]{})
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestCallPassesResultThrough(t *testing.T) {
	b := New(Default("wishlist"))
	call := Call(b, func(ctx context.Context, op optimist.Op[item]) (item, error) {
		return item{ID: op.TargetID}, nil
	})
	got, err := call(context.Background(), optimist.Op[item]{TargetID: "p9"})
	require.NoError(t, err)
	assert.Equal(t, "p9", got.ID)
	assert.Equal(t, "wishlist", b.Name())
}
