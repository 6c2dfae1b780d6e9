package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	p, err := New(Config{Client: rdb, CloseClient: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return mr, p
}

func TestRedis_GetSetDel(t *testing.T) {
	ctx := context.Background()
	mr, p := setup(t)

	_, ok, err := p.Get(ctx, "snap:shop:cart:u1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Set(ctx, "snap:shop:cart:u1", []byte{0x4f, 0x00, 0xff}, 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("snap:shop:cart:u1"))

	got, ok, err := p.Get(ctx, "snap:shop:cart:u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x4f, 0x00, 0xff}, got)

	require.NoError(t, p.Del(ctx, "snap:shop:cart:u1"))
	assert.False(t, mr.Exists("snap:shop:cart:u1"))
}

func TestRedis_ExpiredIsMiss(t *testing.T) {
	ctx := context.Background()
	mr, p := setup(t)

	_, err := p.Set(ctx, "k", []byte("v"), 1, time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_ServerErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	mr, p := setup(t)
	mr.SetError("LOADING")

	_, _, err := p.Get(ctx, "k")
	assert.Error(t, err)
}

func TestRedis_TimeoutBoundsCommands(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	p, err := New(Config{Client: rdb, Timeout: time.Second})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.Set(ctx, "snap:shop:wishlist:u2", []byte("w"), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), mr.TTL("snap:shop:wishlist:u2"))

	// the provider does not own rdb
	require.NoError(t, p.Close(ctx))
	require.NoError(t, rdb.Ping(ctx).Err())
}

func TestNew_NilClient(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)
}
