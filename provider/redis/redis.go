// Package redis stores snapshots in Redis so they survive restarts and are
// shared by every process behind the same storefront.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/optimist/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

type Config struct {
	Client goredis.UniversalClient
	// Timeout bounds each command on top of the caller's context. Zero leaves
	// the caller's deadline alone.
	Timeout time.Duration
	// CloseClient hands ownership of Client to the provider.
	CloseClient bool
}

type Redis struct {
	rdb     goredis.UniversalClient
	timeout time.Duration
	owned   bool
}

var _ pr.Provider = (*Redis)(nil)

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, timeout: cfg.Timeout, owned: cfg.CloseClient}, nil
}

func (p *Redis) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	b, err := p.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("redis provider: get: %w", err)
	}
	return b, true, nil
}

// Set ignores cost. A non-positive ttl stores the snapshot without expiry.
func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	if ttl < 0 {
		ttl = 0
	}
	if err := p.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, fmt.Errorf("redis provider: set: %w", err)
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()
	if err := p.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis provider: del: %w", err)
	}
	return nil
}

// Close closes the client if the provider owns it. Repeated calls are no-ops.
func (p *Redis) Close(context.Context) error {
	if !p.owned {
		return nil
	}
	if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
