// Package ristretto stores snapshots in a cost-bounded dgraph-io/ristretto
// cache. Cost is the encoded snapshot size, so MaxCost is a byte budget.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/optimist/provider"
)

// Config sizes the cache. Only MaxCost is required.
type Config struct {
	MaxCost int64 // bytes
	// NumCounters defaults to one counter per 100 bytes of MaxCost, roughly
	// ten per snapshot of a small cart.
	NumCounters int64
	BufferItems int64 // default 64
	Metrics     bool
}

type Provider struct {
	c *rc.Cache
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.MaxCost <= 0 {
		return nil, errors.New("ristretto provider: MaxCost must be > 0")
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = max(cfg.MaxCost/100, 1000)
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	if b, ok := v.([]byte); ok && b != nil {
		return b, true, nil
	}
	p.c.Del(key)
	return nil, false, nil
}

// Set waits for ristretto's write buffers so a snapshot saved right before a
// restart of the cache entry is visible to the next hydrate. ok=false means
// the admission policy dropped it.
func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	if cost <= 0 {
		cost = int64(len(value))
	}
	if ttl < 0 {
		ttl = 0
	}
	ok := p.c.SetWithTTL(key, value, cost, ttl)
	p.c.Wait()
	return ok, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Close(context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics is nil unless Config.Metrics was set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
