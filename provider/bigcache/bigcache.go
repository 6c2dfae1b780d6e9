// Package bigcache stores snapshots in an allegro/bigcache shard set.
// Suited to a single process that wants warm restarts of the in-memory view
// without a network hop; snapshots do not survive the process.
//
// bigcache only knows one LifeWindow for the whole cache. Per-snapshot TTLs
// are kept in an 8-byte deadline header in front of each stored value and
// checked on Get; the header never leaves this package.
package bigcache

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/optimist/provider"
)

const headerLen = 8

type Config struct {
	LifeWindow         time.Duration // upper bound on any snapshot's life
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // 0 = unlimited
}

type Provider struct {
	c   *bc.BigCache
	now func() time.Time
}

var _ pr.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("bigcache provider: LifeWindow must be > 0")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	conf.CleanWindow = pick(cfg.CleanWindow, conf.CleanWindow)
	conf.MaxEntriesInWindow = pick(cfg.MaxEntriesInWindow, conf.MaxEntriesInWindow)
	conf.MaxEntrySize = pick(cfg.MaxEntrySize, conf.MaxEntrySize)
	conf.HardMaxCacheSize = pick(cfg.HardMaxCacheSizeMB, conf.HardMaxCacheSize)

	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, now: time.Now}, nil
}

func pick[N int | time.Duration](v, def N) N {
	if v > 0 {
		return v
	}
	return def
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, err := p.c.Get(key)
	switch {
	case errors.Is(err, bc.ErrEntryNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	if len(raw) < headerLen {
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	if dl := int64(binary.BigEndian.Uint64(raw)); dl != 0 && p.now().UnixNano() >= dl {
		_ = p.c.Delete(key)
		return nil, false, nil
	}
	// bigcache returns a copy, so the tail can be handed out as is
	return raw[headerLen:], true, nil
}

// Set stores value until ttl passes or LifeWindow evicts it, whichever comes
// first. A non-positive ttl means LifeWindow alone.
func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	buf := make([]byte, headerLen+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(p.now().Add(ttl).UnixNano()))
	}
	copy(buf[headerLen:], value)
	if err := p.c.Set(key, buf); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (p *Provider) Close(context.Context) error { return p.c.Close() }
