// Package persist implements optimist.Persister on top of a provider.Provider.
//
// Each snapshot is one provider value under snap:<namespace>:<collection key>,
// framed by internal/wire with the generation it was written under. Delete
// bumps the generation before removing the value, so a Save racing with a
// Delete leaves a frame that the next Load rejects and removes.
package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/optimist"
	"github.com/unkn0wn-root/optimist/codec"
	"github.com/unkn0wn-root/optimist/genstore"
	"github.com/unkn0wn-root/optimist/internal/keys"
	"github.com/unkn0wn-root/optimist/internal/wire"
	"github.com/unkn0wn-root/optimist/provider"
)

const (
	defaultTTL          = 24 * time.Hour
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
)

// CostFunc returns the provider cost of a frame. Only ristretto uses it.
type CostFunc func(storageKey string, frame []byte, items int) int64

type Options[T any] struct {
	// Required
	Namespace string
	Provider  provider.Provider
	Codec     codec.Codec[T]
	ID        func(T) string

	// Optional
	GenStore    genstore.GenStore // nil => in-process LocalGenStore
	TTL         time.Duration     // 0 => 24h; <0 => no expiry
	ComputeCost CostFunc          // nil => len(frame)
	Logger      optimist.Logger
	Hooks       optimist.Hooks
}

// Store is safe for concurrent use.
type Store[T any] struct {
	ns       string
	provider provider.Provider
	codec    codec.Codec[T]
	id       func(T) string
	gen      genstore.GenStore
	ttl      time.Duration
	cost     CostFunc
	log      optimist.Logger
	hooks    optimist.Hooks
}

var _ optimist.Persister[struct{}] = (*Store[struct{}])(nil)

func New[T any](opts Options[T]) (*Store[T], error) {
	if opts.Provider == nil {
		return nil, errors.New("persist: provider is required")
	}
	if opts.Codec == nil {
		return nil, errors.New("persist: codec is required")
	}
	if opts.Namespace == "" {
		return nil, errors.New("persist: namespace is required")
	}
	if opts.ID == nil {
		return nil, errors.New("persist: ID func is required")
	}

	s := &Store[T]{
		ns:       opts.Namespace,
		provider: opts.Provider,
		codec:    opts.Codec,
		id:       opts.ID,
		gen:      opts.GenStore,
		cost:     opts.ComputeCost,
	}

	// defaults
	s.log = opts.Logger
	if s.log == nil {
		s.log = optimist.NopLogger{}
	}
	s.hooks = opts.Hooks
	if s.hooks == nil {
		s.hooks = optimist.NopHooks{}
	}
	switch {
	case opts.TTL == 0:
		s.ttl = defaultTTL
	case opts.TTL > 0:
		s.ttl = opts.TTL
	}
	if s.gen == nil {
		s.gen = genstore.NewLocalGenStore(defaultSweep, defaultGenRetention)
	}
	if s.cost == nil {
		s.cost = func(_ string, frame []byte, _ int) int64 { return int64(len(frame)) }
	}
	return s, nil
}

// StorageKey returns the provider key used for a collection key.
func (s *Store[T]) StorageKey(key string) string { return keys.Storage(s.ns, key) }

func (s *Store[T]) Load(ctx context.Context, key string) (optimist.Snapshot[T], bool, error) {
	var zero optimist.Snapshot[T]
	sk := s.StorageKey(key)

	raw, ok, err := s.provider.Get(ctx, sk)
	if err != nil || !ok {
		return zero, false, err
	}
	frame, err := wire.DecodeSnapshot(raw)
	if err != nil {
		s.selfHeal(ctx, sk, "corrupt")
		return zero, false, nil
	}

	cur, err := s.gen.Snapshot(ctx, sk)
	if err != nil {
		// cannot prove the frame is current; do not serve it
		return zero, false, fmt.Errorf("persist: generation snapshot: %w", err)
	}
	if frame.Gen != cur {
		s.selfHeal(ctx, sk, "gen_mismatch")
		return zero, false, nil
	}

	items := make([]T, 0, len(frame.Items))
	for _, it := range frame.Items {
		v, err := s.codec.Decode(it.Payload)
		if err != nil || s.id(v) != it.ID {
			s.selfHeal(ctx, sk, "item_decode")
			return zero, false, nil
		}
		items = append(items, v)
	}

	snap := optimist.Snapshot[T]{Items: items}
	if frame.FetchedAt != 0 {
		snap.FetchedAt = time.Unix(0, frame.FetchedAt)
	}
	return snap, true, nil
}

func (s *Store[T]) Save(ctx context.Context, key string, snap optimist.Snapshot[T]) error {
	sk := s.StorageKey(key)
	obs, err := s.gen.Snapshot(ctx, sk)
	if err != nil {
		return fmt.Errorf("persist: generation snapshot: %w", err)
	}

	frame := wire.Snapshot{Gen: obs, Items: make([]wire.Item, 0, len(snap.Items))}
	if !snap.FetchedAt.IsZero() {
		frame.FetchedAt = snap.FetchedAt.UnixNano()
	}
	for _, v := range snap.Items {
		payload, err := s.codec.Encode(v)
		if err != nil {
			return fmt.Errorf("persist: encode item %q: %w", s.id(v), err)
		}
		frame.Items = append(frame.Items, wire.Item{ID: s.id(v), Payload: payload})
	}
	b, err := wire.EncodeSnapshot(frame)
	if err != nil {
		return err
	}

	ok, err := s.provider.Set(ctx, sk, b, s.cost(sk, b, len(frame.Items)), s.ttl)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Debug("snapshot rejected by provider (pressure)", optimist.Fields{"key": keys.Redact(sk)})
	}
	return nil
}

// Delete fences then removes the snapshot. It fails only when neither step
// succeeded; either one alone keeps the old snapshot from being served.
func (s *Store[T]) Delete(ctx context.Context, key string) error {
	sk := s.StorageKey(key)
	newGen, bumpErr := s.gen.Bump(ctx, sk)
	delErr := s.provider.Del(ctx, sk)

	switch {
	case bumpErr != nil && delErr != nil:
		return &optimist.InvalidateError{Key: key, BumpErr: bumpErr, DelErr: delErr}
	case bumpErr != nil:
		s.log.Warn("snapshot gen bump failed; deleted without fence", optimist.Fields{"key": keys.Redact(sk), "err": bumpErr})
	case delErr != nil:
		s.log.Warn("snapshot delete failed; fenced by gen", optimist.Fields{"key": keys.Redact(sk), "err": delErr})
	default:
		s.log.Debug("snapshot deleted", optimist.Fields{"key": keys.Redact(sk), "gen": newGen})
	}
	return nil
}

// Close closes the generation store first (best effort), then the provider.
func (s *Store[T]) Close(ctx context.Context) error {
	_ = s.gen.Close(ctx)
	return s.provider.Close(ctx)
}

func (s *Store[T]) selfHeal(ctx context.Context, sk, reason string) {
	_ = s.provider.Del(ctx, sk)
	s.log.Debug("snapshot self-healed", optimist.Fields{"key": keys.Redact(sk), "reason": reason})
	s.hooks.SnapshotSelfHeal(sk, reason)
}
