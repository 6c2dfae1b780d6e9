package optimist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/optimist/internal/keys"
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("optimist: cache closed")

type cache[T any] struct {
	id        func(T) string
	merge     func(existing, incoming T) T
	clone     func(T) T
	staleTime time.Duration
	maxQueue  int
	notify    NotificationSink
	describe  func(Notification) string
	persister Persister[T]
	log       Logger
	hooks     Hooks
	now       func() time.Time

	flight singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry[T]
	subs    map[string]map[uint64]*subscription[T]
	version uint64 // last published version, shared by all keys
	tick    uint64 // logical clock for PendingMutation.AppliedAt
	seq     uint64 // fetch and subscription ids
	closed  bool
}

// entry is the mutable state behind one key. Every field except saveMu and
// savedRev is guarded by cache.mu.
type entry[T any] struct {
	key       string
	base      []T // last authoritative state
	items     []T // base with pending applied, in order
	pending   []*pending[T]
	status    Status
	fetchedAt time.Time
	err       error
	version   uint64
	stale     bool
	closed    bool
	torn      chan struct{}

	fetching      bool
	flight        string
	fetcher       Fetcher[T]
	fetchErr      error
	invalidations uint64
	fetchInv      uint64 // invalidations when the fetch in flight started
	hydrated      bool

	lanes     map[string]*lane
	clearLane *lane

	baseRev  uint64
	saveMu   sync.Mutex
	savedRev uint64
}

func newCache[T any](opts Options[T]) (*cache[T], error) {
	if opts.ID == nil {
		return nil, fmt.Errorf("optimist: ID func is required")
	}
	if opts.MaxPendingPerItem < 0 {
		return nil, fmt.Errorf("optimist: MaxPendingPerItem must be >= 0, got %d", opts.MaxPendingPerItem)
	}

	c := &cache[T]{
		id:        opts.ID,
		merge:     opts.Merge,
		clone:     opts.Clone,
		notify:    opts.Notify,
		describe:  opts.Describe,
		persister: opts.Persister,
		now:       opts.Now,
		entries:   make(map[string]*entry[T]),
		subs:      make(map[string]map[uint64]*subscription[T]),
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.staleTime = coalesce(opts.StaleTime, defaultStaleTime)
	c.maxQueue = coalesce(opts.MaxPendingPerItem, defaultMaxPending)
	if c.clone == nil {
		c.clone = func(v T) T { return v }
	}
	if c.describe == nil {
		c.describe = DefaultMessage
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func (c *cache[T]) Get(ctx context.Context, key string, fetch Fetcher[T], opts ...GetOption) Entry[T] {
	var o getOptions
	for _, fn := range opts {
		fn(&o)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Entry[T]{Key: key, Status: StatusEmpty}
	}
	e := c.entryLocked(key)
	var b batch
	flight, started, deduped := "", false, false
	switch {
	case e.fetching:
		deduped = true
	case fetch != nil && c.needsFetchLocked(e, o):
		flight = c.startFetchLocked(e, fetch)
		started = true
		b.add(c.publishLocked(e))
	}
	snap := c.snapshotLocked(e)
	c.mu.Unlock()

	if deduped {
		c.hooks.FetchDeduped(key)
	}
	if started {
		// result channel is buffered; nobody needs to drain it
		c.flight.DoChan(flight, c.fetchFn(ctx, e, flight))
	}
	b.run()
	return snap
}

func (c *cache[T]) Load(ctx context.Context, key string, fetch Fetcher[T]) (Entry[T], error) {
	if fetch == nil {
		return Entry[T]{Key: key}, &Error{Kind: FetchFailed, Key: key, Op: Fetch, Err: ErrNilFetcher}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Entry[T]{Key: key}, &Error{Kind: FetchFailed, Key: key, Op: Fetch, Err: ErrClosed}
	}
	e := c.entryLocked(key)
	var b batch
	var flight string
	deduped := false
	switch {
	case e.fetching:
		flight = e.flight
		deduped = true
	case c.needsFetchLocked(e, getOptions{}):
		flight = c.startFetchLocked(e, fetch)
		b.add(c.publishLocked(e))
	default:
		snap := c.snapshotLocked(e)
		c.mu.Unlock()
		return snap, nil
	}
	c.mu.Unlock()

	if deduped {
		c.hooks.FetchDeduped(key)
	}
	ch := c.flight.DoChan(flight, c.fetchFn(ctx, e, flight))
	b.run()

	select {
	case res := <-ch:
		c.mu.Lock()
		snap := c.snapshotLocked(e)
		c.mu.Unlock()
		if res.Err != nil {
			var ferr *Error
			if !errors.As(res.Err, &ferr) {
				ferr = &Error{Kind: FetchFailed, Key: key, Op: Fetch, Err: res.Err}
			}
			return snap, ferr
		}
		return snap, nil
	case <-ctx.Done():
		c.mu.Lock()
		snap := c.snapshotLocked(e)
		c.mu.Unlock()
		return snap, &Error{Kind: FetchFailed, Key: key, Op: Fetch, Err: ctx.Err()}
	}
}

func (c *cache[T]) Peek(key string) (Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry[T]{Key: key, Status: StatusEmpty}, false
	}
	return c.snapshotLocked(e), true
}

func (c *cache[T]) Invalidate(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	e.stale = true
	var deliver func()
	if e.fetching {
		// the fetch in flight may have read state older than this call
		e.invalidations++
	} else {
		e.status = StatusEmpty
		deliver = c.publishLocked(e)
	}
	c.mu.Unlock()

	c.log.Debug("invalidated entry", Fields{"key": keys.Redact(key)})
	if deliver != nil {
		deliver()
	}
}

func (c *cache[T]) Teardown(ctx context.Context, key string) error {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return c.deleteSnapshot(ctx, key, nil)
	}
	deliver := c.teardownLocked(e)
	c.mu.Unlock()

	c.log.Debug("entry torn down", Fields{"key": keys.Redact(key)})
	deliver()
	return c.deleteSnapshot(ctx, key, e)
}

func (c *cache[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var b batch
	for _, e := range c.entries {
		b.add(c.teardownLocked(e))
	}
	c.mu.Unlock()

	b.run()
	if c.persister != nil {
		return c.persister.Close(ctx)
	}
	return nil
}

// teardownLocked detaches e and returns the publish of an empty entry for key.
func (c *cache[T]) teardownLocked(e *entry[T]) func() {
	e.closed = true
	close(e.torn)
	delete(c.entries, e.key)

	c.version++
	snap := Entry[T]{Key: e.key, Status: StatusEmpty, Version: c.version}
	subs := c.subscribersLocked(e.key)
	return func() {
		for _, s := range subs {
			s.deliver(snap)
		}
	}
}

// deleteSnapshot removes the persisted snapshot for key. With e set it first
// waits out any save of e already in progress.
func (c *cache[T]) deleteSnapshot(ctx context.Context, key string, e *entry[T]) error {
	if c.persister == nil {
		return nil
	}
	if e != nil {
		e.saveMu.Lock()
		defer e.saveMu.Unlock()
	}
	if err := c.persister.Delete(ctx, key); err != nil {
		c.log.Error("snapshot delete failed", Fields{"key": keys.Redact(key), "err": err})
		c.hooks.PersistError(key, "delete", err)
		return err
	}
	return nil
}

func (c *cache[T]) entryLocked(key string) *entry[T] {
	if e, ok := c.entries[key]; ok {
		return e
	}
	e := &entry[T]{
		key:    key,
		status: StatusEmpty,
		torn:   make(chan struct{}),
		lanes:  make(map[string]*lane),
	}
	c.entries[key] = e
	return e
}

func (c *cache[T]) needsFetchLocked(e *entry[T], o getOptions) bool {
	if o.revalidate || e.stale {
		return true
	}
	switch e.status {
	case StatusEmpty, StatusError:
		return true
	}
	if e.fetchedAt.IsZero() {
		return true
	}
	maxAge := c.staleTime
	if o.hasAge {
		if o.maxAge <= 0 {
			return true
		}
		maxAge = o.maxAge
	}
	if maxAge < 0 {
		return false
	}
	return c.now().Sub(e.fetchedAt) > maxAge
}

// snapshotLocked copies e into an Entry value.
func (c *cache[T]) snapshotLocked(e *entry[T]) Entry[T] {
	snap := Entry[T]{
		Key:           e.key,
		Items:         c.cloneAll(e.items),
		Status:        e.status,
		LastFetchedAt: e.fetchedAt,
		Err:           e.err,
		Version:       e.version,
	}
	if len(e.pending) > 0 {
		snap.Pending = make([]PendingMutation[T], len(e.pending))
		for i, p := range e.pending {
			snap.Pending[i] = PendingMutation[T]{
				MutationID: p.id,
				Kind:       p.kind,
				TargetID:   p.target,
				Previous:   c.cloneAll(p.previous),
				AppliedAt:  p.at,
			}
		}
	}
	return snap
}

// publishLocked stamps a new version on e and returns the delivery to run
// once the lock is released.
func (c *cache[T]) publishLocked(e *entry[T]) func() {
	c.version++
	e.version = c.version
	subs := c.subscribersLocked(e.key)
	if len(subs) == 0 {
		return func() {}
	}
	snap := c.snapshotLocked(e)
	return func() {
		// listeners run synchronously and may edit what they get, so snap is
		// only handed out once every other listener has its copy
		last := len(subs) - 1
		for _, s := range subs[:last] {
			s.deliver(c.dup(snap))
		}
		subs[last].deliver(snap)
	}
}

// dup gives a listener its own copy of the slices in snap.
func (c *cache[T]) dup(snap Entry[T]) Entry[T] {
	snap.Items = c.cloneAll(snap.Items)
	if snap.Pending != nil {
		ps := make([]PendingMutation[T], len(snap.Pending))
		for i, p := range snap.Pending {
			p.Previous = c.cloneAll(p.Previous)
			ps[i] = p
		}
		snap.Pending = ps
	}
	return snap
}

func (c *cache[T]) cloneAll(items []T) []T {
	if len(items) == 0 {
		return nil
	}
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = c.clone(it)
	}
	return out
}

func (c *cache[T]) emit(n Notification) {
	if c.notify == nil {
		return
	}
	n.Message = c.describe(n)
	c.notify(n)
}

// batch collects work to run after cache.mu is released.
type batch struct{ fns []func() }

func (b *batch) add(fn func()) {
	if fn != nil {
		b.fns = append(b.fns, fn)
	}
}

func (b *batch) run() {
	for _, fn := range b.fns {
		fn()
	}
}
