package optimist

import (
	"context"
	"strconv"

	"github.com/unkn0wn-root/optimist/internal/keys"
)

// startFetchLocked marks e as fetching and returns the singleflight key for
// this fetch. Keys are unique per fetch so a caller arriving after the flight
// settled never joins a finished one by accident.
func (c *cache[T]) startFetchLocked(e *entry[T], fetch Fetcher[T]) string {
	c.seq++
	e.fetching = true
	e.fetcher = fetch
	e.fetchInv = e.invalidations
	e.flight = e.key + "#" + strconv.FormatUint(c.seq, 10)
	if e.fetchedAt.IsZero() && len(e.base) == 0 {
		e.status = StatusLoading
	} else {
		e.status = StatusRevalidating
	}
	return e.flight
}

// fetchFn returns the singleflight body for the fetch named flight. If the
// flight has already settled when the body runs, it reports that outcome
// instead of fetching again.
func (c *cache[T]) fetchFn(parent context.Context, e *entry[T], flight string) func() (any, error) {
	return func() (any, error) {
		c.mu.Lock()
		if e.closed {
			c.mu.Unlock()
			return nil, ErrTornDown
		}
		if !e.fetching || e.flight != flight {
			err := e.fetchErr
			c.mu.Unlock()
			return nil, err
		}
		fetch := e.fetcher
		inv := e.fetchInv
		hydrate := c.persister != nil && !e.hydrated
		e.hydrated = true
		c.mu.Unlock()

		ctx := context.WithoutCancel(parent)
		if hydrate {
			c.hydrate(ctx, e)
		}

		items, ferr := fetch(ctx, e.key)
		return nil, c.settleFetch(ctx, e, inv, items, ferr)
	}
}

func (c *cache[T]) settleFetch(ctx context.Context, e *entry[T], inv uint64, items []T, ferr error) error {
	var b batch
	c.mu.Lock()
	if e.closed {
		c.mu.Unlock()
		c.hooks.LateResultDropped(e.key, "fetch")
		c.log.Debug("late fetch result dropped", Fields{"key": keys.Redact(e.key)})
		return ErrTornDown
	}
	e.fetching = false
	e.flight = ""
	e.fetcher = nil

	if ferr != nil {
		err := &Error{Kind: FetchFailed, Key: e.key, Op: Fetch, Err: ferr}
		e.status = StatusError
		e.err = err
		e.fetchErr = err
		b.add(c.publishLocked(e))
		c.mu.Unlock()

		c.log.Warn("fetch failed", Fields{"key": keys.Redact(e.key), "err": ferr})
		c.hooks.FetchFailed(e.key, ferr)
		c.emit(Notification{Kind: NotifyError, Key: e.key, Op: Fetch, Err: err})
		b.run()
		return err
	}

	e.base = c.dedupe(e.key, items)
	e.fetchedAt = c.now()
	e.status = StatusReady
	e.err = nil
	e.fetchErr = nil
	e.stale = e.invalidations != inv
	e.baseRev++
	c.projectLocked(e)
	b.add(c.publishLocked(e))
	b.add(c.saveLater(ctx, e))
	c.mu.Unlock()

	b.run()
	return nil
}

// dedupe copies a fetch result, keeping the first item of each identity.
func (c *cache[T]) dedupe(key string, items []T) []T {
	out := make([]T, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		id := c.id(it)
		if _, dup := seen[id]; dup {
			c.log.Warn("duplicate item id in fetch result; keeping first", Fields{"key": keys.Redact(key), "id": id})
			continue
		}
		seen[id] = struct{}{}
		out = append(out, c.clone(it))
	}
	return out
}

// hydrate seeds an entry that has never been fetched from the persisted
// snapshot. The entry stays in StatusLoading until the fetch settles.
func (c *cache[T]) hydrate(ctx context.Context, e *entry[T]) {
	snap, ok, err := c.persister.Load(ctx, e.key)
	if err != nil {
		c.log.Warn("snapshot load failed", Fields{"key": keys.Redact(e.key), "err": err})
		c.hooks.PersistError(e.key, "load", err)
		return
	}
	if !ok || len(snap.Items) == 0 {
		return
	}

	c.mu.Lock()
	if e.closed || !e.fetchedAt.IsZero() || len(e.base) > 0 {
		c.mu.Unlock()
		return
	}
	e.base = c.dedupe(e.key, snap.Items)
	c.projectLocked(e)
	deliver := c.publishLocked(e)
	c.mu.Unlock()

	c.log.Debug("entry hydrated from snapshot", Fields{
		"key":        keys.Redact(e.key),
		"items":      len(snap.Items),
		"fetched_at": snap.FetchedAt,
	})
	deliver()
}

// saveLater captures the base of e and returns the save to run after the
// lock is released. Saves of the same entry never go backwards.
func (c *cache[T]) saveLater(ctx context.Context, e *entry[T]) func() {
	if c.persister == nil {
		return nil
	}
	rev := e.baseRev
	snap := Snapshot[T]{Items: c.cloneAll(e.base), FetchedAt: e.fetchedAt}
	ctx = context.WithoutCancel(ctx)
	return func() {
		e.saveMu.Lock()
		defer e.saveMu.Unlock()
		if e.savedRev >= rev {
			return
		}
		c.mu.Lock()
		closed := e.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if err := c.persister.Save(ctx, e.key, snap); err != nil {
			c.log.Warn("snapshot save failed", Fields{"key": keys.Redact(e.key), "err": err})
			c.hooks.PersistError(e.key, "save", err)
			return
		}
		e.savedRev = rev
	}
}
