// Package asynchook moves hook work off the cache's goroutines. Events are
// queued to a fixed worker pool and dropped when the queue is full.
//
// usage:
//
//	ph, _ := prom.New(prometheus.DefaultRegisterer, "shop")
//	hooks := asynchook.New(ph, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	carts, _ := optimist.New(optimist.Options[CartItem]{
//	    ID:    func(it CartItem) string { return it.ProductID },
//	    Hooks: hooks,
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/optimist"
)

type Hooks struct {
	inner   optimist.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ optimist.Hooks = (*Hooks)(nil)

func New(inner optimist.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) FetchDeduped(k string) {
	h.try(func() { h.inner.FetchDeduped(k) })
}

func (h *Hooks) FetchFailed(k string, err error) {
	h.try(func() { h.inner.FetchFailed(k, err) })
}

func (h *Hooks) MutationRolledBack(k string, op optimist.Kind, id string, err error) {
	h.try(func() { h.inner.MutationRolledBack(k, op, id, err) })
}

func (h *Hooks) MutationRejected(k string, op optimist.Kind, id string) {
	h.try(func() { h.inner.MutationRejected(k, op, id) })
}

func (h *Hooks) LateResultDropped(k, src string) {
	h.try(func() { h.inner.LateResultDropped(k, src) })
}

func (h *Hooks) PersistError(k, stage string, err error) {
	h.try(func() { h.inner.PersistError(k, stage, err) })
}

func (h *Hooks) SnapshotSelfHeal(k, r string) {
	h.try(func() { h.inner.SnapshotSelfHeal(k, r) })
}
