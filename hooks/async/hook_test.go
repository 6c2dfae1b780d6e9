package asynchook

import (
	"sync/atomic"
	"testing"

	"github.com/unkn0wn-root/optimist"
)

type counter struct {
	optimist.NopHooks
	n     atomic.Int32
	block chan struct{}
}

func (c *counter) FetchDeduped(string) {
	if c.block != nil {
		<-c.block
	}
	c.n.Add(1)
}

func (c *counter) SnapshotSelfHeal(string, string) { c.n.Add(1) }

func TestDeliversAndDrainsOnClose(t *testing.T) {
	inner := &counter{}
	h := New(inner, 2, 16)
	for i := 0; i < 5; i++ {
		h.FetchDeduped("cart:u1")
	}
	h.SnapshotSelfHeal("snap:shop:cart:u1", "corrupt")
	h.Close()

	if got := inner.n.Load(); got != 6 {
		t.Fatalf("delivered = %d, want 6", got)
	}
	h.FetchDeduped("cart:u1")
	if h.Dropped() != 1 {
		t.Fatalf("event after Close not dropped")
	}
	h.Close()
}

func TestDropsWhenQueueFull(t *testing.T) {
	inner := &counter{block: make(chan struct{})}
	h := New(inner, 1, 1)

	h.FetchDeduped("a") // taken by the worker, blocks
	for h.Dropped() == 0 {
		h.FetchDeduped("b")
	}
	close(inner.block)
	h.Close()
	if h.Dropped() == 0 {
		t.Fatalf("expected drops")
	}
}
