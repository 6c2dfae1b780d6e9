package prom

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/optimist"
)

func TestCountersByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg, "storefront")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h.FetchDeduped("cart:u1")
	h.FetchDeduped("cart:u2")
	h.FetchDeduped("wishlist:u1")
	h.MutationRolledBack("cart:u1", optimist.Remove, "p1", errors.New("x"))
	h.MutationRejected("cart:u1", optimist.Add, "p1")
	h.LateResultDropped("wishlist:u1", "fetch")
	h.PersistError("cart:u1", "save", errors.New("x"))
	h.SnapshotSelfHeal("snap:shop:cart:u1", "gen_mismatch")
	h.FetchFailed("nokey", errors.New("x"))

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"deduped cart", testutil.ToFloat64(h.fetchDeduped.WithLabelValues("cart")), 2},
		{"deduped wishlist", testutil.ToFloat64(h.fetchDeduped.WithLabelValues("wishlist")), 1},
		{"rolled back", testutil.ToFloat64(h.rolledBack.WithLabelValues("cart", "remove")), 1},
		{"rejected", testutil.ToFloat64(h.rejected.WithLabelValues("cart", "add")), 1},
		{"late", testutil.ToFloat64(h.lateDropped.WithLabelValues("wishlist", "fetch")), 1},
		{"persist", testutil.ToFloat64(h.persistErrors.WithLabelValues("save")), 1},
		{"self heal", testutil.ToFloat64(h.selfHeals.WithLabelValues("gen_mismatch")), 1},
		{"fetch failed", testutil.ToFloat64(h.fetchFailed.WithLabelValues("other")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got=%v want=%v", c.name, c.got, c.want)
		}
	}
}

func TestDoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg, "a"); err != nil {
		t.Fatalf("first New: %v", err)
	}
	if _, err := New(reg, "a"); err == nil {
		t.Fatalf("second New on same registry should fail")
	}
}
