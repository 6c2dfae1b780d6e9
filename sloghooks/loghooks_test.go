package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/optimist"
)

func newHooks(opts Options) (*Hooks, *bytes.Buffer) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(l, opts), &buf
}

func TestRedactsKeys(t *testing.T) {
	h, buf := newHooks(Options{})
	h.MutationRolledBack("cart:user-42", optimist.Remove, "p1", errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "user-42") {
		t.Fatalf("key leaked: %s", out)
	}
	for _, want := range []string{"optimist.mutation_rolled_back", "op=remove", "target=p1", "err=boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}

func TestSampling(t *testing.T) {
	h, buf := newHooks(Options{SelfHealEvery: 3, Redact: func(k string) string { return k }})
	for i := 0; i < 9; i++ {
		h.SnapshotSelfHeal("snap:shop:cart:u1", "corrupt")
	}
	if n := strings.Count(buf.String(), "optimist.snapshot_self_heal"); n != 3 {
		t.Fatalf("logged %d self-heals, want 3", n)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	h := New(nil, Options{})
	h.FetchDeduped("k")
	h.FetchFailed("k", errors.New("x"))
	h.MutationRejected("k", optimist.Add, "p")
	h.LateResultDropped("k", "fetch")
	h.PersistError("k", "save", errors.New("x"))
	h.SnapshotSelfHeal("k", "corrupt")
}
