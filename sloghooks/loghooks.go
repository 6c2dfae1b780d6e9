// Package sloghooks logs cache hook events through log/slog. Fetch dedups
// and snapshot self-heals can be sampled since a busy storefront produces
// lots of them. Keys are redacted before logging.
package sloghooks

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/optimist"
	"github.com/unkn0wn-root/optimist/internal/keys"
)

type Options struct {
	// Log one in every N events; 0 and 1 log all.
	DedupEvery    uint64
	SelfHealEvery uint64
	// Redact replaces keys in log lines. Defaults to keeping the collection
	// prefix and hashing the user scope.
	Redact func(string) string
}

type Hooks struct {
	l      *slog.Logger
	redact func(string) string

	dedupEvery, selfHealEvery uint64
	dedups, selfHeals         atomic.Uint64
}

var _ optimist.Hooks = (*Hooks)(nil)

// New returns hooks writing to l. A nil l drops everything.
func New(l *slog.Logger, opts Options) *Hooks {
	h := &Hooks{
		l:             l,
		redact:        opts.Redact,
		dedupEvery:    opts.DedupEvery,
		selfHealEvery: opts.SelfHealEvery,
	}
	if h.redact == nil {
		h.redact = keys.Redact
	}
	return h
}

func (h *Hooks) log(level slog.Level, event, key string, attrs ...slog.Attr) {
	if h.l == nil {
		return
	}
	attrs = append([]slog.Attr{slog.String("key", h.redact(key))}, attrs...)
	h.l.LogAttrs(context.Background(), level, "optimist."+event, attrs...)
}

// every reports whether this is the n-th event counted by ctr.
func every(n uint64, ctr *atomic.Uint64) bool {
	return n <= 1 || ctr.Add(1)%n == 0
}

func (h *Hooks) FetchDeduped(key string) {
	if h.l != nil && every(h.dedupEvery, &h.dedups) {
		h.log(slog.LevelDebug, "fetch_deduped", key)
	}
}

func (h *Hooks) FetchFailed(key string, err error) {
	h.log(slog.LevelWarn, "fetch_failed", key, slog.Any("err", err))
}

func (h *Hooks) MutationRolledBack(key string, op optimist.Kind, targetID string, err error) {
	h.log(slog.LevelWarn, "mutation_rolled_back", key,
		slog.String("op", op.String()),
		slog.String("target", targetID),
		slog.Any("err", err))
}

func (h *Hooks) MutationRejected(key string, op optimist.Kind, targetID string) {
	h.log(slog.LevelWarn, "mutation_rejected", key,
		slog.String("op", op.String()),
		slog.String("target", targetID),
		slog.String("reason", "queue_full"))
}

func (h *Hooks) LateResultDropped(key, source string) {
	h.log(slog.LevelInfo, "late_result_dropped", key, slog.String("source", source))
}

func (h *Hooks) PersistError(key, stage string, err error) {
	h.log(slog.LevelError, "persist_error", key, slog.String("stage", stage), slog.Any("err", err))
}

func (h *Hooks) SnapshotSelfHeal(storageKey, reason string) {
	if h.l != nil && every(h.selfHealEvery, &h.selfHeals) {
		h.log(slog.LevelDebug, "snapshot_self_heal", storageKey, slog.String("reason", reason))
	}
}
