// Package prom counts cache hook events with Prometheus counters. Keys are
// never used as labels; collection names are (the part of the key before ':').
package prom

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/optimist"
)

type Hooks struct {
	fetchDeduped  *prometheus.CounterVec
	fetchFailed   *prometheus.CounterVec
	rolledBack    *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	lateDropped   *prometheus.CounterVec
	persistErrors *prometheus.CounterVec
	selfHeals     *prometheus.CounterVec
}

var _ optimist.Hooks = (*Hooks)(nil)

// New creates the counters under namespace and registers them on reg.
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "optimist",
			Name:      name,
			Help:      help,
		}, labels)
	}
	h := &Hooks{
		fetchDeduped:  counter("fetch_deduped_total", "Fetches joined onto one already in flight", "collection"),
		fetchFailed:   counter("fetch_failed_total", "Fetches that returned an error", "collection"),
		rolledBack:    counter("mutation_rolled_back_total", "Optimistic mutations reverted after a backend failure", "collection", "op"),
		rejected:      counter("mutation_rejected_total", "Mutations rejected because the identity queue was full", "collection", "op"),
		lateDropped:   counter("late_result_dropped_total", "Results discarded because the entry was torn down", "collection", "source"),
		persistErrors: counter("persist_errors_total", "Snapshot persistence failures", "stage"),
		selfHeals:     counter("snapshot_self_heal_total", "Persisted snapshots deleted on read", "reason"),
	}
	for _, c := range []prometheus.Collector{
		h.fetchDeduped, h.fetchFailed, h.rolledBack, h.rejected,
		h.lateDropped, h.persistErrors, h.selfHeals,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func collection(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}

func (h *Hooks) FetchDeduped(key string) {
	h.fetchDeduped.WithLabelValues(collection(key)).Inc()
}

func (h *Hooks) FetchFailed(key string, _ error) {
	h.fetchFailed.WithLabelValues(collection(key)).Inc()
}

func (h *Hooks) MutationRolledBack(key string, op optimist.Kind, _ string, _ error) {
	h.rolledBack.WithLabelValues(collection(key), op.String()).Inc()
}

func (h *Hooks) MutationRejected(key string, op optimist.Kind, _ string) {
	h.rejected.WithLabelValues(collection(key), op.String()).Inc()
}

func (h *Hooks) LateResultDropped(key, source string) {
	h.lateDropped.WithLabelValues(collection(key), source).Inc()
}

func (h *Hooks) PersistError(_, stage string, _ error) {
	h.persistErrors.WithLabelValues(stage).Inc()
}

func (h *Hooks) SnapshotSelfHeal(_, reason string) {
	h.selfHeals.WithLabelValues(reason).Inc()
}
