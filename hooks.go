package optimist

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them outside its lock but on the caller's goroutine.
type Hooks interface {
	// Get or Load attached to a fetch already in flight.
	FetchDeduped(key string)

	// The fetcher returned an error; last known items were kept.
	FetchFailed(key string, err error)

	// A backend call failed and its optimistic effect was dropped.
	MutationRolledBack(key string, op Kind, targetID string, err error)

	// The per-identity queue was full; no backend call was made.
	MutationRejected(key string, op Kind, targetID string)

	// A fetch or backend call settled after Teardown; result discarded.
	// source ∈ {"fetch", "mutation"}
	LateResultDropped(key, source string)

	// Persister failure. stage ∈ {"load", "save", "delete"}
	PersistError(key, stage string, err error)

	// A persisted snapshot was deleted on read.
	// reason ∈ {"corrupt", "gen_mismatch", "item_decode"}
	SnapshotSelfHeal(storageKey, reason string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) FetchDeduped(string)                            {}
func (NopHooks) FetchFailed(string, error)                      {}
func (NopHooks) MutationRolledBack(string, Kind, string, error) {}
func (NopHooks) MutationRejected(string, Kind, string)          {}
func (NopHooks) LateResultDropped(string, string)               {}
func (NopHooks) PersistError(string, string, error)             {}
func (NopHooks) SnapshotSelfHeal(string, string)                {}
