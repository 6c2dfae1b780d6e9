package optimist

import "time"

// Status is the fetch state of an entry.
type Status uint8

const (
	StatusEmpty        Status = iota // never fetched, or invalidated
	StatusLoading                    // first fetch in flight, nothing authoritative yet
	StatusReady                      // last fetch succeeded
	StatusRevalidating               // fetch in flight, last known items still served
	StatusError                      // last fetch failed; items retained
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusRevalidating:
		return "revalidating"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Kind names a mutation. Fetch is not a mutation; it only tags fetch
// outcomes in notifications and hooks.
type Kind uint8

const (
	Fetch Kind = iota
	Add
	Remove
	Update
	Clear
)

func (k Kind) String() string {
	switch k {
	case Fetch:
		return "fetch"
	case Add:
		return "add"
	case Remove:
		return "remove"
	case Update:
		return "update"
	case Clear:
		return "clear"
	default:
		return "unknown"
	}
}

// Entry is a read-only snapshot of one collection. Items and Pending are
// copies; changing them does not affect the cache.
type Entry[T any] struct {
	Key           string
	Items         []T
	Status        Status
	LastFetchedAt time.Time
	Err           error // last fetch or mutation failure
	Pending       []PendingMutation[T]
	Version       uint64 // increases with every published change
}

// Find returns the item with the given identity.
func (e Entry[T]) Find(id string, idOf func(T) string) (T, bool) {
	for _, it := range e.Items {
		if idOf(it) == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// IsPending reports whether a mutation on id is in flight.
func (e Entry[T]) IsPending(id string) bool {
	for _, p := range e.Pending {
		if p.TargetID == id {
			return true
		}
	}
	return false
}

// PendingMutation describes an optimistic mutation awaiting the backend.
type PendingMutation[T any] struct {
	MutationID string
	Kind       Kind
	TargetID   string // empty for Clear
	// Previous is what the mutation replaced at apply time: the single prior
	// item, nothing when the item was absent, or the whole collection for Clear.
	Previous  []T
	AppliedAt uint64
}

// Mutation is the caller's request.
//   - Add: Item (ID derived from Item when empty)
//   - Remove: ID
//   - Update: ID plus Patch, or Item as a full replacement
//   - Clear: nothing
type Mutation[T any] struct {
	Kind  Kind
	ID    string
	Item  T
	Patch func(T) T
}

// Op is what a BackendCall receives.
type Op[T any] struct {
	MutationID string
	Kind       Kind
	Key        string
	TargetID   string
	Item       T // payload as given by the caller (Add/Update)
	Optimistic T // the item as shown while in flight; zero if absent
}
