package optimist

import (
	"context"
	"time"
)

// Fetcher returns the authoritative items for key. It must not partially
// populate anything: either the full collection or an error.
type Fetcher[T any] func(ctx context.Context, key string) ([]T, error)

// BackendCall performs one authoritative mutation. For Add and Update it must
// return the canonical post-mutation item; for Remove and Clear the returned
// value is ignored.
type BackendCall[T any] func(ctx context.Context, op Op[T]) (T, error)

// Cache is the optimistic collection cache. T is the item type; identity is
// taken from Options.ID.
type Cache[T any] interface {
	// Get returns a snapshot and never blocks. It starts a background fetch
	// when the entry is empty, failed, invalidated or older than the
	// staleness threshold. A fetch already in flight is reused.
	Get(ctx context.Context, key string, fetch Fetcher[T], opts ...GetOption) Entry[T]

	// Load is Get that waits for the triggered (or in-flight) fetch.
	Load(ctx context.Context, key string, fetch Fetcher[T]) (Entry[T], error)

	// Peek returns the current snapshot without fetching. ok=false when the
	// key has no entry.
	Peek(key string) (e Entry[T], ok bool)

	// Mutations. Each blocks until the backend call settles.
	Mutate(ctx context.Context, key string, m Mutation[T], call BackendCall[T]) (T, error)
	Add(ctx context.Context, key string, item T, call BackendCall[T]) (T, error)
	Update(ctx context.Context, key, id string, patch func(T) T, call BackendCall[T]) (T, error)
	Remove(ctx context.Context, key, id string, call BackendCall[T]) error
	Clear(ctx context.Context, key string, call BackendCall[T]) error

	Invalidate(key string)
	Subscribe(key string, fn func(Entry[T])) (unsubscribe func())

	// Teardown drops the entry for key (e.g. on logout). Results of calls
	// issued before teardown are discarded when they arrive.
	Teardown(ctx context.Context, key string) error
	Close(ctx context.Context) error
}

// Options tune the cache. Only ID is required.
type Options[T any] struct {
	// Required
	ID func(T) string // item identity, unique within a collection

	Merge             func(existing, incoming T) T // Add of a present id; nil => no-op
	Clone             func(T) T                    // deep copy for snapshots; nil => value copy
	StaleTime         time.Duration                // 0 => 5m; <0 => never stale by age
	MaxPendingPerItem int                          // 0 => 8
	Notify            NotificationSink             // optional
	Describe          func(Notification) string    // nil => DefaultMessage
	Persister         Persister[T]                 // nil => no warm start
	Logger            Logger                       // nil => NopLogger
	Hooks             Hooks                        // nil => NopHooks
	Now               func() time.Time             // nil => time.Now
}

func New[T any](opts Options[T]) (Cache[T], error) {
	return newCache[T](opts)
}

// Key builds a collection key from a collection name and a user scope.
func Key(collection, scope string) string {
	return collection + ":" + scope
}

type getOptions struct {
	maxAge     time.Duration
	hasAge     bool
	revalidate bool
}

// GetOption adjusts a single Get call.
type GetOption func(*getOptions)

// WithMaxAge overrides Options.StaleTime for one call. d <= 0 treats any
// cached data as stale.
func WithMaxAge(d time.Duration) GetOption {
	return func(o *getOptions) {
		o.maxAge = d
		o.hasAge = true
	}
}

// WithRevalidate forces a background fetch even when data is fresh.
func WithRevalidate() GetOption {
	return func(o *getOptions) { o.revalidate = true }
}
