package optimist

import (
	"context"
	"time"
)

// Snapshot is the authoritative state of a collection as last read or
// confirmed by the backend. Optimistic state is never persisted.
type Snapshot[T any] struct {
	Items     []T
	FetchedAt time.Time
}

// Persister stores snapshots so a fresh process can serve last-known items
// while the first fetch runs. See package persist for the provider-backed
// implementation.
type Persister[T any] interface {
	// Load returns (snap, true, nil) on hit and (zero, false, nil) on miss.
	Load(ctx context.Context, key string) (Snapshot[T], bool, error)
	Save(ctx context.Context, key string, snap Snapshot[T]) error
	// Delete fences and removes the snapshot for key.
	Delete(ctx context.Context, key string) error
	Close(ctx context.Context) error
}
