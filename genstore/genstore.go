// Package genstore keeps per-key generation counters. A persisted snapshot
// records the generation it was written under; bumping the generation
// (on teardown) makes every older snapshot unreadable, even one written
// concurrently by another process.
package genstore

import "context"

// GenStore abstracts where generations live.
// Use LocalGenStore for a single process, RedisGenStore when several
// processes share one snapshot store.
type GenStore interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, storageKey string) (uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, storageKey string) (uint64, error)
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
