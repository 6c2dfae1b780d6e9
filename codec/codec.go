// Package codec serializes collection items for persisted snapshots.
// Each item is encoded on its own so one bad payload does not cost the
// whole snapshot.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
