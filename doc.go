// Package optimist implements a client-side cache for user-scoped collections
// (cart lines, wishlist entries) with optimistic mutations. Reads are served
// from memory, mutations are applied locally before the backend confirms them,
// failed mutations are rolled back point-in-time, and concurrent fetches for
// the same collection are coalesced.
//
// Components:
//   - Fetcher[T]: returns the authoritative collection for a key.
//   - BackendCall[T]: performs one authoritative mutation and returns the
//     canonical item (Add/Update) or the zero value (Remove/Clear).
//   - Persister[T]: optional warm-start store for the last authoritative
//     snapshot (see package persist).
//
// State model:
//
//	visible items = base (last server read) + pending optimistic ops, in order
//
// A failed op is dropped from the pending list, so only its own effect is
// undone. A successful op is folded into the base with the server's item.
//
// Keys:
//
//	<collection>:<scope>  - e.g. cart:<userID>, wishlist:<userID>
//
// Typical use:
//
//	e := cache.Get(ctx, optimist.Key("cart", uid), fetchCart) // never blocks
//	_, err := cache.Add(ctx, key, line, addToCart)              // optimistic
//	if optimist.KindOf(err) == optimist.MutationFailed { ... }  // rolled back
package optimist
