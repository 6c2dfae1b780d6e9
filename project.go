package optimist

// pending is a mutation whose optimistic effect is part of entry.items.
type pending[T any] struct {
	id     string
	kind   Kind
	target string
	// item is the Add payload or the Update replacement, fixed at apply time
	item     T
	hasItem  bool
	previous []T
	shown    T // target as visible right after apply
	hasShown bool
	at       uint64
}

// projectLocked rebuilds e.items from e.base and e.pending.
func (c *cache[T]) projectLocked(e *entry[T]) {
	items := make([]T, len(e.base), len(e.base)+len(e.pending))
	for i, it := range e.base {
		items[i] = c.clone(it)
	}
	for _, p := range e.pending {
		items = c.apply(items, p)
	}
	e.items = items
}

func (c *cache[T]) apply(items []T, p *pending[T]) []T {
	switch p.kind {
	case Add:
		if i := c.indexOf(items, p.target); i >= 0 {
			if c.merge != nil {
				items[i] = c.merge(items[i], c.clone(p.item))
			}
			return items
		}
		return append(items, c.clone(p.item))
	case Update:
		if i := c.indexOf(items, p.target); i >= 0 && p.hasItem {
			items[i] = c.clone(p.item)
		}
		return items
	case Remove:
		if i := c.indexOf(items, p.target); i >= 0 {
			return append(items[:i], items[i+1:]...)
		}
		return items
	case Clear:
		return items[:0]
	}
	return items
}

// commitLocked folds a settled mutation into the base. res is the canonical
// item returned by the backend for Add and Update.
func (c *cache[T]) commitLocked(e *entry[T], p *pending[T], res T) {
	switch p.kind {
	case Add, Update:
		id := c.id(res)
		if id == "" {
			// backend returned nothing usable; keep what was shown
			if !p.hasShown {
				break
			}
			res, id = p.shown, p.target
		}
		if id != p.target {
			e.base = c.removeID(e.base, p.target)
		}
		e.base = c.upsert(e.base, id, c.clone(res))
	case Remove:
		e.base = c.removeID(e.base, p.target)
	case Clear:
		e.base = nil
	}
	c.dropLocked(e, p)
	e.baseRev++
}

// dropLocked removes p from the pending list and reprojects. Used alone it is
// the rollback: items become what they would be had p never been applied.
func (c *cache[T]) dropLocked(e *entry[T], p *pending[T]) {
	for i, q := range e.pending {
		if q == p {
			e.pending = append(e.pending[:i:i], e.pending[i+1:]...)
			break
		}
	}
	c.projectLocked(e)
}

func (c *cache[T]) indexOf(items []T, id string) int {
	for i, it := range items {
		if c.id(it) == id {
			return i
		}
	}
	return -1
}

func (c *cache[T]) removeID(items []T, id string) []T {
	if i := c.indexOf(items, id); i >= 0 {
		out := make([]T, 0, len(items)-1)
		out = append(out, items[:i]...)
		return append(out, items[i+1:]...)
	}
	return items
}

func (c *cache[T]) upsert(items []T, id string, v T) []T {
	if i := c.indexOf(items, id); i >= 0 {
		out := make([]T, len(items))
		copy(out, items)
		out[i] = v
		return out
	}
	out := make([]T, len(items), len(items)+1)
	copy(out, items)
	return append(out, v)
}
