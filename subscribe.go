package optimist

import "sync"

// subscription delivers snapshots to one listener. Deliveries never overlap
// and never go back in Version; a snapshot superseded while the listener is
// busy is skipped.
type subscription[T any] struct {
	fn func(Entry[T])

	mu       sync.Mutex
	last     uint64
	next     *Entry[T]
	draining bool
	closed   bool
}

func (c *cache[T]) Subscribe(key string, fn func(Entry[T])) func() {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	c.seq++
	id := c.seq
	s := &subscription[T]{fn: fn, last: c.version}
	m := c.subs[key]
	if m == nil {
		m = make(map[uint64]*subscription[T])
		c.subs[key] = m
	}
	m[id] = s
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.closed = true
			s.next = nil
			s.mu.Unlock()

			c.mu.Lock()
			if m := c.subs[key]; m != nil {
				delete(m, id)
				if len(m) == 0 {
					delete(c.subs, key)
				}
			}
			c.mu.Unlock()
		})
	}
}

func (c *cache[T]) subscribersLocked(key string) []*subscription[T] {
	m := c.subs[key]
	if len(m) == 0 {
		return nil
	}
	out := make([]*subscription[T], 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

// deliver runs the listener on the calling goroutine unless another
// goroutine is already draining, in which case that one picks snap up.
func (s *subscription[T]) deliver(snap Entry[T]) {
	s.mu.Lock()
	if s.closed || snap.Version <= s.last {
		s.mu.Unlock()
		return
	}
	s.last = snap.Version
	s.next = &snap
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for s.next != nil && !s.closed {
		n := *s.next
		s.next = nil
		s.mu.Unlock()
		s.fn(n)
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}
