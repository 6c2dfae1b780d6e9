package optimist

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/optimist/internal/keys"
)

// lane is the FIFO of mutations for one identity (or for Clear). tail is
// closed when the most recently enqueued mutation settles.
type lane struct {
	tail  chan struct{}
	depth int
}

type ticket struct {
	lane   *lane
	target string
	clear  bool
	waits  []<-chan struct{}
	done   chan struct{}
}

func (c *cache[T]) Add(ctx context.Context, key string, item T, call BackendCall[T]) (T, error) {
	return c.Mutate(ctx, key, Mutation[T]{Kind: Add, Item: item}, call)
}

// Update applies patch to the current item. patch runs once, under the cache
// lock, and must not call back into the cache.
func (c *cache[T]) Update(ctx context.Context, key, id string, patch func(T) T, call BackendCall[T]) (T, error) {
	return c.Mutate(ctx, key, Mutation[T]{Kind: Update, ID: id, Patch: patch}, call)
}

func (c *cache[T]) Remove(ctx context.Context, key, id string, call BackendCall[T]) error {
	_, err := c.Mutate(ctx, key, Mutation[T]{Kind: Remove, ID: id}, call)
	return err
}

func (c *cache[T]) Clear(ctx context.Context, key string, call BackendCall[T]) error {
	_, err := c.Mutate(ctx, key, Mutation[T]{Kind: Clear}, call)
	return err
}

func (c *cache[T]) Mutate(ctx context.Context, key string, m Mutation[T], call BackendCall[T]) (T, error) {
	var zero T
	target, err := c.targetOf(m)
	fail := func(kind ErrorKind, cause error) *Error {
		return &Error{Kind: kind, Key: key, Op: m.Kind, TargetID: target, Err: cause}
	}
	if err != nil {
		return zero, fail(MutationFailed, err)
	}
	if call == nil {
		return zero, fail(MutationFailed, ErrNilCall)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return zero, fail(MutationFailed, ErrClosed)
	}
	e := c.entryLocked(key)
	t, ok := c.enqueueLocked(e, m.Kind, target)
	c.mu.Unlock()

	if !ok {
		err := fail(TooManyPendingMutations, ErrTooManyPending)
		c.log.Debug("mutation rejected (queue full)", Fields{"key": keys.Redact(key), "op": m.Kind.String(), "target": target})
		c.hooks.MutationRejected(key, m.Kind, target)
		c.emit(Notification{Kind: NotifyError, Key: key, Op: m.Kind, TargetID: target, Err: err})
		return zero, err
	}

	if werr := c.wait(ctx, e, t); werr != nil {
		err := fail(MutationFailed, werr)
		if errors.Is(werr, ErrTornDown) {
			c.mu.Lock()
			c.releaseLocked(e, t)
			c.mu.Unlock()
			return zero, err
		}
		// keep the slot until predecessors settle so successors stay ordered
		go func() {
			c.waitAll(e, t)
			c.mu.Lock()
			c.releaseLocked(e, t)
			c.mu.Unlock()
		}()
		c.log.Debug("mutation abandoned while queued", Fields{"key": keys.Redact(key), "op": m.Kind.String(), "target": target, "err": werr})
		c.emit(Notification{Kind: NotifyError, Key: key, Op: m.Kind, TargetID: target, Err: err})
		return zero, err
	}

	c.mu.Lock()
	if e.closed {
		c.releaseLocked(e, t)
		c.mu.Unlock()
		return zero, fail(MutationFailed, ErrTornDown)
	}
	p, op := c.applyLocked(e, m, target)
	deliver := c.publishLocked(e)
	c.mu.Unlock()
	deliver()

	res, cerr := call(ctx, op)
	return c.settle(ctx, e, t, p, res, cerr)
}

func (c *cache[T]) targetOf(m Mutation[T]) (string, error) {
	id := m.ID
	switch m.Kind {
	case Add:
		if id == "" {
			id = c.id(m.Item)
		}
	case Update:
		if id == "" && m.Patch == nil {
			id = c.id(m.Item)
		}
	case Remove:
	case Clear:
		return "", nil
	default:
		return "", ErrInvalidKind
	}
	if id == "" {
		return "", ErrMissingID
	}
	return id, nil
}

// enqueueLocked reserves a slot behind every mutation the new one must wait
// for. ok=false when the lane is full.
func (c *cache[T]) enqueueLocked(e *entry[T], kind Kind, target string) (*ticket, bool) {
	t := &ticket{target: target, clear: kind == Clear, done: make(chan struct{})}
	if t.clear {
		l := e.clearLane
		if l == nil {
			l = &lane{}
			e.clearLane = l
		}
		if l.depth >= c.maxQueue {
			return nil, false
		}
		for _, il := range e.lanes {
			t.waits = append(t.waits, il.tail)
		}
		if l.tail != nil {
			t.waits = append(t.waits, l.tail)
		}
		t.lane = l
	} else {
		l := e.lanes[target]
		if l == nil {
			l = &lane{}
			e.lanes[target] = l
		}
		if l.depth >= c.maxQueue {
			return nil, false
		}
		if l.tail != nil {
			t.waits = append(t.waits, l.tail)
		}
		if e.clearLane != nil {
			t.waits = append(t.waits, e.clearLane.tail)
		}
		t.lane = l
	}
	t.lane.tail = t.done
	t.lane.depth++
	return t, true
}

func (c *cache[T]) releaseLocked(e *entry[T], t *ticket) {
	close(t.done)
	t.lane.depth--
	if t.lane.depth > 0 {
		return
	}
	if t.clear {
		if e.clearLane == t.lane {
			e.clearLane = nil
		}
	} else if e.lanes[t.target] == t.lane {
		delete(e.lanes, t.target)
	}
}

func (c *cache[T]) wait(ctx context.Context, e *entry[T], t *ticket) error {
	for _, ch := range t.waits {
		select {
		case <-ch:
		case <-e.torn:
			return ErrTornDown
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *cache[T]) waitAll(e *entry[T], t *ticket) {
	for _, ch := range t.waits {
		select {
		case <-ch:
		case <-e.torn:
			return
		}
	}
}

// applyLocked records the pending mutation, projects it and builds the Op
// handed to the backend.
func (c *cache[T]) applyLocked(e *entry[T], m Mutation[T], target string) (*pending[T], Op[T]) {
	c.tick++
	p := &pending[T]{id: uuid.NewString(), kind: m.Kind, target: target, at: c.tick}
	op := Op[T]{MutationID: p.id, Kind: m.Kind, Key: e.key, TargetID: target}

	i := -1
	if m.Kind != Clear {
		i = c.indexOf(e.items, target)
		if i >= 0 {
			p.previous = []T{c.clone(e.items[i])}
		}
	}
	switch m.Kind {
	case Add:
		p.item, p.hasItem = c.clone(m.Item), true
		op.Item = m.Item
	case Update:
		switch {
		case i >= 0 && m.Patch != nil:
			p.item, p.hasItem = m.Patch(c.clone(e.items[i])), true
		case i >= 0:
			p.item, p.hasItem = c.clone(m.Item), true
		case m.Patch == nil:
			// absent: no optimistic change, the backend still gets the item
			op.Item = m.Item
		}
		if p.hasItem {
			op.Item = c.clone(p.item)
		}
	case Clear:
		p.previous = c.cloneAll(e.items)
	}

	e.pending = append(e.pending, p)
	c.projectLocked(e)

	if m.Kind == Add || m.Kind == Update {
		if j := c.indexOf(e.items, target); j >= 0 {
			p.shown, p.hasShown = c.clone(e.items[j]), true
			op.Optimistic = c.clone(e.items[j])
		}
	}
	return p, op
}

func (c *cache[T]) settle(ctx context.Context, e *entry[T], t *ticket, p *pending[T], res T, cerr error) (T, error) {
	var zero T
	var b batch
	c.mu.Lock()
	if e.closed {
		c.releaseLocked(e, t)
		c.mu.Unlock()
		c.hooks.LateResultDropped(e.key, "mutation")
		c.log.Debug("late mutation result dropped", Fields{"key": keys.Redact(e.key), "op": p.kind.String()})
		if cerr != nil {
			return zero, &Error{Kind: MutationFailed, Key: e.key, Op: p.kind, TargetID: p.target, Err: cerr}
		}
		return res, nil
	}

	if cerr != nil {
		err := &Error{Kind: MutationFailed, Key: e.key, Op: p.kind, TargetID: p.target, Err: cerr}
		c.dropLocked(e, p)
		e.err = err
		c.releaseLocked(e, t)
		b.add(c.publishLocked(e))
		c.mu.Unlock()

		c.log.Warn("mutation rolled back", Fields{
			"key":    keys.Redact(e.key),
			"op":     p.kind.String(),
			"target": p.target,
			"err":    cerr,
		})
		c.hooks.MutationRolledBack(e.key, p.kind, p.target, cerr)
		c.emit(Notification{Kind: NotifyError, Key: e.key, Op: p.kind, TargetID: p.target, Err: err})
		b.run()
		return zero, err
	}

	// status stays StatusError until a fetch succeeds; err is the last failure
	c.commitLocked(e, p, res)
	e.err = nil
	c.releaseLocked(e, t)
	b.add(c.publishLocked(e))
	b.add(c.saveLater(ctx, e))
	c.mu.Unlock()

	c.emit(Notification{Kind: NotifySuccess, Key: e.key, Op: p.kind, TargetID: p.target})
	b.run()
	return res, nil
}
