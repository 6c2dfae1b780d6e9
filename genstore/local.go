package genstore

import (
	"context"
	"sync"
	"time"
)

type localGen struct {
	n       uint64
	touched time.Time
}

// LocalGenStore keeps generations in process memory. It is the default for a
// single storefront instance; replicas sharing a snapshot provider need
// RedisGenStore instead.
//
// With a sweep interval and retention set, keys not bumped within retention
// are forgotten and read as 0 again. That only matters if a snapshot older
// than retention is still in the provider, and persist TTLs keep it from being.
type LocalGenStore struct {
	mu   sync.RWMutex
	gens map[string]localGen
	now  func() time.Time

	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(sweepEvery, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{gens: make(map[string]localGen), now: time.Now}
	if sweepEvery <= 0 || retention <= 0 {
		return s
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.sweep(sweepEvery, retention)
	return s
}

func (s *LocalGenStore) sweep(every, retention time.Duration) {
	defer close(s.stopped)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Cleanup(retention)
		case <-s.stop:
			return
		}
	}
}

func (s *LocalGenStore) Snapshot(_ context.Context, key string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[key].n, nil
}

func (s *LocalGenStore) Bump(_ context.Context, key string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.gens[key]
	g.n++
	g.touched = s.now()
	s.gens[key] = g
	return g.n, nil
}

// Cleanup forgets keys last bumped more than retention ago.
func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.now().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, g := range s.gens {
		if g.touched.Before(cutoff) {
			delete(s.gens, key)
		}
	}
}

func (s *LocalGenStore) Close(context.Context) error {
	s.once.Do(func() {
		if s.stop == nil {
			return
		}
		close(s.stop)
		<-s.stopped
	})
	return nil
}
