package genstore

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	gen     uint64
	touched time.Time
}

// Local keeps generations in-process with an optional pruning loop.
type Local struct {
	mu   sync.RWMutex
	gens map[string]localEntry

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

var _ Store = (*Local)(nil)

// NewLocal returns an in-process store. When both interval and retention are
// positive a background loop prunes entries not bumped within retention.
func NewLocal(interval, retention time.Duration) *Local {
	s := &Local{gens: make(map[string]localEntry)}
	if interval <= 0 || retention <= 0 {
		return s
	}
	s.stop = make(chan struct{})
	t := time.NewTicker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.Cleanup(retention)
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

func (s *Local) Snapshot(_ context.Context, url string) (uint64, error) {
	s.mu.RLock()
	e := s.gens[url]
	s.mu.RUnlock()
	return e.gen, nil
}

func (s *Local) SnapshotMany(_ context.Context, urls []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(urls))
	s.mu.RLock()
	for _, u := range urls {
		out[u] = s.gens[u].gen
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Bump(_ context.Context, url string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	e := s.gens[url]
	e.gen++
	e.touched = now
	s.gens[url] = e
	s.mu.Unlock()
	return e.gen, nil
}

// Cleanup drops entries not bumped within retention. A pruned URL reads as
// generation 0 again, which only matters to fetches older than retention.
func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)
	s.mu.Lock()
	for u, e := range s.gens {
		if e.touched.Before(cutoff) {
			delete(s.gens, u)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Close(context.Context) error {
	s.once.Do(func() {
		if s.stop != nil {
			close(s.stop)
			s.wg.Wait()
		}
	})
	return nil
}
