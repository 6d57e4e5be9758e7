// Package asynchook moves hook delivery off the load path.
//
// Events go through a bounded queue drained by a fixed set of workers. When
// the queue is full the event is dropped; loads never wait on hooks.
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{StaleEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000)
//	defer hooks.Close()
//
//	reg := rescache.NewRegistry(rescache.RegistryOptions{Fetcher: f, Injector: doc, Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/rescache"
)

type Hooks struct {
	inner   rescache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ rescache.Hooks = (*Hooks)(nil)

func New(inner rescache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) StorageSelected(a string) { h.try(func() { h.inner.StorageSelected(a) }) }
func (h *Hooks) StorageDisabled()         { h.try(func() { h.inner.StorageDisabled() }) }
func (h *Hooks) AdapterError(a, op string, err error) {
	h.try(func() { h.inner.AdapterError(a, op, err) })
}
func (h *Hooks) RecordStale(u, r string)           { h.try(func() { h.inner.RecordStale(u, r) }) }
func (h *Hooks) Replayed(u string, fromStore bool) { h.try(func() { h.inner.Replayed(u, fromStore) }) }
func (h *Hooks) FetchFailed(u string)              { h.try(func() { h.inner.FetchFailed(u) }) }
func (h *Hooks) PersistSkipped(u string)           { h.try(func() { h.inner.PersistSkipped(u) }) }
func (h *Hooks) InitCoalesced(fp string, n int) {
	h.try(func() { h.inner.InitCoalesced(fp, n) })
}
