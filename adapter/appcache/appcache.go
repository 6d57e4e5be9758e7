// Package appcache adapts an offline bundle whose content is mirrored by its
// host rather than stored per record. Open waits for the host's ready (or
// no-update) signal; record operations are successful no-ops and reads miss.
package appcache

import (
	"context"
	"errors"
	"sync"

	"github.com/unkn0wn-root/rescache/adapter"
)

// ErrNoManifest is returned by Open when no manifest collaborator is configured.
var ErrNoManifest = errors.New("appcache: no manifest")

// Manifest is the host's offline-cache readiness signal.
type Manifest interface {
	// Ready blocks until the bundle is cached or known to be current.
	Ready(ctx context.Context) error
}

// Adapter is the offline-cache adapter.
type Adapter struct {
	adapter.Nop
	m Manifest
}

var _ adapter.Adapter = (*Adapter)(nil)

func New(m Manifest) *Adapter { return &Adapter{m: m} }

// Candidate returns the probe entry; it is available whenever m is non-nil.
func Candidate(m Manifest) adapter.Candidate {
	return adapter.Candidate{
		Name:      "appcache",
		Available: func() bool { return m != nil },
		New:       func() (adapter.Adapter, error) { return New(m), nil },
	}
}

func (a *Adapter) Name() string { return "appcache" }

func (a *Adapter) Open(ctx context.Context) error {
	if a.m == nil {
		return ErrNoManifest
	}
	return a.m.Ready(ctx)
}

// Signal is a Manifest driven by the host: Done marks the bundle ready,
// Fail marks the update as failed. Only the first call counts.
type Signal struct {
	once sync.Once
	ch   chan struct{}
	mu   sync.Mutex
	err  error
	init sync.Once
}

func NewSignal() *Signal {
	s := &Signal{}
	s.lazy()
	return s
}

func (s *Signal) lazy() {
	s.init.Do(func() { s.ch = make(chan struct{}) })
}

// Done reports the bundle as cached or already current.
func (s *Signal) Done() { s.finish(nil) }

// Fail reports that the bundle could not be cached.
func (s *Signal) Fail(err error) { s.finish(err) }

func (s *Signal) finish(err error) {
	s.lazy()
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}

func (s *Signal) Ready(ctx context.Context) error {
	s.lazy()
	select {
	case <-s.ch:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
