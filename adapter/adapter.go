// Package adapter defines the storage backend contract used by rescache.
//
// An Adapter persists Records keyed by resource URL. Implementations live in
// subpackages (bolt, sqlite, kv, nats, appcache) and are selected by the storage
// controller through an ordered list of Candidates.
//
// Adapters report failures as errors. They never panic and never block past the
// context they were given. The storage controller turns every error into a
// falsy result, so nothing above it observes adapter errors directly.
package adapter

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means the backend cannot be used in this environment.
	ErrUnavailable = errors.New("adapter: storage unavailable")
	// ErrQuota means the backend rejected a write under pressure.
	ErrQuota = errors.New("adapter: quota exceeded")
	// ErrCorrupt means a stored value could not be decoded.
	ErrCorrupt = errors.New("adapter: corrupt record")
	// ErrClosed means the adapter was used after Close.
	ErrClosed = errors.New("adapter: closed")
)

// Record is the persisted unit. ID is the resource URL.
type Record struct {
	ID      string  `json:"id" msgpack:"id" cbor:"id"`
	Content Content `json:"content" msgpack:"content" cbor:"content"`
}

// Content holds the raw resource data plus the metadata the staleness policy needs.
type Content struct {
	Data     string `json:"data" msgpack:"data" cbor:"data"`
	Type     string `json:"type" msgpack:"type" cbor:"type"`
	Version  string `json:"version,omitempty" msgpack:"version,omitempty" cbor:"version,omitempty"`
	LastMod  string `json:"lastmod,omitempty" msgpack:"lastmod,omitempty" cbor:"lastmod,omitempty"`
	Lifetime int64  `json:"lifetime,omitempty" msgpack:"lifetime,omitempty" cbor:"lifetime,omitempty"` // ms; -1 = always revalidate
	StoredAt int64  `json:"storedAt" msgpack:"storedAt" cbor:"storedAt"`                               // unix ms
}

// Adapter is a record store. Implementations must be safe for concurrent use.
type Adapter interface {
	// Name identifies the backend in logs and hooks.
	Name() string

	// Open prepares the backend. A failed Open means the adapter is not usable.
	Open(ctx context.Context) error

	// Create stores r unless a record with the same ID already exists, in which
	// case it does nothing and returns nil.
	Create(ctx context.Context, r Record) error

	// Read returns (record, true, nil) on hit and (Record{}, false, nil) on miss.
	Read(ctx context.Context, id string) (Record, bool, error)

	// Update stores r, replacing any existing record with the same ID.
	Update(ctx context.Context, r Record) error

	// Remove deletes the record with the given ID. A missing ID is not an error.
	Remove(ctx context.Context, id string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Candidate is one entry in the ordered adapter probe list.
type Candidate struct {
	Name string
	// Available reports whether the mechanism exists in this environment.
	// A nil Available counts as available.
	Available func() bool
	// New constructs the adapter. It is only called when Available reports true.
	New func() (Adapter, error)
}

// Nop is an adapter whose writes are successful no-ops and whose reads always miss.
// Backends that mirror data implicitly (see appcache) embed it.
type Nop struct{}

func (Nop) Create(context.Context, Record) error               { return nil }
func (Nop) Read(context.Context, string) (Record, bool, error) { return Record{}, false, nil }
func (Nop) Update(context.Context, Record) error               { return nil }
func (Nop) Remove(context.Context, string) error               { return nil }
func (Nop) Close(context.Context) error                        { return nil }
