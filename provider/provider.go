// Package provider defines the byte stores behind the key-value record adapter.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// bytes previously passed to Set or Add for a key. The kv adapter owns the
// "res:<ns>:" keyspace; foreign writes under it are treated as corruption and deleted.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrRejected is returned when a store refused a write (eviction pressure, size limits).
var ErrRejected = errors.New("provider: write rejected")

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value. ttl <= 0 means no expiry.
	// Returns ErrRejected when the store refused the write under pressure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Add stores value only if key is absent and reports whether it did.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (added bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Name identifies the store in logs.
	Name() string

	// Close releases resources.
	Close(ctx context.Context) error
}
