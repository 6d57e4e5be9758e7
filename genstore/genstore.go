// Package genstore keeps one generation counter per resource URL.
//
// The cache snapshots a URL's generation before it reads storage and persists
// a fetched record only if the generation is unchanged afterwards. Remove bumps
// the generation, so a fetch that was in flight during a removal cannot write
// the removed record back.
package genstore

import (
	"context"
	"time"
)

// Store abstracts where generations live.
// Use Local (default) for in-process generations or Redis to share them
// between processes that share a storage backend.
type Store interface {
	// Snapshot returns the current generation; missing => 0.
	Snapshot(ctx context.Context, url string) (uint64, error)
	// SnapshotMany returns generations for many URLs; missing => 0.
	SnapshotMany(ctx context.Context, urls []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation.
	Bump(ctx context.Context, url string) (uint64, error)
	// Cleanup prunes entries idle for longer than retention (no-op for Redis).
	Cleanup(retention time.Duration)
	Close(context.Context) error
}
