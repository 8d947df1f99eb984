// Package cache stores intermediate pipeline results between runs.
//
// The expensive part of an allocation run is geometric: reprojection,
// tessellation and the cell × region overlay. None of it depends on demand
// or weights, so the runner caches the cells and the proportion table under
// a key derived from the inputs' content hash and the geometric options.
// Re-running with new demand figures then skips straight to allocation.
//
// Three backends are provided:
//
//   - [FileCache]: JSON entries under a directory, for the CLI
//   - [MemoryCache]: an in-process map, for tests and embedding
//   - [NullCache]: caching disabled
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the stored value and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources held by the cache.
	Close() error
}

// TTLs for cached pipeline stages.
const (
	// TTLCells is how long tessellation results stay valid.
	TTLCells = 7 * 24 * time.Hour
	// TTLOverlay is how long overlay results stay valid.
	TTLOverlay = 7 * 24 * time.Hour
)
