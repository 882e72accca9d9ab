// Package provider defines the byte-store abstraction behind engine/local.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte previously passed to Set for a key - no prepended or
// appended metadata, no re-encoding. Stores that transform internally
// (compression etc.) must fully reverse it.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with TTLs, safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. ttl <= 0 means "no expiry"
	// where the store supports it. Stores with admission policies may
	// silently drop the write; that is a cache, not an error.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// KeyLister is an optional capability: enumerate resident keys matching a
// prefix. engine/local prefers it for Clear so only the engine's own
// entries are removed.
type KeyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Resetter is an optional capability: wipe the entire store. Faster than
// enumeration but destroys unrelated entries sharing the store; engine/local
// only uses it behind an explicit opt-in.
type Resetter interface {
	Reset(ctx context.Context) error
}

// TTLReader is an optional capability: report a key's remaining lifetime.
// ok=false means the key is absent; (0, true) means it has no expiry.
// engine/local uses it to carry an entry's expiry across read-modify-write
// updates.
type TTLReader interface {
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
}
