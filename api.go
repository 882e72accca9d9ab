package cachengine

import (
	"context"
	"time"
)

// Engine is the uniform cache contract every backend implements.
// All operations are synchronous and may block on I/O (file locks, network
// round trips); callers needing a time budget must configure the backend's
// own timeouts. A miss is never an error: Get returns ok=false.
//
// Values are dynamically typed. Integer values round-trip as int64 on every
// backend so they stay compatible with atomic counter primitives; everything
// else goes through the engine's configured codec.
type Engine interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss or
	// on an expired entry. Backend I/O failures surface as err.
	Get(ctx context.Context, key string) (any, bool, error)

	// GetMultiple iterates Get; keys that miss are absent from the result.
	// Every key in the batch is composed against the same group-token state.
	GetMultiple(ctx context.Context, keys []string) (map[string]any, error)

	// Set stores value. ttl == 0 uses the configured default duration;
	// NoExpiration (or a default of zero) stores without expiry where the
	// backend supports it.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// SetMultiple stores a batch under one shared TTL. Not atomic as a
	// whole: a mid-batch failure is reported but already-applied writes are
	// not rolled back.
	SetMultiple(ctx context.Context, items map[string]any, ttl time.Duration) error

	// Add stores value only if key is currently absent and reports whether
	// the write happened. Atomic where the backend has a native primitive
	// (redis SET NX EX, memory shard lock); read-then-write with a race
	// window elsewhere - see each engine's documentation.
	Add(ctx context.Context, key string, value any) (bool, error)

	// Increment adds offset to an integer entry and returns the result.
	// An absent entry counts from zero. Refreshes the entry's TTL when the
	// configured duration is non-zero. Backends without an atomic counter
	// primitive return ErrUnsupported.
	Increment(ctx context.Context, key string, offset int64) (int64, error)

	// Decrement is Increment with a negated offset.
	Decrement(ctx context.Context, key string, offset int64) (int64, error)

	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteMultiple iterates Delete; false when any key was absent or any
	// delete failed.
	DeleteMultiple(ctx context.Context, keys []string) (bool, error)

	// Has reports existence without decoding the value.
	Has(ctx context.Context, key string) (bool, error)

	// Clear removes every entry written under the engine's prefix. Engines
	// may offer a configuration opt-in that wipes the whole physical store
	// instead (faster, unsafe when the store is shared).
	Clear(ctx context.Context) error

	// ClearGroup invalidates every key written under the named group.
	ClearGroup(ctx context.Context, group string) (bool, error)

	// Close releases connections and background resources.
	Close(ctx context.Context) error
}

// VersionStore is the minimal read/write/increment capability group
// versioning needs from a backend. Engines whose store has an atomic
// counter primitive implement it against their own storage; the file
// engine does not (its groups are directories).
type VersionStore interface {
	// LoadVersions returns the current value of each version key in one
	// batch where the backend allows it. Missing keys map to 0.
	LoadVersions(ctx context.Context, keys []string) (map[string]int64, error)

	// StoreVersion writes a version value. Two callers racing to
	// initialize the same absent token may overwrite each other; any
	// positive value is a valid version, so last write wins.
	StoreVersion(ctx context.Context, key string, version int64) error

	// BumpVersion atomically increments a version key and returns the
	// new value.
	BumpVersion(ctx context.Context, key string) (int64, error)
}
