// Package cachengine implements a pluggable cache engine abstraction: one
// operation contract (get, set, add, increment, delete, clear, group clear,
// bulk variants) over backends with very different concurrency primitives.
//
// Components:
//   - Engine: the uniform contract every backend implements.
//   - Base: shared core embedded by engines - key composition, TTL
//     normalization, group versioning, hook dispatch.
//   - codec.Codec: (de)serializes values <-> []byte.
//   - Backends: engine/file (durable, lock-based), engine/memory (in-process
//     shared segment with native counters), engine/redis (single node or
//     cluster), engine/local (any byte provider, e.g. bigcache/ristretto).
//
// Group invalidation:
//
// Engines with a counter-capable backend compose every key with a hash over
// the current version token of each configured group. ClearGroup increments
// one counter; every key written under the old token combination becomes
// unreachable and expires on its own TTL. The call cost is O(1) regardless
// of group size. The file engine is the documented exception: its groups are
// directories and ClearGroup unlinks them (O(size of group)).
//
// Keys:
//
//	<prefix><groupHash>_<sanitized key>  - with groups configured
//	<prefix><sanitized key>              - without groups
package cachengine
