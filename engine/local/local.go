// Package local implements the cache engine contract over any
// provider.Provider byte store (bigcache, ristretto, ...), so eviction-based
// in-process stores plug in without implementing the whole contract.
//
// Weaker guarantees than the memory engine, documented per the contract:
// Add, Increment and Decrement are read-then-write under an engine-level
// mutex - atomic within this process only. Clear needs the provider's Keys
// capability; a provider that can only Reset (whole-store wipe) is used
// solely behind the FlushOnClear opt-in.
package local

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unkn0wn-root/cachengine"
	"github.com/unkn0wn-root/cachengine/codec"
	"github.com/unkn0wn-root/cachengine/internal/intval"
	pr "github.com/unkn0wn-root/cachengine/provider"
)

var errNotInteger = errors.New("local: existing value is not an integer")

type Config struct {
	cachengine.Config

	// Provider is the backing byte store. Required.
	Provider pr.Provider

	// FlushOnClear permits falling back to the provider's Reset capability
	// when it cannot enumerate keys. Wipes the entire store, not just this
	// engine's prefix.
	FlushOnClear bool

	// Codec serializes non-integer values; nil => codec.Msgpack{}.
	Codec codec.Codec
}

type Engine struct {
	cachengine.Base
	cfg   Config
	p     pr.Provider
	codec codec.Codec

	// mu serializes the read-modify-write operations (Add, counters,
	// version bumps); the provider itself has no compare-and-set.
	mu sync.Mutex
}

var _ cachengine.Engine = (*Engine)(nil)

func New(cfg Config) (*Engine, error) {
	if cfg.Provider == nil {
		return nil, errors.New("local: provider is required")
	}
	e := &Engine{cfg: cfg, p: cfg.Provider, codec: cfg.Codec}
	if e.codec == nil {
		e.codec = codec.Msgpack{}
	}
	e.Base = cachengine.NewBase(cfg.Config, &versions{e: e})
	return e, nil
}

func (e *Engine) Get(ctx context.Context, key string) (any, bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return nil, false, err
	}
	e.EmitBefore(cachengine.OpGet, k, nil)
	v, ok, err := e.getComposed(ctx, k)
	e.EmitAfter(cachengine.OpGet, k, v, ok)
	return v, ok, err
}

func (e *Engine) GetMultiple(ctx context.Context, keys []string) (map[string]any, error) {
	ks, err := e.Keys(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for i, k := range ks {
		e.EmitBefore(cachengine.OpGet, k, nil)
		v, ok, err := e.getComposed(ctx, k)
		e.EmitAfter(cachengine.OpGet, k, v, ok)
		if err != nil {
			return out, err
		}
		if ok {
			out[keys[i]] = v
		}
	}
	return out, nil
}

func (e *Engine) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	k, err := e.Key(ctx, key)
	if err != nil {
		return err
	}
	e.EmitBefore(cachengine.OpSet, k, value)
	err = e.setComposed(ctx, k, value, ttl)
	e.EmitAfter(cachengine.OpSet, k, value, err == nil)
	return err
}

func (e *Engine) SetMultiple(ctx context.Context, items map[string]any, ttl time.Duration) error {
	logicals := make([]string, 0, len(items))
	for k := range items {
		logicals = append(logicals, k)
	}
	ks, err := e.Keys(ctx, logicals)
	if err != nil {
		return err
	}
	var errs error
	for i, k := range ks {
		v := items[logicals[i]]
		e.EmitBefore(cachengine.OpSet, k, v)
		err := e.setComposed(ctx, k, v, ttl)
		e.EmitAfter(cachengine.OpSet, k, v, err == nil)
		errs = errors.Join(errs, err)
	}
	return errs
}

func (e *Engine) Add(ctx context.Context, key string, value any) (bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return false, err
	}
	e.EmitBefore(cachengine.OpAdd, k, value)

	e.mu.Lock()
	_, exists, err := e.p.Get(ctx, k)
	if err == nil && !exists {
		err = e.setComposed(ctx, k, value, 0)
		e.mu.Unlock()
		e.EmitAfter(cachengine.OpAdd, k, value, err == nil)
		return err == nil, err
	}
	e.mu.Unlock()
	e.EmitAfter(cachengine.OpAdd, k, value, false)
	return false, err
}

func (e *Engine) Increment(ctx context.Context, key string, offset int64) (int64, error) {
	return e.counter(ctx, cachengine.OpIncrement, key, offset)
}

func (e *Engine) Decrement(ctx context.Context, key string, offset int64) (int64, error) {
	return e.counter(ctx, cachengine.OpDecrement, key, -offset)
}

func (e *Engine) counter(ctx context.Context, op cachengine.Op, key string, offset int64) (int64, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return 0, err
	}
	e.EmitBefore(op, k, offset)
	n, err := e.rmwCounter(ctx, k, offset, e.TTL(0))
	e.EmitAfter(op, k, offset, err == nil)
	if err != nil {
		return 0, &cachengine.WriteError{Key: k, Err: err}
	}
	return n, nil
}

// rmwCounter restamps the entry with ttl when it is positive. Without a
// configured duration an existing entry keeps its remaining lifetime where
// the provider can report it (TTLReader); providers without introspection
// restart the entry without expiry.
func (e *Engine) rmwCounter(ctx context.Context, k string, offset int64, ttl time.Duration) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok, err := e.p.Get(ctx, k)
	if err != nil {
		return 0, err
	}
	var cur int64
	if ok {
		n, isInt := intval.Decode(b)
		if !isInt {
			return 0, errNotInteger
		}
		cur = n
		if ttl <= 0 {
			ttl = e.remainingTTL(ctx, k)
		}
	}
	cur += offset
	if ttl < 0 {
		ttl = 0
	}
	if err := e.p.Set(ctx, k, intval.Encode(cur), ttl); err != nil {
		return 0, err
	}
	return cur, nil
}

func (e *Engine) remainingTTL(ctx context.Context, k string) time.Duration {
	tr, ok := e.p.(pr.TTLReader)
	if !ok {
		return 0
	}
	rem, has, err := tr.TTL(ctx, k)
	if err != nil || !has || rem < 0 {
		return 0
	}
	return rem
}

func (e *Engine) Delete(ctx context.Context, key string) (bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return false, err
	}
	e.EmitBefore(cachengine.OpDelete, k, nil)
	ok, err := e.deleteComposed(ctx, k)
	e.EmitAfter(cachengine.OpDelete, k, nil, ok)
	return ok, err
}

func (e *Engine) DeleteMultiple(ctx context.Context, keys []string) (bool, error) {
	ks, err := e.Keys(ctx, keys)
	if err != nil {
		return false, err
	}
	all := true
	for _, k := range ks {
		e.EmitBefore(cachengine.OpDelete, k, nil)
		ok, err := e.deleteComposed(ctx, k)
		e.EmitAfter(cachengine.OpDelete, k, nil, ok)
		if err != nil {
			return false, err
		}
		all = all && ok
	}
	return all, nil
}

func (e *Engine) deleteComposed(ctx context.Context, k string) (bool, error) {
	// providers report deletion but not prior existence; probe first
	_, existed, err := e.p.Get(ctx, k)
	if err != nil {
		return false, err
	}
	if err := e.p.Del(ctx, k); err != nil {
		return false, err
	}
	return existed, nil
}

func (e *Engine) Has(ctx context.Context, key string) (bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return false, err
	}
	_, ok, err := e.p.Get(ctx, k)
	return ok, err
}

func (e *Engine) Clear(ctx context.Context) error {
	e.EmitBefore(cachengine.OpClear, "", nil)
	err := e.clear(ctx)
	e.EmitAfter(cachengine.OpClear, "", nil, err == nil)
	return err
}

func (e *Engine) clear(ctx context.Context) error {
	if kl, ok := e.p.(pr.KeyLister); ok {
		keys, err := kl.Keys(ctx, e.Config().Prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := e.p.Del(ctx, k); err != nil {
				return err
			}
		}
		return nil
	}
	if r, ok := e.p.(pr.Resetter); ok && e.cfg.FlushOnClear {
		return r.Reset(ctx)
	}
	return cachengine.ErrUnsupported
}

func (e *Engine) Close(ctx context.Context) error { return e.p.Close(ctx) }

func (e *Engine) getComposed(ctx context.Context, k string) (any, bool, error) {
	b, ok, err := e.p.Get(ctx, k)
	if err != nil || !ok {
		return nil, false, err
	}
	if n, ok := intval.Decode(b); ok {
		return n, true, nil
	}
	v, err := e.codec.Unmarshal(b)
	if err != nil {
		_ = e.p.Del(ctx, k) // self-heal corrupt
		return nil, false, nil
	}
	return v, true, nil
}

func (e *Engine) setComposed(ctx context.Context, k string, value any, ttl time.Duration) error {
	var b []byte
	if n, ok := intval.Coerce(value); ok {
		b = intval.Encode(n)
	} else {
		var err error
		b, err = e.codec.Marshal(value)
		if err != nil {
			return &cachengine.WriteError{Key: k, Err: err}
		}
	}
	d := e.TTL(ttl)
	if d < 0 {
		d = 0 // provider contract: non-positive => no expiry
	}
	if err := e.p.Set(ctx, k, b, d); err != nil {
		return &cachengine.WriteError{Key: k, Err: err}
	}
	return nil
}

// versions stores group tokens as decimal counters in the provider. Bumps
// are mutex-guarded read-modify-write: process-local atomicity, same as the
// other counter operations on this engine. Tokens evicted by the store
// (bigcache's LifeWindow, ristretto pressure) lazily re-initialize, which
// widens invalidation but never resurrects cleared entries.
type versions struct {
	e *Engine
}

var _ cachengine.VersionStore = (*versions)(nil)

func (v *versions) LoadVersions(ctx context.Context, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		b, ok, err := v.e.p.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if n, ok := intval.Decode(b); ok {
			out[k] = n
		}
	}
	return out, nil
}

func (v *versions) StoreVersion(ctx context.Context, key string, version int64) error {
	return v.e.p.Set(ctx, key, intval.Encode(version), 0)
}

func (v *versions) BumpVersion(ctx context.Context, key string) (int64, error) {
	return v.e.rmwCounter(ctx, key, 1, 0)
}
