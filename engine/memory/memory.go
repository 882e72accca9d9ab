// Package memory implements the shared-memory cache engine: values live in
// a process-local sharded segment, no network round trip. Increment,
// decrement and add are native atomic operations under the shard lock, so
// group invalidation runs in O(1) via version tokens stored in the same
// segment.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/cachengine"
	"github.com/unkn0wn-root/cachengine/codec"
	"github.com/unkn0wn-root/cachengine/internal/intval"
)

type Config struct {
	cachengine.Config

	// Codec serializes non-integer values; nil => codec.Msgpack{}.
	Codec codec.Codec
}

type Engine struct {
	cachengine.Base
	seg   *segment
	codec codec.Codec
}

var _ cachengine.Engine = (*Engine)(nil)

func New(cfg Config) *Engine {
	e := &Engine{
		seg:   newSegment(),
		codec: cfg.Codec,
	}
	if e.codec == nil {
		e.codec = codec.Msgpack{}
	}
	e.Base = cachengine.NewBase(cfg.Config, &versions{seg: e.seg})
	return e
}

// FromMap constructs the engine from a flat configuration map. Only the
// common keys (duration, prefix, groups) apply; unknown keys are ignored.
func FromMap(m map[string]any) *Engine {
	return New(Config{Config: cachengine.ConfigFromMap(m)})
}

func (e *Engine) Get(ctx context.Context, key string) (any, bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return nil, false, err
	}
	e.EmitBefore(cachengine.OpGet, k, nil)
	v, ok := e.getComposed(k)
	e.EmitAfter(cachengine.OpGet, k, v, ok)
	return v, ok, nil
}

func (e *Engine) GetMultiple(ctx context.Context, keys []string) (map[string]any, error) {
	ks, err := e.Keys(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for i, k := range ks {
		e.EmitBefore(cachengine.OpGet, k, nil)
		v, ok := e.getComposed(k)
		e.EmitAfter(cachengine.OpGet, k, v, ok)
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
	err = e.setComposed(k, value, ttl)
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
		err := e.setComposed(k, v, ttl)
		e.EmitAfter(cachengine.OpSet, k, v, err == nil)
		// best effort: applied writes stay, failures accumulate
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
	en, err := e.encode(k, value, e.expiry(0))
	if err != nil {
		e.EmitAfter(cachengine.OpAdd, k, value, false)
		return false, err
	}
	ok := e.seg.add(k, en)
	e.EmitAfter(cachengine.OpAdd, k, value, ok)
	return ok, nil
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
	// the expiry restamp applies only under a configured default duration;
	// otherwise the entry's own ttl stands
	n, err := e.seg.incr(k, offset, e.expiry(0), e.TTL(0) > 0)
	e.EmitAfter(op, k, offset, err == nil)
	if err != nil {
		return 0, &cachengine.WriteError{Key: k, Err: err}
	}
	return n, nil
}

func (e *Engine) Delete(ctx context.Context, key string) (bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return false, err
	}
	e.EmitBefore(cachengine.OpDelete, k, nil)
	ok := e.seg.del(k)
	e.EmitAfter(cachengine.OpDelete, k, nil, ok)
	return ok, nil
}

func (e *Engine) DeleteMultiple(ctx context.Context, keys []string) (bool, error) {
	ks, err := e.Keys(ctx, keys)
	if err != nil {
		return false, err
	}
	all := true
	for _, k := range ks {
		e.EmitBefore(cachengine.OpDelete, k, nil)
		ok := e.seg.del(k)
		e.EmitAfter(cachengine.OpDelete, k, nil, ok)
		all = all && ok
	}
	return all, nil
}

func (e *Engine) Has(ctx context.Context, key string) (bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return false, err
	}
	_, ok := e.seg.get(k)
	return ok, nil
}

// Clear removes every entry under the engine's prefix via prefix-filtered
// iteration, version tokens included; groups lazily re-initialize on the
// next composed read.
func (e *Engine) Clear(ctx context.Context) error {
	e.EmitBefore(cachengine.OpClear, "", nil)
	n := e.seg.clearPrefix(e.Config().Prefix)
	e.EmitAfter(cachengine.OpClear, "", nil, true)
	e.Log().Debug("cleared segment entries", cachengine.Fields{"removed": n})
	return nil
}

func (e *Engine) Close(context.Context) error { return nil }

func (e *Engine) getComposed(k string) (any, bool) {
	en, ok := e.seg.get(k)
	if !ok {
		return nil, false
	}
	if en.isNum {
		return en.num, true
	}
	v, err := e.codec.Unmarshal(en.blob)
	if err != nil {
		// self-heal corrupt
		e.seg.del(k)
		return nil, false
	}
	return v, true
}

func (e *Engine) setComposed(k string, value any, ttl time.Duration) error {
	en, err := e.encode(k, value, e.expiry(ttl))
	if err != nil {
		return err
	}
	e.seg.set(k, en)
	return nil
}

func (e *Engine) encode(k string, value any, exp int64) (entry, error) {
	if n, ok := intval.Coerce(value); ok {
		return entry{num: n, isNum: true, exp: exp}, nil
	}
	b, err := e.codec.Marshal(value)
	if err != nil {
		return entry{}, &cachengine.WriteError{Key: k, Err: err}
	}
	return entry{blob: b, exp: exp}, nil
}

func (e *Engine) expiry(ttl time.Duration) int64 {
	ttl = e.TTL(ttl)
	if ttl <= 0 {
		return 0
	}
	return time.Now().Add(ttl).UnixNano()
}

// versions stores group version tokens as counter entries in the segment
// itself; the shard lock makes BumpVersion atomic. Tokens never expire.
type versions struct {
	seg *segment
}

var _ cachengine.VersionStore = (*versions)(nil)

func (v *versions) LoadVersions(_ context.Context, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		if en, ok := v.seg.get(k); ok && en.isNum {
			out[k] = en.num
		}
	}
	return out, nil
}

func (v *versions) StoreVersion(_ context.Context, key string, version int64) error {
	v.seg.set(key, entry{num: version, isNum: true})
	return nil
}

func (v *versions) BumpVersion(_ context.Context, key string) (int64, error) {
	return v.seg.incr(key, 1, 0, false)
}
