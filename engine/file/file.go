// Package file implements the filesystem cache engine: one regular file per
// composed key under <path>/<group-dir>/, durable across restarts, advisory
// locks around physical reads and writes.
//
// File content is "<unix-epoch-seconds>\n<payload>\n"; epoch 0 means no
// expiry. The expiry line is written before the payload so a reader never
// sees a valid-looking expiry over a truncated payload, and reads
// short-circuit on the expiry line without touching the payload.
//
// Capability gaps, by design: no atomic file-level counter exists, so
// Increment/Decrement return ErrUnsupported. Group support is directory
// partitioning, not version tokens - ClearGroup walks and unlinks, O(size
// of group), unlike the O(1) token bump of the other engines.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cast"

	"github.com/unkn0wn-root/cachengine"
	"github.com/unkn0wn-root/cachengine/codec"
)

type Config struct {
	cachengine.Config

	// Path is the cache root; defaults to <os temp>/cachengine.
	Path string

	// Lock acquires an advisory lock per file operation: shared for reads,
	// exclusive for writes. Locks block until granted and are held only
	// across the physical read/write, never across key composition.
	Lock bool

	DirMode  os.FileMode // 0 => 0755
	FileMode os.FileMode // 0 => 0644

	// Codec serializes every value, integers included; nil => codec.Msgpack{}.
	Codec codec.Codec
}

type Engine struct {
	cachengine.Base
	cfg      Config
	codec    codec.Codec
	groupDir string // joined sorted group names; "" without groups
}

var _ cachengine.Engine = (*Engine)(nil)

func New(cfg Config) (*Engine, error) {
	if cfg.Path == "" {
		cfg.Path = filepath.Join(os.TempDir(), "cachengine")
	}
	cfg.DirMode = coalesceMode(cfg.DirMode, 0o755)
	cfg.FileMode = coalesceMode(cfg.FileMode, 0o644)

	e := &Engine{cfg: cfg, codec: cfg.Codec}
	if e.codec == nil {
		e.codec = codec.Msgpack{}
	}
	if len(cfg.Groups) > 0 {
		names := make([]string, len(cfg.Groups))
		copy(names, cfg.Groups)
		sort.Strings(names)
		e.groupDir = strings.Join(names, "_")
	}
	// directory partitioning instead of version tokens: no VersionStore
	e.Base = cachengine.NewBase(cfg.Config, nil)

	if err := os.MkdirAll(filepath.Join(cfg.Path, e.groupDir), cfg.DirMode); err != nil {
		return nil, fmt.Errorf("%w: %v", cachengine.ErrBackendUnavailable, err)
	}
	return e, nil
}

// FromMap constructs the engine from a flat configuration map. Recognized
// backend keys: "path", "lock"; unknown keys are ignored.
func FromMap(m map[string]any) (*Engine, error) {
	cfg := Config{Config: cachengine.ConfigFromMap(m)}
	for k, v := range m {
		switch k {
		case "path":
			cfg.Path = cast.ToString(v)
		case "lock":
			cfg.Lock = cast.ToBool(v)
		}
	}
	return New(cfg)
}

func (e *Engine) Get(ctx context.Context, key string) (any, bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return nil, false, err
	}
	e.EmitBefore(cachengine.OpGet, k, nil)
	v, ok, err := e.getComposed(k)
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
		v, ok, err := e.getComposed(k)
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
		errs = errors.Join(errs, err)
	}
	return errs
}

// Add is read-then-write: the filesystem offers no set-if-absent primitive,
// so two concurrent Adds can both observe absence and both write. Weaker
// than the redis/memory engines.
func (e *Engine) Add(ctx context.Context, key string, value any) (bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return false, err
	}
	e.EmitBefore(cachengine.OpAdd, k, value)
	if _, ok, err := e.getComposed(k); err != nil || ok {
		e.EmitAfter(cachengine.OpAdd, k, value, false)
		return false, err
	}
	err = e.setComposed(k, value, 0)
	e.EmitAfter(cachengine.OpAdd, k, value, err == nil)
	return err == nil, err
}

func (e *Engine) Increment(ctx context.Context, key string, _ int64) (int64, error) {
	if _, err := e.Key(ctx, key); err != nil {
		return 0, err
	}
	return 0, cachengine.ErrUnsupported
}

func (e *Engine) Decrement(ctx context.Context, key string, _ int64) (int64, error) {
	if _, err := e.Key(ctx, key); err != nil {
		return 0, err
	}
	return 0, cachengine.ErrUnsupported
}

func (e *Engine) Delete(ctx context.Context, key string) (bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return false, err
	}
	e.EmitBefore(cachengine.OpDelete, k, nil)
	rmErr := os.Remove(e.fileFor(k))
	ok := rmErr == nil
	e.EmitAfter(cachengine.OpDelete, k, nil, ok)
	if rmErr != nil && !os.IsNotExist(rmErr) {
		return false, rmErr
	}
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
		rmErr := os.Remove(e.fileFor(k))
		ok := rmErr == nil
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
	_, ok, err := e.readEntry(k)
	return ok, err
}

// Clear walks the whole tree and unlinks every file written under the
// engine's prefix, leaving foreign files in a shared path alone.
func (e *Engine) Clear(ctx context.Context) error {
	e.EmitBefore(cachengine.OpClear, "", nil)
	err := filepath.WalkDir(e.cfg.Path, func(p string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return walkErr
		}
		name, err := url.QueryUnescape(d.Name())
		if err != nil {
			return nil // foreign file; not ours
		}
		if strings.HasPrefix(name, e.Config().Prefix) {
			return os.Remove(p)
		}
		return nil
	})
	e.EmitAfter(cachengine.OpClear, "", nil, err == nil)
	return err
}

// ClearGroup unlinks every file under directories belonging to the named
// group. O(size of group): this engine partitions groups on disk instead of
// using version tokens, because orphaned files would otherwise never be
// reclaimed (nothing expires them server-side).
func (e *Engine) ClearGroup(ctx context.Context, group string) (bool, error) {
	e.EmitBefore(cachengine.OpClearGroup, group, nil)
	entries, err := os.ReadDir(e.cfg.Path)
	if err != nil {
		e.EmitAfter(cachengine.OpClearGroup, group, nil, false)
		return false, err
	}
	for _, d := range entries {
		if !d.IsDir() || !dirHasGroup(d.Name(), group) {
			continue
		}
		dir := filepath.Join(e.cfg.Path, d.Name())
		if err := os.RemoveAll(dir); err != nil {
			e.EmitAfter(cachengine.OpClearGroup, group, nil, false)
			return false, err
		}
		if err := os.MkdirAll(dir, e.cfg.DirMode); err != nil {
			e.EmitAfter(cachengine.OpClearGroup, group, nil, false)
			return false, err
		}
	}
	e.EmitAfter(cachengine.OpClearGroup, group, nil, true)
	return true, nil
}

func (e *Engine) Close(context.Context) error { return nil }

func dirHasGroup(dirName, group string) bool {
	for _, part := range strings.Split(dirName, "_") {
		if part == group {
			return true
		}
	}
	return false
}

func (e *Engine) fileFor(composedKey string) string {
	return filepath.Join(e.cfg.Path, e.groupDir, url.QueryEscape(composedKey))
}

// readEntry reads a file under a shared lock, short-circuiting as a miss on
// the expiry line without decoding the payload. Expired files are unlinked
// best-effort.
func (e *Engine) readEntry(k string) ([]byte, bool, error) {
	p := e.fileFor(k)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if e.cfg.Lock {
		fl := flock.New(p)
		if err := fl.RLock(); err != nil {
			return nil, false, err
		}
		defer fl.Unlock()
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	nl := bytes.IndexByte(b, '\n')
	if nl < 0 {
		_ = os.Remove(p) // self-heal truncated entry
		return nil, false, nil
	}
	exp, err := strconv.ParseInt(string(b[:nl]), 10, 64)
	if err != nil {
		_ = os.Remove(p)
		return nil, false, nil
	}
	if exp != 0 && time.Now().Unix() > exp {
		_ = os.Remove(p)
		return nil, false, nil
	}
	payload := b[nl+1:]
	payload = bytes.TrimSuffix(payload, []byte("\n"))
	return payload, true, nil
}

func (e *Engine) getComposed(k string) (any, bool, error) {
	payload, ok, err := e.readEntry(k)
	if err != nil || !ok {
		return nil, false, err
	}
	v, err := e.codec.Unmarshal(payload)
	if err != nil {
		_ = os.Remove(e.fileFor(k)) // self-heal corrupt
		return nil, false, nil
	}
	return v, true, nil
}

// setComposed writes expiry line first, payload second, under an exclusive
// lock, and fsyncs before releasing - a concurrent shared-lock reader never
// observes a valid expiry over a partial payload.
func (e *Engine) setComposed(k string, value any, ttl time.Duration) error {
	payload, err := e.codec.Marshal(value)
	if err != nil {
		return &cachengine.WriteError{Key: k, Err: err}
	}
	var exp int64
	if d := e.TTL(ttl); d > 0 {
		exp = time.Now().Add(d).Unix()
	}

	p := e.fileFor(k)
	if e.cfg.Lock {
		fl := flock.New(p)
		if err := fl.Lock(); err != nil {
			return &cachengine.WriteError{Key: k, Err: err}
		}
		defer fl.Unlock()
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, e.cfg.FileMode)
	if err != nil {
		return &cachengine.WriteError{Key: k, Err: err}
	}
	buf := make([]byte, 0, len(payload)+24)
	buf = strconv.AppendInt(buf, exp, 10)
	buf = append(buf, '\n')
	buf = append(buf, payload...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return &cachengine.WriteError{Key: k, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &cachengine.WriteError{Key: k, Err: err}
	}
	return f.Close()
}

func coalesceMode(v, def os.FileMode) os.FileMode {
	if v == 0 {
		return def
	}
	return v
}
