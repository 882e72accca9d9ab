// Package redis implements the networked cache engine over go-redis, in two
// topologies: a single node (direct connection, optional TLS, password auth,
// numeric database selection) or a cluster (seed node list, replica-failover
// policy).
//
// Integer values are stored as plain decimal text - never through the
// generic codec - so Increment/Decrement stay compatible with INCRBY/DECRBY.
// Group invalidation is O(1): each group's version token is a plain INCR
// counter under the engine's prefix.
package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cast"

	"github.com/unkn0wn-root/cachengine"
	"github.com/unkn0wn-root/cachengine/codec"
	"github.com/unkn0wn-root/cachengine/internal/intval"
)

const defaultScanCount = 1000

type Config struct {
	cachengine.Config

	// Addr is the single-node address ("host:6379"). Ignored when Cluster
	// is set.
	Addr string

	// Cluster switches to cluster topology; Addrs lists the seed nodes.
	// Bulk operations (Clear) fan out per node sequentially, so the list
	// should enumerate the masters.
	Cluster bool
	Addrs   []string

	Username string
	Password string
	DB       int // single node only; clusters have no SELECT

	// TLS enables an encrypted connection when non-nil.
	TLS *tls.Config

	// ReadFromReplicas routes read-only commands to replicas and fails
	// over to them when a master is down (cluster only).
	ReadFromReplicas bool

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int

	// ScanCount bounds the page size of cursor-based enumeration during
	// Clear; 0 => 1000.
	ScanCount int64

	// FlushOnClear makes Clear issue FLUSHDB instead of a prefix SCAN.
	// Faster, but wipes unrelated data sharing the logical database - only
	// enable on a dedicated DB.
	FlushOnClear bool

	// Codec serializes non-integer values; nil => codec.Msgpack{}.
	Codec codec.Codec

	// Client, when set, is used instead of dialing from the fields above.
	// Set CloseClient if the engine should own and close it.
	Client      goredis.UniversalClient
	CloseClient bool
}

type Engine struct {
	cachengine.Base
	cfg         Config
	rdb         goredis.UniversalClient
	codec       codec.Codec
	closeClient bool
}

var _ cachengine.Engine = (*Engine)(nil)

func New(ctx context.Context, cfg Config) (*Engine, error) {
	e := &Engine{cfg: cfg, codec: cfg.Codec}
	if e.codec == nil {
		e.codec = codec.Msgpack{}
	}
	if cfg.ScanCount <= 0 {
		e.cfg.ScanCount = defaultScanCount
	}

	switch {
	case cfg.Client != nil:
		e.rdb = cfg.Client
		e.closeClient = cfg.CloseClient
	case cfg.Cluster:
		e.rdb = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:         cfg.Addrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			TLSConfig:     cfg.TLS,
			ReadOnly:      cfg.ReadFromReplicas,
			RouteRandomly: cfg.ReadFromReplicas,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			PoolSize:      cfg.PoolSize,
		})
		e.closeClient = true
	default:
		e.rdb = goredis.NewClient(&goredis.Options{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			TLSConfig:    cfg.TLS,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
		})
		e.closeClient = true
	}

	// fail fast: a dead connection is surfaced here, not retried
	if err := e.rdb.Ping(ctx).Err(); err != nil {
		if e.closeClient {
			_ = e.rdb.Close()
		}
		return nil, fmt.Errorf("%w: %v", cachengine.ErrBackendUnavailable, err)
	}
	e.Base = cachengine.NewBase(cfg.Config, &versions{rdb: e.rdb})
	return e, nil
}

// FromMap constructs the engine from a flat configuration map. Recognized
// backend keys: "addr", "addrs", "cluster", "username", "password", "db",
// "scanCount", "flushOnClear", "readFromReplicas"; unknown keys are ignored.
func FromMap(ctx context.Context, m map[string]any) (*Engine, error) {
	cfg := Config{Config: cachengine.ConfigFromMap(m)}
	for k, v := range m {
		switch k {
		case "addr":
			cfg.Addr = cast.ToString(v)
		case "addrs":
			cfg.Addrs = cast.ToStringSlice(v)
		case "cluster":
			cfg.Cluster = cast.ToBool(v)
		case "username":
			cfg.Username = cast.ToString(v)
		case "password":
			cfg.Password = cast.ToString(v)
		case "db":
			cfg.DB = cast.ToInt(v)
		case "scanCount":
			cfg.ScanCount = cast.ToInt64(v)
		case "flushOnClear":
			cfg.FlushOnClear = cast.ToBool(v)
		case "readFromReplicas":
			cfg.ReadFromReplicas = cast.ToBool(v)
		}
	}
	return New(ctx, cfg)
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

// Add is atomic: one SET NX EX round trip.
func (e *Engine) Add(ctx context.Context, key string, value any) (bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return false, err
	}
	e.EmitBefore(cachengine.OpAdd, k, value)
	b, err := e.encode(k, value)
	if err != nil {
		e.EmitAfter(cachengine.OpAdd, k, value, false)
		return false, err
	}
	ttl := e.TTL(0)
	if ttl < 0 {
		ttl = 0
	}
	ok, err := e.rdb.SetNX(ctx, k, b, ttl).Result()
	e.EmitAfter(cachengine.OpAdd, k, value, ok && err == nil)
	if err != nil {
		return false, &cachengine.WriteError{Key: k, Err: err}
	}
	return ok, nil
}

func (e *Engine) Increment(ctx context.Context, key string, offset int64) (int64, error) {
	return e.counter(ctx, cachengine.OpIncrement, key, offset)
}

func (e *Engine) Decrement(ctx context.Context, key string, offset int64) (int64, error) {
	return e.counter(ctx, cachengine.OpDecrement, key, -offset)
}

// counter issues INCRBY/DECRBY; when the configured duration is non-zero
// the expiry refresh rides the same pipeline round trip.
func (e *Engine) counter(ctx context.Context, op cachengine.Op, key string, offset int64) (int64, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return 0, err
	}
	e.EmitBefore(op, k, offset)

	var n int64
	dur := e.Config().Duration
	if dur > 0 {
		var incr *goredis.IntCmd
		_, err = e.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
			incr = p.IncrBy(ctx, k, offset)
			p.Expire(ctx, k, dur)
			return nil
		})
		if err == nil {
			n = incr.Val()
		}
	} else {
		n, err = e.rdb.IncrBy(ctx, k, offset).Result()
	}
	e.EmitAfter(op, k, offset, err == nil)
	if err != nil {
		return 0, &cachengine.WriteError{Key: k, Err: err}
	}
	return n, nil
}

// Delete is the synchronous variant (DEL): when it returns true the key is
// gone. See DeleteFast for the non-blocking one.
func (e *Engine) Delete(ctx context.Context, key string) (bool, error) {
	return e.delete(ctx, key, false)
}

// DeleteFast unlinks the key (UNLINK): the name is removed immediately but
// memory is reclaimed asynchronously. Best-effort fast path; callers that
// must observe the key gone before continuing should use Delete.
func (e *Engine) DeleteFast(ctx context.Context, key string) (bool, error) {
	return e.delete(ctx, key, true)
}

func (e *Engine) delete(ctx context.Context, key string, async bool) (bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return false, err
	}
	e.EmitBefore(cachengine.OpDelete, k, nil)
	var n int64
	if async {
		n, err = e.rdb.Unlink(ctx, k).Result()
	} else {
		n, err = e.rdb.Del(ctx, k).Result()
	}
	ok := err == nil && n > 0
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
		n, err := e.rdb.Del(ctx, k).Result()
		ok := err == nil && n > 0
		e.EmitAfter(cachengine.OpDelete, k, nil, ok)
		if err != nil {
			return false, err
		}
		all = all && ok
	}
	return all, nil
}

func (e *Engine) Has(ctx context.Context, key string) (bool, error) {
	k, err := e.Key(ctx, key)
	if err != nil {
		return false, err
	}
	n, err := e.rdb.Exists(ctx, k).Result()
	return n > 0, err
}

// Clear removes every entry under the engine's prefix: a resumable SCAN
// per node with bounded page size, each page unlinked, cursors retried on
// soft failures. With FlushOnClear it wipes each node's logical database
// instead. Nodes are visited sequentially to bound resource usage; a large
// cluster makes Clear proportionally slower.
func (e *Engine) Clear(ctx context.Context) error {
	e.EmitBefore(cachengine.OpClear, "", nil)
	err := e.forEachNode(ctx, func(c goredis.Cmdable) error {
		if e.cfg.FlushOnClear {
			return c.FlushDB(ctx).Err()
		}
		return e.scanClear(ctx, c)
	})
	e.EmitAfter(cachengine.OpClear, "", nil, err == nil)
	return err
}

func (e *Engine) scanClear(ctx context.Context, c goredis.Cmdable) error {
	const maxRetries = 3
	match := e.Config().Prefix + "*"
	var cursor uint64
	for {
		var (
			page []string
			next uint64
			err  error
		)
		for attempt := 0; ; attempt++ {
			page, next, err = c.Scan(ctx, cursor, match, e.cfg.ScanCount).Result()
			if err == nil {
				break
			}
			if attempt == maxRetries || ctx.Err() != nil {
				return err
			}
			e.Log().Warn("scan page failed, retrying", cachengine.Fields{"cursor": cursor, "err": err})
		}
		if len(page) > 0 {
			if err := c.Unlink(ctx, page...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// forEachNode addresses the operation's topology: the one shared client for
// a single node, or each seed node in turn (transient connections, visited
// sequentially) for a cluster. SCAN and FLUSHDB are per-node commands, so
// cluster-wide bulk operations must touch every master.
func (e *Engine) forEachNode(ctx context.Context, fn func(goredis.Cmdable) error) error {
	if !e.cfg.Cluster {
		return fn(e.rdb)
	}
	for _, addr := range e.cfg.Addrs {
		node := goredis.NewClient(&goredis.Options{
			Addr:         addr,
			Username:     e.cfg.Username,
			Password:     e.cfg.Password,
			TLSConfig:    e.cfg.TLS,
			DialTimeout:  e.cfg.DialTimeout,
			ReadTimeout:  e.cfg.ReadTimeout,
			WriteTimeout: e.cfg.WriteTimeout,
		})
		err := fn(node)
		_ = node.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) Close(context.Context) error {
	if !e.closeClient {
		return nil
	}
	if err := e.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}

func (e *Engine) getComposed(ctx context.Context, k string) (any, bool, error) {
	b, err := e.rdb.Get(ctx, k).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	if n, ok := intval.Decode(b); ok {
		return n, true, nil
	}
	v, err := e.codec.Unmarshal(b)
	if err != nil {
		_ = e.rdb.Del(ctx, k) // self-heal corrupt
		return nil, false, nil
	}
	return v, true, nil
}

func (e *Engine) setComposed(ctx context.Context, k string, value any, ttl time.Duration) error {
	b, err := e.encode(k, value)
	if err != nil {
		return err
	}
	d := e.TTL(ttl)
	if d < 0 {
		d = 0 // plain SET, no expiry
	}
	if err := e.rdb.Set(ctx, k, b, d).Err(); err != nil {
		return &cachengine.WriteError{Key: k, Err: err}
	}
	return nil
}

func (e *Engine) encode(k string, value any) ([]byte, error) {
	if n, ok := intval.Coerce(value); ok {
		return intval.Encode(n), nil
	}
	b, err := e.codec.Marshal(value)
	if err != nil {
		return nil, &cachengine.WriteError{Key: k, Err: err}
	}
	return b, nil
}

// versions keeps each group's token as a decimal counter key; INCR gives
// the atomic bump. Batch loads ride one pipeline so clustered keys route
// per slot without an MGET cross-slot error.
type versions struct {
	rdb goredis.UniversalClient
}

var _ cachengine.VersionStore = (*versions)(nil)

func (v *versions) LoadVersions(ctx context.Context, keys []string) (map[string]int64, error) {
	if len(keys) == 0 {
		return map[string]int64{}, nil
	}
	cmds := make([]*goredis.StringCmd, len(keys))
	_, err := v.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.Get(ctx, k)
		}
		return nil
	})
	if err != nil && err != goredis.Nil {
		return nil, err
	}
	out := make(map[string]int64, len(keys))
	for i, cmd := range cmds {
		s, err := cmd.Result()
		if err == goredis.Nil {
			continue // missing => 0, caller lazily initializes
		}
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: group version parse at %s: %w", keys[i], err)
		}
		out[keys[i]] = n
	}
	return out, nil
}

func (v *versions) StoreVersion(ctx context.Context, key string, version int64) error {
	return v.rdb.Set(ctx, key, version, 0).Err()
}

func (v *versions) BumpVersion(ctx context.Context, key string) (int64, error) {
	return v.rdb.Incr(ctx, key).Result()
}
