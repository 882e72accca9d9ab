package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/unkn0wn-root/cachengine"
	"github.com/unkn0wn-root/cachengine/enginetest"
)

// Integration tests need a running server:
//
//	REDIS_ADDR=localhost:6379 go test ./engine/redis/
func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	return addr
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	cfg.Addr = redisAddr(t)
	e, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		_ = e.Clear(context.Background())
		_ = e.Close(context.Background())
	})
	return e
}

func TestConnectFailsFast(t *testing.T) {
	_, err := New(context.Background(), Config{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
	})
	if !errors.Is(err, cachengine.ErrBackendUnavailable) {
		t.Fatalf("New against dead addr: %v, want ErrBackendUnavailable", err)
	}
}

func TestContract(t *testing.T) {
	enginetest.Run(t, enginetest.Options{
		New: func(t *testing.T, cfg cachengine.Config) cachengine.Engine {
			return newEngine(t, Config{Config: cfg})
		},
		SupportsCounters: true,
	})
}

func TestDeleteFast(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Config{Config: cachengine.Config{Prefix: "t_"}})

	if err := e.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ok, err := e.DeleteFast(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("DeleteFast: ok=%v err=%v", ok, err)
	}
	if ok, _ := e.Has(ctx, "k"); ok {
		t.Fatalf("key visible after DeleteFast")
	}
	if ok, err := e.DeleteFast(ctx, "k"); err != nil || ok {
		t.Fatalf("DeleteFast absent: ok=%v err=%v", ok, err)
	}
}

func TestCounterStorageIsPlainText(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Config{Config: cachengine.Config{Prefix: "t_"}})

	// a value written by Set must be INCRBY-compatible
	if err := e.Set(ctx, "n", 10, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if n, err := e.Increment(ctx, "n", 5); err != nil || n != 15 {
		t.Fatalf("Increment over Set value: n=%d err=%v", n, err)
	}

	k, err := e.Key(ctx, "n")
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	s, err := e.rdb.Get(ctx, k).Result()
	if err != nil || s != "15" {
		t.Fatalf("stored form = %q err=%v, want decimal text", s, err)
	}
}

func TestCounterRefreshesExpiry(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Config{Config: cachengine.Config{
		Prefix:   "t_",
		Duration: time.Minute,
	}})

	if _, err := e.Increment(ctx, "n", 1); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	k, err := e.Key(ctx, "n")
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	ttl, err := e.rdb.TTL(ctx, k).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("counter ttl = %v err=%v", ttl, err)
	}
}

func TestClearScansOnlyOwnPrefix(t *testing.T) {
	ctx := context.Background()
	mine := newEngine(t, Config{Config: cachengine.Config{Prefix: "mine_"}})
	other := newEngine(t, Config{Config: cachengine.Config{Prefix: "other_"}})

	if err := mine.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set mine: %v", err)
	}
	if err := other.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set other: %v", err)
	}
	if err := mine.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := mine.Get(ctx, "k"); ok {
		t.Fatalf("own key survived Clear")
	}
	if _, ok, _ := other.Get(ctx, "k"); !ok {
		t.Fatalf("foreign prefix wiped by Clear")
	}
}

func TestCorruptEntrySelfHeals(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Config{Config: cachengine.Config{Prefix: "t_"}})

	k, err := e.Key(ctx, "k")
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	// not decimal text and not valid msgpack
	if err := e.rdb.Set(ctx, k, []byte{0xc1, 'x'}, 0).Err(); err != nil {
		t.Fatalf("raw set: %v", err)
	}
	if _, ok, err := e.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("corrupt entry must read as miss: ok=%v err=%v", ok, err)
	}
	if n, _ := e.rdb.Exists(ctx, k).Result(); n != 0 {
		t.Fatalf("corrupt entry not removed")
	}
}

func TestFromMap(t *testing.T) {
	ctx := context.Background()
	addr := redisAddr(t)
	e, err := FromMap(ctx, map[string]any{
		"addr":      addr,
		"prefix":    "fm_",
		"duration":  "1m",
		"scanCount": 500,
	})
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	defer func() {
		_ = e.Clear(ctx)
		_ = e.Close(ctx)
	}()
	if e.cfg.ScanCount != 500 || e.Config().Duration != time.Minute {
		t.Fatalf("backend keys not applied: %+v", e.cfg)
	}
	if err := e.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, _ := e.Get(ctx, "k"); !ok || v != "v" {
		t.Fatalf("round trip: v=%v ok=%v", v, ok)
	}
}
