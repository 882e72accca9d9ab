// Package enginetest runs one behavioral suite against any Engine so every
// backend proves the same contract: round trips, expiry-as-miss, add
// semantics, bulk best-effort, key validation and sanitization, group
// invalidation. Backend-specific guarantees (lock ordering, SCAN paging,
// O(1) group clears) stay in each engine's own tests.
package enginetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/cachengine"
)

// Options describe the engine under test.
type Options struct {
	// New builds a fresh engine for the given common config. The suite
	// closes it.
	New func(t *testing.T, cfg cachengine.Config) cachengine.Engine

	// SupportsCounters is false for backends without an atomic counter
	// primitive (the suite then expects ErrUnsupported).
	SupportsCounters bool

	// TTL / TTLWait tune the expiry test for the backend's clock
	// granularity (the file engine stores whole epoch seconds).
	TTL     time.Duration
	TTLWait time.Duration
}

func (o Options) ttl() (time.Duration, time.Duration) {
	if o.TTL <= 0 {
		return 50 * time.Millisecond, 150 * time.Millisecond
	}
	return o.TTL, o.TTLWait
}

// Run executes the full suite.
func Run(t *testing.T, opts Options) {
	t.Helper()
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, opts) })
	t.Run("Expiry", func(t *testing.T) { testExpiry(t, opts) })
	t.Run("Add", func(t *testing.T) { testAdd(t, opts) })
	t.Run("Counters", func(t *testing.T) { testCounters(t, opts) })
	t.Run("CounterTTL", func(t *testing.T) { testCounterTTL(t, opts) })
	t.Run("DeleteHas", func(t *testing.T) { testDeleteHas(t, opts) })
	t.Run("Bulk", func(t *testing.T) { testBulk(t, opts) })
	t.Run("KeyValidation", func(t *testing.T) { testKeyValidation(t, opts) })
	t.Run("Sanitization", func(t *testing.T) { testSanitization(t, opts) })
	t.Run("Clear", func(t *testing.T) { testClear(t, opts) })
	t.Run("Groups", func(t *testing.T) { testGroups(t, opts) })
}

func newEngine(t *testing.T, opts Options, cfg cachengine.Config) cachengine.Engine {
	t.Helper()
	e := opts.New(t, cfg)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func testRoundTrip(t *testing.T, opts Options) {
	ctx := context.Background()
	e := newEngine(t, opts, cachengine.Config{Prefix: "rt_"})

	if _, ok, err := e.Get(ctx, "absent"); err != nil || ok {
		t.Fatalf("Get absent: ok=%v err=%v", ok, err)
	}

	if err := e.Set(ctx, "text", "hello", 0); err != nil {
		t.Fatalf("Set text: %v", err)
	}
	if v, ok, err := e.Get(ctx, "text"); err != nil || !ok || v != "hello" {
		t.Fatalf("Get text: v=%v ok=%v err=%v", v, ok, err)
	}

	if err := e.Set(ctx, "int", 42, 0); err != nil {
		t.Fatalf("Set int: %v", err)
	}
	if v, ok, err := e.Get(ctx, "int"); err != nil || !ok || v != int64(42) {
		t.Fatalf("Get int: v=%v (%T) ok=%v err=%v", v, v, ok, err)
	}

	nested := map[string]any{"name": "Ada", "tags": []any{"x", "y"}}
	if err := e.Set(ctx, "nested", nested, 0); err != nil {
		t.Fatalf("Set nested: %v", err)
	}
	v, ok, err := e.Get(ctx, "nested")
	if err != nil || !ok {
		t.Fatalf("Get nested: ok=%v err=%v", ok, err)
	}
	m, isMap := v.(map[string]any)
	if !isMap || m["name"] != "Ada" {
		t.Fatalf("nested came back as %#v", v)
	}
}

func testExpiry(t *testing.T, opts Options) {
	ctx := context.Background()
	ttl, wait := opts.ttl()
	e := newEngine(t, opts, cachengine.Config{Prefix: "exp_"})

	if err := e.Set(ctx, "k", "v", ttl); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := e.Get(ctx, "k"); err != nil || !ok || v != "v" {
		t.Fatalf("Get before expiry: v=%v ok=%v err=%v", v, ok, err)
	}
	time.Sleep(wait)
	if _, ok, err := e.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expired entry must behave as a miss: ok=%v err=%v", ok, err)
	}

	// NoExpiration survives the same wait
	if err := e.Set(ctx, "forever", "v", cachengine.NoExpiration); err != nil {
		t.Fatalf("Set forever: %v", err)
	}
	time.Sleep(wait)
	if _, ok, _ := e.Get(ctx, "forever"); !ok {
		t.Fatalf("NoExpiration entry expired")
	}
}

func testAdd(t *testing.T, opts Options) {
	ctx := context.Background()
	e := newEngine(t, opts, cachengine.Config{Prefix: "add_"})

	if ok, err := e.Add(ctx, "k", "first"); err != nil || !ok {
		t.Fatalf("first Add: ok=%v err=%v", ok, err)
	}
	if ok, err := e.Add(ctx, "k", "second"); err != nil || ok {
		t.Fatalf("second Add must refuse: ok=%v err=%v", ok, err)
	}
	if v, _, _ := e.Get(ctx, "k"); v != "first" {
		t.Fatalf("Add overwrote: %v", v)
	}
}

func testCounters(t *testing.T, opts Options) {
	ctx := context.Background()
	e := newEngine(t, opts, cachengine.Config{Prefix: "ctr_"})

	if !opts.SupportsCounters {
		if _, err := e.Increment(ctx, "n", 1); !errors.Is(err, cachengine.ErrUnsupported) {
			t.Fatalf("Increment should be unsupported, got %v", err)
		}
		if _, err := e.Decrement(ctx, "n", 1); !errors.Is(err, cachengine.ErrUnsupported) {
			t.Fatalf("Decrement should be unsupported, got %v", err)
		}
		return
	}

	if n, err := e.Increment(ctx, "n", 5); err != nil || n != 5 {
		t.Fatalf("Increment from absent: n=%d err=%v", n, err)
	}
	if n, err := e.Decrement(ctx, "n", 2); err != nil || n != 3 {
		t.Fatalf("Decrement: n=%d err=%v", n, err)
	}
	if v, ok, err := e.Get(ctx, "n"); err != nil || !ok || v != int64(3) {
		t.Fatalf("counter must read back as int64: v=%v (%T) ok=%v err=%v", v, v, ok, err)
	}
}

func testCounterTTL(t *testing.T, opts Options) {
	if !opts.SupportsCounters {
		t.Skip("backend has no counter primitive")
	}
	ctx := context.Background()

	// no default duration: an increment must leave the entry's explicit
	// expiry untouched
	e := newEngine(t, opts, cachengine.Config{Prefix: "cttl_"})
	if err := e.Set(ctx, "n", 1, 200*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if n, err := e.Increment(ctx, "n", 1); err != nil || n != 2 {
		t.Fatalf("Increment: n=%d err=%v", n, err)
	}
	time.Sleep(400 * time.Millisecond)
	if _, ok, err := e.Get(ctx, "n"); err != nil || ok {
		t.Fatalf("increment wiped an explicit ttl: ok=%v err=%v", ok, err)
	}

	// non-zero default duration: each increment restamps the expiry
	r := newEngine(t, opts, cachengine.Config{
		Prefix:   "cttl2_",
		Duration: time.Second,
	})
	if _, err := r.Increment(ctx, "n", 1); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	time.Sleep(600 * time.Millisecond)
	if _, err := r.Increment(ctx, "n", 1); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	time.Sleep(600 * time.Millisecond)
	if v, ok, err := r.Get(ctx, "n"); err != nil || !ok || v != int64(2) {
		t.Fatalf("refreshed counter expired early: v=%v ok=%v err=%v", v, ok, err)
	}
}

func testDeleteHas(t *testing.T, opts Options) {
	ctx := context.Background()
	e := newEngine(t, opts, cachengine.Config{Prefix: "del_"})

	if ok, err := e.Delete(ctx, "absent"); err != nil || ok {
		t.Fatalf("Delete absent: ok=%v err=%v", ok, err)
	}
	if err := e.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ok, err := e.Has(ctx, "k"); err != nil || !ok {
		t.Fatalf("Has present: ok=%v err=%v", ok, err)
	}
	if ok, err := e.Delete(ctx, "k"); err != nil || !ok {
		t.Fatalf("Delete present: ok=%v err=%v", ok, err)
	}
	if ok, _ := e.Has(ctx, "k"); ok {
		t.Fatalf("Has after delete")
	}
}

func testBulk(t *testing.T, opts Options) {
	ctx := context.Background()
	e := newEngine(t, opts, cachengine.Config{Prefix: "blk_"})

	items := map[string]any{"a": "1", "b": "2", "c": "3"}
	if err := e.SetMultiple(ctx, items, 0); err != nil {
		t.Fatalf("SetMultiple: %v", err)
	}
	got, err := e.GetMultiple(ctx, []string{"a", "b", "c", "missing"})
	if err != nil {
		t.Fatalf("GetMultiple: %v", err)
	}
	if len(got) != 3 || got["a"] != "1" || got["c"] != "3" {
		t.Fatalf("GetMultiple got %#v", got)
	}
	if _, present := got["missing"]; present {
		t.Fatalf("missing key present in bulk result")
	}

	// partial failure: one unserializable member, writable ones stay
	bad := map[string]any{"x": "ok1", "y": make(chan int), "z": "ok2"}
	if err := e.SetMultiple(ctx, bad, 0); err == nil {
		t.Fatalf("SetMultiple with unserializable member must fail overall")
	}
	for _, k := range []string{"x", "z"} {
		if _, ok, _ := e.Get(ctx, k); !ok {
			t.Fatalf("best-effort write %q was rolled back", k)
		}
	}

	if ok, err := e.DeleteMultiple(ctx, []string{"a", "b"}); err != nil || !ok {
		t.Fatalf("DeleteMultiple: ok=%v err=%v", ok, err)
	}
	if ok, err := e.DeleteMultiple(ctx, []string{"c", "nope"}); err != nil || ok {
		t.Fatalf("DeleteMultiple with absent member must report false, ok=%v err=%v", ok, err)
	}
}

func testKeyValidation(t *testing.T, opts Options) {
	ctx := context.Background()
	e := newEngine(t, opts, cachengine.Config{Prefix: "val_"})

	for _, bad := range []string{"", "   ", "\t\n"} {
		if _, _, err := e.Get(ctx, bad); !errors.Is(err, cachengine.ErrInvalidKey) {
			t.Fatalf("Get(%q) err=%v, want ErrInvalidKey", bad, err)
		}
		if err := e.Set(ctx, bad, "v", 0); !errors.Is(err, cachengine.ErrInvalidKey) {
			t.Fatalf("Set(%q) err=%v, want ErrInvalidKey", bad, err)
		}
		if _, err := e.Delete(ctx, bad); !errors.Is(err, cachengine.ErrInvalidKey) {
			t.Fatalf("Delete(%q) err=%v, want ErrInvalidKey", bad, err)
		}
	}
}

func testSanitization(t *testing.T, opts Options) {
	ctx := context.Background()
	e := newEngine(t, opts, cachengine.Config{Prefix: "san_"})

	// whitespace runs collapse to one filler: both spellings are one key
	if err := e.Set(ctx, "user profile", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := e.Get(ctx, "user \t profile"); err != nil || !ok || v != "v" {
		t.Fatalf("sanitized lookup: v=%v ok=%v err=%v", v, ok, err)
	}
}

func testClear(t *testing.T, opts Options) {
	ctx := context.Background()
	e := newEngine(t, opts, cachengine.Config{Prefix: "clr_"})

	for _, k := range []string{"a", "b", "c"} {
		if err := e.Set(ctx, k, k, 0); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	if err := e.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, k := range []string{"a", "b", "c"} {
		if _, ok, _ := e.Get(ctx, k); ok {
			t.Fatalf("key %q survived Clear", k)
		}
	}
}

func testGroups(t *testing.T, opts Options) {
	ctx := context.Background()
	e := newEngine(t, opts, cachengine.Config{
		Prefix: "grp_",
		Groups: []string{"posts", "comments"},
	})

	if err := e.Set(ctx, "k", "v1", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, _ := e.Get(ctx, "k"); !ok || v != "v1" {
		t.Fatalf("Get before group clear: v=%v ok=%v", v, ok)
	}

	if ok, err := e.ClearGroup(ctx, "posts"); err != nil || !ok {
		t.Fatalf("ClearGroup: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := e.Get(ctx, "k"); ok {
		t.Fatalf("key reachable after group clear")
	}

	// the keyspace works again under the new token combination
	if err := e.Set(ctx, "k", "v2", 0); err != nil {
		t.Fatalf("Set after clear: %v", err)
	}
	if v, ok, _ := e.Get(ctx, "k"); !ok || v != "v2" {
		t.Fatalf("Get after re-set: v=%v ok=%v", v, ok)
	}

	// clearing one group must not disturb another engine's combination
	other := newEngine(t, opts, cachengine.Config{
		Prefix: "grp2_",
		Groups: []string{"users"},
	})
	if err := other.Set(ctx, "k", "stay", 0); err != nil {
		t.Fatalf("other Set: %v", err)
	}
	if _, err := e.ClearGroup(ctx, "posts"); err != nil {
		t.Fatalf("ClearGroup: %v", err)
	}
	if v, ok, _ := other.Get(ctx, "k"); !ok || v != "stay" {
		t.Fatalf("unrelated group lost its key: v=%v ok=%v", v, ok)
	}
}
