package file

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/cachengine"
	"github.com/unkn0wn-root/cachengine/enginetest"
)

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = t.TempDir()
	}
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestContract(t *testing.T) {
	enginetest.Run(t, enginetest.Options{
		New: func(t *testing.T, cfg cachengine.Config) cachengine.Engine {
			return newEngine(t, Config{Config: cfg})
		},
		// expiry is stored in whole epoch seconds
		TTL:     1 * time.Second,
		TTLWait: 2100 * time.Millisecond,
	})
}

func TestOnDiskLayout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := newEngine(t, Config{
		Config: cachengine.Config{Prefix: "app_"},
		Path:   dir,
	})

	if err := e.Set(ctx, "my key", "hello", time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// file name is the percent-encoded composed key, sanitized
	p := filepath.Join(dir, url.QueryEscape("app_my_key"))
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("entry file missing: %v", err)
	}

	// first line: expiry as unix seconds, then payload, then newline
	lines := strings.SplitN(string(b), "\n", 2)
	if len(lines) != 2 {
		t.Fatalf("content %q, want expiry line + payload", b)
	}
	exp, err := strconv.ParseInt(lines[0], 10, 64)
	if err != nil {
		t.Fatalf("expiry line %q: %v", lines[0], err)
	}
	now := time.Now().Unix()
	if exp < now+3500 || exp > now+3700 {
		t.Fatalf("expiry %d not about an hour from now (%d)", exp, now)
	}
	if !strings.HasSuffix(string(b), "\n") {
		t.Fatalf("payload not newline-terminated")
	}
}

func TestForeverEntryWritesZeroExpiry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := newEngine(t, Config{
		Config: cachengine.Config{Prefix: "app_"},
		Path:   dir,
	})

	if err := e.Set(ctx, "k", "v", cachengine.NoExpiration); err != nil {
		t.Fatalf("Set: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, url.QueryEscape("app_k")))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(b), "0\n") {
		t.Fatalf("content %q, want zero expiry line", b)
	}
}

func TestCountersUnsupported(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Config{Config: cachengine.Config{Prefix: "app_"}})

	if _, err := e.Increment(ctx, "n", 1); !errors.Is(err, cachengine.ErrUnsupported) {
		t.Fatalf("Increment: %v, want ErrUnsupported", err)
	}
	// key validation still comes first
	if _, err := e.Increment(ctx, "  ", 1); !errors.Is(err, cachengine.ErrInvalidKey) {
		t.Fatalf("Increment bad key: %v, want ErrInvalidKey", err)
	}
}

func TestGroupDirectories(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := newEngine(t, Config{
		Config: cachengine.Config{
			Prefix: "app_",
			Groups: []string{"posts", "comments"},
		},
		Path: dir,
	})

	if err := e.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// entries land under a directory named after the sorted group set
	groupDir := filepath.Join(dir, "comments_posts")
	ents, err := os.ReadDir(groupDir)
	if err != nil {
		t.Fatalf("group dir: %v", err)
	}
	if len(ents) != 1 {
		t.Fatalf("group dir has %d entries, want 1", len(ents))
	}

	ok, err := e.ClearGroup(ctx, "posts")
	if err != nil || !ok {
		t.Fatalf("ClearGroup: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := e.Get(ctx, "k"); ok {
		t.Fatalf("entry survived group clear")
	}
	// the directory itself is recreated empty
	ents, err = os.ReadDir(groupDir)
	if err != nil {
		t.Fatalf("group dir after clear: %v", err)
	}
	if len(ents) != 0 {
		t.Fatalf("group dir not emptied")
	}

	// re-set works in the fresh directory
	if err := e.Set(ctx, "k", "v2", 0); err != nil {
		t.Fatalf("Set after clear: %v", err)
	}
	if v, ok, _ := e.Get(ctx, "k"); !ok || v != "v2" {
		t.Fatalf("Get after clear: v=%v ok=%v", v, ok)
	}
}

func TestClearGroupLeavesOtherGroupsAlone(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	posts := newEngine(t, Config{
		Config: cachengine.Config{Prefix: "app_", Groups: []string{"posts"}},
		Path:   dir,
	})
	users := newEngine(t, Config{
		Config: cachengine.Config{Prefix: "app_", Groups: []string{"users"}},
		Path:   dir,
	})

	if err := posts.Set(ctx, "k", "p", 0); err != nil {
		t.Fatalf("Set posts: %v", err)
	}
	if err := users.Set(ctx, "k", "u", 0); err != nil {
		t.Fatalf("Set users: %v", err)
	}

	if _, err := posts.ClearGroup(ctx, "posts"); err != nil {
		t.Fatalf("ClearGroup: %v", err)
	}
	if _, ok, _ := posts.Get(ctx, "k"); ok {
		t.Fatalf("posts entry survived")
	}
	if v, ok, _ := users.Get(ctx, "k"); !ok || v != "u" {
		t.Fatalf("users entry lost: v=%v ok=%v", v, ok)
	}
}

func TestClearLeavesForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := newEngine(t, Config{
		Config: cachengine.Config{Prefix: "app_"},
		Path:   dir,
	})

	if err := e.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	foreign := filepath.Join(dir, "other_k")
	if err := os.WriteFile(foreign, []byte("0\nkeep\n"), 0o644); err != nil {
		t.Fatalf("write foreign: %v", err)
	}

	if err := e.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := e.Get(ctx, "k"); ok {
		t.Fatalf("own entry survived Clear")
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("foreign file removed: %v", err)
	}
}

func TestCorruptFileSelfHeals(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := newEngine(t, Config{
		Config: cachengine.Config{Prefix: "app_"},
		Path:   dir,
	})

	p := filepath.Join(dir, url.QueryEscape("app_k"))
	if err := os.WriteFile(p, []byte("not-an-expiry\ngarbage\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok, err := e.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("corrupt file must read as miss: ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Fatalf("corrupt file not removed: %v", err)
	}
}

func TestLockedReadWrite(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, Config{
		Config: cachengine.Config{Prefix: "app_"},
		Lock:   true,
	})

	if err := e.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := e.Get(ctx, "k"); err != nil || !ok || v != "v" {
		t.Fatalf("Get: v=%v ok=%v err=%v", v, ok, err)
	}
}

func TestFromMap(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e, err := FromMap(map[string]any{
		"prefix": "app_",
		"path":   dir,
		"lock":   true,
	})
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if !e.cfg.Lock || e.cfg.Path != dir {
		t.Fatalf("backend keys not applied: %+v", e.cfg)
	}
	if err := e.Set(ctx, "k", "v", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
}
