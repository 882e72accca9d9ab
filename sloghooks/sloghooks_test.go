package sloghooks

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/cachengine"
)

func newLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestBeforeLogsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{})

	h.Before(cachengine.OpGet, "app_user:42", nil)
	out := buf.String()
	if !strings.Contains(out, "cachengine.op") || !strings.Contains(out, "op=get") {
		t.Fatalf("output %q", out)
	}
	// raw key must never appear; the default redaction hashes it
	if strings.Contains(out, "user:42") {
		t.Fatalf("raw key leaked into log: %q", out)
	}
}

func TestAfterLogsFailuresOnly(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{})

	h.After(cachengine.OpSet, "k", nil, true)
	if buf.Len() != 0 {
		t.Fatalf("success logged: %q", buf.String())
	}
	h.After(cachengine.OpSet, "k", nil, false)
	if !strings.Contains(buf.String(), "cachengine.op_failed") {
		t.Fatalf("failure not logged: %q", buf.String())
	}
}

func TestBeforeSampling(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{BeforeEvery: 10})

	for i := 0; i < 100; i++ {
		h.Before(cachengine.OpGet, "k", nil)
	}
	lines := strings.Count(buf.String(), "\n")
	if lines != 10 {
		t.Fatalf("sampled %d lines, want 10", lines)
	}
}

func TestCustomRedact(t *testing.T) {
	var buf bytes.Buffer
	h := New(newLogger(&buf), Options{Redact: func(string) string { return "xxx" }})

	h.Before(cachengine.OpGet, "secret", nil)
	out := buf.String()
	if !strings.Contains(out, "key=xxx") || strings.Contains(out, "secret") {
		t.Fatalf("output %q", out)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	h := New(nil, Options{})
	h.Before(cachengine.OpGet, "k", nil)
	h.After(cachengine.OpGet, "k", nil, false)
}
