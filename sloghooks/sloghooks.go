// Package sloghooks ships a ready-made Hooks sink over log/slog: every
// operation at Debug, failures at Warn. Wrap it with hooks/async when the
// handler is slow.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/cachengine"
)

type Options struct {
	// BeforeEvery samples Before events to avoid floods; 0/1 = log all.
	BeforeEvery uint64

	// Redact transforms keys before logging. Defaults to a SHA-256 prefix
	// so raw cache keys (which may embed user identifiers) never reach the
	// log stream.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	beforeCtr atomic.Uint64
}

var _ cachengine.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) Before(op cachengine.Op, key string, _ any) {
	if h.l == nil || !sample(h.opts.BeforeEvery, &h.beforeCtr) {
		return
	}
	h.l.Debug("cachengine.op",
		"op", string(op),
		"key", h.redact(key))
}

func (h *Hooks) After(op cachengine.Op, key string, _ any, ok bool) {
	if h.l == nil {
		return
	}
	if ok {
		return // successes are covered by the sampled Before stream
	}
	h.l.Warn("cachengine.op_failed",
		"op", string(op),
		"key", h.redact(key))
}
