// Package async decorates a Hooks implementation with a bounded queue so
// slow sinks (logging, metrics export) never stall engine hot paths.
// Events are dropped when the queue is full - hooks are observability,
// not bookkeeping.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{})
//	hooks := async.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	eng := memory.New(memory.Config{Config: cachengine.Config{
//	    Prefix: "app_",
//	    Hooks:  hooks, // or `raw` if you don't want async
//	}})
package async

import (
	"sync"

	"github.com/unkn0wn-root/cachengine"
)

type Hooks struct {
	inner cachengine.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ cachengine.Hooks = (*Hooks)(nil)

func New(inner cachengine.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Safe to call multiple
// times.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) Before(op cachengine.Op, key string, value any) {
	h.try(func() { h.inner.Before(op, key, value) })
}

func (h *Hooks) After(op cachengine.Op, key string, value any, ok bool) {
	h.try(func() { h.inner.After(op, key, value, ok) })
}
