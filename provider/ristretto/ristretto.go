// Package ristretto adapts dgraph-io/ristretto to the provider contract.
//
// Ristretto has no key enumeration, so a local engine on this provider can
// only Clear through the Reset capability (whole-store wipe, opt-in).
// Admission may silently drop writes under pressure; a subsequent Get
// simply misses.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/cachengine/provider"
)

type Provider struct {
	c *rc.Cache
}

var (
	_ pr.Provider  = (*Provider)(nil)
	_ pr.Resetter  = (*Provider)(nil)
	_ pr.TTLReader = (*Provider)(nil)
)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(value))
	if cost == 0 {
		cost = 1
	}
	if ttl > 0 {
		p.c.SetWithTTL(key, value, cost, ttl)
	} else {
		p.c.Set(key, value, cost)
	}
	// Wait so the engine's own read-after-write (Add, counters) observes
	// the value; ristretto applies sets asynchronously.
	p.c.Wait()
	return nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	d, ok := p.c.GetTTL(key)
	return d, ok, nil
}

func (p *Provider) Reset(_ context.Context) error {
	p.c.Clear()
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto's metrics; not part of the provider contract.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
