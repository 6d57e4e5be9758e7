package ristretto

import (
	"context"
	"errors"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/rescache/provider"
)

// Provider is an in-process admission-controlled byte store. The cost of an
// entry is its length in bytes, so MaxCost is a memory budget.
type Provider struct {
	c  *rc.Cache
	mu sync.Mutex
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes
	BufferItems int64
	Metrics     bool
}

// ConfigForMB sizes a cache for roughly mb megabytes of content.
func ConfigForMB(mb int) Config {
	if mb <= 0 {
		mb = 64
	}
	maxCost := int64(mb) << 20
	return Config{
		NumCounters: maxCost / 1024 * 10, // ~10x expected items at 1KiB each
		MaxCost:     maxCost,
		BufferItems: 64,
	}
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

func (p *Provider) Name() string { return "ristretto" }

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set waits for the write buffer so that a following Get observes the value.
func (p *Provider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if !p.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		return pr.ErrRejected
	}
	p.c.Wait()
	return nil
}

func (p *Provider) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.c.Get(key); ok {
		return false, nil
	}
	if err := p.Set(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes ristretto's counters when Config.Metrics is set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
