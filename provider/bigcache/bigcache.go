package bigcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/rescache/provider"
)

// Provider is an in-process byte store. BigCache has no per-entry TTL; every
// entry lives for Config.LifeWindow.
type Provider struct {
	c *bc.BigCache
	// mu serializes Add so that check-and-set is atomic within the process.
	mu sync.Mutex
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	LifeWindow         time.Duration // 0 => 24h
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = 24 * time.Hour
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.New(ctx, conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c}, nil
}

func (p *Provider) Name() string { return "bigcache" }

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	return setErr(p.c.Set(key, value))
}

func (p *Provider) Add(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.c.Get(key); err == nil {
		return false, nil
	} else if !errors.Is(err, bc.ErrEntryNotFound) {
		return false, err
	}
	if err := setErr(p.c.Set(key, value)); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	err := p.c.Delete(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}

// setErr maps bigcache write failures to ErrRejected; Set only fails when the
// entry does not fit in its shard.
func setErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", pr.ErrRejected, err)
}
