package rescache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/rescache/adapter/appcache"
	"github.com/unkn0wn-root/rescache/codec"
	"github.com/unkn0wn-root/rescache/internal/util"
	"github.com/unkn0wn-root/rescache/queue"
)

// RegistryOptions carry the collaborators shared by every Cache a Registry
// builds. They are not part of the configuration fingerprint.
type RegistryOptions struct {
	Fetcher  Fetcher
	Injector Injector
	Manifest appcache.Manifest

	Logger Logger
	Hooks  Hooks
	Tracer trace.Tracer

	Concurrency    int
	Now            func() time.Time
	StorageOptions []StorageOption
}

// Registry keeps one Cache per configuration fingerprint. Callers that arrive
// while a Cache is being built wait for it instead of building their own.
type Registry struct {
	opts RegistryOptions
	log  Logger

	mu      sync.Mutex
	entries map[string]*entry

	inits atomic.Int64
}

type built struct {
	c   Cache
	err error
}

type entry struct {
	q queue.Queue[built]
}

func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{
		opts:    opts,
		log:     coalesce[Logger](opts.Logger, NopLogger{}),
		entries: make(map[string]*entry),
	}
}

var fingerprintCodec = codec.MustCBOR[Config](true)

// Fingerprint identifies cfg by the digest of its canonical CBOR encoding.
// Map keys are sorted and defaults are applied first, so configs that differ
// only in map order or in spelling out a default share a fingerprint.
func Fingerprint(cfg Config) (string, error) {
	b, err := fingerprintCodec.Encode(cfg.normalized())
	if err != nil {
		return "", fmt.Errorf("rescache: fingerprint config: %w", err)
	}
	return util.Digest(b), nil
}

// Load runs resources through the Cache for cfg, building it on first use.
// Callers that queued behind a build start their loads concurrently once the
// Cache is ready. A caller whose ctx ends while the Cache is being built
// returns ctx.Err(); the build itself continues for the remaining callers.
func (r *Registry) Load(ctx context.Context, resources []Resource, cfg Config) error {
	fp, err := Fingerprint(cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	e, ok := r.entries[fp]
	if !ok {
		e = &entry{}
		r.entries[fp] = e
	}
	r.mu.Unlock()

	ready := make(chan built, 1)
	e.q.Add(func(b built) { ready <- b })
	if !ok {
		go r.build(context.WithoutCancel(ctx), fp, cfg, e)
	}

	select {
	case b := <-ready:
		if b.err != nil {
			return b.err
		}
		return b.c.Load(ctx, resources)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) build(ctx context.Context, fp string, cfg Config, e *entry) {
	c, err := New(ctx, Options{
		Config:         cfg,
		Fetcher:        r.opts.Fetcher,
		Injector:       r.opts.Injector,
		Manifest:       r.opts.Manifest,
		Logger:         r.opts.Logger,
		Hooks:          r.opts.Hooks,
		Tracer:         r.opts.Tracer,
		Concurrency:    r.opts.Concurrency,
		Now:            r.opts.Now,
		StorageOptions: r.opts.StorageOptions,
	})
	r.inits.Add(1)
	if err != nil {
		r.log.Error("cache init failed", Fields{"fingerprint": fp, "err": err})
		r.mu.Lock()
		if r.entries[fp] == e {
			delete(r.entries, fp)
		}
		r.mu.Unlock()
	} else if n := e.q.Len(); n > 1 {
		coalesce[Hooks](r.opts.Hooks, NopHooks{}).InitCoalesced(fp, n)
		r.log.Debug("cache init coalesced", Fields{"fingerprint": fp, "waiters": n})
	}
	e.q.Flush(built{c: c, err: err})
}

// Len is the number of fingerprints with a Cache built or being built.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Inits counts Cache constructions, including failed ones.
func (r *Registry) Inits() int64 { return r.inits.Load() }

// Reset closes every Cache and empties the registry. It waits for builds in
// flight and closes their Caches too, unless ctx ends first. Loads already
// queued behind such a build may run against a Cache that is being closed.
func (r *Registry) Reset(ctx context.Context) error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	wg.Add(len(entries))
	for _, e := range entries {
		e.q.Add(func(b built) {
			defer wg.Done()
			if b.c == nil {
				return
			}
			if err := b.c.Close(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		mu.Lock()
		errs = append(errs, ctx.Err())
		mu.Unlock()
	}
	mu.Lock()
	defer mu.Unlock()
	return errors.Join(errs...)
}
