package rescache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/rescache/adapter/appcache"
	"github.com/unkn0wn-root/rescache/genstore"
)

const (
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
	tracerName          = "github.com/unkn0wn-root/rescache"
)

// Cache loads resources through storage. Every method blocks until the work
// it started has settled; returning is the completion signal.
type Cache interface {
	// Load replays or fetches resources group by group. nil or empty input
	// returns nil at once. Fetch failures are reported as a *LoadError after
	// the whole batch settled.
	Load(ctx context.Context, resources []Resource) error
	// LoadApplicationCache waits for the offline bundle. Without a Manifest
	// it returns nil immediately.
	LoadApplicationCache(ctx context.Context) error
	// Remove drops the stored records and bumps their generations.
	Remove(ctx context.Context, resources []Resource) error
	Storage() *Storage
	Close(ctx context.Context) error
}

// Options configure a Cache. Fetcher and Injector are required.
type Options struct {
	Config   Config
	Fetcher  Fetcher
	Injector Injector
	Manifest appcache.Manifest // optional; enables LoadApplicationCache and the appcache adapter

	Logger Logger       // nil => NopLogger
	Hooks  Hooks        // nil => NopHooks
	Tracer trace.Tracer // nil => otel global tracer

	Concurrency int            // per group; 0 => unbounded
	GenStore    genstore.Store // nil => from Config.Generations
	Now         func() time.Time

	// OnReady fires once with the settled storage before New returns.
	OnReady        func(*Storage)
	StorageOptions []StorageOption
}

type cache struct {
	storage  *Storage
	fetcher  Fetcher
	injector Injector
	manifest appcache.Manifest
	log      Logger
	hooks    Hooks
	tracer   trace.Tracer
	gen      genstore.Store
	now      func() time.Time
	limit    int
	flight   singleflight.Group

	// life bounds shared fetches; Close cancels it.
	life context.Context
	stop context.CancelFunc
}

var _ Cache = (*cache)(nil)

func New(ctx context.Context, opts Options) (Cache, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("rescache: fetcher is required")
	}
	if opts.Injector == nil {
		return nil, fmt.Errorf("rescache: injector is required")
	}
	cfg := opts.Config.normalized()

	c := &cache{
		fetcher:  opts.Fetcher,
		injector: opts.Injector,
		manifest: opts.Manifest,
		limit:    opts.Concurrency,
	}
	c.life, c.stop = context.WithCancel(context.Background())
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.tracer = coalesce[trace.Tracer](opts.Tracer, otel.Tracer(tracerName))
	if opts.Now != nil {
		c.now = opts.Now
	} else {
		c.now = time.Now
	}

	switch {
	case opts.GenStore != nil:
		c.gen = opts.GenStore
	case cfg.Generations == "redis" && cfg.RedisAddr != "":
		c.gen = genstore.DialRedis(cfg.RedisAddr, cfg.Namespace, defaultGenRetention)
	default:
		c.gen = genstore.NewLocal(defaultSweep, defaultGenRetention)
	}

	sopts := []StorageOption{
		WithStorageLogger(c.log),
		WithStorageHooks(c.hooks),
		WithManifest(opts.Manifest),
	}
	c.storage = OpenStorage(ctx, cfg, append(sopts, opts.StorageOptions...)...)
	if opts.OnReady != nil {
		opts.OnReady(c.storage)
	}
	return c, nil
}

func (c *cache) Storage() *Storage { return c.storage }

func (c *cache) Close(ctx context.Context) error {
	c.stop()
	gerr := c.gen.Close(ctx)
	return errors.Join(c.storage.Close(ctx), gerr)
}

func (c *cache) LoadApplicationCache(ctx context.Context) error {
	if c.manifest == nil {
		c.log.Debug("application cache unsupported", nil)
		return nil
	}
	return appcache.New(c.manifest).Open(ctx)
}

type group struct {
	n     int
	items []Resource
}

// partition splits resources by Group in ascending order. Missing group
// numbers simply do not appear.
func partition(resources []Resource) []group {
	byN := make(map[int][]Resource)
	for _, r := range resources {
		byN[r.Group] = append(byN[r.Group], r)
	}
	out := make([]group, 0, len(byN))
	for n, items := range byN {
		out = append(out, group{n: n, items: items})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].n < out[j].n })
	return out
}

func (c *cache) Load(ctx context.Context, resources []Resource) (err error) {
	if len(resources) == 0 {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "rescache.Load",
		trace.WithAttributes(attribute.Int("rescache.resources", len(resources))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "load incomplete")
		}
		span.End()
	}()

	var le LoadError
	for _, g := range partition(resources) {
		if cerr := ctx.Err(); cerr != nil {
			if len(le.Failed) > 0 {
				return errors.Join(&le, cerr)
			}
			return cerr
		}
		c.loadGroup(ctx, g, &le)
	}
	if len(le.Failed) > 0 {
		return &le
	}
	return nil
}

func (c *cache) loadGroup(ctx context.Context, g group, le *LoadError) {
	ctx, span := c.tracer.Start(ctx, "rescache.LoadGroup", trace.WithAttributes(
		attribute.Int("rescache.group", g.n),
		attribute.Int("rescache.resources", len(g.items)),
	))
	defer span.End()

	urls := make([]string, 0, len(g.items))
	for _, r := range g.items {
		if r.URL != "" {
			urls = append(urls, r.URL)
		}
	}
	gens, serr := c.gen.SnapshotMany(ctx, urls)
	if serr != nil {
		c.log.Warn("generation snapshot failed; fetched records will not be stored",
			Fields{"group": g.n, "err": serr})
		c.hooks.AdapterError("genstore", "snapshot", serr)
		gens = nil
	}

	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	if c.limit > 0 {
		eg.SetLimit(c.limit)
	}
	for _, r := range g.items {
		r := r
		eg.Go(func() error {
			gen, guarded := gens[r.URL]
			if err := c.loadOne(ctx, r, gen, guarded); err != nil {
				mu.Lock()
				le.add(r.URL, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()
}

// loadOne settles a single resource. A nil return covers replayed resources
// and resources that were skipped as no-ops.
func (c *cache) loadOne(ctx context.Context, r Resource, gen uint64, guarded bool) error {
	if r.URL == "" {
		c.log.Debug("resource without url skipped", nil)
		return nil
	}
	typ := r.Type
	if typ == "" {
		typ = InferType(r.URL)
	}
	if !typ.valid() {
		c.log.Debug("resource of unknown type skipped", Fields{"url": r.URL, "type": string(r.Type)})
		return nil
	}

	rec, found := c.storage.Read(ctx, r.URL)
	if found {
		stale, reason := Stale(rec, r, c.now())
		if !stale {
			return c.replay(ctx, r, typ, rec.Content.Data, true)
		}
		c.log.Debug("stored record is stale", Fields{"url": r.URL, "reason": reason})
		c.hooks.RecordStale(r.URL, reason)
	}

	data, err := c.fetch(ctx, r.URL)
	if err != nil {
		if !errors.Is(err, ErrFetchFailed) {
			return err
		}
		c.log.Warn("fetch failed", Fields{"url": r.URL})
		c.hooks.FetchFailed(r.URL)
		return fmt.Errorf("%w: %s", ErrFetchFailed, r.URL)
	}
	c.persist(ctx, r, typ, data, found, gen, guarded)
	return c.replay(ctx, r, typ, data, false)
}

// fetch coalesces concurrent fetches of one URL. The shared fetch outlives
// any single caller's ctx and ends only with the cache; each caller stops
// waiting when its own ctx is done.
func (c *cache) fetch(ctx context.Context, url string) (string, error) {
	ch := c.flight.DoChan(url, func() (any, error) {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()
		defer context.AfterFunc(c.life, cancel)()

		data, ok := c.fetcher.Fetch(fctx, url)
		if !ok {
			return nil, ErrFetchFailed
		}
		return data, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// persist writes the fetched content iff the URL's generation still equals
// the one observed before storage was read.
func (c *cache) persist(ctx context.Context, r Resource, typ Type, data string, existed bool, observed uint64, guarded bool) {
	if !c.storage.Enabled() {
		return
	}
	cur, err := c.gen.Snapshot(ctx, r.URL)
	if err != nil {
		c.hooks.AdapterError("genstore", "snapshot", err)
	}
	if !guarded || err != nil || cur != observed {
		c.log.Debug("persist skipped (generation moved)", Fields{"url": r.URL, "obs": observed, "cur": cur})
		c.hooks.PersistSkipped(r.URL)
		return
	}

	rec := &Record{ID: r.URL, Content: Content{
		Data:     data,
		Type:     string(typ),
		Version:  r.Version,
		LastMod:  r.LastMod,
		Lifetime: r.lifetimeMS(),
		StoredAt: c.now().UnixMilli(),
	}}
	if existed {
		c.storage.Update(ctx, rec)
		return
	}
	c.storage.Create(ctx, rec)
}

func (c *cache) replay(ctx context.Context, r Resource, typ Type, data string, fromStorage bool) error {
	var err error
	switch typ {
	case CSS:
		err = c.injector.AppendCSS(ctx, r.URL, data, r.Target)
	case JS:
		err = c.injector.AppendJS(ctx, r.URL, data, r.Target)
	case Img:
		err = c.injector.AppendImg(ctx, r.URL, data, r.Target)
	case HTML:
		err = c.injector.AppendHTML(ctx, r.URL, data, r.Target)
	}
	if err != nil {
		c.log.Warn("inject failed", Fields{"url": r.URL, "type": string(typ), "err": err})
		return fmt.Errorf("inject %s: %w", r.URL, err)
	}
	c.hooks.Replayed(r.URL, fromStorage)
	if r.Loaded != nil {
		r.Loaded(data)
	}
	return nil
}

func (c *cache) Remove(ctx context.Context, resources []Resource) error {
	if len(resources) == 0 {
		return nil
	}
	ctx, span := c.tracer.Start(ctx, "rescache.Remove",
		trace.WithAttributes(attribute.Int("rescache.resources", len(resources))))
	defer span.End()

	var (
		mu   sync.Mutex
		errs []error
		eg   errgroup.Group
	)
	if c.limit > 0 {
		eg.SetLimit(c.limit)
	}
	for _, r := range resources {
		if r.URL == "" {
			continue
		}
		r := r
		eg.Go(func() error {
			// bump first so a fetch already in flight cannot store the record again
			if _, err := c.gen.Bump(ctx, r.URL); err != nil {
				c.log.Error("generation bump failed", Fields{"url": r.URL, "err": err})
				c.hooks.AdapterError("genstore", "bump", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("rescache: remove %q: %w", r.URL, err))
				mu.Unlock()
			}
			c.storage.Remove(ctx, r.URL)
			return nil
		})
	}
	_ = eg.Wait()

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "remove incomplete")
	}
	return err
}
