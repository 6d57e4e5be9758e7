package rescache

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/rescache/adapter"
	"github.com/unkn0wn-root/rescache/adapter/appcache"
)

// Storage fronts the selected adapter. Every method is safe on a disabled
// Storage and on falsy input, where it returns false without touching the
// adapter. Adapter errors are logged, hooked and reported as false.
type Storage struct {
	a     adapter.Adapter // nil when disabled; set once by OpenStorage
	log   Logger
	hooks Hooks
}

type storageOptions struct {
	candidates []adapter.Candidate
	manifest   appcache.Manifest
	log        Logger
	hooks      Hooks
}

type StorageOption func(*storageOptions)

// WithCandidates replaces the probe list derived from Config.
func WithCandidates(c ...adapter.Candidate) StorageOption {
	return func(o *storageOptions) { o.candidates = c }
}

// WithManifest supplies the offline bundle signal for the appcache adapter.
func WithManifest(m appcache.Manifest) StorageOption {
	return func(o *storageOptions) { o.manifest = m }
}

func WithStorageLogger(l Logger) StorageOption {
	return func(o *storageOptions) { o.log = l }
}

func WithStorageHooks(h Hooks) StorageOption {
	return func(o *storageOptions) { o.hooks = h }
}

// OpenStorage binds the first candidate that is available, constructs and
// opens. Candidates that fail Open are closed. When none succeeds, or when
// cfg.Disabled is set, the returned Storage is disabled.
func OpenStorage(ctx context.Context, cfg Config, opts ...StorageOption) *Storage {
	var o storageOptions
	for _, fn := range opts {
		fn(&o)
	}
	s := &Storage{
		log:   coalesce[Logger](o.log, NopLogger{}),
		hooks: coalesce[Hooks](o.hooks, NopHooks{}),
	}
	if cfg.Disabled {
		s.log.Info("storage disabled by config", nil)
		s.hooks.StorageDisabled()
		return s
	}

	cands := o.candidates
	if cands == nil {
		var unknown []string
		cands, unknown = cfg.Candidates(o.manifest)
		for _, name := range unknown {
			s.log.Warn("unknown storage adapter", Fields{"adapter": name})
		}
	}

	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		if a := s.probe(ctx, c); a != nil {
			s.a = a
			s.log.Info("storage selected", Fields{"adapter": a.Name()})
			s.hooks.StorageSelected(a.Name())
			return s
		}
	}
	s.log.Warn("no storage adapter available; running without storage", nil)
	s.hooks.StorageDisabled()
	return s
}

func (s *Storage) probe(ctx context.Context, c adapter.Candidate) adapter.Adapter {
	if c.New == nil || (c.Available != nil && !c.Available()) {
		s.log.Debug("storage candidate unavailable", Fields{"adapter": c.Name})
		return nil
	}
	a, err := c.New()
	if err != nil {
		s.fail(c.Name, "new", "", err)
		return nil
	}
	if err := a.Open(ctx); err != nil {
		s.fail(c.Name, "open", "", err)
		if cerr := a.Close(ctx); cerr != nil {
			s.fail(c.Name, "close", "", cerr)
		}
		return nil
	}
	return a
}

// OpenStorageAsync runs OpenStorage in a goroutine and calls cb exactly once.
func OpenStorageAsync(ctx context.Context, cfg Config, cb func(*Storage), opts ...StorageOption) {
	go func() {
		s := OpenStorage(ctx, cfg, opts...)
		if cb != nil {
			cb(s)
		}
	}()
}

func (s *Storage) Enabled() bool { return s != nil && s.a != nil }

// AdapterName is "" when storage is disabled.
func (s *Storage) AdapterName() string {
	if !s.Enabled() {
		return ""
	}
	return s.a.Name()
}

// Adapter exposes the bound adapter for backend-specific queries; nil when disabled.
func (s *Storage) Adapter() adapter.Adapter {
	if s == nil {
		return nil
	}
	return s.a
}

// Create stores r unless a record with its ID exists.
func (s *Storage) Create(ctx context.Context, r *Record) bool {
	if !s.Enabled() || r == nil || r.ID == "" {
		return false
	}
	if err := s.a.Create(ctx, *r); err != nil {
		s.fail(s.a.Name(), "create", r.ID, err)
		return false
	}
	return true
}

func (s *Storage) Read(ctx context.Context, id string) (Record, bool) {
	if !s.Enabled() || id == "" {
		return Record{}, false
	}
	r, ok, err := s.a.Read(ctx, id)
	if err != nil {
		s.fail(s.a.Name(), "read", id, err)
		return Record{}, false
	}
	return r, ok
}

func (s *Storage) Update(ctx context.Context, r *Record) bool {
	if !s.Enabled() || r == nil || r.ID == "" {
		return false
	}
	if err := s.a.Update(ctx, *r); err != nil {
		s.fail(s.a.Name(), "update", r.ID, err)
		return false
	}
	return true
}

func (s *Storage) Remove(ctx context.Context, id string) bool {
	if !s.Enabled() || id == "" {
		return false
	}
	if err := s.a.Remove(ctx, id); err != nil {
		s.fail(s.a.Name(), "remove", id, err)
		return false
	}
	return true
}

func (s *Storage) Close(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	return s.a.Close(ctx)
}

func (s *Storage) fail(name, op, id string, err error) {
	f := Fields{"adapter": name, "op": op, "err": err}
	if id != "" {
		f["url"] = id
	}
	switch {
	case errors.Is(err, adapter.ErrCorrupt):
		s.log.Warn("corrupt record removed", f)
	case op == "new" || op == "open":
		s.log.Debug("storage candidate rejected", f)
	default:
		s.log.Error("storage operation failed", f)
	}
	s.hooks.AdapterError(name, op, err)
}
