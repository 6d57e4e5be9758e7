package rescache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/rescache/adapter"
)

// slowOpen delays Open so concurrent callers pile up behind one init.
type slowOpen struct {
	*memAdapter
	delay time.Duration
}

func (s slowOpen) Open(ctx context.Context) error {
	time.Sleep(s.delay)
	return s.memAdapter.Open(ctx)
}

func TestRegistryCoalescesInit(t *testing.T) {
	store := newMem("mem")
	var news atomic.Int64
	cand := adapter.Candidate{Name: "mem", New: func() (adapter.Adapter, error) {
		news.Add(1)
		return slowOpen{store, 30 * time.Millisecond}, nil
	}}
	f := newFetcher(map[string]string{"/a.js": "A"})
	inj := &fakeInjector{}
	hooks := &hookRecorder{}
	reg := NewRegistry(RegistryOptions{
		Fetcher:        f,
		Injector:       inj,
		Hooks:          hooks,
		StorageOptions: []StorageOption{WithCandidates(cand)},
	})
	t.Cleanup(func() { _ = reg.Reset(context.Background()) })

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// build the labels in different orders; the fingerprint must not care
			labels := map[string]string{}
			if i%2 == 0 {
				labels["a"], labels["b"] = "1", "2"
			} else {
				labels["b"], labels["a"] = "2", "1"
			}
			errs <- reg.Load(context.Background(), []Resource{{URL: "/a.js"}}, Config{Labels: labels})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	if news.Load() != 1 || store.opens.Load() != 1 {
		t.Fatalf("constructions=%d opens=%d want 1/1", news.Load(), store.opens.Load())
	}
	if reg.Inits() != 1 || reg.Len() != 1 {
		t.Fatalf("inits=%d len=%d", reg.Inits(), reg.Len())
	}
	if got := len(inj.all()); got != n {
		t.Fatalf("injections=%d want %d", got, n)
	}
	if len(hooks.coalesced) != 1 || hooks.coalesced[0] < 2 {
		t.Fatalf("InitCoalesced=%v", hooks.coalesced)
	}
}

func TestRegistryReadyEntryLoadsImmediately(t *testing.T) {
	ctx := context.Background()
	store := newMem("mem")
	f := newFetcher(map[string]string{"/a.css": "A", "/b.css": "B"})
	reg := NewRegistry(RegistryOptions{
		Fetcher:        f,
		Injector:       &fakeInjector{},
		StorageOptions: []StorageOption{WithCandidates(store.candidate(nil))},
	})

	if err := reg.Load(ctx, []Resource{{URL: "/a.css"}}, Config{}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Load(ctx, []Resource{{URL: "/a.css"}, {URL: "/b.css"}}, Config{Namespace: "rescache"}); err != nil {
		t.Fatal(err)
	}
	if reg.Inits() != 1 {
		t.Fatalf("inits=%d; defaults should share a fingerprint", reg.Inits())
	}
	if f.count("/a.css") != 1 || f.count("/b.css") != 1 {
		t.Fatalf("fetches a=%d b=%d", f.count("/a.css"), f.count("/b.css"))
	}

	if err := reg.Load(ctx, nil, Config{Namespace: "other"}); err != nil {
		t.Fatal(err)
	}
	if reg.Inits() != 2 || reg.Len() != 2 {
		t.Fatalf("inits=%d len=%d", reg.Inits(), reg.Len())
	}

	if err := reg.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 0 || store.closes.Load() != 2 {
		t.Fatalf("after reset len=%d closes=%d", reg.Len(), store.closes.Load())
	}
}

func TestRegistryWaiterHonoursContext(t *testing.T) {
	gate := make(chan struct{})
	store := newMem("mem")
	cand := adapter.Candidate{Name: "mem", New: func() (adapter.Adapter, error) {
		<-gate
		return store, nil
	}}
	reg := NewRegistry(RegistryOptions{
		Fetcher:        newFetcher(map[string]string{"/a.js": "A"}),
		Injector:       &fakeInjector{},
		StorageOptions: []StorageOption{WithCandidates(cand)},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := reg.Load(ctx, []Resource{{URL: "/a.js"}}, Config{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v want deadline exceeded", err)
	}

	// the build continues for later callers
	close(gate)
	if err := reg.Load(context.Background(), []Resource{{URL: "/a.js"}}, Config{}); err != nil {
		t.Fatal(err)
	}
	if reg.Inits() != 1 {
		t.Fatalf("inits=%d want 1", reg.Inits())
	}
	_ = reg.Reset(context.Background())
}

// gatedRegistry builds its single Cache only after gate is closed.
func gatedRegistry(gate chan struct{}, store *memAdapter) *Registry {
	cand := adapter.Candidate{Name: "mem", New: func() (adapter.Adapter, error) {
		<-gate
		return store, nil
	}}
	return NewRegistry(RegistryOptions{
		Fetcher:        newFetcher(map[string]string{"/a.js": "A"}),
		Injector:       &fakeInjector{},
		StorageOptions: []StorageOption{WithCandidates(cand)},
	})
}

func TestRegistryResetWaitsForBuild(t *testing.T) {
	gate := make(chan struct{})
	store := newMem("mem")
	reg := gatedRegistry(gate, store)

	loaded := make(chan error, 1)
	go func() { loaded <- reg.Load(context.Background(), nil, Config{}) }()
	for reg.Len() == 0 {
		time.Sleep(time.Millisecond)
	}

	reset := make(chan error, 1)
	go func() { reset <- reg.Reset(context.Background()) }()
	select {
	case err := <-reset:
		t.Fatalf("reset returned before the build settled: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)
	if err := <-reset; err != nil {
		t.Fatal(err)
	}
	if err := <-loaded; err != nil {
		t.Fatal(err)
	}
	if store.closes.Load() != 1 {
		t.Fatalf("closes=%d want 1", store.closes.Load())
	}
}

func TestRegistryResetHonoursContext(t *testing.T) {
	gate := make(chan struct{})
	store := newMem("mem")
	reg := gatedRegistry(gate, store)

	go func() { _ = reg.Load(context.Background(), nil, Config{}) }()
	for reg.Len() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := reg.Reset(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("reset err=%v want deadline exceeded", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("len=%d after reset", reg.Len())
	}
	close(gate)
}

func TestRegistryInitFailureIsRetried(t *testing.T) {
	reg := NewRegistry(RegistryOptions{Fetcher: newFetcher(nil)})
	for i := 0; i < 2; i++ {
		if err := reg.Load(context.Background(), []Resource{{URL: "/a.js"}}, Config{}); err == nil {
			t.Fatal("missing injector accepted")
		}
	}
	if reg.Inits() != 2 || reg.Len() != 0 {
		t.Fatalf("inits=%d len=%d", reg.Inits(), reg.Len())
	}
}

func TestFingerprint(t *testing.T) {
	fp := func(c Config) string {
		t.Helper()
		s, err := Fingerprint(c)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}

	base := fp(Config{})
	if len(base) != 32 {
		t.Fatalf("fingerprint %q is not 16 hex bytes", base)
	}
	if fp(Config{Namespace: "rescache", MemoryMB: 64, Codec: "json", Adapters: DefaultAdapters}) != base {
		t.Fatal("spelled-out defaults changed the fingerprint")
	}
	if fp(Config{Labels: map[string]string{}}) != base {
		t.Fatal("empty labels changed the fingerprint")
	}
	for name, c := range map[string]Config{
		"namespace": {Namespace: "x"},
		"order":     {Adapters: []string{"sqlite", "bolt"}},
		"path":      {BoltPath: "/tmp/a"},
		"disabled":  {Disabled: true},
		"labels":    {Labels: map[string]string{"a": "1"}},
	} {
		if fp(c) == base {
			t.Fatalf("%s: fingerprint did not change", name)
		}
	}
}
