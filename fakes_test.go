package rescache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/unkn0wn-root/rescache/adapter"
)

// memAdapter is an in-memory adapter.Adapter with call counters.
type memAdapter struct {
	name string

	mu   sync.Mutex
	recs map[string]adapter.Record

	opens, creates, updates, removes, closes atomic.Int64

	openErr  error
	writeErr error
	readErr  error
}

func newMem(name string) *memAdapter {
	return &memAdapter{name: name, recs: make(map[string]adapter.Record)}
}

func (m *memAdapter) Name() string { return m.name }

func (m *memAdapter) Open(context.Context) error {
	m.opens.Add(1)
	return m.openErr
}

func (m *memAdapter) Create(_ context.Context, r adapter.Record) error {
	m.creates.Add(1)
	if m.writeErr != nil {
		return m.writeErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[r.ID]; !ok {
		m.recs[r.ID] = r
	}
	return nil
}

func (m *memAdapter) Read(_ context.Context, id string) (adapter.Record, bool, error) {
	if m.readErr != nil {
		return adapter.Record{}, false, m.readErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	return r, ok, nil
}

func (m *memAdapter) Update(_ context.Context, r adapter.Record) error {
	m.updates.Add(1)
	if m.writeErr != nil {
		return m.writeErr
	}
	m.mu.Lock()
	m.recs[r.ID] = r
	m.mu.Unlock()
	return nil
}

func (m *memAdapter) Remove(_ context.Context, id string) error {
	m.removes.Add(1)
	m.mu.Lock()
	delete(m.recs, id)
	m.mu.Unlock()
	return nil
}

func (m *memAdapter) Close(context.Context) error {
	m.closes.Add(1)
	return nil
}

func (m *memAdapter) get(id string) (adapter.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	return r, ok
}

// candidate binds a fixed adapter and counts constructions.
func (m *memAdapter) candidate(news *atomic.Int64) adapter.Candidate {
	return adapter.Candidate{
		Name: m.name,
		New: func() (adapter.Adapter, error) {
			if news != nil {
				news.Add(1)
			}
			return m, nil
		},
	}
}

// fakeFetcher serves fixed bodies and counts calls per URL.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  map[string]int
	// gate, when set, is waited on before answering.
	gate chan struct{}
}

func newFetcher(bodies map[string]string) *fakeFetcher {
	return &fakeFetcher{bodies: bodies, calls: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, bool) {
	f.mu.Lock()
	f.calls[url]++
	gate := f.gate
	data, ok := f.bodies[url]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", false
		}
	}
	return data, ok
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type injection struct {
	kind, url, data string
}

// fakeInjector records injections in order.
type fakeInjector struct {
	mu  sync.Mutex
	log []injection
	err error
}

func (f *fakeInjector) add(kind, url, data string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.log = append(f.log, injection{kind, url, data})
	return nil
}

func (f *fakeInjector) AppendCSS(_ context.Context, u, d string, _ *Node) error {
	return f.add("css", u, d)
}
func (f *fakeInjector) AppendJS(_ context.Context, u, d string, _ *Node) error {
	return f.add("js", u, d)
}
func (f *fakeInjector) AppendImg(_ context.Context, u, d string, _ *Node) error {
	return f.add("img", u, d)
}
func (f *fakeInjector) AppendHTML(_ context.Context, u, d string, _ *Node) error {
	return f.add("html", u, d)
}

func (f *fakeInjector) all() []injection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]injection(nil), f.log...)
}

// hookRecorder counts hook events.
type hookRecorder struct {
	NopHooks
	mu        sync.Mutex
	selected  []string
	disabled  int
	errs      []string
	stale     []string
	fromStore int
	fromNet   int
	failed    []string
	skipped   []string
	coalesced []int
}

func (h *hookRecorder) StorageSelected(a string) {
	h.mu.Lock()
	h.selected = append(h.selected, a)
	h.mu.Unlock()
}
func (h *hookRecorder) StorageDisabled() { h.mu.Lock(); h.disabled++; h.mu.Unlock() }
func (h *hookRecorder) AdapterError(a, op string, _ error) {
	h.mu.Lock()
	h.errs = append(h.errs, a+":"+op)
	h.mu.Unlock()
}
func (h *hookRecorder) RecordStale(_, reason string) {
	h.mu.Lock()
	h.stale = append(h.stale, reason)
	h.mu.Unlock()
}
func (h *hookRecorder) Replayed(_ string, fromStorage bool) {
	h.mu.Lock()
	if fromStorage {
		h.fromStore++
	} else {
		h.fromNet++
	}
	h.mu.Unlock()
}
func (h *hookRecorder) FetchFailed(u string) {
	h.mu.Lock()
	h.failed = append(h.failed, u)
	h.mu.Unlock()
}
func (h *hookRecorder) PersistSkipped(u string) {
	h.mu.Lock()
	h.skipped = append(h.skipped, u)
	h.mu.Unlock()
}
func (h *hookRecorder) InitCoalesced(_ string, n int) {
	h.mu.Lock()
	h.coalesced = append(h.coalesced, n)
	h.mu.Unlock()
}

// newTestCache builds a Cache bound to store.
func newTestCache(t *testing.T, store *memAdapter, f Fetcher, inj Injector, mut ...func(*Options)) Cache {
	t.Helper()
	opts := Options{
		Fetcher:  f,
		Injector: inj,
	}
	if store != nil {
		opts.StorageOptions = []StorageOption{WithCandidates(store.candidate(nil))}
	} else {
		opts.Config.Disabled = true
	}
	for _, fn := range mut {
		fn(&opts)
	}
	c, err := New(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}
