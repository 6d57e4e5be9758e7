package rescache

// Hooks receives high-signal cache events.
// Implementations must be cheap and non-blocking; they run on load paths.
// See hooks/async for a buffered wrapper and hooks/prom for counters.
type Hooks interface {
	// Storage selection settled on adapter.
	StorageSelected(adapter string)
	// No candidate could be opened; storage runs as a pass-through.
	StorageDisabled()

	// An adapter (or the generation store) failed.
	// op ∈ {"new", "open", "create", "read", "update", "remove", "close", "snapshot", "bump"}
	AdapterError(adapter, op string, err error)

	// A stored record was found but must be refetched.
	// reason ∈ {"revalidate", "version", "lastmod", "expired"}
	RecordStale(url, reason string)

	// Content was handed to the Injector.
	Replayed(url string, fromStorage bool)

	FetchFailed(url string)

	// A fetched record was not persisted because its generation moved.
	PersistSkipped(url string)

	// waiters callers shared one Cache initialization.
	InitCoalesced(fingerprint string, waiters int)
}

// NopHooks is the default.
type NopHooks struct{}

func (NopHooks) StorageSelected(string)             {}
func (NopHooks) StorageDisabled()                   {}
func (NopHooks) AdapterError(string, string, error) {}
func (NopHooks) RecordStale(string, string)         {}
func (NopHooks) Replayed(string, bool)              {}
func (NopHooks) FetchFailed(string)                 {}
func (NopHooks) PersistSkipped(string)              {}
func (NopHooks) InitCoalesced(string, int)          {}

// MultiHooks fans every event out to each of its members in order.
type MultiHooks []Hooks

var _ Hooks = MultiHooks(nil)

func (m MultiHooks) StorageSelected(adapter string) {
	for _, h := range m {
		h.StorageSelected(adapter)
	}
}

func (m MultiHooks) StorageDisabled() {
	for _, h := range m {
		h.StorageDisabled()
	}
}

func (m MultiHooks) AdapterError(adapter, op string, err error) {
	for _, h := range m {
		h.AdapterError(adapter, op, err)
	}
}

func (m MultiHooks) RecordStale(url, reason string) {
	for _, h := range m {
		h.RecordStale(url, reason)
	}
}

func (m MultiHooks) Replayed(url string, fromStorage bool) {
	for _, h := range m {
		h.Replayed(url, fromStorage)
	}
}

func (m MultiHooks) FetchFailed(url string) {
	for _, h := range m {
		h.FetchFailed(url)
	}
}

func (m MultiHooks) PersistSkipped(url string) {
	for _, h := range m {
		h.PersistSkipped(url)
	}
}

func (m MultiHooks) InitCoalesced(fingerprint string, waiters int) {
	for _, h := range m {
		h.InitCoalesced(fingerprint, waiters)
	}
}
