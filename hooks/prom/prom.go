// Package prom counts cache events with Prometheus metrics.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/rescache"
)

// Hooks implements rescache.Hooks with counters in the "rescache" namespace.
// Label values are bounded: adapter names, operations and reasons. URLs are
// never used as labels.
type Hooks struct {
	storageSelected *prometheus.CounterVec
	storageDisabled prometheus.Counter
	adapterErrors   *prometheus.CounterVec
	stale           *prometheus.CounterVec
	replayed        *prometheus.CounterVec
	fetchFailed     prometheus.Counter
	persistSkipped  prometheus.Counter
	initCoalesced   prometheus.Counter
	waiters         prometheus.Histogram
}

var _ rescache.Hooks = (*Hooks)(nil)

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		storageSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rescache",
			Subsystem: "storage",
			Name:      "selected_total",
			Help:      "Storage selections by adapter",
		}, []string{"adapter"}),
		storageDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rescache",
			Subsystem: "storage",
			Name:      "disabled_total",
			Help:      "Storage selections that found no usable adapter",
		}),
		adapterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rescache",
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Adapter and generation store failures",
		}, []string{"adapter", "op"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rescache",
			Name:      "stale_total",
			Help:      "Stored records refetched, by reason",
		}, []string{"reason"}),
		replayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rescache",
			Name:      "replayed_total",
			Help:      "Resources handed to the injector, by source",
		}, []string{"source"}),
		fetchFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rescache",
			Name:      "fetch_failed_total",
			Help:      "Failed fetches",
		}),
		persistSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rescache",
			Name:      "persist_skipped_total",
			Help:      "Fetched records not stored because the resource was removed meanwhile",
		}),
		initCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rescache",
			Subsystem: "registry",
			Name:      "init_coalesced_total",
			Help:      "Cache initializations shared by more than one caller",
		}),
		waiters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rescache",
			Subsystem: "registry",
			Name:      "init_waiters",
			Help:      "Callers waiting on one cache initialization",
			Buckets:   prometheus.ExponentialBuckets(2, 2, 6),
		}),
	}

	for _, c := range []prometheus.Collector{
		h.storageSelected, h.storageDisabled, h.adapterErrors, h.stale,
		h.replayed, h.fetchFailed, h.persistSkipped, h.initCoalesced, h.waiters,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) StorageSelected(adapter string) { h.storageSelected.WithLabelValues(adapter).Inc() }
func (h *Hooks) StorageDisabled()               { h.storageDisabled.Inc() }
func (h *Hooks) AdapterError(adapter, op string, _ error) {
	h.adapterErrors.WithLabelValues(adapter, op).Inc()
}
func (h *Hooks) RecordStale(_, reason string) { h.stale.WithLabelValues(reason).Inc() }
func (h *Hooks) Replayed(_ string, fromStorage bool) {
	src := "network"
	if fromStorage {
		src = "storage"
	}
	h.replayed.WithLabelValues(src).Inc()
}
func (h *Hooks) FetchFailed(string)    { h.fetchFailed.Inc() }
func (h *Hooks) PersistSkipped(string) { h.persistSkipped.Inc() }
func (h *Hooks) InitCoalesced(_ string, waiters int) {
	h.initCoalesced.Inc()
	h.waiters.Observe(float64(waiters))
}
