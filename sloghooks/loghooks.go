// Package sloghooks reports cache events as slog records.
package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/rescache"
	"github.com/unkn0wn-root/rescache/internal/util"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	StaleEvery    uint64
	ReplayedEvery uint64
	// Optional URL redactor. Defaults to a digest prefix. Use an identity
	// function to log URLs verbatim.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	staleCtr    atomic.Uint64
	replayedCtr atomic.Uint64
}

var _ rescache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(u string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(u)
	}
	return util.Digest([]byte(u))[:16]
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n <= 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) StorageSelected(adapter string) {
	if h.l == nil {
		return
	}
	h.l.Info("rescache.storage_selected", "adapter", adapter)
}

func (h *Hooks) StorageDisabled() {
	if h.l == nil {
		return
	}
	h.l.Warn("rescache.storage_disabled")
}

func (h *Hooks) AdapterError(adapter, op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("rescache.adapter_error",
		"adapter", adapter,
		"op", op,
		"err", err)
}

func (h *Hooks) RecordStale(url, reason string) {
	if h.l == nil || !sample(h.opts.StaleEvery, &h.staleCtr) {
		return
	}
	h.l.Debug("rescache.record_stale",
		"url", h.redact(url),
		"reason", reason)
}

func (h *Hooks) Replayed(url string, fromStorage bool) {
	if h.l == nil || !sample(h.opts.ReplayedEvery, &h.replayedCtr) {
		return
	}
	h.l.Debug("rescache.replayed",
		"url", h.redact(url),
		"from_storage", fromStorage)
}

func (h *Hooks) FetchFailed(url string) {
	if h.l == nil {
		return
	}
	h.l.Warn("rescache.fetch_failed", "url", h.redact(url))
}

func (h *Hooks) PersistSkipped(url string) {
	if h.l == nil {
		return
	}
	h.l.Debug("rescache.persist_skipped", "url", h.redact(url))
}

func (h *Hooks) InitCoalesced(fingerprint string, waiters int) {
	if h.l == nil {
		return
	}
	h.l.Debug("rescache.init_coalesced",
		"fingerprint", fingerprint,
		"waiters", waiters)
}
