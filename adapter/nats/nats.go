// Package nats stores records in a NATS JetStream key-value bucket.
//
// Keys are the base64url form of the resource URL because KV keys only allow
// a restricted alphabet. Create maps to kv.Create, which refuses existing keys,
// so the first writer wins without a read-modify-write.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/unkn0wn-root/rescache/adapter"
	"github.com/unkn0wn-root/rescache/internal/util"
)

type Config struct {
	URL     string
	Bucket  string        // defaults to "rescache"
	Timeout time.Duration // per-operation timeout; 0 => 5s
}

type Store struct {
	cfg Config
	nc  *natsgo.Conn
	kv  jetstream.KeyValue
}

var _ adapter.Adapter = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("nats: url is required")
	}
	return &Store{cfg: withDefaults(cfg)}, nil
}

// NewWithBucket wraps an already bound bucket. Open becomes a no-op and Close
// leaves the connection to its owner.
func NewWithBucket(kv jetstream.KeyValue, cfg Config) *Store {
	return &Store{cfg: withDefaults(cfg), kv: kv}
}

func withDefaults(cfg Config) Config {
	if cfg.Bucket == "" {
		cfg.Bucket = "rescache"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return cfg
}

// Candidate returns the probe entry for cfg. Availability only checks that a
// URL is configured; reachability is decided by Open.
func Candidate(cfg Config) adapter.Candidate {
	return adapter.Candidate{
		Name:      "nats",
		Available: func() bool { return strings.TrimSpace(cfg.URL) != "" },
		New: func() (adapter.Adapter, error) {
			return New(cfg)
		},
	}
}

func (s *Store) Name() string { return "nats" }

func (s *Store) Open(ctx context.Context) error {
	if s.kv != nil {
		return nil
	}
	nc, err := natsgo.Connect(s.cfg.URL, natsgo.Timeout(s.cfg.Timeout), natsgo.RetryOnFailedConnect(false))
	if err != nil {
		return fmt.Errorf("nats: connect: %w: %v", adapter.ErrUnavailable, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("nats: jetstream: %w: %v", adapter.ErrUnavailable, err)
	}

	ctx, cancel := s.timeout(ctx)
	defer cancel()
	kv, err := js.KeyValue(ctx, s.cfg.Bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      s.cfg.Bucket,
			Description: "rescache resource records",
			History:     1,
		})
	}
	if err != nil {
		nc.Close()
		return fmt.Errorf("nats: bind bucket %q: %w", s.cfg.Bucket, err)
	}
	s.nc, s.kv = nc, kv
	return nil
}

func (s *Store) Create(ctx context.Context, r adapter.Record) error {
	if s.kv == nil {
		return adapter.ErrClosed
	}
	payload, err := json.Marshal(r.Content)
	if err != nil {
		return fmt.Errorf("nats: marshal %q: %w", r.ID, err)
	}
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	_, err = s.kv.Create(ctx, util.SafeKey(r.ID), payload)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return nil
	}
	return mapErr(err)
}

func (s *Store) Read(ctx context.Context, id string) (adapter.Record, bool, error) {
	if s.kv == nil {
		return adapter.Record{}, false, adapter.ErrClosed
	}
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	entry, err := s.kv.Get(ctx, util.SafeKey(id))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return adapter.Record{}, false, nil
	}
	if err != nil {
		return adapter.Record{}, false, fmt.Errorf("nats: get %q: %w", id, err)
	}
	var c adapter.Content
	if err := json.Unmarshal(entry.Value(), &c); err != nil {
		_ = s.kv.Delete(ctx, util.SafeKey(id))
		return adapter.Record{}, false, fmt.Errorf("nats: %q: %w", id, adapter.ErrCorrupt)
	}
	return adapter.Record{ID: id, Content: c}, true, nil
}

func (s *Store) Update(ctx context.Context, r adapter.Record) error {
	if s.kv == nil {
		return adapter.ErrClosed
	}
	payload, err := json.Marshal(r.Content)
	if err != nil {
		return fmt.Errorf("nats: marshal %q: %w", r.ID, err)
	}
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	_, err = s.kv.Put(ctx, util.SafeKey(r.ID), payload)
	return mapErr(err)
}

func (s *Store) Remove(ctx context.Context, id string) error {
	if s.kv == nil {
		return adapter.ErrClosed
	}
	ctx, cancel := s.timeout(ctx)
	defer cancel()
	err := s.kv.Delete(ctx, util.SafeKey(id))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (s *Store) Close(context.Context) error {
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
		s.kv = nil
	}
	return nil
}

func (s *Store) timeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, natsgo.ErrMaxPayload) {
		return fmt.Errorf("%w: %v", adapter.ErrQuota, err)
	}
	return err
}
