// Package kv is the simple persistent key-value record adapter. It stores one
// framed, serialized record per resource URL in any provider.Provider
// (redis, bigcache, ristretto).
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/unkn0wn-root/rescache/adapter"
	"github.com/unkn0wn-root/rescache/codec"
	"github.com/unkn0wn-root/rescache/internal/util"
	"github.com/unkn0wn-root/rescache/internal/wire"
	pr "github.com/unkn0wn-root/rescache/provider"
)

type Config struct {
	Provider  pr.Provider
	Namespace string        // defaults to "rescache"
	Codec     string        // json (default), msgpack, cbor, protobuf
	TTL       time.Duration // 0 => no expiry
	MaxDecode int           // reject stored payloads larger than this; 0 = unlimited
	// Probe, when set, runs on Open and must succeed (e.g. a redis PING).
	Probe func(ctx context.Context) error
}

type Store struct {
	p       pr.Provider
	ns      string
	codec   codec.Codec[adapter.Content]
	codecID byte
	ttl     time.Duration
	probe   func(ctx context.Context) error
}

var _ adapter.Adapter = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("kv: provider is required")
	}
	c, id, err := contentCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	c = codec.WithLimit(c, cfg.MaxDecode)
	ns := cfg.Namespace
	if ns == "" {
		ns = "rescache"
	}
	return &Store{p: cfg.Provider, ns: ns, codec: c, codecID: id, ttl: cfg.TTL, probe: cfg.Probe}, nil
}

// Candidate wraps a provider constructor into a probe entry. newProvider runs
// only when the candidate is selected.
func Candidate(name string, available func() bool, newProvider func() (pr.Provider, error), cfg Config) adapter.Candidate {
	return adapter.Candidate{
		Name:      name,
		Available: available,
		New: func() (adapter.Adapter, error) {
			p, err := newProvider()
			if err != nil {
				return nil, err
			}
			c := cfg
			c.Provider = p
			s, err := New(c)
			if err != nil {
				_ = p.Close(context.Background())
				return nil, err
			}
			return s, nil
		},
	}
}

func (s *Store) Name() string { return s.p.Name() }

func (s *Store) Open(ctx context.Context) error {
	if s.probe == nil {
		return ctx.Err()
	}
	if err := s.probe(ctx); err != nil {
		return fmt.Errorf("kv: probe %s: %w: %v", s.p.Name(), adapter.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, r adapter.Record) error {
	b, err := s.encode(r)
	if err != nil {
		return err
	}
	_, err = s.p.Add(ctx, s.key(r.ID), b, s.ttl)
	return mapErr(err)
}

func (s *Store) Read(ctx context.Context, id string) (adapter.Record, bool, error) {
	k := s.key(id)
	raw, ok, err := s.p.Get(ctx, k)
	if err != nil || !ok {
		return adapter.Record{}, false, err
	}
	codecID, payload, err := wire.DecodeRecord(raw)
	if err != nil || codecID != s.codecID {
		_ = s.p.Del(ctx, k) // self-heal corrupt
		return adapter.Record{}, false, fmt.Errorf("kv: %q: %w", id, adapter.ErrCorrupt)
	}
	c, err := s.codec.Decode(payload)
	if err != nil {
		_ = s.p.Del(ctx, k)
		return adapter.Record{}, false, fmt.Errorf("kv: %q: %w: %v", id, adapter.ErrCorrupt, err)
	}
	return adapter.Record{ID: id, Content: c}, true, nil
}

func (s *Store) Update(ctx context.Context, r adapter.Record) error {
	b, err := s.encode(r)
	if err != nil {
		return err
	}
	return mapErr(s.p.Set(ctx, s.key(r.ID), b, s.ttl))
}

func (s *Store) Remove(ctx context.Context, id string) error {
	return s.p.Del(ctx, s.key(id))
}

func (s *Store) Close(ctx context.Context) error {
	return s.p.Close(ctx)
}

func (s *Store) key(id string) string { return util.RecordKey(s.ns, id) }

func (s *Store) encode(r adapter.Record) ([]byte, error) {
	payload, err := s.codec.Encode(r.Content)
	if err != nil {
		return nil, fmt.Errorf("kv: encode %q: %w", r.ID, err)
	}
	return wire.EncodeRecord(s.codecID, payload), nil
}

func mapErr(err error) error {
	if errors.Is(err, pr.ErrRejected) {
		return fmt.Errorf("%w: %v", adapter.ErrQuota, err)
	}
	return err
}
