// Package bolt is a transactional record adapter backed by go.etcd.io/bbolt.
// Each namespace maps to one bucket; every operation runs inside its own
// bbolt transaction and returns only after it committed or rolled back.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/unkn0wn-root/rescache/adapter"
)

const defaultBucket = "rescache"

type Config struct {
	Path    string
	Bucket  string        // defaults to "rescache"
	Timeout time.Duration // file lock timeout; 0 => 1s
}

// Store is the bbolt adapter. The database file is opened by Open.
type Store struct {
	cfg    Config
	bucket []byte
	db     *bbolt.DB
}

var _ adapter.Adapter = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("bolt: storage path is required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = defaultBucket
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	return &Store{cfg: cfg, bucket: []byte(cfg.Bucket)}, nil
}

// Available reports whether the directory for path exists and is writable.
func Available(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	dir := filepath.Dir(filepath.Clean(path))
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return false
	}
	return st.Mode().Perm()&0o200 != 0
}

// Candidate returns the probe entry for cfg.
func Candidate(cfg Config) adapter.Candidate {
	return adapter.Candidate{
		Name:      "bolt",
		Available: func() bool { return Available(cfg.Path) },
		New: func() (adapter.Adapter, error) {
			return New(cfg)
		},
	}
}

func (s *Store) Name() string { return "bolt" }

func (s *Store) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := bbolt.Open(filepath.Clean(s.cfg.Path), 0o600, &bbolt.Options{Timeout: s.cfg.Timeout})
	if err != nil {
		return fmt.Errorf("bolt: open %s: %w: %v", s.cfg.Path, adapter.ErrUnavailable, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("bolt: create bucket %q: %w", s.cfg.Bucket, err)
	}
	s.db = db
	return nil
}

func (s *Store) Create(ctx context.Context, r adapter.Record) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(r.Content)
	if err != nil {
		return fmt.Errorf("bolt: marshal %q: %w", r.ID, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return fmt.Errorf("bolt: bucket %q is missing", s.cfg.Bucket)
		}
		if b.Get([]byte(r.ID)) != nil {
			return nil // first write wins
		}
		return putErr(b.Put([]byte(r.ID), payload))
	})
}

func (s *Store) Read(ctx context.Context, id string) (adapter.Record, bool, error) {
	if err := s.ready(ctx); err != nil {
		return adapter.Record{}, false, err
	}
	var (
		rec   adapter.Record
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return fmt.Errorf("bolt: bucket %q is missing", s.cfg.Bucket)
		}
		payload := b.Get([]byte(id))
		if payload == nil {
			return nil
		}
		if err := json.Unmarshal(payload, &rec.Content); err != nil {
			return fmt.Errorf("bolt: %q: %w", id, adapter.ErrCorrupt)
		}
		rec.ID = id
		found = true
		return nil
	})
	if err != nil {
		if errors.Is(err, adapter.ErrCorrupt) {
			_ = s.Remove(ctx, id) // self-heal
		}
		return adapter.Record{}, false, err
	}
	return rec, found, nil
}

func (s *Store) Update(ctx context.Context, r adapter.Record) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(r.Content)
	if err != nil {
		return fmt.Errorf("bolt: marshal %q: %w", r.ID, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return fmt.Errorf("bolt: bucket %q is missing", s.cfg.Bucket)
		}
		return putErr(b.Put([]byte(r.ID), payload))
	})
}

func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(id))
	})
}

// Keys lists stored record IDs in key order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

func (s *Store) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return adapter.ErrClosed
	}
	return nil
}

// putErr maps bbolt size limits to the quota sentinel.
func putErr(err error) error {
	if errors.Is(err, bbolt.ErrValueTooLarge) || errors.Is(err, bbolt.ErrKeyTooLarge) {
		return fmt.Errorf("%w: %v", adapter.ErrQuota, err)
	}
	return err
}
