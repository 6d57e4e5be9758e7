// Package sqlite is a query-capable record adapter backed by modernc.org/sqlite.
//
// Records live in one table scoped by namespace. Every operation runs in its own
// transaction and reports its result after commit. Besides the adapter contract
// the store answers a few queries (Count, ListIDs, DeleteStoredBefore) that
// key-value backends cannot.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/rescache/adapter"
)

const schema = `
CREATE TABLE IF NOT EXISTS resources (
    namespace  TEXT NOT NULL,
    id         TEXT NOT NULL,
    data       BLOB NOT NULL,
    type       TEXT NOT NULL,
    version    TEXT NOT NULL DEFAULT '',
    lastmod    TEXT NOT NULL DEFAULT '',
    lifetime   INTEGER NOT NULL DEFAULT 0,
    stored_at  INTEGER NOT NULL,
    PRIMARY KEY (namespace, id)
);
CREATE INDEX IF NOT EXISTS resources_type ON resources (namespace, type);
`

type Config struct {
	Path      string
	Namespace string // defaults to "rescache"
}

// Store is the sqlite adapter. The database is opened by Open.
type Store struct {
	cfg Config
	db  *sql.DB
}

var _ adapter.Adapter = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "rescache"
	}
	return &Store{cfg: cfg}, nil
}

// Available reports whether the directory for path exists.
func Available(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	st, err := os.Stat(filepath.Dir(filepath.Clean(path)))
	return err == nil && st.IsDir()
}

// Candidate returns the probe entry for cfg.
func Candidate(cfg Config) adapter.Candidate {
	return adapter.Candidate{
		Name:      "sqlite",
		Available: func() bool { return Available(cfg.Path) },
		New: func() (adapter.Adapter, error) {
			return New(cfg)
		},
	}
}

func (s *Store) Name() string { return "sqlite" }

func (s *Store) Open(ctx context.Context) error {
	dsn := filepath.Clean(s.cfg.Path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("sqlite: open: %w: %v", adapter.ErrUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("sqlite: ping: %w: %v", adapter.ErrUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return fmt.Errorf("sqlite: ensure schema: %w", err)
	}
	s.db = db
	return nil
}

func (s *Store) Create(ctx context.Context, r adapter.Record) error {
	return s.tx(ctx, "create", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO resources (namespace, id, data, type, version, lastmod, lifetime, stored_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(namespace, id) DO NOTHING`,
			s.cfg.Namespace, r.ID, []byte(r.Content.Data), r.Content.Type,
			r.Content.Version, r.Content.LastMod, r.Content.Lifetime, r.Content.StoredAt,
		)
		return err
	})
}

func (s *Store) Read(ctx context.Context, id string) (adapter.Record, bool, error) {
	var (
		rec   adapter.Record
		found bool
	)
	err := s.tx(ctx, "read", func(tx *sql.Tx) error {
		var (
			data []byte
			c    adapter.Content
		)
		err := tx.QueryRowContext(ctx,
			`SELECT data, type, version, lastmod, lifetime, stored_at
			 FROM resources
			 WHERE namespace = ? AND id = ?`,
			s.cfg.Namespace, id,
		).Scan(&data, &c.Type, &c.Version, &c.LastMod, &c.Lifetime, &c.StoredAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		c.Data = string(data)
		rec, found = adapter.Record{ID: id, Content: c}, true
		return nil
	})
	if err != nil {
		return adapter.Record{}, false, err
	}
	return rec, found, nil
}

func (s *Store) Update(ctx context.Context, r adapter.Record) error {
	return s.tx(ctx, "update", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO resources (namespace, id, data, type, version, lastmod, lifetime, stored_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(namespace, id) DO UPDATE SET
			    data = excluded.data,
			    type = excluded.type,
			    version = excluded.version,
			    lastmod = excluded.lastmod,
			    lifetime = excluded.lifetime,
			    stored_at = excluded.stored_at`,
			s.cfg.Namespace, r.ID, []byte(r.Content.Data), r.Content.Type,
			r.Content.Version, r.Content.LastMod, r.Content.Lifetime, r.Content.StoredAt,
		)
		return err
	})
}

func (s *Store) Remove(ctx context.Context, id string) error {
	return s.tx(ctx, "remove", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM resources WHERE namespace = ? AND id = ?`, s.cfg.Namespace, id)
		return err
	})
}

// Count returns the number of stored records in the namespace.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources WHERE namespace = ?`, s.cfg.Namespace).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// Keys lists every stored ID in the namespace.
func (s *Store) Keys(ctx context.Context) ([]string, error) { return s.ListIDs(ctx, "") }

// ListIDs returns stored IDs ordered by id. An empty typ lists every type.
func (s *Store) ListIDs(ctx context.Context, typ string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM resources
		 WHERE namespace = ? AND (? = '' OR type = ?)
		 ORDER BY id`,
		s.cfg.Namespace, typ, typ,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list ids: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate ids: %w", err)
	}
	return ids, nil
}

// DeleteStoredBefore removes records stored before cutoff and returns how many were deleted.
func (s *Store) DeleteStoredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.tx(ctx, "prune", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM resources WHERE namespace = ? AND stored_at < ?`,
			s.cfg.Namespace, cutoff.UnixMilli(),
		)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

func (s *Store) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return adapter.ErrClosed
	}
	return nil
}

// tx runs fn in a transaction and commits, rolling back on any error.
func (s *Store) tx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: %s: begin: %w", op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("sqlite: %s: %w", op, classify(err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: %s: commit: %w", op, classify(err))
	}
	return nil
}

// classify maps SQLITE_FULL to the quota sentinel.
func classify(err error) error {
	if err != nil && strings.Contains(err.Error(), "SQLITE_FULL") {
		return fmt.Errorf("%w: %v", adapter.ErrQuota, err)
	}
	return err
}
