package bolt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/unkn0wn-root/rescache/adapter"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Path: filepath.Join(t.TempDir(), "cache.db"), Bucket: "test"})
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func rec(id, data string) adapter.Record {
	return adapter.Record{ID: id, Content: adapter.Content{Data: data, Type: "js", Version: "1", StoredAt: 1000}}
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestCreateReadUpdateRemove(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, ok, err := s.Read(ctx, "a.js")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Create(ctx, rec("a.js", "one")))
	got, ok, err := s.Read(ctx, "a.js")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a.js", got.ID)
	require.Equal(t, "one", got.Content.Data)
	require.Equal(t, int64(1000), got.Content.StoredAt)

	// create never overwrites
	require.NoError(t, s.Create(ctx, rec("a.js", "two")))
	got, _, _ = s.Read(ctx, "a.js")
	require.Equal(t, "one", got.Content.Data)

	require.NoError(t, s.Update(ctx, rec("a.js", "two")))
	got, _, _ = s.Read(ctx, "a.js")
	require.Equal(t, "two", got.Content.Data)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a.js"}, keys)

	require.NoError(t, s.Remove(ctx, "a.js"))
	require.NoError(t, s.Remove(ctx, "missing.js"))
	_, ok, err = s.Read(ctx, "a.js")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCorruptValueSelfHeals(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte("test")).Put([]byte("bad.css"), []byte("{not json"))
	})
	require.NoError(t, err)

	_, ok, err := s.Read(ctx, "bad.css")
	require.ErrorIs(t, err, adapter.ErrCorrupt)
	require.False(t, ok)

	_, ok, err = s.Read(ctx, "bad.css")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClosedStoreReturnsErrClosed(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Close(ctx))

	_, _, err := s.Read(ctx, "a.js")
	require.ErrorIs(t, err, adapter.ErrClosed)
	require.ErrorIs(t, s.Create(ctx, rec("a.js", "x")), adapter.ErrClosed)
}

func TestAvailable(t *testing.T) {
	dir := t.TempDir()
	require.True(t, Available(filepath.Join(dir, "x.db")))
	require.False(t, Available(""))
	require.False(t, Available(filepath.Join(dir, "missing", "x.db")))

	f := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(f, nil, 0o600))
	require.False(t, Available(filepath.Join(f, "x.db")))
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := New(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Update(ctx, rec("site.css", "body{}")))
	require.NoError(t, s.Close(ctx))

	s2, err := New(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s2.Open(ctx))
	defer s2.Close(ctx)
	got, ok, err := s2.Read(ctx, "site.css")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "body{}", got.Content.Data)
}
