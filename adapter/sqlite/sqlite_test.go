package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/rescache/adapter"
)

func openStore(t *testing.T, path, ns string) *Store {
	t.Helper()
	s, err := New(Config{Path: path, Namespace: ns})
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestCRUD(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "res.db"), "site")

	r := adapter.Record{ID: "a.js", Content: adapter.Content{Data: "alert(1)", Type: "js", Version: "a", Lifetime: -1, StoredAt: 42}}
	require.NoError(t, s.Create(ctx, r))

	got, ok, err := s.Read(ctx, "a.js")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, r, got)

	// create on an existing id keeps the first record
	r2 := r
	r2.Content.Data = "alert(2)"
	require.NoError(t, s.Create(ctx, r2))
	got, _, _ = s.Read(ctx, "a.js")
	require.Equal(t, "alert(1)", got.Content.Data)

	require.NoError(t, s.Update(ctx, r2))
	got, _, _ = s.Read(ctx, "a.js")
	require.Equal(t, "alert(2)", got.Content.Data)

	require.NoError(t, s.Remove(ctx, "a.js"))
	_, ok, err = s.Read(ctx, "a.js")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "res.db")
	s := openStore(t, path, "site")
	other := openStore(t, path, "other")

	now := time.Now()
	old := now.Add(-time.Hour).UnixMilli()
	require.NoError(t, s.Update(ctx, adapter.Record{ID: "b.css", Content: adapter.Content{Data: "b", Type: "css", StoredAt: old}}))
	require.NoError(t, s.Update(ctx, adapter.Record{ID: "a.js", Content: adapter.Content{Data: "a", Type: "js", StoredAt: now.UnixMilli()}}))
	require.NoError(t, other.Update(ctx, adapter.Record{ID: "c.js", Content: adapter.Content{Data: "c", Type: "js", StoredAt: old}}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	ids, err := s.ListIDs(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"a.js", "b.css"}, ids)
	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	require.Equal(t, ids, keys)

	ids, err = s.ListIDs(ctx, "css")
	require.NoError(t, err)
	require.Equal(t, []string{"b.css"}, ids)

	deleted, err := s.DeleteStoredBefore(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	// namespaces are isolated
	n, err = other.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "res.db"), "")
	require.NoError(t, s.Close(ctx))
	_, _, err := s.Read(ctx, "x")
	require.ErrorIs(t, err, adapter.ErrClosed)
	require.ErrorIs(t, s.Update(ctx, adapter.Record{ID: "x"}), adapter.ErrClosed)
}

func TestReadRunsInTransaction(t *testing.T) {
	s := openStore(t, filepath.Join(t.TempDir(), "res.db"), "")
	require.NoError(t, s.Update(context.Background(), adapter.Record{ID: "a.js", Content: adapter.Content{Data: "A"}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := s.Read(ctx, "a.js")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorContains(t, err, "sqlite: read: begin")
	require.False(t, ok)
}

func TestAvailable(t *testing.T) {
	require.True(t, Available(filepath.Join(t.TempDir(), "x.db")))
	require.False(t, Available(""))
	require.False(t, Available("/definitely/not/here/x.db"))
}
